// Package logging builds the slog loggers used across courier and
// prunes aged log files.
package logging
