// Package config loads, normalizes, and validates the TOML
// configuration shared by the courier daemon and CLI.
package config
