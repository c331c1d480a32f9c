// Package archive turns source files into transportable artifacts: a
// single-entry tar container compressed with zstd and optionally
// protected with passphrase-derived AES-256-GCM.
package archive
