// Package hashing computes streamed BLAKE3 content fingerprints.
package hashing

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// blockSize bounds the per-read buffer so hashing keeps constant memory
// regardless of file size.
const blockSize = 256 * 1024

// File returns the hex-encoded BLAKE3 digest of the file at path. The
// file is streamed in fixed-size blocks and never loaded whole into
// memory. The digest is stable across runs and platforms.
func File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Bytes returns the hex-encoded BLAKE3 digest of data. Used by tests and
// the admin API to cross-check ledger entries.
func Bytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
