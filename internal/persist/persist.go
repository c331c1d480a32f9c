// Package persist reads and writes the JSON state files (delivery
// ledger, size cache) shared between the daemon and the admin API.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"courier/internal/logging"
)

// LoadJSON decodes the JSON object at path into out. A missing file is
// not an error: out is left untouched (callers pre-initialize it empty).
// A corrupt file degrades to the empty state with a logged warning and
// the corrupt content is left on disk until the next save replaces it.
func LoadJSON(path string, out any, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		if logger != nil {
			logger.Warn("state file corrupt; starting from empty state",
				logging.String("path", path),
				logging.Error(err),
			)
		}
		return nil
	}
	return nil
}

// SaveJSON marshals in and writes it to path via a temp file rename, so
// readers never observe a partially written state file.
func SaveJSON(path string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
