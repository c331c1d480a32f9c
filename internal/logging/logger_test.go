package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/internal/logging"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "courier.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("delivery complete", logging.String("path", "/tmp/example.bin"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "delivery complete") {
		t.Fatalf("log file missing entry: %s", data)
	}
	if !strings.Contains(string(data), `"level":"info"`) {
		t.Fatalf("expected lowercase json level key: %s", data)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestCleanupOldLogsRemovesAgedFiles(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "courier-2020.log")
	newFile := filepath.Join(dir, "courier.log")
	for _, path := range []string{oldFile, newFile} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	aged := time.Now().AddDate(0, 0, -90)
	if err := os.Chtimes(oldFile, aged, aged); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	logging.CleanupOldLogs(logging.NewNop(), 30, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "courier*.log",
		Exclude: []string{newFile},
	})

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Fatalf("expected aged log removed, stat err=%v", err)
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Fatalf("active log should remain: %v", err)
	}
}
