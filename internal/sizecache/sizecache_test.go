package sizecache_test

import (
	"os"
	"path/filepath"
	"testing"

	"courier/internal/logging"
	"courier/internal/sizecache"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRebuildOrdersSmallestFirst(t *testing.T) {
	watched := t.TempDir()
	large := writeFile(t, watched, "large.bin", 4096)
	small := writeFile(t, watched, "small.bin", 16)
	medium := writeFile(t, watched, "medium.bin", 512)

	cache, err := sizecache.Open(filepath.Join(t.TempDir(), "size_cache.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := cache.Rebuild([]string{watched}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	order := cache.Ordered()
	want := []string{small, medium, large}
	if len(order) != len(want) {
		t.Fatalf("got %d paths, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestRebuildPersistsAndReloads(t *testing.T) {
	watched := t.TempDir()
	writeFile(t, watched, "a.bin", 100)
	statePath := filepath.Join(t.TempDir(), "size_cache.json")

	cache, err := sizecache.Open(statePath, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := cache.Rebuild([]string{watched}); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	reloaded, err := sizecache.Open(statePath, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", reloaded.Len())
	}
}

func TestCorruptCacheDegradesToEmpty(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "size_cache.json")
	if err := os.WriteFile(statePath, []byte("[oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cache, err := sizecache.Open(statePath, logging.NewNop())
	if err != nil {
		t.Fatalf("Open should tolerate corruption: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Len())
	}
}
