package ledger_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"courier/internal/ledger"
	"courier/internal/logging"
)

func record(hash string, seq int64) ledger.FileRecord {
	return ledger.FileRecord{
		Hash:       hash,
		LastSentAt: time.Now().UTC(),
		Delivered:  true,
		Algorithm:  ledger.AlgorithmNone,
		SequenceID: seq,
	}
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_history.json")
	port := ledger.NewJSONFile(path, logging.NewNop())

	store, err := ledger.Open(port, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Commit("/watch/a.bin", record("hash-a", store.NextSequenceID())); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	reopened, err := ledger.Open(ledger.NewJSONFile(path, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, ok := reopened.Get("/watch/a.bin")
	if !ok {
		t.Fatal("record missing after reopen")
	}
	if got.Hash != "hash-a" || got.SequenceID != 1 {
		t.Fatalf("unexpected record: %#v", got)
	}
}

func TestLookupByHashIsGlobalAcrossPaths(t *testing.T) {
	store, err := ledger.Open(ledger.NewMemory(), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Commit("/watch/a.bin", record("shared-hash", 1)); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if !store.LookupByHash("shared-hash") {
		t.Fatal("expected hash to be found")
	}
	// Same content under another path is still a hit: renamed and
	// duplicated files are skipped, not re-delivered.
	if !store.IsStaleOrNew("/watch/b.bin", "shared-hash") {
		t.Fatal("per-path check should still report b.bin as new")
	}
	if store.LookupByHash("other-hash") {
		t.Fatal("unexpected hit for unknown hash")
	}
}

func TestIsStaleOrNew(t *testing.T) {
	store, err := ledger.Open(ledger.NewMemory(), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Commit("/watch/a.bin", record("v1", 1)); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if store.IsStaleOrNew("/watch/a.bin", "v1") {
		t.Fatal("unchanged file should not be stale")
	}
	if !store.IsStaleOrNew("/watch/a.bin", "v2") {
		t.Fatal("changed hash should be stale")
	}
	if !store.IsStaleOrNew("/watch/new.bin", "v1") {
		t.Fatal("unknown path should be new")
	}
}

func TestNextSequenceIDMonotonicAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_history.json")

	store, err := ledger.Open(ledger.NewJSONFile(path, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := store.NextSequenceID(); got != 1 {
		t.Fatalf("first sequence id = %d, want 1", got)
	}
	for i := 1; i <= 3; i++ {
		seq := store.NextSequenceID()
		if err := store.Commit(filepath.Join("/watch", string(rune('a'+i))), record("h", seq)); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	reopened, err := ledger.Open(ledger.NewJSONFile(path, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.NextSequenceID(); got != 4 {
		t.Fatalf("sequence id after restart = %d, want 4", got)
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := ledger.Open(ledger.NewJSONFile(path, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("Open should tolerate corrupt state: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", store.Len())
	}
}

func TestCommitRollsBackOnPersistFailure(t *testing.T) {
	port := ledger.NewMemory()
	store, err := ledger.Open(port, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	port.SaveErr = errors.New("disk full")
	if err := store.Commit("/watch/a.bin", record("h", 1)); err == nil {
		t.Fatal("expected commit error")
	}
	if _, ok := store.Get("/watch/a.bin"); ok {
		t.Fatal("failed commit must not leave an in-memory record")
	}
}

func TestReloadPicksUpExternalReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_history.json")
	store, err := ledger.Open(ledger.NewJSONFile(path, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Commit("/watch/a.bin", record("h", 1)); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// An admin reset empties the backing file behind the store's back.
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected reload to observe reset, got %d entries", store.Len())
	}
}

func TestFindBySequenceID(t *testing.T) {
	store, err := ledger.Open(ledger.NewMemory(), logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Commit("/watch/a.bin", record("h", 7)); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	path, rec, ok := store.FindBySequenceID(7)
	if !ok || path != "/watch/a.bin" || rec.Hash != "h" {
		t.Fatalf("unexpected lookup result: %q %#v %v", path, rec, ok)
	}
	if _, _, ok := store.FindBySequenceID(8); ok {
		t.Fatal("unexpected hit for unknown sequence id")
	}
}
