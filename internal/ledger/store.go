package ledger

import (
	"fmt"
	"log/slog"
	"sync"

	"courier/internal/logging"
)

// Persistence is the durable storage port behind the ledger. The JSON
// file implementation is used in production; tests substitute an
// in-memory double.
type Persistence interface {
	Load() (map[string]FileRecord, error)
	Save(map[string]FileRecord) error
}

// Store holds the delivery history for all monitored paths. It is the
// dedup and idempotency authority: a path is re-delivered only when no
// record carries its current content hash and the per-path record is
// absent or stale. All mutations are persisted synchronously before the
// mutating call returns.
type Store struct {
	mu      sync.Mutex
	port    Persistence
	logger  *slog.Logger
	records map[string]FileRecord
}

// Open loads the ledger from the persistence port. A missing or corrupt
// backing file degrades to an empty ledger (the port handles that); only
// genuine I/O failures surface as errors.
func Open(port Persistence, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	store := &Store{port: port, logger: logger}
	if err := store.Reload(); err != nil {
		return nil, err
	}
	return store, nil
}

// Reload replaces the in-memory state with whatever the persistence port
// currently holds. The admin API may empty the backing file at any time;
// the scan scheduler reloads at the top of each cycle rather than
// trusting in-memory state across cycles.
func (s *Store) Reload() error {
	records, err := s.port.Load()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if records == nil {
		records = make(map[string]FileRecord)
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// LookupByHash reports whether any record in the ledger carries the
// given content hash, regardless of path. Renaming or duplicating an
// already delivered file therefore skips re-delivery; this is documented
// behavior, not an accident.
func (s *Store) LookupByHash(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.Hash == hash {
			return true
		}
	}
	return false
}

// IsStaleOrNew reports whether path has no record yet or its stored hash
// differs from hash.
func (s *Store) IsStaleOrNew(path, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[path]
	if !ok {
		return true
	}
	return record.Hash != hash
}

// Commit upserts the record for path and persists the ledger before
// returning. Callers may crash immediately afterwards without losing the
// entry.
func (s *Store) Commit(path string, record FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, hadPrevious := s.records[path]
	s.records[path] = record
	if err := s.port.Save(s.records); err != nil {
		if hadPrevious {
			s.records[path] = previous
		} else {
			delete(s.records, path)
		}
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

// NextSequenceID returns the next delivery sequence id: the ledger-wide
// maximum plus one. The maximum is recovered from persisted state, so
// ids stay strictly increasing across restarts and are never reset while
// history exists.
func (s *Store) NextSequenceID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, record := range s.records {
		if record.SequenceID > max {
			max = record.SequenceID
		}
	}
	return max + 1
}

// Get returns the record for path.
func (s *Store) Get(path string) (FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[path]
	return record, ok
}

// FindBySequenceID returns the path and record carrying the given
// sequence id.
func (s *Store) FindBySequenceID(id int64) (string, FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, record := range s.records {
		if record.SequenceID == id {
			return path, record, true
		}
	}
	return "", FileRecord{}, false
}

// Snapshot returns a copy of all records keyed by path.
func (s *Store) Snapshot() map[string]FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]FileRecord, len(s.records))
	for path, record := range s.records {
		out[path] = record
	}
	return out
}

// Len returns the number of ledger entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Reset empties the ledger and persists the empty state. This is the
// bulk reset exposed at the admin boundary; it fully replaces state, it
// does not merge.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	empty := make(map[string]FileRecord)
	if err := s.port.Save(empty); err != nil {
		return fmt.Errorf("persist ledger reset: %w", err)
	}
	s.records = empty
	return nil
}
