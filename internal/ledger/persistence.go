package ledger

import (
	"log/slog"
	"sync"

	"courier/internal/persist"
)

// JSONFile persists the ledger as a single JSON object keyed by path.
type JSONFile struct {
	path   string
	logger *slog.Logger
}

// NewJSONFile returns a Persistence backed by the JSON file at path.
func NewJSONFile(path string, logger *slog.Logger) *JSONFile {
	return &JSONFile{path: path, logger: logger}
}

func (j *JSONFile) Load() (map[string]FileRecord, error) {
	records := make(map[string]FileRecord)
	if err := persist.LoadJSON(j.path, &records, j.logger); err != nil {
		return nil, err
	}
	return records, nil
}

func (j *JSONFile) Save(records map[string]FileRecord) error {
	return persist.SaveJSON(j.path, records)
}

// Memory is an in-process Persistence double for tests. Save failures
// can be injected to exercise commit rollback.
type Memory struct {
	mu      sync.Mutex
	records map[string]FileRecord
	SaveErr error
}

// NewMemory returns an empty in-memory Persistence.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]FileRecord)}
}

func (m *Memory) Load() (map[string]FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]FileRecord, len(m.records))
	for path, record := range m.records {
		out[path] = record
	}
	return out, nil
}

func (m *Memory) Save(records map[string]FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.records = make(map[string]FileRecord, len(records))
	for path, record := range records {
		m.records[path] = record
	}
	return nil
}
