// Package mapstore keeps replacement maps after a de-identification run so
// that later re-identification or visualization can find them by run ID.
//
// Two implementations are provided:
//   - memoryStore: in-memory only, used in tests and when no path is configured.
//   - boltStore:   embedded key-value store (bbolt), survives restarts.
//
// Maps are also exchanged as standalone JSON files (see WriteMapFile).
package mapstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
)

// ErrNotFound is returned when no map is stored under an ID.
var ErrNotFound = errors.New("replacement map not found")

// Record is one stored run.
type Record struct {
	ID        string              `json:"id"`
	Source    string              `json:"source,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	Mappings  deid.ReplacementMap `json:"mappings"`
}

// Store persists replacement maps. Implementations are safe for concurrent
// use.
type Store interface {
	// Save stores m under a new run ID and returns the record.
	Save(source string, m deid.ReplacementMap) (Record, error)

	// Get returns the record for id, or ErrNotFound.
	Get(id string) (Record, error)

	// List returns all records, oldest first, without their mappings.
	List() ([]Record, error)

	// Delete removes id. Deleting a missing ID is not an error.
	Delete(id string) error

	Close() error
}

// Open returns a bbolt-backed store at path, or an in-memory store when
// path is empty.
func Open(path string, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	if path == "" {
		log.Info("open", "no map store path configured, keeping maps in memory")
		return NewMemory(), nil
	}
	return NewBolt(path, log)
}

// Persistent reports whether s keeps maps after the process exits.
func Persistent(s Store) bool {
	_, mem := s.(*memoryStore)
	return s != nil && !mem
}

func newRecord(source string, m deid.ReplacementMap) Record {
	if m == nil {
		m = deid.NewReplacementMap()
	}
	return Record{
		ID:        uuid.NewString(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Mappings:  m.Clone(),
	}
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

// --- memoryStore ---------------------------------------------------------

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory returns an in-memory Store.
func NewMemory() Store {
	return &memoryStore{records: make(map[string]Record)}
}

func (s *memoryStore) Save(source string, m deid.ReplacementMap) (Record, error) {
	rec := newRecord(source, m)
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *memoryStore) Get(id string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Mappings = rec.Mappings.Clone()
	return rec, nil
}

func (s *memoryStore) List() ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		rec.Mappings = nil
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (s *memoryStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error { return nil }

// --- map files -----------------------------------------------------------

// WriteMapFile writes m as a two-level JSON object:
// {"<entity type>": {"<original>": "<replacement>"}}.
func WriteMapFile(path string, m deid.ReplacementMap) error {
	if m == nil {
		m = deid.NewReplacementMap()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode map: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write map %s: %w", path, err)
	}
	return nil
}

// ReadMapFile reads a map written by WriteMapFile.
func ReadMapFile(path string) (deid.ReplacementMap, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied map path
	if err != nil {
		return nil, fmt.Errorf("read map %s: %w", path, err)
	}
	var m deid.ReplacementMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse map %s: %w", path, err)
	}
	if m == nil {
		return nil, fmt.Errorf("parse map %s: %w", path, deid.ErrMissingReplacementMap)
	}
	return m, nil
}
