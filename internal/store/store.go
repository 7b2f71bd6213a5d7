// Package store provides session persistence backends for IntakeBridge.
//
// A store holds the durable whole-document form of each session, one record
// per session id, replaced atomically as a whole on every save. The store
// is the only shared resource between callers; it does not arbitrate
// concurrent writers to the same id — that is the service layer's job.
package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// Store is the persistence contract for session records. Lookups return
// (nil, nil) for unknown ids; the caller decides whether absence is an
// error.
type Store interface {
	SaveIntakeRecord(rec models.IntakeRecord) error
	GetIntakeRecord(id string) (*models.IntakeRecord, error)
	SavePregnancyRecord(rec models.PregnancyRecord) error
	GetPregnancyRecord(id string) (*models.PregnancyRecord, error)
	// ListSessionIDs returns all stored session ids, both kinds, sorted.
	ListSessionIDs() ([]string, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string for SQL backends.
	DSN string
	// Dir is the session directory for the file backend.
	Dir string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDir sets the session directory for the file backend.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// InMemoryStore keeps records in process memory. Used by tests and demos;
// nothing survives a restart.
type InMemoryStore struct {
	mu        sync.RWMutex
	intake    map[string][]byte
	pregnancy map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		intake:    make(map[string][]byte),
		pregnancy: make(map[string][]byte),
	}
}

// SaveIntakeRecord stores the encoded record, replacing any previous version.
func (s *InMemoryStore) SaveIntakeRecord(rec models.IntakeRecord) error {
	data, err := models.EncodeIntakeRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intake[rec.SessionID] = data
	slog.Debug("InMemoryStore.SaveIntakeRecord succeeded", "sessionID", rec.SessionID)
	return nil
}

// GetIntakeRecord returns the decoded record, or (nil, nil) if absent.
func (s *InMemoryStore) GetIntakeRecord(id string) (*models.IntakeRecord, error) {
	s.mu.RLock()
	data, ok := s.intake[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return models.ParseIntakeRecord(data)
}

// SavePregnancyRecord stores the encoded record, replacing any previous version.
func (s *InMemoryStore) SavePregnancyRecord(rec models.PregnancyRecord) error {
	data, err := models.EncodePregnancyRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pregnancy[rec.SessionID] = data
	slog.Debug("InMemoryStore.SavePregnancyRecord succeeded", "sessionID", rec.SessionID)
	return nil
}

// GetPregnancyRecord returns the decoded record, or (nil, nil) if absent.
func (s *InMemoryStore) GetPregnancyRecord(id string) (*models.PregnancyRecord, error) {
	s.mu.RLock()
	data, ok := s.pregnancy[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return models.ParsePregnancyRecord(data)
}

// ListSessionIDs returns all stored session ids, sorted.
func (s *InMemoryStore) ListSessionIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.intake)+len(s.pregnancy))
	for id := range s.intake {
		ids = append(ids, id)
	}
	for id := range s.pregnancy {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
