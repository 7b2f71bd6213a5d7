// Package store: SQLite-backed session store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/IntakeBridge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Session kind discriminators for the sessions table.
const (
	kindIntake    = "intake"
	kindPregnancy = "pregnancy"
)

// SQLiteStore persists session documents in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) save(id, kind string, record []byte) error {
	_, err := s.db.Exec(`INSERT INTO sessions (session_id, kind, record, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET kind = excluded.kind, record = excluded.record, updated_at = CURRENT_TIMESTAMP`,
		id, kind, string(record))
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) get(id, kind string) ([]byte, error) {
	var record string
	err := s.db.QueryRow(`SELECT record FROM sessions WHERE session_id = ? AND kind = ?`, id, kind).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	return []byte(record), nil
}

// SaveIntakeRecord upserts the whole intake document.
func (s *SQLiteStore) SaveIntakeRecord(rec models.IntakeRecord) error {
	data, err := models.EncodeIntakeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.save(rec.SessionID, kindIntake, data); err != nil {
		slog.Error("SQLiteStore.SaveIntakeRecord failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	slog.Debug("SQLiteStore.SaveIntakeRecord succeeded", "sessionID", rec.SessionID)
	return nil
}

// GetIntakeRecord loads and parses an intake document, or (nil, nil) if absent.
func (s *SQLiteStore) GetIntakeRecord(id string) (*models.IntakeRecord, error) {
	data, err := s.get(id, kindIntake)
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParseIntakeRecord(data)
}

// SavePregnancyRecord upserts the whole pregnancy document.
func (s *SQLiteStore) SavePregnancyRecord(rec models.PregnancyRecord) error {
	data, err := models.EncodePregnancyRecord(rec)
	if err != nil {
		return err
	}
	if err := s.save(rec.SessionID, kindPregnancy, data); err != nil {
		slog.Error("SQLiteStore.SavePregnancyRecord failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	slog.Debug("SQLiteStore.SavePregnancyRecord succeeded", "sessionID", rec.SessionID)
	return nil
}

// GetPregnancyRecord loads and parses a pregnancy document, or (nil, nil) if absent.
func (s *SQLiteStore) GetPregnancyRecord(id string) (*models.PregnancyRecord, error) {
	data, err := s.get(id, kindPregnancy)
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParsePregnancyRecord(data)
}

// ListSessionIDs returns all stored session ids, sorted.
func (s *SQLiteStore) ListSessionIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
