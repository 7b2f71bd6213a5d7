// Package store: PostgreSQL-backed session store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakeBridge/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists session documents in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) save(id, kind string, record []byte) error {
	_, err := s.db.Exec(`INSERT INTO sessions (session_id, kind, record, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id) DO UPDATE SET kind = EXCLUDED.kind, record = EXCLUDED.record, updated_at = NOW()`,
		id, kind, string(record))
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) get(id, kind string) ([]byte, error) {
	var record string
	err := s.db.QueryRow(`SELECT record FROM sessions WHERE session_id = $1 AND kind = $2`, id, kind).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	return []byte(record), nil
}

// SaveIntakeRecord upserts the whole intake document.
func (s *PostgresStore) SaveIntakeRecord(rec models.IntakeRecord) error {
	data, err := models.EncodeIntakeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.save(rec.SessionID, kindIntake, data); err != nil {
		slog.Error("PostgresStore.SaveIntakeRecord failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	slog.Debug("PostgresStore.SaveIntakeRecord succeeded", "sessionID", rec.SessionID)
	return nil
}

// GetIntakeRecord loads and parses an intake document, or (nil, nil) if absent.
func (s *PostgresStore) GetIntakeRecord(id string) (*models.IntakeRecord, error) {
	data, err := s.get(id, kindIntake)
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParseIntakeRecord(data)
}

// SavePregnancyRecord upserts the whole pregnancy document.
func (s *PostgresStore) SavePregnancyRecord(rec models.PregnancyRecord) error {
	data, err := models.EncodePregnancyRecord(rec)
	if err != nil {
		return err
	}
	if err := s.save(rec.SessionID, kindPregnancy, data); err != nil {
		slog.Error("PostgresStore.SavePregnancyRecord failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	slog.Debug("PostgresStore.SavePregnancyRecord succeeded", "sessionID", rec.SessionID)
	return nil
}

// GetPregnancyRecord loads and parses a pregnancy document, or (nil, nil) if absent.
func (s *PostgresStore) GetPregnancyRecord(id string) (*models.PregnancyRecord, error) {
	data, err := s.get(id, kindPregnancy)
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParsePregnancyRecord(data)
}

// ListSessionIDs returns all stored session ids, sorted.
func (s *PostgresStore) ListSessionIDs() ([]string, error) {
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
