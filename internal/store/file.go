// Package store: file-backed session store.
//
// This backend keeps one JSON document per session id in a flat directory,
// mirroring how operators inspect sessions in the field: `cat <id>.json`.
// Saves go through a temp file and rename so a concurrent reader never
// observes a partially written record.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// Constants for file store configuration
const (
	// DefaultDirPermissions defines the default permissions for session directories
	DefaultDirPermissions = 0755
	// DefaultFilePermissions defines the default permissions for session files
	DefaultFilePermissions = 0644
	// sessionFileExt is the extension of persisted session documents
	sessionFileExt = ".json"
)

// FileStore persists each session as a single JSON file under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at the configured directory,
// creating it if needed.
func NewFileStore(opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dir == "" {
		slog.Error("FileStore session directory not set")
		return nil, fmt.Errorf("session directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create session directory", "error", err, "dir", cfg.Dir)
		return nil, fmt.Errorf("failed to create session directory %s: %w", cfg.Dir, err)
	}
	slog.Debug("FileStore initialized", "dir", cfg.Dir)
	return &FileStore{dir: cfg.Dir}, nil
}

// Dir returns the session directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	if err := models.ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+sessionFileExt), nil
}

// writeAtomic replaces the session document as a whole: write to a temp
// file in the same directory, then rename over the target.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Chmod(tmpPath, DefaultFilePermissions); err != nil {
		slog.Warn("Failed to chmod session file", "error", err, "path", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) read(id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}
	return data, nil
}

// SaveIntakeRecord writes the record document, replacing it atomically.
func (s *FileStore) SaveIntakeRecord(rec models.IntakeRecord) error {
	path, err := s.path(rec.SessionID)
	if err != nil {
		return err
	}
	data, err := models.EncodeIntakeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(path, data); err != nil {
		slog.Error("FileStore.SaveIntakeRecord failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	slog.Debug("FileStore.SaveIntakeRecord succeeded", "sessionID", rec.SessionID, "path", path)
	return nil
}

// GetIntakeRecord loads and parses an intake document, or (nil, nil) if absent.
func (s *FileStore) GetIntakeRecord(id string) (*models.IntakeRecord, error) {
	data, err := s.read(id)
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParseIntakeRecord(data)
}

// SavePregnancyRecord writes the record document, replacing it atomically.
func (s *FileStore) SavePregnancyRecord(rec models.PregnancyRecord) error {
	path, err := s.path(rec.SessionID)
	if err != nil {
		return err
	}
	data, err := models.EncodePregnancyRecord(rec)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(path, data); err != nil {
		slog.Error("FileStore.SavePregnancyRecord failed", "error", err, "sessionID", rec.SessionID)
		return err
	}
	slog.Debug("FileStore.SavePregnancyRecord succeeded", "sessionID", rec.SessionID, "path", path)
	return nil
}

// GetPregnancyRecord loads and parses a pregnancy document, or (nil, nil) if absent.
func (s *FileStore) GetPregnancyRecord(id string) (*models.PregnancyRecord, error) {
	data, err := s.read(id)
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParsePregnancyRecord(data)
}

// ListSessionIDs returns the ids of all persisted sessions, sorted.
func (s *FileStore) ListSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory %s: %w", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sessionFileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, sessionFileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
