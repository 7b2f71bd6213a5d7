// Package lockfile provides per-session advisory locking for IntakeBridge.
//
// Every boundary operation is a load-mutate-save cycle over one session
// record; the record itself offers no protection against concurrent writers
// to the same id. The lockers here serialize those cycles: an in-process
// mutex locker for single-process deployments and a flock-based directory
// locker that also covers multiple processes sharing a session directory.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// lockFileExt is the extension of per-session lock files.
const lockFileExt = ".lock"

// Locker serializes load-mutate-save cycles keyed by session id. Acquire
// blocks until the lock is held and returns the release function.
type Locker interface {
	Acquire(sessionID string) (release func(), err error)
}

// MutexLocker is an in-process Locker backed by one mutex per session id.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutexLocker creates an empty in-process locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the mutex for the given session id, creating it on first use.
func (l *MutexLocker) Acquire(sessionID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// DirLocker is a Locker backed by flock(2) on per-session lock files in a
// directory. Locks are released automatically if the process dies.
type DirLocker struct {
	dir string
}

// NewDirLocker creates a flock-based locker rooted at dir, creating the
// directory if needed.
func NewDirLocker(dir string) (*DirLocker, error) {
	if dir == "" {
		return nil, fmt.Errorf("lock directory not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Failed to create lock directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	slog.Debug("DirLocker initialized", "dir", dir)
	return &DirLocker{dir: dir}, nil
}

// Acquire takes an exclusive flock on the session's lock file, blocking
// until any competing holder releases it.
func (l *DirLocker) Acquire(sessionID string) (func(), error) {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(l.dir, sessionID+lockFileExt)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open session lock file", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		slog.Error("Failed to acquire session lock", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	slog.Debug("Session lock acquired", "sessionID", sessionID, "lock_path", lockPath)

	release := func() {
		if err := syscall.Flock(int(file.Fd()), syscall.LOCK_UN); err != nil {
			slog.Error("Failed to release session lock", "error", err, "lock_path", lockPath)
		}
		if err := file.Close(); err != nil {
			slog.Error("Failed to close session lock file", "error", err, "lock_path", lockPath)
		}
		// The lock file is left in place: removing it would race a
		// concurrent acquirer holding an fd to the old inode.
		slog.Debug("Session lock released", "sessionID", sessionID, "lock_path", lockPath)
	}
	return release, nil
}
