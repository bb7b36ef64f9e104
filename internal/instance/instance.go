// Package instance guards against running two copies of the daemon
// against the same store, grounded on the teacher's
// internal/instance/manager.go PID-file-plus-exclusive-lock pattern.
// The teacher targets Windows CreateFile exclusive access; this adapts
// the same idiom to golang.org/x/sys/unix.Flock for the daemon's Linux
// deployment target.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// PIDFileData is the JSON structure written to the lock file's PID
// sidecar, for operator inspection. RunID is opaque and unordered, so
// it is minted with google/uuid rather than the sortable idgen package
// entity IDs are built with.
type PIDFileData struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Hostname  string    `json:"hostname"`
}

// Manager holds an exclusive advisory lock over a single lock file,
// preventing two daemon processes from opening the same store path.
type Manager struct {
	lockPath     string
	pidPath      string
	lockFile     *os.File
	acquiredLock bool
}

// NewManager builds a Manager guarding storePath; it derives sibling
// .lock/.pid files next to it.
func NewManager(storePath string) *Manager {
	return &Manager{
		lockPath: storePath + ".lock",
		pidPath:  storePath + ".pid",
	}
}

// AcquireLock takes a non-blocking exclusive flock on the lock file,
// failing fast if another process already holds it.
func (m *Manager) AcquireLock() error {
	f, err := os.OpenFile(m.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return fmt.Errorf("another instance already holds the lock at %s", m.lockPath)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	m.lockFile = f
	m.acquiredLock = true

	hostname, _ := os.Hostname()
	data := PIDFileData{PID: os.Getpid(), RunID: uuid.NewString(), StartedAt: time.Now(), Hostname: hostname}
	if b, err := json.MarshalIndent(data, "", "  "); err == nil {
		os.WriteFile(m.pidPath, b, 0644)
	}
	return nil
}

// ReleaseLock drops the flock and removes the PID sidecar. Safe to
// call even if AcquireLock never succeeded.
func (m *Manager) ReleaseLock() error {
	if !m.acquiredLock {
		return nil
	}
	unix.Flock(int(m.lockFile.Fd()), unix.LOCK_UN)
	m.lockFile.Close()
	os.Remove(m.pidPath)
	os.Remove(m.lockPath)
	m.acquiredLock = false
	return nil
}
