package workspace

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another live process holds the workspace lock.
var ErrLocked = errors.New("workspace locked by another process")

// Lock is a held advisory workspace lock.
type Lock struct {
	path string
}

// Acquire takes the advisory lock for this workspace. A lock file left by a
// dead process is treated as stale and replaced.
func (w *Workspace) Acquire() (*Lock, error) {
	for range 2 {
		f, err := os.OpenFile(w.LockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(w.LockPath)
				return nil, fmt.Errorf("write lock file %s: %w", w.LockPath, errors.Join(werr, cerr))
			}
			return &Lock{path: w.LockPath}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file %s: %w", w.LockPath, err)
		}

		pid, perr := readLockPID(w.LockPath)
		if perr == nil && isProcessAlive(pid) {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		// Stale or unreadable lock: remove and retry once.
		if rerr := os.Remove(w.LockPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock %s: %w", w.LockPath, rerr)
		}
	}
	return nil, fmt.Errorf("%w (lock contended)", ErrLocked)
}

// Release removes the lock file. Idempotent.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	return nil
}

// Holder returns the pid holding the workspace lock and whether that process
// is alive. pid 0 means no lock file exists.
func (w *Workspace) Holder() (pid int, alive bool, err error) {
	pid, err = readLockPID(w.LockPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pid, isProcessAlive(pid), nil
}

// ForceUnlock removes the lock file regardless of holder liveness.
func (w *Workspace) ForceUnlock() error {
	err := os.Remove(w.LockPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", w.LockPath, err)
	}
	return nil
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // lock path is controlled by the application
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid from %s: %w", path, err)
	}
	return pid, nil
}

// isProcessAlive checks for process existence by sending signal 0.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
