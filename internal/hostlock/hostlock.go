// Package hostlock serializes deploy/rollback operations against a single
// host. The core assumes at most one mutating operation per host at a time;
// this advisory flock makes that assumption enforced rather than folklore,
// at least for operators sharing a machine. Cross-machine serialization is
// still the operator's responsibility (e.g. a CI concurrency group per host).
package hostlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked means another operation currently holds the lock for this host.
// Callers fail fast; they never wait.
var ErrLocked = errors.New("another operation is in progress for this host")

// Lock is a held per-host lock. Released on Release or process exit.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the exclusive lock for the given host tag, creating the
// lock directory if needed. Non-blocking.
func Acquire(dir, tag string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, tag+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("lock %s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// Record the holder for operators poking around with cat.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	return &Lock{f: f, path: path}, nil
}

// Release drops the lock. The lock file itself stays behind; flock locks
// are identified by the open file, not the path.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return l.f.Close()
}
