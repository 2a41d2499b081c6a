package serialmux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/banshee-data/platesort/internal/security"
)

// ErrPortBusy is returned when another process holds the port lock.
var ErrPortBusy = errors.New("serial port in use by another platesort process")

// PortLock keeps two processes from driving the same controller.
type PortLock struct {
	path string
	lock *flock.Flock
}

// LockPort takes an advisory lock for port, stored in dir (os.TempDir when
// empty). It does not block.
func LockPort(port, dir string) (*PortLock, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path, err := security.JoinWithin(dir, "platesort-"+filepath.Base(port)+".lock")
	if err != nil {
		return nil, err
	}
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire port lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (lock %s)", ErrPortBusy, port, path)
	}
	return &PortLock{path: path, lock: l}, nil
}

// Path returns the lock file location.
func (p *PortLock) Path() string { return p.path }

// Unlock releases the lock.
func (p *PortLock) Unlock() error { return p.lock.Unlock() }
