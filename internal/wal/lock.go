package wal

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an OS-level advisory exclusive lock on a dedicated lock
// file, used to gate cross-process mutation of a session or of the
// Session Index (§4.4, §5 "Cross-process coordination").
type FileLock struct {
	f *os.File
}

// Lock opens (creating if needed) the lock file at path and blocks until
// an exclusive advisory lock is held.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: flock %s: %w", path, err)
	}
	return &FileLock{f: f}, nil
}

// TryLock is the non-blocking form of Lock: it returns (nil, nil) if the
// lock is currently held elsewhere, rather than blocking.
func TryLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: flock %s: %w", path, err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock and closes the underlying file descriptor.
func (l *FileLock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("wal: unlock: %w", err)
	}
	return l.f.Close()
}
