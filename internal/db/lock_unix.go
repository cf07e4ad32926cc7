//go:build unix

package db

import (
	"errors"

	"golang.org/x/sys/unix"
)

// tryLock takes the store lock without waiting. The kernel releases it when
// the holding process exits.
func (l *writeLocker) tryLock() error {
	err := unix.Flock(int(l.lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return errLockHeld
	}
	return err
}

func (l *writeLocker) unlock() {
	if l.lockFile == nil {
		return
	}
	_ = unix.Flock(int(l.lockFile.Fd()), unix.LOCK_UN)
}

// isProcessAlive reports whether pid is running. EPERM means it exists but
// belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
