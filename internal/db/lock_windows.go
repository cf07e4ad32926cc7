//go:build windows

package db

import (
	"errors"

	"golang.org/x/sys/windows"
)

// The store lock is the first byte of store.lock.
const (
	lockOffset = 0
	lockLength = 1
	// GetExitCodeProcess reports STILL_ACTIVE for a running process.
	stillActive = 259
)

// tryLock takes the store lock without waiting.
func (l *writeLocker) tryLock() error {
	ol := &windows.Overlapped{Offset: lockOffset}
	err := windows.LockFileEx(windows.Handle(l.lockFile.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, lockLength, 0, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return errLockHeld
	}
	return err
}

func (l *writeLocker) unlock() {
	if l.lockFile == nil {
		return
	}
	ol := &windows.Overlapped{Offset: lockOffset}
	_ = windows.UnlockFileEx(windows.Handle(l.lockFile.Fd()), 0, lockLength, 0, ol)
}

// isProcessAlive reports whether pid is running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
