//go:build windows

package skhub

import (
	"os"

	"golang.org/x/sys/windows"
)

// tryLockFile takes an exclusive LockFileEx() mandatory lock without
// blocking.
func tryLockFile(f *os.File) error {
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		1, 0,
		&windows.Overlapped{},
	)
}

// unlockFile releases a lock taken by tryLockFile.
func unlockFile(f *os.File) error {
	return windows.UnlockFileEx(
		windows.Handle(f.Fd()),
		0,
		1, 0,
		&windows.Overlapped{},
	)
}
