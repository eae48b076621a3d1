//go:build windows

package store

import (
	"os"

	"golang.org/x/sys/windows"
)

// flock takes an exclusive LockFileEx lock on the first byte of f, waiting
// for other holders.
func flock(f *os.File) error {
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, new(windows.Overlapped))
}

func funlock(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}
