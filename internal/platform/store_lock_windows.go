//go:build windows

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type windowsStoreLock struct {
	path string
	file *os.File
}

func acquireStoreLock(path string) (StoreLock, error) {
	// #nosec G304 -- path is the configured data directory plus a fixed file name.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open store lock file: %w", err)
	}

	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(windows.Handle(file.Fd()), flags, 0, 1, 0, ol); err != nil {
		defer func() { _ = file.Close() }()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, ErrInstanceAlreadyRunning
		}

		return nil, fmt.Errorf("lock store file: %w", err)
	}

	lock := &windowsStoreLock{path: path, file: file}
	if err := writeOwnerPID(file); err != nil {
		_ = lock.Release()

		return nil, err
	}

	return lock, nil
}

func (l *windowsStoreLock) Path() string {
	return l.path
}

func (l *windowsStoreLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	ol := new(windows.Overlapped)
	unlockErr := windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, ol)
	closeErr := l.file.Close()
	l.file = nil

	return errors.Join(unlockErr, closeErr)
}
