//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

type unixStoreLock struct {
	path string
	file *os.File
}

func acquireStoreLock(path string) (StoreLock, error) {
	// #nosec G304 -- path is the configured data directory plus a fixed file name.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open store lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		defer func() { _ = file.Close() }()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, contentionError(file)
		}

		return nil, fmt.Errorf("acquire store file lock: %w", err)
	}
	if err := writeOwnerPID(file); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()

		return nil, err
	}

	return &unixStoreLock{path: path, file: file}, nil
}

func (l *unixStoreLock) Path() string {
	return l.path
}

func (l *unixStoreLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	_ = l.file.Truncate(0)
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock store file lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close store lock file: %w", closeErr)
	}

	return nil
}
