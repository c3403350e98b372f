package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInstanceAlreadyRunning indicates another process already owns the data directory.
var ErrInstanceAlreadyRunning = errors.New("instance already running")

// ErrStoreLockUnsupported indicates the current platform has no lock backend implementation.
var ErrStoreLockUnsupported = errors.New("store lock unsupported")

const storeLockFilename = "store.lock"

// StoreLock is an acquired exclusive lock on a data directory.
type StoreLock interface {
	Path() string
	Release() error
}

// AcquireStoreLock locks dataDir for this process. The lock file records the owner pid.
func AcquireStoreLock(dataDir string) (StoreLock, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, errors.New("store lock: data directory is empty")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return acquireStoreLock(filepath.Join(dataDir, storeLockFilename))
}

// contentionError wraps ErrInstanceAlreadyRunning with the recorded owner pid when known.
func contentionError(file *os.File) error {
	if pid, ok := readOwnerPID(file); ok {
		return fmt.Errorf("%w (pid %d)", ErrInstanceAlreadyRunning, pid)
	}

	return ErrInstanceAlreadyRunning
}

func readOwnerPID(file *os.File) (int, bool) {
	buf := make([]byte, 32)
	n, _ := file.ReadAt(buf, 0)
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

func writeOwnerPID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate store lock file: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write store lock owner: %w", err)
	}

	return nil
}
