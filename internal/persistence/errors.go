package persistence

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnformatted    = errors.New("record store is not formatted")
	// ErrRestart marks a call that requested a device restart; nothing after it should run.
	ErrRestart = errors.New("restart requested")
)

// ShortIOError reports a record transfer that moved fewer bytes than the record size.
type ShortIOError struct {
	Op       string
	Record   string
	Expected int
	Actual   int
}

func (e *ShortIOError) Error() string {
	return fmt.Sprintf("short %s of record %q: %d of %d bytes", e.Op, e.Record, e.Actual, e.Expected)
}

// RestartError is returned after a restart has been requested.
type RestartError struct {
	Reason string
}

func (e *RestartError) Error() string {
	return "restart requested: " + e.Reason
}

func (e *RestartError) Is(target error) bool {
	return target == ErrRestart
}
