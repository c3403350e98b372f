package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type Record string

const (
	RecordGlobal  Record = "global"
	RecordPresets Record = "presets"
)

// Layout describes the two fixed-size records the store manages.
type Layout struct {
	GlobalSize      int
	PresetSize      int
	PresetCount     int
	BootFlagOffset  int
	ConfiguredValue byte
}

func (l Layout) size(which Record) int {
	if which == RecordGlobal {
		return l.GlobalSize
	}

	return l.PresetSize * l.PresetCount
}

func (l Layout) validate() error {
	if l.GlobalSize <= 0 || l.PresetSize <= 0 || l.PresetCount <= 0 {
		return fmt.Errorf("invalid record layout: global=%d preset=%d count=%d", l.GlobalSize, l.PresetSize, l.PresetCount)
	}
	if l.BootFlagOffset < 0 || l.BootFlagOffset >= l.GlobalSize {
		return fmt.Errorf("boot flag offset %d outside global record of %d bytes", l.BootFlagOffset, l.GlobalSize)
	}
	if l.ConfiguredValue == 0 {
		return fmt.Errorf("configured sentinel must be non-zero")
	}

	return nil
}

// Defaults fills raw record buffers with factory values.
type Defaults interface {
	PopulateGlobal(buf []byte) error
	PopulatePresets(buf []byte) error
}

// Restarter performs the device restart that follows a factory reset.
type Restarter interface {
	RequestRestart(reason string)
}

// Store maps the global and presets buffers onto backend records.
// The store knows nothing about field semantics beyond the boot flag position.
type Store struct {
	backend   Backend
	layout    Layout
	defaults  Defaults
	restarter Restarter
	logger    *slog.Logger
	writer    *WriterQueue

	mu      sync.Mutex
	global  []byte
	presets []byte
}

func NewStore(backend Backend, layout Layout, defaults Defaults, restarter Restarter, logger *slog.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("record backend is required")
	}
	if defaults == nil {
		return nil, fmt.Errorf("factory defaults are required")
	}
	if restarter == nil {
		return nil, fmt.Errorf("restarter is required")
	}
	if err := layout.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		backend:   backend,
		layout:    layout,
		defaults:  defaults,
		restarter: restarter,
		logger:    logger,
		global:    make([]byte, layout.GlobalSize),
		presets:   make([]byte, layout.size(RecordPresets)),
	}, nil
}

// UseWriter routes record writes through a serialized writer queue.
func (s *Store) UseWriter(w *WriterQueue) {
	s.mu.Lock()
	s.writer = w
	s.mu.Unlock()
}

// Boot loads both records. A structural problem or a missing configured flag
// resets the store to factory defaults and returns a *RestartError.
func (s *Store) Boot(ctx context.Context) error {
	if err := s.backend.Ready(ctx); err != nil {
		s.logger.Warn("record store unavailable, applying factory defaults", "error", err)

		return s.ResetToFactory(ctx)
	}
	for _, which := range []Record{RecordGlobal, RecordPresets} {
		info, err := s.backend.Stat(ctx, string(which))
		if errors.Is(err, ErrRecordNotFound) {
			s.logger.Warn("record missing, applying factory defaults", "record", which)

			return s.ResetToFactory(ctx)
		}
		if err != nil {
			s.logger.Warn("record stat failed, applying factory defaults", "record", which, "error", err)

			return s.ResetToFactory(ctx)
		}
		if expected := s.layout.size(which); info.Size != expected {
			s.logger.Warn("record size mismatch, applying factory defaults", "record", which, "expected", expected, "actual", info.Size)

			return s.ResetToFactory(ctx)
		}
	}

	for _, which := range []Record{RecordGlobal, RecordPresets} {
		if _, err := s.Load(ctx, which); err != nil {
			var short *ShortIOError
			if !errors.As(err, &short) {
				s.logger.Warn("record load failed, applying factory defaults", "record", which, "error", err)

				return s.ResetToFactory(ctx)
			}
		}
	}

	s.mu.Lock()
	flag := s.global[s.layout.BootFlagOffset]
	s.mu.Unlock()
	if flag != s.layout.ConfiguredValue {
		s.logger.Info("boot flag not set, applying factory defaults", "flag", flag)

		return s.ResetToFactory(ctx)
	}
	s.logger.Info("records loaded", "global_bytes", len(s.global), "presets_bytes", len(s.presets))

	return nil
}

// ResetToFactory repopulates both buffers with defaults, marks them configured,
// persists them and requests a restart. It always returns a *RestartError.
func (s *Store) ResetToFactory(ctx context.Context) error {
	if err := s.backend.Ready(ctx); err != nil {
		s.logger.Info("formatting record store", "reason", err)
		if err := s.backend.Format(ctx); err != nil {
			s.logger.Error("format record store failed", "error", err)
		}
	}

	s.mu.Lock()
	clear(s.global)
	clear(s.presets)
	if err := s.defaults.PopulateGlobal(s.global); err != nil {
		s.logger.Error("populate global defaults failed", "error", err)
	}
	if err := s.defaults.PopulatePresets(s.presets); err != nil {
		s.logger.Error("populate preset defaults failed", "error", err)
	}
	s.global[s.layout.BootFlagOffset] = s.layout.ConfiguredValue
	s.mu.Unlock()

	for _, which := range []Record{RecordGlobal, RecordPresets} {
		if _, err := s.Save(ctx, which); err != nil {
			s.logger.Error("persist factory defaults failed", "record", which, "error", err)
		}
	}

	return s.restart("factory defaults applied")
}

// ResetAllSettings clears the persisted boot flag so the next boot applies factory defaults.
// It always returns a *RestartError.
func (s *Store) ResetAllSettings(ctx context.Context) error {
	err := s.submit(ctx, "reset boot flag", func(ctx context.Context) error {
		_, err := s.backend.WriteAt(ctx, string(RecordGlobal), s.layout.BootFlagOffset, []byte{0})

		return err
	})
	if err != nil {
		s.logger.Error("clear boot flag failed", "error", err)
	}
	s.mu.Lock()
	s.global[s.layout.BootFlagOffset] = 0
	s.mu.Unlock()

	return s.restart("settings reset")
}

// Save writes one full record and returns the number of bytes written.
// A short write is reported as *ShortIOError and not retried.
func (s *Store) Save(ctx context.Context, which Record) (int, error) {
	data, err := s.Bytes(which)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.submit(ctx, "save "+string(which), func(ctx context.Context) error {
		var werr error
		n, werr = s.backend.Write(ctx, string(which), data)

		return werr
	})
	if err != nil {
		return n, err
	}
	if n != len(data) {
		short := &ShortIOError{Op: "write", Record: string(which), Expected: len(data), Actual: n}
		s.logger.Error("short record write", "record", which, "expected", len(data), "actual", n)

		return n, short
	}
	s.logger.Debug("record saved", "record", which, "bytes", n)

	return n, nil
}

// Load reads one full record into its buffer. On a short read the buffer keeps
// whatever was copied and *ShortIOError is returned.
func (s *Store) Load(ctx context.Context, which Record) (int, error) {
	size := s.layout.size(which)
	buf := make([]byte, size)
	n, err := s.backend.Read(ctx, string(which), buf)
	if err != nil {
		return n, fmt.Errorf("load %s: %w", which, err)
	}

	s.mu.Lock()
	copy(s.buffer(which), buf[:n])
	s.mu.Unlock()

	if n != size {
		s.logger.Error("short record read", "record", which, "expected", size, "actual", n)

		return n, &ShortIOError{Op: "read", Record: string(which), Expected: size, Actual: n}
	}
	s.logger.Debug("record loaded", "record", which, "bytes", n)

	return n, nil
}

// Bytes returns a copy of a record buffer.
func (s *Store) Bytes(which Record) ([]byte, error) {
	if which != RecordGlobal && which != RecordPresets {
		return nil, fmt.Errorf("unknown record %q", which)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buffer(which)))
	copy(out, s.buffer(which))

	return out, nil
}

// Stage replaces a record buffer without persisting it.
func (s *Store) Stage(which Record, data []byte) error {
	if which != RecordGlobal && which != RecordPresets {
		return fmt.Errorf("unknown record %q", which)
	}
	if expected := s.layout.size(which); len(data) != expected {
		return fmt.Errorf("stage %s: %d bytes, want %d", which, len(data), expected)
	}
	s.mu.Lock()
	copy(s.buffer(which), data)
	s.mu.Unlock()

	return nil
}

func (s *Store) buffer(which Record) []byte {
	if which == RecordGlobal {
		return s.global
	}

	return s.presets
}

func (s *Store) submit(ctx context.Context, name string, fn func(context.Context) error) error {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()
	if w == nil {
		return fn(ctx)
	}

	return w.Submit(ctx, name, fn)
}

func (s *Store) restart(reason string) error {
	s.logger.Warn("restart requested", "reason", reason)
	s.restarter.RequestRestart(reason)

	return &RestartError{Reason: reason}
}
