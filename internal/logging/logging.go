package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skobkin/scribblego/internal/config"
)

// MaxLogFileSize is the size past which the log file is rotated when it is opened.
const MaxLogFileSize int64 = 4 << 20

// Manager owns the process logger, its level and the optional log file.
// The level survives reconfiguration so loggers handed out earlier follow it.
type Manager struct {
	mu     sync.RWMutex
	level  slog.LevelVar
	logger *slog.Logger
	file   *os.File
}

func NewManager() *Manager {
	m := &Manager{}
	m.level.Set(slog.LevelInfo)
	m.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &m.level}))

	return m
}

// Configure swaps the handler for cfg and installs it as the slog default.
func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var file *os.File
	if cfg.LogToFile {
		file, err = openLogFile(filePath)
		if err != nil {
			return err
		}
	}
	if m.file != nil {
		_ = m.file.Close()
	}
	m.file = file

	var w io.Writer = os.Stdout
	if file != nil {
		w = &teeWriter{dst: []io.Writer{os.Stdout, file}}
	}
	m.level.Set(level)
	m.logger = slog.New(newHandler(cfg.Format, w, &m.level))
	slog.SetDefault(m.logger)

	return nil
}

func (m *Manager) Level() slog.Level {
	return m.level.Level()
}

func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	if err != nil {
		return fmt.Errorf("close log file: %w", err)
	}

	return nil
}

// openLogFile appends to path, first moving an oversized file to path.1.
func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)
	if info, err := os.Stat(path); err == nil && info.Size() > MaxLogFileSize {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, fmt.Errorf("rotate log file: %w", err)
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	// #nosec G304 -- path comes from the resolved user data directory.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return f, nil
}

func newHandler(format string, w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if config.LogFormatJSON == strings.ToLower(strings.TrimSpace(format)) {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func parseLevel(raw string) (slog.Level, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if raw == "warning" {
		raw = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("unsupported log level: %q", raw)
	}

	return lvl, nil
}

// teeWriter writes to every destination and succeeds if any of them accepted the record.
type teeWriter struct {
	dst []io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	var errs []error
	ok := false
	for _, d := range w.dst {
		n, err := d.Write(p)
		switch {
		case err != nil:
			errs = append(errs, err)
		case n < len(p):
			errs = append(errs, io.ErrShortWrite)
		default:
			ok = true
		}
	}
	if ok || len(errs) == 0 {
		return len(p), nil
	}

	return 0, errors.Join(errs...)
}
