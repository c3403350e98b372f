package transport

import (
	"context"
	"errors"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/settings"
)

var ErrNotConnected = errors.New("transport is not connected")

// portLogger resolves the default logger per call so records follow a reconfigured handler.
func portLogger(link string, attrs ...any) *slog.Logger {
	return slog.Default().With(append([]any{"component", "transport", "link", link}, attrs...)...)
}

// Port is one MIDI interface of the pedal.
type Port interface {
	Name() string
	Kind() settings.Transport
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	ReadMessage(ctx context.Context) (midi.Message, error)
	WriteMessage(ctx context.Context, msg midi.Message) error
}

type StatusTargetResolver interface {
	StatusTarget() string
}

// ConnectionNotifier is implemented by ports whose peer can come and go
// while the port itself stays open.
type ConnectionNotifier interface {
	OnPeerChange(fn func(connected bool))
}
