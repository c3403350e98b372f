package ui

import (
	"context"
	"log/slog"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

func uiLogger() *slog.Logger {
	return slog.Default().With("component", "ui")
}

// SwitchController receives footswitch gestures.
type SwitchController interface {
	SwitchPress(ctx context.Context, sw int)
	SwitchHold(ctx context.Context, sw int)
}

// Session is one booted pedal runtime the simulator is attached to.
type Session struct {
	Ctx               context.Context
	Switches          SwitchController
	Bus               bus.MessageBus
	CurrentConnStatus func(settings.Transport) (events.ConnStatus, bool)
}

type LaunchOptions struct {
	StartHidden bool
}

type Dependencies struct {
	Launch LaunchOptions
	OnQuit func()
}
