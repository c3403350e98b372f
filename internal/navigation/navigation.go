package navigation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

// Sender delivers a stored message to its destination transports.
type Sender interface {
	SendMessage(ctx context.Context, msg settings.MidiMessage) int
}

// TempoSetter recomputes the clock tempo after the active preset changed.
type TempoSetter interface {
	SetTempo()
}

// SettingsResetter performs the soft factory reset.
type SettingsResetter interface {
	ResetAllSettings(ctx context.Context) error
}

// Navigator switches presets and drains message stacks for footswitches and incoming MIDI.
type Navigator struct {
	model   *settings.Model
	out     Sender
	clock   TempoSetter
	store   SettingsResetter
	signals *events.Signals
	bus     bus.Publisher
	logger  *slog.Logger

	mu sync.Mutex
}

func New(
	model *settings.Model,
	out Sender,
	clock TempoSetter,
	store SettingsResetter,
	signals *events.Signals,
	pub bus.Publisher,
	logger *slog.Logger,
) (*Navigator, error) {
	switch {
	case model == nil:
		return nil, errors.New("navigation: settings model is required")
	case out == nil:
		return nil, errors.New("navigation: sender is required")
	case clock == nil:
		return nil, errors.New("navigation: tempo setter is required")
	case store == nil:
		return nil, errors.New("navigation: settings resetter is required")
	case signals == nil:
		return nil, errors.New("navigation: signals are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Navigator{
		model:   model,
		out:     out,
		clock:   clock,
		store:   store,
		signals: signals,
		bus:     pub,
		logger:  logger,
	}, nil
}

func (n *Navigator) PresetUp(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.step(ctx, 1)
}

func (n *Navigator) PresetDown(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.step(ctx, -1)
}

// GoToPreset selects index. Out-of-range indexes leave the current preset unchanged.
func (n *Navigator) GoToPreset(ctx context.Context, index int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.model.SetCurrentPreset(index) {
		n.logger.Debug("preset index out of range", "index", index)

		return false
	}
	n.changed(ctx, index)

	return true
}

// DrainCustom sends the current preset's custom stack.
func (n *Navigator) DrainCustom(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, p := n.model.Current()
	n.drain(ctx, p.Custom)
}

// SwitchPress handles a short press of footswitch sw. The global press stack is
// sent first, then the preset's, and only then does the switch mode act.
func (n *Navigator) SwitchPress(ctx context.Context, sw int) {
	n.handleSwitch(ctx, sw, false)
}

// SwitchHold handles a long press of footswitch sw.
func (n *Navigator) SwitchHold(ctx context.Context, sw int) {
	n.handleSwitch(ctx, sw, true)
}

func (n *Navigator) handleSwitch(ctx context.Context, sw int, hold bool) {
	if sw < 0 || sw >= settings.NumSwitches {
		n.logger.Debug("unknown footswitch", "switch", sw)

		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	g, p := n.model.Current()
	cfg := g.Switches[sw]
	delta := 0
	if hold {
		n.drain(ctx, cfg.Hold)
		n.drain(ctx, p.SwitchHold[sw])
		switch cfg.Mode {
		case settings.SwitchHoldPresetUp:
			delta = 1
		case settings.SwitchHoldPresetDown:
			delta = -1
		}
	} else {
		n.drain(ctx, cfg.Press)
		n.drain(ctx, p.SwitchPress[sw])
		switch cfg.Mode {
		case settings.SwitchPressPresetUp:
			delta = 1
		case settings.SwitchPressPresetDown:
			delta = -1
		}
	}
	if delta != 0 {
		n.step(ctx, delta)
	}
}

// FactoryReset poisons the stored boot flag and requests a restart.
func (n *Navigator) FactoryReset(ctx context.Context) error {
	n.logger.Info("factory reset requested")

	return n.store.ResetAllSettings(ctx)
}

func (n *Navigator) step(ctx context.Context, delta int) {
	n.changed(ctx, n.model.StepPreset(delta))
}

func (n *Navigator) changed(ctx context.Context, index int) {
	p, _ := n.model.Preset(index)
	n.drain(ctx, p.Entry)
	n.clock.SetTempo()
	n.signals.Raise(events.KindPresetChanged)
	if n.bus != nil {
		n.bus.Publish(events.TopicPresetChanged, events.PresetChanged{Index: index, Name: p.Name, BPM: p.BPM})
	}
	n.logger.Debug("preset changed", "index", index, "name", p.Name)
}

func (n *Navigator) drain(ctx context.Context, stack settings.MessageStack) {
	stack.Each(func(msg settings.MidiMessage) {
		n.out.SendMessage(ctx, msg)
	})
}
