package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

// Navigator is the set of preset actions reachable from incoming MIDI.
type Navigator interface {
	PresetUp(ctx context.Context)
	PresetDown(ctx context.Context)
	GoToPreset(ctx context.Context, index int) bool
	DrainCustom(ctx context.Context)
}

// ClockInput receives realtime clock traffic from external sources.
type ClockInput interface {
	ExternalPulse()
	ExternalStart()
	ExternalStop()
}

// Router applies the receive channel filter, dispatches control messages to
// navigation and forwards everything else through the thru matrix.
type Router struct {
	model   *settings.Model
	out     *Output
	nav     Navigator
	clock   ClockInput
	signals *events.Signals
	bus     bus.Publisher
	logger  *slog.Logger
}

func New(
	model *settings.Model,
	out *Output,
	nav Navigator,
	clock ClockInput,
	signals *events.Signals,
	pub bus.Publisher,
	logger *slog.Logger,
) (*Router, error) {
	switch {
	case model == nil:
		return nil, errors.New("router: settings model is required")
	case out == nil:
		return nil, errors.New("router: output is required")
	case nav == nil:
		return nil, errors.New("router: navigator is required")
	case clock == nil:
		return nil, errors.New("router: clock input is required")
	case signals == nil:
		return nil, errors.New("router: signals are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		model:   model,
		out:     out,
		nav:     nav,
		clock:   clock,
		signals: signals,
		bus:     pub,
		logger:  logger,
	}, nil
}

// Handle processes one complete message received on src.
func (r *Router) Handle(ctx context.Context, src settings.Transport, msg midi.Message) {
	if len(msg) == 0 || !src.Valid() {
		return
	}
	if r.bus != nil {
		r.bus.Publish(events.TopicMidiIn, events.MidiFrame{
			Transport: src,
			Bytes:     append([]byte(nil), msg...),
			At:        time.Now(),
		})
	}
	g := r.model.Global()

	status := msg[0]
	if status >= 0xF8 {
		switch status {
		case 0xF8:
			r.clock.ExternalPulse()
		case 0xFA, 0xFB:
			r.clock.ExternalStart()
			r.signals.Raise(events.KindMidiActivity)
		case 0xFC:
			r.clock.ExternalStop()
			r.signals.Raise(events.KindMidiActivity)
		}
		r.thru(ctx, g, src, msg)

		return
	}

	r.signals.Raise(events.KindMidiActivity)

	var ch, a, b uint8
	switch {
	case msg.GetControlChange(&ch, &a, &b):
		if r.onControlChange(ctx, g, src, ch, a, b) {
			return
		}
	case msg.GetProgramChange(&ch, &a):
		if r.onProgramChange(ctx, g, src, ch, a) {
			return
		}
	case status == 0xF0:
		r.logger.Debug("sysex ignored", "transport", src.String(), "len", len(msg))
	}

	r.thru(ctx, g, src, msg)
}

// SendMessage is the application-level send path, independent of the thru matrix.
func (r *Router) SendMessage(ctx context.Context, msg settings.MidiMessage) int {
	return r.out.SendMessage(ctx, msg)
}

func (r *Router) onControlChange(ctx context.Context, g settings.GlobalSettings, src settings.Transport, ch, controller, value uint8) bool {
	if !g.ChannelMatches(ch) {
		r.logger.Debug("control change filtered", "transport", src.String(), "channel", ch, "controller", controller)

		return false
	}

	switch controller {
	case g.PresetUpCC:
		r.nav.PresetUp(ctx)
	case g.PresetDownCC:
		r.nav.PresetDown(ctx)
	case g.GoToPresetCC:
		r.nav.GoToPreset(ctx, int(value))
	case g.CustomStackCC:
		r.nav.DrainCustom(ctx)
	default:
		return false
	}

	return true
}

func (r *Router) onProgramChange(ctx context.Context, g settings.GlobalSettings, src settings.Transport, ch, program uint8) bool {
	if !g.ChannelMatches(ch) {
		r.logger.Debug("program change filtered", "transport", src.String(), "channel", ch, "program", program)

		return false
	}
	r.nav.GoToPreset(ctx, int(program))

	return true
}

func (r *Router) thru(ctx context.Context, g settings.GlobalSettings, src settings.Transport, msg midi.Message) {
	mask := g.Thru.Destinations(src)
	if g.Thru.SamePort(src) {
		mask |= src.Mask()
	}
	if mask == 0 {
		return
	}
	r.out.Forward(ctx, mask, msg)
}
