package clock

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

const (
	PollInterval = 20 * time.Millisecond

	downbeatTicks = 96
	longBlink     = 8
	shortBlink    = 1
)

// Forwarder writes raw bytes to the transports in a mask.
type Forwarder interface {
	Forward(ctx context.Context, mask settings.TransportMask, msg midi.Message) int
}

// Engine is the tempo state machine. It selects a generator by clock mode,
// forwards internal clock to the clock-out transports and raises display events.
type Engine struct {
	model   *settings.Model
	out     Forwarder
	signals *events.Signals
	logger  *slog.Logger

	internal Generator
	external Follower

	mu      sync.Mutex
	mode    settings.ClockMode
	active  Generator
	blink   uint32
	lastBPM int
}

func NewEngine(model *settings.Model, out Forwarder, signals *events.Signals, logger *slog.Logger) (*Engine, error) {
	e, err := newEngine(model, out, signals, logger)
	if err != nil {
		return nil, err
	}
	e.internal = NewInternalGenerator(e)
	e.external = NewExternalGenerator(e)

	return e, nil
}

func newEngine(model *settings.Model, out Forwarder, signals *events.Signals, logger *slog.Logger) (*Engine, error) {
	switch {
	case model == nil:
		return nil, errors.New("clock: settings model is required")
	case out == nil:
		return nil, errors.New("clock: forwarder is required")
	case signals == nil:
		return nil, errors.New("clock: signals are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		model:   model,
		out:     out,
		signals: signals,
		logger:  logger,
		mode:    settings.ClockModeOff,
		blink:   shortBlink,
		lastBPM: -1,
	}, nil
}

// Mode returns the state the engine is currently in.
func (e *Engine) Mode() settings.ClockMode {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mode
}

// Apply moves the engine to the clock mode stored in the model. Entering an
// internal mode programs the tempo and starts the generator.
func (e *Engine) Apply() {
	want := e.model.Global().ClockMode
	next := e.generatorFor(want)

	e.mu.Lock()
	if want == e.mode && e.active == next {
		e.mu.Unlock()
		e.SetTempo()

		return
	}
	prev := e.active
	e.mu.Unlock()

	// The outgoing generator stops under its old mode so internal clock
	// still sends Stop to the clock-out transports.
	if prev != nil && prev != next {
		prev.Stop()
	}

	e.mu.Lock()
	e.mode = want
	e.active = next
	e.mu.Unlock()
	e.logger.Info("clock mode applied", "mode", want.String())
	if next == nil {
		return
	}
	e.SetTempo()
	next.Start()
}

func (e *Engine) generatorFor(mode settings.ClockMode) Generator {
	switch mode {
	case settings.ClockModePreset, settings.ClockModeGlobal:
		return e.internal
	case settings.ClockModeExternal:
		return e.external
	default:
		return nil
	}
}

// SetTempo reprograms the internal generator from the preset or global BPM.
// It does nothing in external and off modes.
func (e *Engine) SetTempo() {
	e.mu.Lock()
	mode, gen := e.mode, e.active
	e.mu.Unlock()
	if !mode.Internal() || gen == nil {
		return
	}

	g, p := e.model.Current()
	bpm := float64(p.BPM)
	if mode == settings.ClockModeGlobal {
		bpm = float64(g.GlobalBPM)
	}
	gen.SetTempo(bpm)
	e.report(bpm)
}

// Start and Stop control the active generator.
func (e *Engine) Start() {
	if gen := e.current(); gen != nil {
		gen.Start()
	}
}

func (e *Engine) Stop() {
	if gen := e.current(); gen != nil {
		gen.Stop()
	}
}

// Close stops whichever generator is running.
func (e *Engine) Close() {
	e.mu.Lock()
	gen := e.active
	e.active = nil
	e.mode = settings.ClockModeOff
	e.mu.Unlock()
	if gen != nil {
		gen.Stop()
	}
}

func (e *Engine) current() Generator {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.active
}

// ExternalPulse feeds one incoming clock byte to the follower.
func (e *Engine) ExternalPulse() {
	if e.Mode() != settings.ClockModeExternal {
		return
	}
	e.external.Pulse()
}

func (e *Engine) ExternalStart() {
	gen := e.current()
	if gen == nil {
		return
	}
	gen.Start()
	e.signals.Raise(events.KindClockStart)
}

func (e *Engine) ExternalStop() {
	gen := e.current()
	if gen == nil {
		return
	}
	gen.Stop()
	e.signals.Raise(events.KindClockStop)
}

// Poll samples the followed tempo and raises a tempo event only when the
// rounded BPM changed. It reports whether an event was raised.
func (e *Engine) Poll() bool {
	if e.Mode() != settings.ClockModeExternal {
		return false
	}
	bpm := e.external.Tempo()
	if bpm <= 0 {
		return false
	}

	return e.report(bpm)
}

// BPM returns the last reported integer tempo, or -1 before the first report.
func (e *Engine) BPM() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastBPM
}

func (e *Engine) report(bpm float64) bool {
	rounded := int(math.Round(bpm))
	e.mu.Lock()
	if rounded == e.lastBPM {
		e.mu.Unlock()

		return false
	}
	e.lastBPM = rounded
	e.mu.Unlock()
	e.logger.Debug("tempo changed", "bpm", rounded)
	e.signals.RaiseTempo(rounded)

	return true
}

// Run polls the followed tempo until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Poll()
		}
	}
}

func (e *Engine) OnTick(tick uint32) {
	e.mu.Lock()
	mode := e.mode
	switch {
	case tick%downbeatTicks == 0 || tick == 1:
		e.blink = longBlink
		e.signals.RaiseIndicator(true)
	case tick%PPQN == 0:
		e.blink = shortBlink
		e.signals.RaiseIndicator(true)
	case tick%e.blink == 0:
		e.signals.RaiseIndicator(false)
	}
	e.mu.Unlock()

	if mode.Internal() {
		e.forward(midi.Message{0xF8})
	}
}

func (e *Engine) OnStart() {
	e.mu.Lock()
	e.blink = shortBlink
	mode := e.mode
	e.mu.Unlock()
	if mode.Internal() {
		e.forward(midi.Message{0xFA})
	}
}

func (e *Engine) OnStop() {
	if e.Mode().Internal() {
		e.forward(midi.Message{0xFC})
	}
	e.signals.RaiseIndicator(false)
}

func (e *Engine) forward(msg midi.Message) {
	mask := e.model.Global().ClockOut
	if mask == 0 {
		return
	}
	e.out.Forward(context.Background(), mask, msg)
}
