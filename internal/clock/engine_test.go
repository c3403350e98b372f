package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

type fakeGenerator struct {
	mu      sync.Mutex
	bpm     float64
	running bool
	sets    int
	pulses  int
	handler Handler
}

func (g *fakeGenerator) SetTempo(bpm float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bpm = bpm
	g.sets++
}

func (g *fakeGenerator) Tempo() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.bpm
}

func (g *fakeGenerator) Start() {
	g.mu.Lock()
	started := !g.running
	g.running = true
	h := g.handler
	g.mu.Unlock()
	if started && h != nil {
		h.OnStart()
	}
}

func (g *fakeGenerator) Stop() {
	g.mu.Lock()
	stopped := g.running
	g.running = false
	h := g.handler
	g.mu.Unlock()
	if stopped && h != nil {
		h.OnStop()
	}
}

func (g *fakeGenerator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.running
}

func (g *fakeGenerator) Pulse() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pulses++
}

type forwarded struct {
	mask settings.TransportMask
	msg  midi.Message
}

type recordingForwarder struct {
	mu   sync.Mutex
	sent []forwarded
}

func (f *recordingForwarder) Forward(_ context.Context, mask settings.TransportMask, msg midi.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, forwarded{mask: mask, msg: append(midi.Message(nil), msg...)})

	return len(mask.Transports())
}

func (f *recordingForwarder) all() []forwarded {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]forwarded(nil), f.sent...)
}

type engineFixture struct {
	model    *settings.Model
	engine   *Engine
	internal *fakeGenerator
	external *fakeGenerator
	out      *recordingForwarder
	signals  *events.Signals
}

func newEngineFixture(t *testing.T, mutate func(g *settings.GlobalSettings, presets *[settings.NumPresets]settings.Preset)) *engineFixture {
	t.Helper()
	g := settings.DefaultGlobal("1.0.0")
	presets := settings.DefaultPresets()
	if mutate != nil {
		mutate(&g, presets)
	}
	f := &engineFixture{
		model:    settings.NewModel(g, presets),
		internal: &fakeGenerator{},
		external: &fakeGenerator{},
		out:      &recordingForwarder{},
		signals:  events.NewSignals(),
	}
	e, err := newEngine(f.model, f.out, f.signals, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.internal = f.internal
	e.external = f.external
	f.engine = e

	return f
}

func TestApplyPresetModeProgramsPresetTempo(t *testing.T) {
	f := newEngineFixture(t, func(g *settings.GlobalSettings, presets *[settings.NumPresets]settings.Preset) {
		g.ClockMode = settings.ClockModePreset
		g.CurrentPreset = 3
		presets[3].BPM = 96
	})
	f.engine.Apply()

	if !f.internal.Running() {
		t.Fatalf("expected internal generator to run")
	}
	if got := f.internal.Tempo(); got != 96 {
		t.Fatalf("unexpected tempo: %v", got)
	}
	if got := f.signals.Tempo(); got != 96 || !f.signals.Take(events.KindTempoChanged) {
		t.Fatalf("expected tempo event for 96, got %d", got)
	}
}

func TestApplyGlobalModeUsesGlobalTempo(t *testing.T) {
	f := newEngineFixture(t, func(g *settings.GlobalSettings, presets *[settings.NumPresets]settings.Preset) {
		g.ClockMode = settings.ClockModeGlobal
		g.GlobalBPM = 140
		presets[0].BPM = 90
	})
	f.engine.Apply()

	if f.engine.Mode() != settings.ClockModeGlobal {
		t.Fatalf("unexpected mode: %v", f.engine.Mode())
	}
	if got := f.internal.Tempo(); got != 140 {
		t.Fatalf("expected global tempo, got %v", got)
	}
	if f.external.Running() {
		t.Fatalf("external follower must not run in global mode")
	}
}

func TestSetTempoIsNoopOutsideInternalModes(t *testing.T) {
	for _, mode := range []settings.ClockMode{settings.ClockModeOff, settings.ClockModeExternal} {
		f := newEngineFixture(t, func(g *settings.GlobalSettings, _ *[settings.NumPresets]settings.Preset) {
			g.ClockMode = mode
		})
		f.engine.Apply()
		f.model.UpdatePreset(0, func(p *settings.Preset) { p.BPM = 200 })
		f.engine.SetTempo()

		if f.internal.sets != 0 || f.external.sets != 0 {
			t.Fatalf("%s: expected no tempo programming, got internal=%d external=%d", mode, f.internal.sets, f.external.sets)
		}
	}
}

func TestModeChangeSwapsGenerators(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.Apply()
	if !f.internal.Running() {
		t.Fatalf("expected default preset mode to start internal generator")
	}

	f.model.UpdateGlobal(func(g *settings.GlobalSettings) { g.ClockMode = settings.ClockModeExternal })
	f.engine.Apply()
	if f.internal.Running() || !f.external.Running() {
		t.Fatalf("expected external follower only")
	}

	f.model.UpdateGlobal(func(g *settings.GlobalSettings) { g.ClockMode = settings.ClockModeOff })
	f.engine.Apply()
	if f.internal.Running() || f.external.Running() {
		t.Fatalf("expected no generator in off mode")
	}
}

func TestIndicatorPattern(t *testing.T) {
	f := newEngineFixture(t, nil)
	e := f.engine

	expect := func(tick uint32, on, off bool) {
		t.Helper()
		e.OnTick(tick)
		raised := f.signals.Take(events.KindIndicator)
		if raised != (on || off) {
			t.Fatalf("tick %d: indicator raised=%v, want %v", tick, raised, on || off)
		}
		if raised && f.signals.Indicator() != on {
			t.Fatalf("tick %d: indicator state=%v, want %v", tick, f.signals.Indicator(), on)
		}
	}

	expect(0, true, false)
	expect(1, true, false)
	for tick := uint32(2); tick < 8; tick++ {
		expect(tick, false, false)
	}
	expect(8, false, true)
	expect(24, true, false)
	expect(25, false, true)
	expect(96, true, false)
	expect(97, false, false)
}

func TestInternalTicksForwardToClockOut(t *testing.T) {
	mask := settings.MaskOf(settings.TransportTRS, settings.TransportUSB)
	f := newEngineFixture(t, func(g *settings.GlobalSettings, _ *[settings.NumPresets]settings.Preset) {
		g.ClockMode = settings.ClockModePreset
		g.ClockOut = mask
	})
	f.engine.Apply()
	f.engine.OnStart()
	f.engine.OnTick(0)
	f.engine.OnStop()

	sent := f.out.all()
	if len(sent) != 3 {
		t.Fatalf("expected start, clock and stop, got %v", sent)
	}
	for i, want := range []byte{0xFA, 0xF8, 0xFC} {
		if sent[i].mask != mask || len(sent[i].msg) != 1 || sent[i].msg[0] != want {
			t.Fatalf("message %d: unexpected %+v", i, sent[i])
		}
	}
}

func TestExternalModeDoesNotForwardClock(t *testing.T) {
	f := newEngineFixture(t, func(g *settings.GlobalSettings, _ *[settings.NumPresets]settings.Preset) {
		g.ClockMode = settings.ClockModeExternal
		g.ClockOut = settings.AllTransports
	})
	f.engine.Apply()
	f.engine.ExternalPulse()
	f.engine.OnTick(0)

	if f.external.pulses != 1 {
		t.Fatalf("expected pulse to reach follower, got %d", f.external.pulses)
	}
	if sent := f.out.all(); len(sent) != 0 {
		t.Fatalf("external clock must not be forwarded, got %v", sent)
	}
	if !f.signals.Take(events.KindIndicator) || !f.signals.Indicator() {
		t.Fatalf("expected indicator to follow external ticks")
	}
}

func TestExternalStartStopRaiseEvents(t *testing.T) {
	f := newEngineFixture(t, func(g *settings.GlobalSettings, _ *[settings.NumPresets]settings.Preset) {
		g.ClockMode = settings.ClockModeExternal
	})
	f.engine.Apply()
	f.engine.ExternalStop()
	f.engine.ExternalStart()

	if !f.signals.Take(events.KindClockStop) || !f.signals.Take(events.KindClockStart) {
		t.Fatalf("expected both start and stop events to be pending")
	}
	if !f.external.Running() {
		t.Fatalf("expected follower to run after start")
	}
}

func TestInternalModeForwardsIncomingStartStop(t *testing.T) {
	mask := settings.MaskOf(settings.TransportTRS, settings.TransportBLE)
	for _, mode := range []settings.ClockMode{settings.ClockModePreset, settings.ClockModeGlobal} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newEngineFixture(t, func(g *settings.GlobalSettings, _ *[settings.NumPresets]settings.Preset) {
				g.ClockMode = mode
				g.ClockOut = mask
			})
			f.internal.handler = f.engine
			f.engine.Apply()
			f.engine.ExternalStop()
			f.engine.ExternalStart()

			if !f.signals.Take(events.KindClockStop) || !f.signals.Take(events.KindClockStart) {
				t.Fatalf("expected both start and stop events to be pending")
			}
			if !f.internal.Running() {
				t.Fatalf("expected internal generator to run after start")
			}
			sent := f.out.all()
			want := []byte{0xFA, 0xFC, 0xFA}
			if len(sent) != len(want) {
				t.Fatalf("expected start, stop and start forwarded, got %v", sent)
			}
			for i, b := range want {
				if sent[i].mask != mask || len(sent[i].msg) != 1 || sent[i].msg[0] != b {
					t.Fatalf("message %d: unexpected %+v", i, sent[i])
				}
			}
		})
	}
}

func TestPollCoalescesRoundedTempo(t *testing.T) {
	f := newEngineFixture(t, func(g *settings.GlobalSettings, _ *[settings.NumPresets]settings.Preset) {
		g.ClockMode = settings.ClockModeExternal
	})
	f.engine.Apply()

	steps := []struct {
		bpm  float64
		want bool
	}{
		{bpm: 119.6, want: true},
		{bpm: 120.3, want: false},
		{bpm: 119.5, want: false},
		{bpm: 121.2, want: true},
		{bpm: 121.4, want: false},
	}
	for _, step := range steps {
		f.external.bpm = step.bpm
		if got := f.engine.Poll(); got != step.want {
			t.Fatalf("bpm %.1f: poll=%v want %v", step.bpm, got, step.want)
		}
	}
	if got := f.engine.BPM(); got != 121 {
		t.Fatalf("unexpected reported bpm: %d", got)
	}
}

func TestPollIgnoredInInternalMode(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.Apply()
	f.signals.Take(events.KindTempoChanged)
	f.external.bpm = 90
	if f.engine.Poll() {
		t.Fatalf("poll must not report in internal mode")
	}
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	model := settings.NewModel(settings.DefaultGlobal("1.0.0"), settings.DefaultPresets())
	if _, err := NewEngine(model, nil, events.NewSignals(), nil); err == nil {
		t.Fatalf("expected error for missing forwarder")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
}
