package display

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

const (
	PollInterval      = 20 * time.Millisecond
	MidiIndicatorHold = 80 * time.Millisecond

	UnitBPM = "BPM"
	UnitMs  = "ms"
)

// Presenter turns pending event slots into draw calls.
type Presenter struct {
	display Display
	model   *settings.Model
	signals *events.Signals
	logger  *slog.Logger
	hold    time.Duration

	mu      sync.Mutex
	midiOff *time.Timer
}

func NewPresenter(d Display, model *settings.Model, signals *events.Signals, logger *slog.Logger) (*Presenter, error) {
	switch {
	case d == nil:
		return nil, errors.New("display: display is required")
	case model == nil:
		return nil, errors.New("display: settings model is required")
	case signals == nil:
		return nil, errors.New("display: signals are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Presenter{display: d, model: model, signals: signals, logger: logger, hold: MidiIndicatorHold}, nil
}

// Refresh redraws the whole screen from the model.
func (p *Presenter) Refresh() {
	g, preset := p.model.Current()
	p.display.DrawMainScreen()
	p.drawPreset(int(g.CurrentPreset), preset)
	bpm := p.signals.Tempo()
	if bpm <= 0 {
		bpm = int(math.Round(float64(preset.BPM)))
	}
	p.drawTempo(g, bpm)
	w := p.signals.Wireless()
	p.display.DrawWirelessIndicator(g.Wireless, w.Connected && w.Mode == g.Wireless)
}

// Step consumes every pending event once.
func (p *Presenter) Step() {
	s := p.signals
	if s.Take(events.KindMidiActivity) {
		p.display.DrawMidiIndicator(true)
		p.scheduleMidiOff()
	}
	if s.Take(events.KindPresetChanged) {
		g, preset := p.model.Current()
		p.drawPreset(int(g.CurrentPreset), preset)
	}
	if s.Take(events.KindTempoChanged) {
		p.drawTempo(p.model.Global(), s.Tempo())
	}

	if s.Take(events.KindIndicator) && p.model.Global().ClockDisplay == settings.ClockDisplayIndicator {
		p.display.DrawClockIndicator(s.Indicator())
	}
	if s.Take(events.KindClockStart) {
		p.logger.Debug("clock started")
	}
	if s.Take(events.KindClockStop) {
		p.logger.Debug("clock stopped")
		p.display.DrawClockIndicator(false)
	}
	if s.Take(events.KindWireless) {
		w := s.Wireless()
		p.display.DrawWirelessIndicator(w.Mode, w.Connected)
	}
}

// Run draws the initial screen and then polls events until ctx ends.
func (p *Presenter) Run(ctx context.Context) {
	p.Refresh()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	defer p.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Step()
		}
	}
}

func (p *Presenter) drawPreset(index int, preset settings.Preset) {
	p.display.DrawPresetNumber(index)
	p.display.DrawMainText(preset.Name, preset.SecondaryText)
}

func (p *Presenter) drawTempo(g settings.GlobalSettings, bpm int) {
	if bpm <= 0 {
		return
	}
	if g.ClockDisplay == settings.ClockDisplayMilliseconds {
		p.display.DrawBPM(60000/bpm, UnitMs)

		return
	}
	p.display.DrawBPM(bpm, UnitBPM)
}

// scheduleMidiOff turns the activity indicator off after the hold time.
// New activity restarts the hold.
func (p *Presenter) scheduleMidiOff() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.midiOff != nil {
		p.midiOff.Stop()
	}
	p.midiOff = time.AfterFunc(p.hold, func() {
		p.display.DrawMidiIndicator(false)
	})
}

func (p *Presenter) stopTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.midiOff != nil {
		p.midiOff.Stop()
		p.midiOff = nil
	}
}
