package clock

import (
	"sync"
	"time"
)

const (
	// PPQN is the MIDI clock resolution in pulses per quarter note.
	PPQN = 24

	minTempo = 1.0
	maxTempo = 300.0

	// estimateEvery is the number of external pulses between tempo estimates.
	estimateEvery = 6
	maxPulseGap   = time.Second
)

// Handler receives generator callbacks. Callbacks run on the generator's own
// goroutine or on the caller of Pulse and must not block.
type Handler interface {
	OnTick(tick uint32)
	OnStart()
	OnStop()
}

// Generator is a 24 ppqn pulse source.
type Generator interface {
	SetTempo(bpm float64)
	Tempo() float64
	Start()
	Stop()
	Running() bool
}

// Follower is a generator driven by external clock pulses.
type Follower interface {
	Generator
	Pulse()
}

// PulseInterval is the time between two clock pulses at bpm.
func PulseInterval(bpm float64) time.Duration {
	bpm = clampTempo(bpm)

	return time.Duration(float64(time.Minute) / (bpm * PPQN))
}

func clampTempo(bpm float64) float64 {
	switch {
	case bpm < minTempo:
		return minTempo
	case bpm > maxTempo:
		return maxTempo
	}

	return bpm
}

// InternalGenerator produces pulses from a ticker at the programmed tempo.
type InternalGenerator struct {
	handler Handler

	mu      sync.Mutex
	bpm     float64
	running bool
	stop    chan struct{}
	retune  chan time.Duration
	done    chan struct{}
}

func NewInternalGenerator(handler Handler) *InternalGenerator {
	return &InternalGenerator{handler: handler, bpm: 120}
}

func (g *InternalGenerator) SetTempo(bpm float64) {
	bpm = clampTempo(bpm)
	g.mu.Lock()
	defer g.mu.Unlock()
	if bpm == g.bpm {
		return
	}
	g.bpm = bpm
	if !g.running {
		return
	}
	select {
	case <-g.retune:
	default:
	}
	g.retune <- PulseInterval(bpm)
}

func (g *InternalGenerator) Tempo() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.bpm
}

func (g *InternalGenerator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.running
}

func (g *InternalGenerator) Start() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()

		return
	}
	g.running = true
	g.stop = make(chan struct{})
	g.retune = make(chan time.Duration, 1)
	g.done = make(chan struct{})
	interval := PulseInterval(g.bpm)
	stop, retune, done := g.stop, g.retune, g.done
	g.mu.Unlock()

	g.handler.OnStart()
	go g.run(interval, stop, retune, done)
}

func (g *InternalGenerator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()

		return
	}
	g.running = false
	close(g.stop)
	done := g.done
	g.mu.Unlock()

	<-done
	g.handler.OnStop()
}

func (g *InternalGenerator) run(interval time.Duration, stop <-chan struct{}, retune <-chan time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick uint32
	for {
		select {
		case <-stop:
			return
		case next := <-retune:
			ticker.Reset(next)
		case <-ticker.C:
			g.handler.OnTick(tick)
			tick++
		}
	}
}

// ExternalGenerator follows an incoming clock. Every pulse produces a tick while
// running, and the tempo is re-estimated every few pulses.
type ExternalGenerator struct {
	handler Handler
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	tick     uint32
	count    uint32
	lastMark time.Time
	lastSeen time.Time
	bpm      float64
}

func NewExternalGenerator(handler Handler) *ExternalGenerator {
	return &ExternalGenerator{handler: handler, now: time.Now}
}

// SetTempo is ignored: the tempo is dictated by the incoming clock.
func (g *ExternalGenerator) SetTempo(float64) {}

func (g *ExternalGenerator) Tempo() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.bpm
}

func (g *ExternalGenerator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.running
}

func (g *ExternalGenerator) Start() {
	g.mu.Lock()
	g.running = true
	g.tick = 0
	g.mu.Unlock()
	g.handler.OnStart()
}

func (g *ExternalGenerator) Stop() {
	g.mu.Lock()
	wasRunning := g.running
	g.running = false
	g.mu.Unlock()
	if wasRunning {
		g.handler.OnStop()
	}
}

func (g *ExternalGenerator) Pulse() {
	now := g.now()

	g.mu.Lock()
	if !g.lastSeen.IsZero() && now.Sub(g.lastSeen) > maxPulseGap {
		g.count = 0
	}
	g.lastSeen = now
	g.count++
	switch {
	case g.count == 1:
		g.lastMark = now
	case (g.count-1)%estimateEvery == 0:
		if span := now.Sub(g.lastMark); span > 0 {
			quarter := span * PPQN / estimateEvery
			if bpm := float64(time.Minute) / float64(quarter); bpm >= minTempo && bpm <= maxTempo {
				g.bpm = bpm
			}
		}
		g.lastMark = now
	}
	running := g.running
	tick := g.tick
	if running {
		g.tick++
	}
	g.mu.Unlock()

	if running {
		g.handler.OnTick(tick)
	}
}
