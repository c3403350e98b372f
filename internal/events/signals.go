package events

import (
	"sync/atomic"

	"github.com/skobkin/scribblego/internal/settings"
)

// Kind names one coalescing event slot.
type Kind uint8

const (
	KindMidiActivity Kind = iota
	KindIndicator
	KindClockStart
	KindClockStop
	KindTempoChanged
	KindWireless
	KindPresetChanged
	numKinds
)

var kindNames = [...]string{
	KindMidiActivity:  "midi_activity",
	KindIndicator:     "indicator",
	KindClockStart:    "clock_start",
	KindClockStop:     "clock_stop",
	KindTempoChanged:  "tempo_changed",
	KindWireless:      "wireless",
	KindPresetChanged: "preset_changed",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}

	return "unknown"
}

// WirelessState is the payload of KindWireless.
type WirelessState struct {
	Mode      settings.WirelessMode
	Connected bool
}

// Signals holds one depth-1 slot per event kind. Raising a pending kind is a no-op,
// so distinct kinds raised within one poll window are never lost.
type Signals struct {
	slots     [numKinds]chan struct{}
	tempo     atomic.Uint32
	indicator atomic.Bool
	wireless  atomic.Pointer[WirelessState]
}

func NewSignals() *Signals {
	s := &Signals{}
	for i := range s.slots {
		s.slots[i] = make(chan struct{}, 1)
	}
	s.wireless.Store(&WirelessState{})

	return s
}

// Raise marks k pending. It never blocks.
func (s *Signals) Raise(k Kind) {
	if k >= numKinds {
		return
	}
	select {
	case s.slots[k] <- struct{}{}:
	default:
	}
}

// Take consumes k and reports whether it was pending.
func (s *Signals) Take(k Kind) bool {
	if k >= numKinds {
		return false
	}
	select {
	case <-s.slots[k]:
		return true
	default:
		return false
	}
}

// Wait returns the slot channel for k, for consumers that block on one kind.
func (s *Signals) Wait(k Kind) <-chan struct{} {
	return s.slots[k]
}

func (s *Signals) RaiseTempo(bpm int) {
	if bpm < 0 {
		bpm = 0
	}
	s.tempo.Store(uint32(bpm))
	s.Raise(KindTempoChanged)
}

// Tempo returns the last reported integer BPM.
func (s *Signals) Tempo() int {
	return int(s.tempo.Load())
}

// RaiseIndicator records the latest clock indicator state. Several transitions
// within one poll window collapse to the last one.
func (s *Signals) RaiseIndicator(on bool) {
	s.indicator.Store(on)
	s.Raise(KindIndicator)
}

func (s *Signals) Indicator() bool {
	return s.indicator.Load()
}

func (s *Signals) RaiseWireless(state WirelessState) {
	s.wireless.Store(&state)
	s.Raise(KindWireless)
}

func (s *Signals) Wireless() WirelessState {
	return *s.wireless.Load()
}
