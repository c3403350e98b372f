package events

import (
	"testing"

	"github.com/skobkin/scribblego/internal/settings"
)

func TestSignalsCoalescePerKind(t *testing.T) {
	s := NewSignals()
	s.Raise(KindMidiActivity)
	s.Raise(KindMidiActivity)
	s.Raise(KindPresetChanged)

	if !s.Take(KindMidiActivity) {
		t.Fatalf("expected midi activity pending")
	}
	if s.Take(KindMidiActivity) {
		t.Fatalf("expected midi activity to be coalesced")
	}
	if !s.Take(KindPresetChanged) {
		t.Fatalf("expected preset change to survive alongside midi activity")
	}
}

func TestSignalsIndicatorKeepsLatestState(t *testing.T) {
	s := NewSignals()
	s.RaiseIndicator(false)
	s.RaiseIndicator(true)

	if !s.Take(KindIndicator) {
		t.Fatalf("expected indicator pending")
	}
	if !s.Indicator() {
		t.Fatalf("expected last indicator state to win")
	}
	if s.Take(KindIndicator) {
		t.Fatalf("expected indicator transitions to be coalesced")
	}
}

func TestSignalsStartAndStopAreIndependent(t *testing.T) {
	s := NewSignals()
	s.Raise(KindClockStart)
	s.Raise(KindClockStop)

	if !s.Take(KindClockStart) || !s.Take(KindClockStop) {
		t.Fatalf("expected both start and stop to be delivered")
	}
}

func TestSignalsCarryLatestPayload(t *testing.T) {
	s := NewSignals()
	s.RaiseTempo(120)
	s.RaiseTempo(121)
	if !s.Take(KindTempoChanged) || s.Tempo() != 121 {
		t.Fatalf("expected latest tempo 121, got %d", s.Tempo())
	}

	s.RaiseWireless(WirelessState{Mode: settings.WirelessBLE, Connected: true})
	if !s.Take(KindWireless) {
		t.Fatalf("expected wireless pending")
	}
	if got := s.Wireless(); got.Mode != settings.WirelessBLE || !got.Connected {
		t.Fatalf("unexpected wireless state %+v", got)
	}
	if s.Take(numKinds) {
		t.Fatalf("expected unknown kind to be ignored")
	}
}
