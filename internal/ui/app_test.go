package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	fynetest "fyne.io/fyne/v2/test"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	app := fynetest.NewApp()
	s := NewSimulator(app, Dependencies{})
	t.Cleanup(s.Quit)

	return s
}

func waitSwitch(t *testing.T, spy *switchSpy) {
	t.Helper()
	select {
	case <-spy.seen:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for footswitch event")
	}
}

func TestSimulatorRoutesFootswitchesToSession(t *testing.T) {
	s := newTestSimulator(t)
	spy := newSwitchSpy()
	s.Attach(Session{Ctx: context.Background(), Switches: spy})

	s.enqueue(switchAction{sw: 0})
	waitSwitch(t, spy)
	s.enqueue(switchAction{sw: 1, hold: true})
	waitSwitch(t, spy)

	got := spy.snapshot()
	want := []switchEvent{{sw: 0}, {sw: 1, hold: true}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected switch events %+v", got)
	}
}

func TestSimulatorReattachDropsPreviousSession(t *testing.T) {
	s := newTestSimulator(t)
	first := newSwitchSpy()
	second := newSwitchSpy()
	s.Attach(Session{Switches: first})
	s.Attach(Session{Switches: second})

	s.enqueue(switchAction{sw: 0})
	waitSwitch(t, second)
	if len(first.snapshot()) != 0 {
		t.Fatalf("expected previous session to receive nothing")
	}
}

func TestSimulatorShowsConnectionStatus(t *testing.T) {
	s := newTestSimulator(t)
	messageBus := bus.New(nil)
	t.Cleanup(messageBus.Close)

	s.Attach(Session{
		Bus: messageBus,
		CurrentConnStatus: func(tr settings.Transport) (events.ConnStatus, bool) {
			if tr != settings.TransportTRS {
				return events.ConnStatus{}, false
			}

			return events.ConnStatus{Transport: tr, TransportName: "trs", State: events.ConnectionStateConnecting}, true
		},
	})
	if s.status.statusLabel.Text != "TRS connecting" {
		t.Fatalf("expected initial status from runtime, got %q", s.status.statusLabel.Text)
	}

	messageBus.Publish(events.TopicConnStatus, events.ConnStatus{
		Transport:     settings.TransportTRS,
		TransportName: "trs",
		State:         events.ConnectionStateConnected,
	})

	deadline := time.Now().Add(time.Second)
	for !strings.Contains(s.status.statusLabel.Text, "connected") || strings.Contains(s.status.statusLabel.Text, "connecting") {
		if time.Now().After(deadline) {
			t.Fatalf("status label not updated: %q", s.status.statusLabel.Text)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSimulatorQuitShutsDownOnce(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)

	app := &appSpy{App: base}
	quits := 0
	s := NewSimulator(app, Dependencies{OnQuit: func() { quits++ }})

	s.Quit()
	s.Quit()
	s.Run()

	if app.quitCalls != 1 || app.runCalls != 1 || quits != 1 {
		t.Fatalf("expected single shutdown, got quit=%d run=%d onQuit=%d", app.quitCalls, app.runCalls, quits)
	}
}

func TestSimulatorRunStartHidden(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)

	app := &appSpy{App: base}
	NewSimulator(app, Dependencies{Launch: LaunchOptions{StartHidden: true}}).Run()

	if app.window.showCalls != 1 || app.window.hideCalls != 1 {
		t.Fatalf("expected show then hide, got show=%d hide=%d", app.window.showCalls, app.window.hideCalls)
	}
}

func TestSimulatorDetachesFromClosedBus(t *testing.T) {
	s := newTestSimulator(t)
	messageBus := bus.New(nil)
	s.Attach(Session{Bus: messageBus})
	messageBus.Close()

	done := make(chan struct{})
	go func() {
		s.Attach(Session{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reattach blocked on a closed bus")
	}
}

func TestSwitchLabel(t *testing.T) {
	if switchLabel(0) != "1" || switchLabel(1) != "2" {
		t.Fatalf("unexpected switch labels %q %q", switchLabel(0), switchLabel(1))
	}
}
