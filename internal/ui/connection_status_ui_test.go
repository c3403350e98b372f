package ui

import (
	"strings"
	"testing"

	fynetest "fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"

	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/resources"
	"github.com/skobkin/scribblego/internal/settings"
)

func TestFormatConnStatus(t *testing.T) {
	cases := []struct {
		name   string
		status events.ConnStatus
		want   string
	}{
		{
			name:   "state only",
			status: events.ConnStatus{State: events.ConnectionStateDisconnected},
			want:   "disconnected",
		},
		{
			name:   "transport and target",
			status: events.ConnStatus{State: events.ConnectionStateConnected, TransportName: "usb", Target: "Scribble MIDI 1"},
			want:   "USB connected (Scribble MIDI 1)",
		},
		{
			name:   "error",
			status: events.ConnStatus{State: events.ConnectionStateReconnecting, TransportName: "trs", Err: "port busy"},
			want:   "TRS reconnecting (port busy)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatConnStatus(tc.status); got != tc.want {
				t.Fatalf("formatConnStatus() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConnectionStatusPresenterTracksTransports(t *testing.T) {
	app := fynetest.NewApp()
	t.Cleanup(app.Quit)

	window := app.NewWindow("status")
	p := newConnectionStatusPresenter(window, theme.VariantDark)
	if p.statusLabel.Text != "No MIDI ports" {
		t.Fatalf("unexpected initial text %q", p.statusLabel.Text)
	}
	if p.icon.Resource != resources.UIIconResource(resources.UIIconDisconnected, theme.VariantDark) {
		t.Fatalf("expected disconnected icon")
	}

	p.Set(events.ConnStatus{Transport: settings.TransportUSB, TransportName: "usb", State: events.ConnectionStateConnected})
	p.Set(events.ConnStatus{Transport: settings.TransportTRS, TransportName: "trs", State: events.ConnectionStateConnecting})

	lines := strings.Split(p.statusLabel.Text, "\n")
	if len(lines) != 2 || lines[0] != "TRS connecting" || lines[1] != "USB connected" {
		t.Fatalf("unexpected status lines %q", lines)
	}
	if p.icon.Resource != resources.UIIconResource(resources.UIIconConnected, theme.VariantDark) {
		t.Fatalf("expected connected icon")
	}
	if !strings.HasSuffix(window.Title(), "1/2 ports connected") {
		t.Fatalf("unexpected window title %q", window.Title())
	}

	p.ApplyTheme(theme.VariantLight)
	if p.icon.Resource != resources.UIIconResource(resources.UIIconConnected, theme.VariantLight) {
		t.Fatalf("expected light connected icon")
	}

	p.Reset()
	if p.statusLabel.Text != "No MIDI ports" {
		t.Fatalf("expected reset text, got %q", p.statusLabel.Text)
	}
}
