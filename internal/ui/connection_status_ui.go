package ui

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"

	scribbleapp "github.com/skobkin/scribblego/internal/app"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/resources"
	"github.com/skobkin/scribblego/internal/settings"
)

type connectionStatusPresenter struct {
	window      fyne.Window
	statusLabel *widget.Label
	icon        *widget.Icon

	mu       sync.RWMutex
	statuses map[settings.Transport]events.ConnStatus
	variant  fyne.ThemeVariant
}

func newConnectionStatusPresenter(window fyne.Window, initialVariant fyne.ThemeVariant) *connectionStatusPresenter {
	p := &connectionStatusPresenter{
		window:      window,
		statusLabel: widget.NewLabel(""),
		icon:        widget.NewIcon(resources.UIIconResource(resources.UIIconDisconnected, initialVariant)),
		statuses:    make(map[settings.Transport]events.ConnStatus),
		variant:     initialVariant,
	}
	p.statusLabel.Wrapping = fyne.TextWrapWord
	p.applyUI()

	return p
}

// Set records one transport status and redraws.
func (p *connectionStatusPresenter) Set(status events.ConnStatus) {
	p.mu.Lock()
	p.statuses[status.Transport] = status
	p.mu.Unlock()
	p.applyUI()
}

// Reset forgets every transport, for a freshly attached runtime.
func (p *connectionStatusPresenter) Reset() {
	p.mu.Lock()
	p.statuses = make(map[settings.Transport]events.ConnStatus)
	p.mu.Unlock()
	p.applyUI()
}

func (p *connectionStatusPresenter) ApplyTheme(variant fyne.ThemeVariant) {
	p.mu.Lock()
	p.variant = variant
	p.mu.Unlock()
	p.applyUI()
}

func (p *connectionStatusPresenter) snapshot() ([]events.ConnStatus, fyne.ThemeVariant) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]events.ConnStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Transport < out[j].Transport })

	return out, p.variant
}

func (p *connectionStatusPresenter) applyUI() {
	statuses, variant := p.snapshot()
	text := formatConnStatuses(statuses)
	icon := resources.UIIconResource(statusIcon(statuses), variant)
	title := formatWindowTitle(statuses)
	fyne.Do(func() {
		if p.window != nil {
			p.window.SetTitle(title)
		}
		p.statusLabel.SetText(text)
		p.icon.SetResource(icon)
	})
}

func formatConnStatus(status events.ConnStatus) string {
	text := string(status.State)
	if name := strings.TrimSpace(status.TransportName); name != "" {
		text = strings.ToUpper(name) + " " + text
	}
	if target := strings.TrimSpace(status.Target); target != "" {
		text += " (" + target + ")"
	}
	if status.Err != "" {
		text += " (" + status.Err + ")"
	}

	return text
}

func formatConnStatuses(statuses []events.ConnStatus) string {
	if len(statuses) == 0 {
		return "No MIDI ports"
	}
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		lines = append(lines, formatConnStatus(s))
	}

	return strings.Join(lines, "\n")
}

func formatWindowTitle(statuses []events.ConnStatus) string {
	connected := 0
	for _, s := range statuses {
		if s.State == events.ConnectionStateConnected {
			connected++
		}
	}

	return fmt.Sprintf("Scribble %s - %d/%d ports connected", scribbleapp.BuildVersion(), connected, len(statuses))
}

func statusIcon(statuses []events.ConnStatus) resources.UIIcon {
	for _, s := range statuses {
		if s.State == events.ConnectionStateConnected {
			return resources.UIIconConnected
		}
	}

	return resources.UIIconDisconnected
}
