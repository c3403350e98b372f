package ui

import (
	"context"
	"sync"

	"fyne.io/fyne/v2"
)

// appSpy records lifecycle calls and hands out spied windows.
type appSpy struct {
	fyne.App
	window    *windowSpy
	runCalls  int
	quitCalls int
}

func (a *appSpy) NewWindow(title string) fyne.Window {
	a.window = &windowSpy{Window: a.App.NewWindow(title)}

	return a.window
}

func (a *appSpy) Run() {
	a.runCalls++
}

func (a *appSpy) Quit() {
	a.quitCalls++
}

// trayAppSpy additionally looks like a desktop driver with a system tray.
type trayAppSpy struct {
	*appSpy
	trayMenu *fyne.Menu
	trayIcon fyne.Resource
}

func (a *trayAppSpy) SetSystemTrayMenu(menu *fyne.Menu) {
	a.trayMenu = menu
}

func (a *trayAppSpy) SetSystemTrayIcon(icon fyne.Resource) {
	a.trayIcon = icon
}

func (a *trayAppSpy) SetSystemTrayWindow(fyne.Window) {}

type windowSpy struct {
	fyne.Window
	showCalls      int
	hideCalls      int
	focusCalls     int
	closeIntercept func()
}

func (w *windowSpy) Show() {
	w.showCalls++
	if w.Window != nil {
		w.Window.Show()
	}
}

func (w *windowSpy) Hide() {
	w.hideCalls++
	if w.Window != nil {
		w.Window.Hide()
	}
}

func (w *windowSpy) RequestFocus() {
	w.focusCalls++
	if w.Window != nil {
		w.Window.RequestFocus()
	}
}

func (w *windowSpy) SetCloseIntercept(fn func()) {
	w.closeIntercept = fn
	if w.Window != nil {
		w.Window.SetCloseIntercept(fn)
	}
}

type switchEvent struct {
	sw   int
	hold bool
}

type switchSpy struct {
	mu     sync.Mutex
	events []switchEvent
	seen   chan struct{}
}

func newSwitchSpy() *switchSpy {
	return &switchSpy{seen: make(chan struct{}, 16)}
}

func (s *switchSpy) SwitchPress(_ context.Context, sw int) {
	s.record(switchEvent{sw: sw})
}

func (s *switchSpy) SwitchHold(_ context.Context, sw int) {
	s.record(switchEvent{sw: sw, hold: true})
}

func (s *switchSpy) record(ev switchEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *switchSpy) snapshot() []switchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]switchEvent(nil), s.events...)
}
