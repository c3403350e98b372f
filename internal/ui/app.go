package ui

import (
	"context"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"

	scribbleapp "github.com/skobkin/scribblego/internal/app"
	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/display"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
)

const switchQueueSize = 16

type switchAction struct {
	sw   int
	hold bool
}

// Simulator is the desktop stand-in for the pedal hardware: an LCD, two
// footswitches and the port status. It outlives runtime restarts and is
// re-attached to every new runtime.
type Simulator struct {
	fyApp  fyne.App
	window fyne.Window
	lcd    *LCD
	status *connectionStatusPresenter
	shell  *desktopShell
	launch LaunchOptions
	onQuit func()

	actions      chan switchAction
	done         chan struct{}
	shutdownOnce sync.Once

	mu      sync.Mutex
	session Session
	unwatch func()
}

// NewApp creates the fyne application with the stable app ID.
func NewApp() fyne.App {
	return fyneapp.NewWithID(scribbleapp.Name)
}

func NewSimulator(fyApp fyne.App, dep Dependencies) *Simulator {
	variant := fyApp.Settings().ThemeVariant()
	window := fyApp.NewWindow("Scribble")

	s := &Simulator{
		fyApp:   fyApp,
		window:  window,
		lcd:     NewLCD(),
		status:  newConnectionStatusPresenter(window, variant),
		shell:   newDesktopShell(fyApp, window),
		launch:  dep.Launch,
		onQuit:  dep.OnQuit,
		actions: make(chan switchAction, switchQueueSize),
		done:    make(chan struct{}),
	}

	switches := container.NewHBox(layout.NewSpacer())
	for sw := 0; sw < settings.NumSwitches; sw++ {
		switches.Add(newFootswitch(switchLabel(sw),
			func() { s.enqueue(switchAction{sw: sw}) },
			func() { s.enqueue(switchAction{sw: sw, hold: true}) },
		))
		switches.Add(layout.NewSpacer())
	}
	statusBar := container.NewBorder(nil, nil, s.status.icon, nil, s.status.statusLabel)
	window.SetContent(container.NewBorder(nil, statusBar, nil, nil,
		container.NewVBox(container.NewPadded(s.lcd.Object()), switches),
	))
	window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.Key1:
			s.enqueue(switchAction{sw: 0})
		case fyne.Key2:
			s.enqueue(switchAction{sw: 1})
		}
	})

	s.shell.installTray(func(sw int) { s.enqueue(switchAction{sw: sw}) }, settings.NumSwitches, s.Quit)
	s.shell.onTheme(s.status.ApplyTheme)
	s.shell.followTheme()

	go s.runActions()

	return s
}

// Display is the LCD surface to hand to the pedal runtime.
func (s *Simulator) Display() display.Display {
	return s.lcd
}

// Attach binds the simulator to a freshly booted runtime, dropping the previous one.
func (s *Simulator) Attach(session Session) {
	s.detach()
	s.status.Reset()
	if session.CurrentConnStatus != nil {
		for _, t := range []settings.Transport{settings.TransportTRS, settings.TransportBLE, settings.TransportWiFi, settings.TransportUSB} {
			if status, ok := session.CurrentConnStatus(t); ok {
				s.status.Set(status)
			}
		}
	}
	unwatch := s.watch(session.Bus)

	s.mu.Lock()
	s.session = session
	s.unwatch = unwatch
	s.mu.Unlock()
	uiLogger().Info("simulator attached to runtime")
}

func (s *Simulator) detach() {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.session = Session{}
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// watch mirrors port status changes and restart requests of one runtime.
func (s *Simulator) watch(messageBus bus.MessageBus) func() {
	if messageBus == nil {
		return func() {}
	}

	statusSub := messageBus.Subscribe(events.TopicConnStatus)
	restartSub := messageBus.Subscribe(events.TopicDeviceRestart)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		for statusSub != nil || restartSub != nil {
			select {
			case <-stop:
				return
			case raw, ok := <-statusSub:
				if !ok {
					statusSub = nil

					continue
				}
				if status, ok := raw.(events.ConnStatus); ok {
					s.status.Set(status)
				} else {
					uiLogger().Debug("unexpected connection status payload", "payload_type", fmt.Sprintf("%T", raw))
				}
			case raw, ok := <-restartSub:
				if !ok {
					restartSub = nil

					continue
				}
				req, _ := raw.(events.RestartRequested)
				s.notifyRestart(req)
			}
		}
	}()

	return func() {
		once.Do(func() {
			close(stop)
			messageBus.Unsubscribe(statusSub, events.TopicConnStatus)
			messageBus.Unsubscribe(restartSub, events.TopicDeviceRestart)
		})
	}
}

// Run shows the window and blocks on the fyne event loop.
func (s *Simulator) Run() {
	s.window.Show()
	if s.launch.StartHidden {
		uiLogger().Info("starting hidden")
		s.window.Hide()
	}
	s.fyApp.Run()
	uiLogger().Info("simulator stopped")
	s.shutdown()
}

// Quit stops the fyne event loop. It must run on the fyne thread.
func (s *Simulator) Quit() {
	if s.shutdown() {
		s.fyApp.Quit()
	}
}

// shutdown releases the runtime and the action worker once and reports whether it did.
func (s *Simulator) shutdown() bool {
	first := false
	s.shutdownOnce.Do(func() {
		first = true
		s.detach()
		close(s.done)
		if s.onQuit != nil {
			s.onQuit()
		}
	})

	return first
}

func (s *Simulator) notifyRestart(req events.RestartRequested) {
	body := "Restarting"
	if req.Reason != "" {
		body = "Restarting: " + req.Reason
	}
	s.shell.notify("Scribble", body)
}

func (s *Simulator) enqueue(a switchAction) {
	select {
	case s.actions <- a:
	default:
		uiLogger().Warn("footswitch queue is full, dropping gesture", "switch", a.sw, "hold", a.hold)
	}
}

// runActions serializes footswitch gestures off the UI thread.
func (s *Simulator) runActions() {
	for {
		select {
		case <-s.done:
			return
		case a := <-s.actions:
			s.mu.Lock()
			session := s.session
			s.mu.Unlock()
			if session.Switches == nil {
				uiLogger().Debug("footswitch ignored: no runtime attached", "switch", a.sw)

				continue
			}
			ctx := session.Ctx
			if ctx == nil {
				ctx = context.Background()
			}
			if a.hold {
				session.Switches.SwitchHold(ctx, a.sw)
			} else {
				session.Switches.SwitchPress(ctx, a.sw)
			}
		}
	}
}

func switchLabel(sw int) string {
	return string(rune('1' + sw))
}
