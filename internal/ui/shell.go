package ui

import (
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"github.com/skobkin/scribblego/internal/resources"
)

// desktopShell is everything the simulator shows outside its window:
// the tray entry, theme-dependent icons and desktop notifications.
type desktopShell struct {
	app    fyne.App
	window fyne.Window
	desk   desktop.App

	mu     sync.Mutex
	themed []func(fyne.ThemeVariant)
}

func newDesktopShell(app fyne.App, window fyne.Window) *desktopShell {
	s := &desktopShell{app: app, window: window}
	if desk, ok := app.(desktop.App); ok {
		s.desk = desk
	}

	return s
}

// installTray adds the tray menu. Footswitch entries press the switches so the
// pedal stays usable while the window is hidden. Without a system tray the
// window close button quits instead of hiding.
func (s *desktopShell) installTray(pressSwitch func(sw int), switches int, quit func()) {
	if s.desk == nil {
		uiLogger().Debug("system tray is not supported by this driver")

		return
	}

	items := []*fyne.MenuItem{fyne.NewMenuItem("Show", s.showWindow), fyne.NewMenuItemSeparator()}
	for sw := 0; sw < switches; sw++ {
		items = append(items, fyne.NewMenuItem("Press footswitch "+switchLabel(sw), func() {
			uiLogger().Debug("footswitch pressed from tray", "switch", sw)
			pressSwitch(sw)
		}))
	}
	quitItem := fyne.NewMenuItem("Quit", func() {
		uiLogger().Debug("quit requested from tray")
		if quit != nil {
			quit()
		}
	})
	quitItem.IsQuit = true
	items = append(items, fyne.NewMenuItemSeparator(), quitItem)
	s.desk.SetSystemTrayMenu(fyne.NewMenu("scribble", items...))

	s.window.SetCloseIntercept(func() {
		uiLogger().Debug("main window closed: hiding to tray")
		s.window.Hide()
	})
}

func (s *desktopShell) showWindow() {
	s.window.Show()
	s.window.RequestFocus()
}

// onTheme registers fn to run on every theme change, including the initial apply.
func (s *desktopShell) onTheme(fn func(fyne.ThemeVariant)) {
	s.mu.Lock()
	s.themed = append(s.themed, fn)
	s.mu.Unlock()
}

// followTheme applies the current variant and keeps following the OS setting.
func (s *desktopShell) followTheme() {
	s.app.Settings().AddListener(func(settings fyne.Settings) {
		s.applyTheme(settings.ThemeVariant())
	})
	s.applyTheme(s.app.Settings().ThemeVariant())
}

func (s *desktopShell) applyTheme(variant fyne.ThemeVariant) {
	uiLogger().Debug("applying theme", "variant", variant)
	s.app.SetIcon(resources.AppIconResource())
	if s.desk != nil {
		s.desk.SetSystemTrayIcon(resources.TrayIconResource(variant))
	}

	s.mu.Lock()
	themed := append([]func(fyne.ThemeVariant){}, s.themed...)
	s.mu.Unlock()
	for _, fn := range themed {
		fn(variant)
	}
}

// notify posts a desktop notification; blank notifications are dropped.
func (s *desktopShell) notify(title, body string) {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" && body == "" {
		return
	}

	fyne.Do(func() {
		s.app.SendNotification(fyne.NewNotification(title, body))
	})
}
