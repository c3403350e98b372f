package ui

import (
	"testing"

	"fyne.io/fyne/v2"
	fynetest "fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"

	"github.com/skobkin/scribblego/internal/resources"
)

func TestDesktopShellTrayMenu(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)

	app := &trayAppSpy{appSpy: &appSpy{App: base}}
	window := &windowSpy{Window: base.NewWindow("tray")}
	var pressed []int
	quits := 0

	shell := newDesktopShell(app, window)
	shell.installTray(func(sw int) { pressed = append(pressed, sw) }, 2, func() { quits++ })
	if app.trayMenu == nil || len(app.trayMenu.Items) != 6 {
		t.Fatalf("expected show, two footswitches, quit and separators, got %+v", app.trayMenu)
	}

	items := app.trayMenu.Items
	items[0].Action()
	if window.showCalls != 1 || window.focusCalls != 1 {
		t.Fatalf("expected show action to show and focus, got show=%d focus=%d", window.showCalls, window.focusCalls)
	}
	items[3].Action()
	items[2].Action()
	if len(pressed) != 2 || pressed[0] != 1 || pressed[1] != 0 {
		t.Fatalf("unexpected footswitch presses %v", pressed)
	}
	if !items[5].IsQuit {
		t.Fatalf("expected last item to be the quit item")
	}
	items[5].Action()
	if quits != 1 {
		t.Fatalf("expected quit once, got %d", quits)
	}

	if window.closeIntercept == nil {
		t.Fatalf("expected close intercept with a tray")
	}
	window.closeIntercept()
	if window.hideCalls != 1 {
		t.Fatalf("expected close to hide the window, got %d", window.hideCalls)
	}
}

func TestDesktopShellWithoutTrayKeepsCloseButton(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)

	window := &windowSpy{Window: base.NewWindow("plain")}
	shell := newDesktopShell(&appSpy{App: base}, window)
	shell.installTray(func(int) {}, 2, nil)
	if window.closeIntercept != nil {
		t.Fatalf("close must not be intercepted without a tray")
	}
}

func TestDesktopShellApplyTheme(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)

	app := &trayAppSpy{appSpy: &appSpy{App: base}}
	shell := newDesktopShell(app, base.NewWindow("theme"))
	var seen []fyne.ThemeVariant
	shell.onTheme(func(v fyne.ThemeVariant) { seen = append(seen, v) })

	shell.applyTheme(theme.VariantLight)
	if app.trayIcon != resources.TrayIconResource(theme.VariantLight) {
		t.Fatalf("expected light tray icon")
	}
	shell.applyTheme(theme.VariantDark)
	if app.trayIcon != resources.TrayIconResource(theme.VariantDark) {
		t.Fatalf("expected dark tray icon")
	}
	if len(seen) != 2 || seen[0] != theme.VariantLight || seen[1] != theme.VariantDark {
		t.Fatalf("unexpected theme callbacks %v", seen)
	}

	shell.notify("  ", "")
	shell.notify("Scribble", "Restarting")
}
