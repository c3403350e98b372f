// Package resources holds the embedded SVG artwork of the simulator.
package resources

import (
	"embed"
	"log/slog"
	"path"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

//go:embed app/*.svg ui/dark/*.svg ui/light/*.svg
var assets embed.FS

type UIIcon string

const (
	UIIconConnected    UIIcon = "connected"
	UIIconDisconnected UIIcon = "disconnected"
	UIIconMidi         UIIcon = "midi"

	trayIcon UIIcon = "tray"
)

var knownIcons = map[UIIcon]bool{
	UIIconConnected:    true,
	UIIconDisconnected: true,
	UIIconMidi:         true,
	trayIcon:           true,
}

var cache sync.Map // asset path -> fyne.Resource

// AppIconResource is the window and launcher icon. It does not follow the theme.
func AppIconResource() fyne.Resource {
	return load("app/pedal.svg")
}

// TrayIconResource returns the tray icon for variant, dark when the variant is unknown.
func TrayIconResource(variant fyne.ThemeVariant) fyne.Resource {
	return UIIconResource(trayIcon, variant)
}

// UIIconResource returns nil for icons that are not shipped.
func UIIconResource(icon UIIcon, variant fyne.ThemeVariant) fyne.Resource {
	if !knownIcons[icon] {
		return nil
	}

	return load(path.Join("ui", variantDir(variant), string(icon)+".svg"))
}

func variantDir(variant fyne.ThemeVariant) string {
	if variant == theme.VariantLight {
		return "light"
	}

	return "dark"
}

func load(name string) fyne.Resource {
	if res, ok := cache.Load(name); ok {
		return res.(fyne.Resource)
	}
	data, err := assets.ReadFile(name)
	if err != nil {
		slog.Default().Error("embedded asset missing", "component", "resources", "asset", name, "error", err)

		return nil
	}
	res, _ := cache.LoadOrStore(name, fyne.NewStaticResource("resources/"+name, data))

	return res.(fyne.Resource)
}
