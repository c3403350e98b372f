package display

import (
	"log/slog"

	"github.com/skobkin/scribblego/internal/settings"
)

// Display is the LCD drawing surface.
type Display interface {
	DrawMainScreen()
	DrawPresetNumber(n int)
	DrawBPM(value int, unit string)
	DrawMainText(text, secondary string)
	DrawMidiIndicator(active bool)
	DrawClockIndicator(on bool)
	DrawWirelessIndicator(mode settings.WirelessMode, connected bool)
	DrawMessage(text string)
}

// LogDisplay writes every draw call to a logger, for headless runs.
type LogDisplay struct {
	logger *slog.Logger
}

func NewLogDisplay(logger *slog.Logger) *LogDisplay {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogDisplay{logger: logger}
}

func (d *LogDisplay) DrawMainScreen() {
	d.logger.Debug("draw main screen")
}

func (d *LogDisplay) DrawPresetNumber(n int) {
	d.logger.Info("preset", "number", n+1)
}

func (d *LogDisplay) DrawBPM(value int, unit string) {
	d.logger.Info("tempo", "value", value, "unit", unit)
}

func (d *LogDisplay) DrawMainText(text, secondary string) {
	d.logger.Info("main text", "text", text, "secondary", secondary)
}

func (d *LogDisplay) DrawMidiIndicator(active bool) {
	d.logger.Debug("midi indicator", "active", active)
}

func (d *LogDisplay) DrawClockIndicator(on bool) {
	d.logger.Debug("clock indicator", "on", on)
}

func (d *LogDisplay) DrawWirelessIndicator(mode settings.WirelessMode, connected bool) {
	d.logger.Info("wireless", "mode", mode.String(), "connected", connected)
}

func (d *LogDisplay) DrawMessage(text string) {
	d.logger.Info("message", "text", text)
}
