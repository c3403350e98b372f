package ui

import (
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"

	"github.com/skobkin/scribblego/internal/settings"
)

var (
	lcdBackground = color.NRGBA{R: 0x08, G: 0x0c, B: 0x10, A: 0xff}
	lcdForeground = color.NRGBA{R: 0xe8, G: 0xf4, B: 0xff, A: 0xff}
	lcdDim        = color.NRGBA{R: 0x30, G: 0x38, B: 0x40, A: 0xff}
	lcdMidiOn     = color.NRGBA{R: 0x3e, G: 0xc4, B: 0x6d, A: 0xff}
	lcdClockOn    = color.NRGBA{R: 0xff, G: 0xb0, B: 0x20, A: 0xff}
	lcdLinked     = color.NRGBA{R: 0x4a, G: 0x9e, B: 0xff, A: 0xff}
)

// LCD renders the pedal screen with fyne canvas objects. Draw calls may come
// from any goroutine.
type LCD struct {
	root fyne.CanvasObject
	main *fyne.Container

	preset    *canvas.Text
	text      *canvas.Text
	secondary *canvas.Text
	bpm       *canvas.Text
	wireless  *canvas.Text
	midi      *canvas.Circle
	clock     *canvas.Circle
	message   *canvas.Text
}

func NewLCD() *LCD {
	l := &LCD{
		preset:    canvas.NewText("", lcdForeground),
		text:      canvas.NewText("", lcdForeground),
		secondary: canvas.NewText("", lcdForeground),
		bpm:       canvas.NewText("", lcdForeground),
		wireless:  canvas.NewText("", lcdDim),
		midi:      canvas.NewCircle(lcdDim),
		clock:     canvas.NewCircle(lcdDim),
		message:   canvas.NewText("", lcdForeground),
	}
	l.preset.TextSize = 44
	l.preset.TextStyle = fyne.TextStyle{Bold: true}
	l.preset.Alignment = fyne.TextAlignCenter
	l.text.TextSize = 20
	l.text.Alignment = fyne.TextAlignCenter
	l.secondary.TextSize = 14
	l.secondary.Alignment = fyne.TextAlignCenter
	l.bpm.TextSize = 16
	l.bpm.TextStyle = fyne.TextStyle{Monospace: true}
	l.wireless.TextSize = 12
	l.message.TextSize = 16
	l.message.Alignment = fyne.TextAlignCenter
	l.message.Hide()

	indicator := func(c *canvas.Circle) fyne.CanvasObject {
		return container.NewGridWrap(fyne.NewSize(12, 12), c)
	}
	top := container.NewHBox(l.wireless, layout.NewSpacer(), indicator(l.midi), indicator(l.clock))
	center := container.NewVBox(layout.NewSpacer(), l.preset, l.text, l.secondary, layout.NewSpacer())
	bottom := container.NewHBox(layout.NewSpacer(), l.bpm)
	l.main = container.NewBorder(top, bottom, nil, nil, center)

	bg := canvas.NewRectangle(lcdBackground)
	bg.SetMinSize(fyne.NewSize(320, 240))
	l.root = container.NewStack(bg, container.NewPadded(l.main), container.NewCenter(l.message))

	return l
}

func (l *LCD) Object() fyne.CanvasObject {
	return l.root
}

func (l *LCD) DrawMainScreen() {
	fyne.Do(func() {
		l.message.Hide()
		l.main.Show()
	})
}

func (l *LCD) DrawPresetNumber(n int) {
	fyne.Do(func() {
		setText(l.preset, strconv.Itoa(n+1))
	})
}

func (l *LCD) DrawBPM(value int, unit string) {
	fyne.Do(func() {
		setText(l.bpm, strconv.Itoa(value)+" "+unit)
	})
}

func (l *LCD) DrawMainText(text, secondary string) {
	fyne.Do(func() {
		setText(l.text, text)
		setText(l.secondary, secondary)
	})
}

func (l *LCD) DrawMidiIndicator(active bool) {
	fyne.Do(func() {
		setFill(l.midi, active, lcdMidiOn)
	})
}

func (l *LCD) DrawClockIndicator(on bool) {
	fyne.Do(func() {
		setFill(l.clock, on, lcdClockOn)
	})
}

func (l *LCD) DrawWirelessIndicator(mode settings.WirelessMode, connected bool) {
	label := wirelessLabel(mode)
	fyne.Do(func() {
		l.wireless.Text = label
		l.wireless.Color = lcdDim
		if connected {
			l.wireless.Color = lcdLinked
		}
		l.wireless.Refresh()
	})
}

// DrawMessage replaces the main screen until the next DrawMainScreen.
func (l *LCD) DrawMessage(text string) {
	fyne.Do(func() {
		l.main.Hide()
		setText(l.message, text)
		l.message.Show()
	})
}

func wirelessLabel(mode settings.WirelessMode) string {
	switch mode {
	case settings.WirelessBLE:
		return "BLE"
	case settings.WirelessWiFi:
		return "WiFi"
	default:
		return ""
	}
}

func setText(t *canvas.Text, s string) {
	if t.Text == s {
		return
	}
	t.Text = s
	t.Refresh()
}

func setFill(c *canvas.Circle, on bool, onColor color.Color) {
	c.FillColor = lcdDim
	if on {
		c.FillColor = onColor
	}
	c.Refresh()
}
