package ui

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// DefaultHoldAfter is how long a switch must stay down to count as a hold.
const DefaultHoldAfter = 400 * time.Millisecond

var (
	switchIdle    = color.NRGBA{R: 0xb8, G: 0xbf, B: 0xc6, A: 0xff}
	switchPressed = color.NRGBA{R: 0x7a, G: 0x84, B: 0x8e, A: 0xff}
)

// footswitch reports a press on release, or a hold once it stays down past holdAfter.
// A hold suppresses the press of the same gesture.
type footswitch struct {
	widget.BaseWidget

	label     string
	holdAfter time.Duration
	onPress   func()
	onHold    func()

	cap *canvas.Circle

	mu    sync.Mutex
	down  bool
	held  bool
	timer *time.Timer
}

var _ desktop.Mouseable = (*footswitch)(nil)

func newFootswitch(label string, onPress, onHold func()) *footswitch {
	f := &footswitch{
		label:     label,
		holdAfter: DefaultHoldAfter,
		onPress:   onPress,
		onHold:    onHold,
		cap:       canvas.NewCircle(switchIdle),
	}
	f.ExtendBaseWidget(f)

	return f
}

func (f *footswitch) CreateRenderer() fyne.WidgetRenderer {
	size := canvas.NewRectangle(color.Transparent)
	size.SetMinSize(fyne.NewSize(88, 88))
	caption := widget.NewLabelWithStyle(f.label, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})

	return widget.NewSimpleRenderer(container.NewStack(size, container.NewPadded(f.cap), container.NewCenter(caption)))
}

func (f *footswitch) MouseDown(ev *desktop.MouseEvent) {
	if ev != nil && ev.Button != desktop.MouseButtonPrimary {
		return
	}
	f.mu.Lock()
	if f.down {
		f.mu.Unlock()

		return
	}
	f.down = true
	f.held = false
	f.timer = time.AfterFunc(f.holdAfter, f.holdFired)
	f.mu.Unlock()
	f.setPressed(true)
}

func (f *footswitch) MouseUp(ev *desktop.MouseEvent) {
	if ev != nil && ev.Button != desktop.MouseButtonPrimary {
		return
	}
	f.mu.Lock()
	if !f.down {
		f.mu.Unlock()

		return
	}
	f.down = false
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	held := f.held
	f.mu.Unlock()
	f.setPressed(false)

	if !held && f.onPress != nil {
		f.onPress()
	}
}

func (f *footswitch) holdFired() {
	f.mu.Lock()
	if !f.down || f.held {
		f.mu.Unlock()

		return
	}
	f.held = true
	f.mu.Unlock()

	if f.onHold != nil {
		f.onHold()
	}
}

func (f *footswitch) setPressed(pressed bool) {
	fill := switchIdle
	if pressed {
		fill = switchPressed
	}
	fyne.Do(func() {
		f.cap.FillColor = fill
		f.cap.Refresh()
	})
}
