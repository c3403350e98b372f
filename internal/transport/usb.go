package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/skobkin/scribblego/internal/settings"
)

type usbConnState struct {
	drv    *rtmididrv.Driver
	in     drivers.In
	out    drivers.Out
	stop   func()
	send   func(midi.Message) error
	closed chan struct{}
	once   sync.Once
}

func (s *usbConnState) markClosed() {
	s.once.Do(func() { close(s.closed) })
}

// USBPort is the USB MIDI interface, backed by OS MIDI ports opened by name.
type USBPort struct {
	inName  string
	outName string

	mu      sync.RWMutex
	conn    *usbConnState
	writeMu sync.Mutex
	queue   *messageQueue
}

func NewUSBPort(inName, outName string) *USBPort {
	return &USBPort{
		inName:  strings.TrimSpace(inName),
		outName: strings.TrimSpace(outName),
		queue:   newMessageQueue("usb", defaultMessageQueueSize),
	}
}

func (t *USBPort) Name() string {
	return "usb"
}

func (t *USBPort) Kind() settings.Transport {
	return settings.TransportUSB
}

func (t *USBPort) StatusTarget() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.inName == t.outName || t.outName == "" {
		return t.inName
	}
	if t.inName == "" {
		return t.outName
	}

	return t.inName + " / " + t.outName
}

func (t *USBPort) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.conn != nil
}

func (t *USBPort) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	logger := portLogger("usb", "in", t.inName, "out", t.outName)
	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.inName == "" && t.outName == "" {
		return errors.New("usb midi ports are empty")
	}

	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("rtmididrv: %w", err)
	}
	state := &usbConnState{drv: drv, closed: make(chan struct{})}

	if t.inName != "" {
		in, err := findInPort(drv, t.inName)
		if err != nil {
			_ = drv.Close()

			return err
		}
		if err := in.Open(); err != nil {
			_ = drv.Close()

			return fmt.Errorf("open usb input %q: %w", t.inName, err)
		}
		stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
			t.queue.push(msg)
		}, midi.UseSysEx(), midi.HandleError(func(listenErr error) {
			logger.Warn("usb listener error", "error", listenErr)
			go t.fail(state)
		}))
		if err != nil {
			_ = in.Close()
			_ = drv.Close()

			return fmt.Errorf("listen usb input %q: %w", t.inName, err)
		}
		state.in = in
		state.stop = stop
	}

	if t.outName != "" {
		out, err := findOutPort(drv, t.outName)
		if err != nil {
			state.shutdown()

			return err
		}
		send, err := midi.SendTo(out)
		if err != nil {
			state.shutdown()

			return fmt.Errorf("open usb output %q: %w", t.outName, err)
		}
		state.out = out
		state.send = send
	}

	t.conn = state
	logger.Info("connected")

	return nil
}

func (t *USBPort) Close() error {
	t.mu.Lock()
	state := t.conn
	t.conn = nil
	t.mu.Unlock()
	if state == nil {
		return nil
	}
	err := state.shutdown()
	portLogger("usb").Info("closed")

	return err
}

func (t *USBPort) ReadMessage(ctx context.Context) (midi.Message, error) {
	state, err := t.currentState()
	if err != nil {
		return nil, err
	}

	return t.queue.pop(ctx, state.closed)
}

func (t *USBPort) WriteMessage(ctx context.Context, msg midi.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := t.currentState()
	if err != nil {
		return err
	}
	if state.send == nil {
		return fmt.Errorf("usb output is not configured: %w", ErrNotConnected)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := state.send(msg); err != nil {
		return fmt.Errorf("write usb: %w", err)
	}

	return nil
}

func (t *USBPort) currentState() (*usbConnState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}

func (t *USBPort) fail(state *usbConnState) {
	t.mu.Lock()
	if t.conn == state {
		t.conn = nil
	}
	t.mu.Unlock()
	_ = state.shutdown()
}

func (s *usbConnState) shutdown() error {
	s.markClosed()
	var closeErr error
	if s.stop != nil {
		s.stop()
	}
	if s.in != nil {
		if err := s.in.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close usb input: %w", err))
		}
	}
	if s.out != nil {
		if err := s.out.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close usb output: %w", err))
		}
	}
	if err := s.drv.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("close midi driver: %w", err))
	}

	return closeErr
}

func findInPort(drv *rtmididrv.Driver, name string) (drivers.In, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list usb inputs: %w", err)
	}
	for _, in := range ins {
		if in.String() == name {
			return in, nil
		}
	}

	return nil, fmt.Errorf("usb input %q not found", name)
}

func findOutPort(drv *rtmididrv.Driver, name string) (drivers.Out, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("list usb outputs: %w", err)
	}
	for _, out := range outs {
		if out.String() == name {
			return out, nil
		}
	}

	return nil, fmt.Errorf("usb output %q not found", name)
}

// USBPortNames lists the OS MIDI ports for configuration UIs.
func USBPortNames() (ins, outs []string, err error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer func() { _ = drv.Close() }()

	inPorts, err := drv.Ins()
	if err != nil {
		return nil, nil, fmt.Errorf("list usb inputs: %w", err)
	}
	for _, in := range inPorts {
		ins = append(ins, in.String())
	}
	outPorts, err := drv.Outs()
	if err != nil {
		return nil, nil, fmt.Errorf("list usb outputs: %w", err)
	}
	for _, out := range outPorts {
		outs = append(outs, out.String())
	}

	return ins, outs, nil
}
