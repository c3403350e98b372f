package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"

	"github.com/skobkin/scribblego/internal/settings"
)

const (
	defaultSerialReadTimeout = 50 * time.Millisecond
	trsReadChunk             = 64
)

// serialLink owns one serial port shared by the MIDI and framed device-API links.
type serialLink struct {
	name     string
	portName string
	baudRate int

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func (l *serialLink) PortName() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.portName
}

func (l *serialLink) StatusTarget() string {
	return l.PortName()
}

func (l *serialLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.port != nil
}

func (l *serialLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	logger := portLogger(l.name, "port", l.portName, "baud", l.baudRate)
	if l.port != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.portName == "" {
		return errors.New("serial port is empty")
	}
	if l.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", l.baudRate)
	}

	port, err := serial.Open(l.portName, &serial.Mode{BaudRate: l.baudRate})
	if err != nil {
		logger.Warn("open serial port failed", "error", err)

		return fmt.Errorf("open serial port %q: %w", l.portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	l.port = port
	logger.Info("connected")

	return nil
}

func (l *serialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	portLogger(l.name, "port", l.portName).Info("closed")

	return err
}

func (l *serialLink) currentPort() (serial.Port, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil, ErrNotConnected
	}

	return l.port, nil
}

func (l *serialLink) write(ctx context.Context, buf []byte) error {
	port, err := l.currentPort()
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	return writeFull(ctx, port, buf)
}

// TRSPort carries MIDI over the TRS jack UART.
type TRSPort struct {
	serialLink

	parseMu sync.Mutex
	parser  *StreamParser
	pending []midi.Message
	chunk   []byte
}

func NewTRSPort(portName string, baudRate int) *TRSPort {
	return &TRSPort{
		serialLink: serialLink{name: "trs", portName: portName, baudRate: baudRate},
		parser:     NewStreamParser(),
		chunk:      make([]byte, trsReadChunk),
	}
}

func (t *TRSPort) Name() string {
	return "trs"
}

func (t *TRSPort) Kind() settings.Transport {
	return settings.TransportTRS
}

// ReadMessage blocks until a complete MIDI message has been parsed from the UART.
func (t *TRSPort) ReadMessage(ctx context.Context) (midi.Message, error) {
	t.parseMu.Lock()
	defer t.parseMu.Unlock()

	for len(t.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		port, err := t.currentPort()
		if err != nil {
			return nil, err
		}
		n, err := port.Read(t.chunk)
		if err != nil {
			return nil, fmt.Errorf("read trs: %w", err)
		}
		t.pending = append(t.pending, t.parser.FeedAll(t.chunk[:n])...)
	}
	msg := t.pending[0]
	t.pending = t.pending[1:]

	return msg, nil
}

func (t *TRSPort) WriteMessage(ctx context.Context, msg midi.Message) error {
	if len(msg) == 0 {
		return nil
	}
	if err := t.write(ctx, msg); err != nil {
		return fmt.Errorf("write trs: %w", err)
	}

	return nil
}

// FrameLink carries framed device-API payloads over a serial port.
type FrameLink struct {
	serialLink
}

func NewFrameLink(portName string, baudRate int) *FrameLink {
	return &FrameLink{serialLink: serialLink{name: "device-api", portName: portName, baudRate: baudRate}}
}

func (t *FrameLink) Name() string {
	return "device-api"
}

func (t *FrameLink) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	return newFrameDecoder(ctxReader{ctx: ctx, r: port}).decode()
}

func (t *FrameLink) WriteFrame(ctx context.Context, payload []byte) error {
	frame, err := appendFrame(nil, payload)
	if err != nil {
		return err
	}
	if err := t.write(ctx, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// ctxReader checks ctx before every read of the underlying stream.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}
