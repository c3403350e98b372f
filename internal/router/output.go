package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
	"github.com/skobkin/scribblego/internal/transport"
)

var errSysExSlot = errors.New("sysex does not fit a three-byte message slot")

// Output writes messages to the transports selected by a destination mask.
// Ports that are missing or not connected drop the message.
type Output struct {
	ports  *PortSet
	bus    bus.Publisher
	logger *slog.Logger
}

func NewOutput(ports *PortSet, pub bus.Publisher, logger *slog.Logger) *Output {
	if logger == nil {
		logger = slog.Default()
	}

	return &Output{ports: ports, bus: pub, logger: logger}
}

// SendMessage translates a stored message and writes it to every destination transport.
// It returns the number of transports that accepted the write.
func (o *Output) SendMessage(ctx context.Context, msg settings.MidiMessage) int {
	wire, err := Encode(msg)
	if err != nil {
		o.logger.Debug("skip message", "message", msg.String(), "error", err)

		return 0
	}

	return o.Forward(ctx, msg.Destinations, wire)
}

// Forward writes raw bytes to every transport in mask.
func (o *Output) Forward(ctx context.Context, mask settings.TransportMask, msg midi.Message) int {
	sent := 0
	for _, t := range mask.Transports() {
		if o.write(ctx, t, msg) {
			sent++
		}
	}

	return sent
}

func (o *Output) write(ctx context.Context, t settings.Transport, msg midi.Message) bool {
	port := o.ports.Get(t)
	if port == nil || !port.Connected() {
		return false
	}
	if err := port.WriteMessage(ctx, msg); err != nil {
		if errors.Is(err, transport.ErrNotConnected) || errors.Is(err, context.Canceled) {
			o.logger.Debug("drop message", "transport", t.String(), "error", err)
		} else {
			o.logger.Warn("write failed", "transport", t.String(), "error", err)
		}

		return false
	}
	if o.bus != nil {
		o.bus.Publish(events.TopicMidiOut, events.MidiFrame{
			Transport: t,
			Bytes:     append([]byte(nil), msg...),
			At:        time.Now(),
		})
	}

	return true
}

// Encode turns a stored message into wire bytes. Channel voice statuses are split into
// type and channel. System statuses are sent verbatim with as many data bytes as they carry.
func Encode(msg settings.MidiMessage) (midi.Message, error) {
	if msg.Unused() {
		return nil, settings.ErrZeroStatus
	}
	if msg.Status < 0x80 {
		return nil, fmt.Errorf("invalid status byte %#02x", msg.Status)
	}
	d1, d2 := msg.Data1&0x7F, msg.Data2&0x7F

	if msg.Status < 0xF0 {
		ch := msg.Status & 0x0F
		switch msg.Status & 0xF0 {
		case 0x80:
			return midi.NoteOffVelocity(ch, d1, d2), nil
		case 0x90:
			return midi.NoteOn(ch, d1, d2), nil
		case 0xA0:
			return midi.PolyAfterTouch(ch, d1, d2), nil
		case 0xB0:
			return midi.ControlChange(ch, d1, d2), nil
		case 0xC0:
			return midi.ProgramChange(ch, d1), nil
		case 0xD0:
			return midi.AfterTouch(ch, d1), nil
		default:
			return midi.Pitchbend(ch, int16(uint16(d2)<<7|uint16(d1))-8192), nil
		}
	}

	if msg.Status == 0xF0 || msg.Status == 0xF7 {
		return nil, errSysExSlot
	}
	out := midi.Message{msg.Status}
	switch transport.DataLen(msg.Status) {
	case 1:
		out = append(out, d1)
	case 2:
		out = append(out, d1, d2)
	}

	return out, nil
}
