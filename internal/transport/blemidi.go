package transport

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

var errBLEMIDITruncated = errors.New("ble-midi packet truncated")

// encodeBLEMIDIPacket builds one BLE-MIDI packet. Every message gets a timestamp byte,
// and consecutive channel messages with the same status use running status.
func encodeBLEMIDIPacket(timestampMs uint16, msgs []midi.Message) []byte {
	tsLow := 0x80 | byte(timestampMs&0x7F)
	out := []byte{0x80 | byte((timestampMs>>7)&0x3F)}

	var running byte
	for _, msg := range msgs {
		if len(msg) == 0 {
			continue
		}
		status := msg[0]
		switch {
		case status == 0xF0:
			body := msg
			if body[len(body)-1] == 0xF7 {
				body = body[:len(body)-1]
			}
			out = append(out, tsLow)
			out = append(out, body...)
			out = append(out, tsLow, 0xF7)
			running = 0
		case status >= 0xF8:
			out = append(out, tsLow, status)
		case status >= 0xF0:
			out = append(out, tsLow)
			out = append(out, msg...)
			running = 0
		case status == running:
			out = append(out, tsLow)
			out = append(out, msg[1:]...)
		default:
			out = append(out, tsLow)
			out = append(out, msg...)
			running = status
		}
	}

	return out
}

// bleMIDIDecoder keeps running status and SysEx continuation across packets.
type bleMIDIDecoder struct {
	running byte
	inSysEx bool
	sysex   []byte
}

func (d *bleMIDIDecoder) Decode(packet []byte) ([]midi.Message, error) {
	if len(packet) < 2 {
		return nil, fmt.Errorf("ble-midi packet too short: %d bytes", len(packet))
	}
	if packet[0]&0x80 == 0 {
		return nil, fmt.Errorf("ble-midi header without bit 7: %#02x", packet[0])
	}

	var out []midi.Message
	i := 1
	for i < len(packet) {
		b := packet[i]

		if d.inSysEx {
			if b < 0x80 {
				d.sysex = append(d.sysex, b)
				i++

				continue
			}
			if i+1 >= len(packet) {
				return out, errBLEMIDITruncated
			}
			status := packet[i+1]
			i += 2
			switch {
			case status == 0xF7:
				out = append(out, append(midi.Message(nil), append(d.sysex, 0xF7)...))
				d.inSysEx = false
				d.sysex = d.sysex[:0]
			case status >= 0xF8:
				out = append(out, midi.Message{status})
			default:
				d.inSysEx = false
				d.sysex = d.sysex[:0]

				return out, fmt.Errorf("sysex interrupted by status %#02x", status)
			}

			continue
		}

		if b >= 0x80 {
			// timestamp byte
			i++
			if i >= len(packet) {
				return out, errBLEMIDITruncated
			}
			b = packet[i]
		}

		var status byte
		if b >= 0x80 {
			status = b
			i++
			switch {
			case status >= 0xF8:
				out = append(out, midi.Message{status})

				continue
			case status == 0xF0:
				d.inSysEx = true
				d.sysex = append(d.sysex[:0], status)

				continue
			case status == 0xF7:
				continue
			case status >= 0xF0:
				d.running = 0
			default:
				d.running = status
			}
		} else {
			if d.running == 0 {
				return out, fmt.Errorf("data byte %#02x without running status", b)
			}
			status = d.running
		}

		n := DataLen(status)
		if i+n > len(packet) {
			return out, errBLEMIDITruncated
		}
		msg := make(midi.Message, 0, 1+n)
		msg = append(msg, status)
		for _, v := range packet[i : i+n] {
			if v >= 0x80 {
				return out, fmt.Errorf("status %#02x inside message data", v)
			}
			msg = append(msg, v)
		}
		i += n
		out = append(out, msg)
	}

	return out, nil
}
