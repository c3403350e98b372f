package transport

import "gitlab.com/gomidi/midi/v2"

const defaultMaxSysExLen = 4096

// StreamParser turns a raw MIDI byte stream into complete messages.
// It handles running status, realtime bytes interleaved anywhere and SysEx.
type StreamParser struct {
	running  byte
	buf      []byte
	need     int
	inSysEx  bool
	sysex    []byte
	maxSysEx int
}

func NewStreamParser() *StreamParser {
	return &StreamParser{maxSysEx: defaultMaxSysExLen}
}

// Feed consumes one byte and returns a message when one is complete.
func (p *StreamParser) Feed(b byte) (midi.Message, bool) {
	switch {
	case b >= 0xF8:
		return midi.Message{b}, true
	case b == 0xF0:
		p.resetMessage()
		p.running = 0
		p.inSysEx = true
		p.sysex = append(p.sysex[:0], b)

		return nil, false
	case b == 0xF7:
		if !p.inSysEx {
			return nil, false
		}
		p.inSysEx = false
		msg := append(midi.Message(nil), p.sysex...)
		msg = append(msg, b)
		p.sysex = p.sysex[:0]

		return msg, true
	case b >= 0x80:
		p.inSysEx = false
		p.sysex = p.sysex[:0]

		return p.startStatus(b)
	}

	if p.inSysEx {
		if len(p.sysex) >= p.maxSysEx {
			p.inSysEx = false
			p.sysex = p.sysex[:0]

			return nil, false
		}
		p.sysex = append(p.sysex, b)

		return nil, false
	}
	if len(p.buf) == 0 {
		if p.running == 0 {
			return nil, false
		}
		p.buf = append(p.buf, p.running)
		p.need = DataLen(p.running)
	}
	p.buf = append(p.buf, b)
	if len(p.buf)-1 < p.need {
		return nil, false
	}
	msg := append(midi.Message(nil), p.buf...)
	p.resetMessage()

	return msg, true
}

// FeedAll consumes a chunk and returns every message completed by it.
func (p *StreamParser) FeedAll(chunk []byte) []midi.Message {
	var out []midi.Message
	for _, b := range chunk {
		if msg, ok := p.Feed(b); ok {
			out = append(out, msg)
		}
	}

	return out
}

func (p *StreamParser) startStatus(status byte) (midi.Message, bool) {
	p.resetMessage()
	if status < 0xF0 {
		p.running = status
		p.buf = append(p.buf, status)
		p.need = DataLen(status)

		return nil, false
	}

	// System common messages cancel running status.
	p.running = 0
	switch status {
	case 0xF1, 0xF3:
		p.buf = append(p.buf, status)
		p.need = 1
	case 0xF2:
		p.buf = append(p.buf, status)
		p.need = 2
	case 0xF6:
		return midi.Message{status}, true
	}

	return nil, false
}

func (p *StreamParser) resetMessage() {
	p.buf = p.buf[:0]
	p.need = 0
}

// DataLen returns the number of data bytes following a status byte.
func DataLen(status byte) int {
	switch {
	case status >= 0xF8, status == 0xF6:
		return 0
	case status == 0xF1, status == 0xF3:
		return 1
	case status == 0xF2:
		return 2
	case status >= 0xF0:
		return 0
	}
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}
