package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// AppleMIDI session commands.
const (
	appleMIDIInvitation = "IN"
	appleMIDIAccept     = "OK"
	appleMIDIReject     = "NO"
	appleMIDIBye        = "BY"
	appleMIDISync       = "CK"

	appleMIDIVersion = 2

	rtpVersion2     = 0x80
	rtpMIDIPayload  = 0x61
	rtpHeaderLen    = 12
	rtpMaxShortList = 0x0F
)

type appleMIDIPacket struct {
	Command string
	Token   uint32
	SSRC    uint32
	Name    string
	// Sync fields
	Count      uint8
	Timestamps [3]uint64
}

func isAppleMIDI(packet []byte) bool {
	return len(packet) >= 4 && packet[0] == 0xFF && packet[1] == 0xFF
}

func decodeAppleMIDI(packet []byte) (appleMIDIPacket, error) {
	if !isAppleMIDI(packet) {
		return appleMIDIPacket{}, errors.New("not an applemidi packet")
	}
	p := appleMIDIPacket{Command: string(packet[2:4])}
	body := packet[4:]
	switch p.Command {
	case appleMIDISync:
		if len(body) < 4+4+3*8 {
			return p, fmt.Errorf("short sync packet: %d bytes", len(packet))
		}
		p.SSRC = binary.BigEndian.Uint32(body[0:4])
		p.Count = body[4]
		for i := range p.Timestamps {
			p.Timestamps[i] = binary.BigEndian.Uint64(body[8+i*8 : 16+i*8])
		}
	case appleMIDIInvitation, appleMIDIAccept, appleMIDIReject, appleMIDIBye:
		if len(body) < 12 {
			return p, fmt.Errorf("short %s packet: %d bytes", p.Command, len(packet))
		}
		if v := binary.BigEndian.Uint32(body[0:4]); v != appleMIDIVersion {
			return p, fmt.Errorf("unsupported applemidi version %d", v)
		}
		p.Token = binary.BigEndian.Uint32(body[4:8])
		p.SSRC = binary.BigEndian.Uint32(body[8:12])
		if name := body[12:]; len(name) > 0 {
			if end := bytes.IndexByte(name, 0); end >= 0 {
				name = name[:end]
			}
			p.Name = string(name)
		}
	default:
		return p, fmt.Errorf("unknown applemidi command %q", p.Command)
	}

	return p, nil
}

func encodeAppleMIDI(p appleMIDIPacket) []byte {
	out := []byte{0xFF, 0xFF, p.Command[0], p.Command[1]}
	if p.Command == appleMIDISync {
		out = binary.BigEndian.AppendUint32(out, p.SSRC)
		out = append(out, p.Count, 0, 0, 0)
		for _, ts := range p.Timestamps {
			out = binary.BigEndian.AppendUint64(out, ts)
		}

		return out
	}
	out = binary.BigEndian.AppendUint32(out, appleMIDIVersion)
	out = binary.BigEndian.AppendUint32(out, p.Token)
	out = binary.BigEndian.AppendUint32(out, p.SSRC)
	if p.Name != "" {
		out = append(out, p.Name...)
		out = append(out, 0)
	}

	return out
}

// encodeRTPMIDI builds one RTP-MIDI packet without a recovery journal.
// Commands after the first carry a zero delta time.
func encodeRTPMIDI(seq uint16, timestamp, ssrc uint32, msgs []midi.Message) ([]byte, error) {
	var list []byte
	first := true
	for _, msg := range msgs {
		if len(msg) == 0 {
			continue
		}
		if !first {
			list = append(list, 0x00)
		}
		list = append(list, msg...)
		first = false
	}
	if len(list) > 0x0FFF {
		return nil, fmt.Errorf("midi list too long: %d bytes", len(list))
	}

	out := make([]byte, 0, rtpHeaderLen+2+len(list))
	out = append(out, rtpVersion2, rtpMIDIPayload)
	out = binary.BigEndian.AppendUint16(out, seq)
	out = binary.BigEndian.AppendUint32(out, timestamp)
	out = binary.BigEndian.AppendUint32(out, ssrc)
	if len(list) <= rtpMaxShortList {
		out = append(out, byte(len(list)))
	} else {
		out = append(out, 0x80|byte(len(list)>>8), byte(len(list)))
	}
	out = append(out, list...)

	return out, nil
}

// decodeRTPMIDI extracts the MIDI command list of an RTP-MIDI packet. The journal is ignored.
func decodeRTPMIDI(packet []byte) ([]midi.Message, uint32, error) {
	if len(packet) < rtpHeaderLen+1 {
		return nil, 0, fmt.Errorf("short rtp packet: %d bytes", len(packet))
	}
	if packet[0]&0xC0 != rtpVersion2 {
		return nil, 0, fmt.Errorf("unsupported rtp version byte %#02x", packet[0])
	}
	if packet[1]&0x7F != rtpMIDIPayload {
		return nil, 0, fmt.Errorf("unexpected rtp payload type %d", packet[1]&0x7F)
	}
	ssrc := binary.BigEndian.Uint32(packet[8:12])

	body := packet[rtpHeaderLen:]
	flags := body[0]
	length := int(flags & 0x0F)
	offset := 1
	if flags&0x80 != 0 {
		if len(body) < 2 {
			return nil, ssrc, errors.New("truncated rtp-midi length")
		}
		length = int(flags&0x0F)<<8 | int(body[1])
		offset = 2
	}
	if offset+length > len(body) {
		return nil, ssrc, fmt.Errorf("rtp-midi list length %d exceeds packet", length)
	}
	list := body[offset : offset+length]
	hasDeltaFirst := flags&0x20 != 0

	var (
		out     []midi.Message
		running byte
	)
	i := 0
	first := true
	for i < len(list) {
		if !first || hasDeltaFirst {
			// variable-length delta time, up to four bytes
			for n := 0; n < 4 && i < len(list); n++ {
				b := list[i]
				i++
				if b&0x80 == 0 {
					break
				}
			}
			if i >= len(list) {
				break
			}
		}
		first = false

		status := list[i]
		switch {
		case status == 0xF0:
			end := bytes.IndexByte(list[i:], 0xF7)
			if end < 0 {
				return out, ssrc, errors.New("unterminated sysex in rtp-midi list")
			}
			out = append(out, append(midi.Message(nil), list[i:i+end+1]...))
			i += end + 1
			running = 0

			continue
		case status >= 0xF8:
			out = append(out, midi.Message{status})
			i++

			continue
		case status >= 0x80:
			i++
			if status < 0xF0 {
				running = status
			} else {
				running = 0
			}
		default:
			if running == 0 {
				return out, ssrc, fmt.Errorf("data byte %#02x without running status", status)
			}
			status = running
		}

		n := DataLen(status)
		if i+n > len(list) {
			return out, ssrc, errors.New("truncated rtp-midi command")
		}
		msg := append(midi.Message{status}, list[i:i+n]...)
		i += n
		out = append(out, msg)
	}

	return out, ssrc, nil
}
