package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFramePayload bounds a single device-API frame.
const MaxFramePayload = 8192

// frameSync opens every device-API frame. A big-endian uint16 payload length follows.
var frameSync = [2]byte{0x94, 0xC3}

// appendFrame appends one framed payload to dst.
func appendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxFramePayload {
		return dst, fmt.Errorf("invalid payload size: %d", len(payload))
	}
	dst = append(dst, frameSync[0], frameSync[1])
	// #nosec G115 -- length is bounded by MaxFramePayload above.
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))

	return append(dst, payload...), nil
}

// frameDecoder pulls frames out of a byte stream, skipping anything between them.
type frameDecoder struct {
	next func() (byte, error)
}

func newFrameDecoder(r io.Reader) frameDecoder {
	if br, ok := r.(io.ByteReader); ok {
		return frameDecoder{next: br.ReadByte}
	}

	return frameDecoder{next: func() (byte, error) {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}

		return b[0], nil
	}}
}

func (d frameDecoder) decode() ([]byte, error) {
	if err := d.sync(); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	for i := range lenBuf {
		b, err := d.next()
		if err != nil {
			return nil, fmt.Errorf("read frame length: %w", err)
		}
		lenBuf[i] = b
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln == 0 || ln > MaxFramePayload {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	payload := make([]byte, ln)
	for i := range payload {
		b, err := d.next()
		if err != nil {
			return nil, fmt.Errorf("read frame payload (%d of %d bytes): %w", i, ln, err)
		}
		payload[i] = b
	}

	return payload, nil
}

// sync consumes bytes up to and including the next sync pair.
func (d frameDecoder) sync() error {
	var prev byte
	for {
		b, err := d.next()
		if err != nil {
			return fmt.Errorf("read frame sync: %w", err)
		}
		if prev == frameSync[0] && b == frameSync[1] {
			return nil
		}
		prev = b
	}
}
