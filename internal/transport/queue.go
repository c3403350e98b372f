package transport

import (
	"context"

	"gitlab.com/gomidi/midi/v2"
)

const defaultMessageQueueSize = 256

// messageQueue buffers inbound messages between a driver callback and ReadMessage.
// When full, the oldest message is dropped.
type messageQueue struct {
	name string
	ch   chan midi.Message
}

func newMessageQueue(name string, size int) *messageQueue {
	if size <= 0 {
		size = defaultMessageQueueSize
	}

	return &messageQueue{name: name, ch: make(chan midi.Message, size)}
}

func (q *messageQueue) push(msg midi.Message) {
	msg = append(midi.Message(nil), msg...)
	select {
	case q.ch <- msg:
		return
	default:
	}
	portLogger(q.name).Warn("message queue full, dropping oldest message", "capacity", cap(q.ch))
	select {
	case <-q.ch:
	default:
	}
	select {
	case q.ch <- msg:
	default:
	}
}

func (q *messageQueue) pop(ctx context.Context, closed <-chan struct{}) (midi.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-closed:
		return nil, ErrNotConnected
	case msg := <-q.ch:
		return msg, nil
	}
}
