package settings

import (
	"encoding/json"
	"errors"
	"fmt"
)

const MaxStackMessages = 8

var (
	ErrStackFull  = errors.New("message stack is full")
	ErrZeroStatus = errors.New("status byte 0 marks an unused slot")
)

// MidiMessage is a stored outgoing message with its destination transports.
type MidiMessage struct {
	Destinations TransportMask `json:"destinations"`
	Status       uint8         `json:"status"`
	Data1        uint8         `json:"data1"`
	Data2        uint8         `json:"data2"`
}

func (m MidiMessage) Unused() bool {
	return m.Status == 0
}

func (m MidiMessage) String() string {
	return fmt.Sprintf("%02X %02X %02X -> %04b", m.Status, m.Data1, m.Data2, m.Destinations)
}

// MessageStack is an ordered list of at most MaxStackMessages messages.
// Every stored message has a non-zero status byte.
type MessageStack struct {
	n     uint8
	items [MaxStackMessages]MidiMessage
}

func NewMessageStack(msgs ...MidiMessage) (MessageStack, error) {
	var s MessageStack
	for _, msg := range msgs {
		if err := s.Push(msg); err != nil {
			return MessageStack{}, err
		}
	}

	return s, nil
}

// StackFromSlots builds a stack from sentinel-terminated slots: scanning stops at the
// first unused slot or at capacity, whichever comes first.
func StackFromSlots(slots []MidiMessage) MessageStack {
	var s MessageStack
	for i := 0; i < len(slots) && i < MaxStackMessages; i++ {
		if slots[i].Unused() {
			break
		}
		s.items[i] = slots[i]
		s.n++
	}

	return s
}

func (s MessageStack) Len() int {
	return int(s.n)
}

func (s MessageStack) At(i int) (MidiMessage, bool) {
	if i < 0 || i >= int(s.n) {
		return MidiMessage{}, false
	}

	return s.items[i], true
}

func (s *MessageStack) Push(msg MidiMessage) error {
	if msg.Unused() {
		return ErrZeroStatus
	}
	if int(s.n) >= MaxStackMessages {
		return ErrStackFull
	}
	s.items[s.n] = msg
	s.n++

	return nil
}

// Each calls fn for stored messages in order.
func (s MessageStack) Each(fn func(MidiMessage)) {
	for i := 0; i < int(s.n); i++ {
		fn(s.items[i])
	}
}

func (s MessageStack) Messages() []MidiMessage {
	out := make([]MidiMessage, s.n)
	copy(out, s.items[:s.n])

	return out
}

// slots returns the fixed-capacity slot array with unused slots zeroed.
func (s MessageStack) slots() [MaxStackMessages]MidiMessage {
	var out [MaxStackMessages]MidiMessage
	copy(out[:], s.items[:s.n])

	return out
}

func (s MessageStack) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Messages())
}

func (s *MessageStack) UnmarshalJSON(raw []byte) error {
	var msgs []MidiMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return err
	}
	next, err := NewMessageStack(msgs...)
	if err != nil {
		return fmt.Errorf("decode message stack: %w", err)
	}
	*s = next

	return nil
}
