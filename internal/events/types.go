package events

import (
	"encoding/hex"
	"time"

	"github.com/skobkin/scribblego/internal/settings"
)

// ConnectionState describes the port lifecycle state shown in UI.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnStatus is a bus event snapshot of one transport's status.
type ConnStatus struct {
	State         ConnectionState
	Err           string
	Transport     settings.Transport
	TransportName string
	Target        string
	Timestamp     time.Time
}

// MidiFrame is one MIDI message seen on a transport.
type MidiFrame struct {
	Transport settings.Transport
	Bytes     []byte
	At        time.Time
}

func (f MidiFrame) Hex() string {
	return hex.EncodeToString(f.Bytes)
}

type PresetChanged struct {
	Index int
	Name  string
	BPM   float32
}

type SettingsSaved struct {
	Record string
	Bytes  int
}

type RestartRequested struct {
	Reason string
}
