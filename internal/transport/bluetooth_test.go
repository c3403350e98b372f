package transport

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/godbus/dbus/v5"
	"gitlab.com/gomidi/midi/v2"
)

func TestParseBluetoothAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid upper", input: "AA:BB:CC:DD:EE:FF"},
		{name: "valid lower", input: "aa:bb:cc:dd:ee:ff"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "invalid", input: "not-a-mac", wantErr: true},
	}

	for _, tc := range tests {
		_, err := parseBluetoothAddress(tc.input)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestShouldRetryBluetoothConnectWithDiscovery(t *testing.T) {
	err := dbus.NewError("org.freedesktop.DBus.Error.UnknownMethod", []interface{}{
		`Method "Get" with signature "ss" on interface "org.freedesktop.DBus.Properties" doesn't exist`,
	})
	got := shouldRetryBluetoothConnectWithDiscovery(fmt.Errorf("wrapped: %w", err))
	want := runtime.GOOS == "linux"
	if got != want {
		t.Fatalf("unexpected retry decision: got=%v want=%v", got, want)
	}
}

func TestBluetoothConnStateCloseAndError(t *testing.T) {
	state := &bluetoothConnState{
		closed: make(chan struct{}),
	}

	state.setAsyncError(testErr("drain failed"))
	state.markClosed()
	state.markClosed()

	select {
	case <-state.closed:
	default:
		t.Fatalf("expected closed channel to be closed")
	}

	if got := state.closeErr(); got == nil || got.Error() != "drain failed" {
		t.Fatalf("unexpected async error: %v", got)
	}
}

func TestBLEClientReadMessageReturnsAsyncError(t *testing.T) {
	state := &bluetoothConnState{
		closed: make(chan struct{}),
	}
	state.setAsyncError(testErr("notification stream lost"))
	state.markClosed()

	tr := &BLEClientPort{conn: state, queue: newMessageQueue("ble", 4)}
	_, err := tr.ReadMessage(context.Background())
	if err == nil {
		t.Fatalf("expected read error")
	}
	if err.Error() != "notification stream lost" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBLEClientWriteWithoutConnection(t *testing.T) {
	tr := NewBLEClientPort("AA:BB:CC:DD:EE:FF", "")
	if err := tr.WriteMessage(context.Background(), midi.Message{0xF8}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if tr.Connected() {
		t.Fatalf("expected port to report disconnected")
	}
}

func TestSplitBLEMIDIPacketsShortMessage(t *testing.T) {
	packets := splitBLEMIDIPackets(0x0102, midi.Message{0x90, 0x40, 0x7F})
	if len(packets) != 1 {
		t.Fatalf("expected one packet, got %d", len(packets))
	}
	if len(packets[0]) != 5 {
		t.Fatalf("unexpected packet: % X", packets[0])
	}
}

func TestSplitBLEMIDIPacketsLongSysEx(t *testing.T) {
	msg := midi.Message{0xF0}
	for i := range 40 {
		msg = append(msg, byte(i))
	}
	msg = append(msg, 0xF7)

	packets := splitBLEMIDIPackets(0x55, msg)
	if len(packets) < 3 {
		t.Fatalf("expected sysex to span several packets, got %d", len(packets))
	}
	var dec bleMIDIDecoder
	var got []midi.Message
	for i, packet := range packets {
		if len(packet) > maxBLEMIDIPacket {
			t.Fatalf("packet %d exceeds %d bytes: %d", i, maxBLEMIDIPacket, len(packet))
		}
		msgs, err := dec.Decode(packet)
		if err != nil {
			t.Fatalf("decode packet %d: %v", i, err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 1 || string(got[0]) != string(msg) {
		t.Fatalf("unexpected reassembled sysex: %v", got)
	}
}

type testErr string

func (e testErr) Error() string {
	return string(e)
}
