package bluetoothutil

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// BLE-MIDI GATT identifiers.
var (
	midiServiceUUID = mustParseUUID("03B80E5A-EDE8-4B33-A751-6CE34EC4C700")
	midiIOUUID      = mustParseUUID("7772E5DB-3868-4112-A1A9-F2669D106BF3")
)

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}

	return uuid
}

func MIDIServiceUUID() bluetooth.UUID {
	return midiServiceUUID
}

// MIDIIOUUID is the single read/write-without-response/notify characteristic of the MIDI service.
func MIDIIOUUID() bluetooth.UUID {
	return midiIOUUID
}
