package settings

import (
	"fmt"
	"strings"
)

const (
	NumPresets      = 128
	NumSwitches     = 2
	ConfiguredValue = 114
	BootFlagOffset  = 0

	ChannelOmni uint8 = 16
	CCUnbound   uint8 = 0xFF

	DefaultPresetUpCC   uint8 = 0x01
	DefaultPresetDownCC uint8 = 0x02
	DefaultGoToPresetCC uint8 = 0x03

	DefaultBPM = 120.0
	MaxBPM     = 300.0

	DefaultMainColour uint16 = 0xa69b
	DefaultTextColour uint16 = 0xffff
	DefaultBrightness uint8  = 200

	DeviceNameLen      = 32
	PresetNameLen      = 16
	SecondaryTextLen   = 16
	FirmwareVersionLen = 16
)

// Transport indexes one MIDI interface of the pedal.
type Transport uint8

const (
	TransportTRS Transport = iota
	TransportBLE
	TransportWiFi
	TransportUSB

	NumTransports = 4
)

var transportNames = [NumTransports]string{"trs", "ble", "wifi", "usb"}

func (t Transport) String() string {
	if int(t) < NumTransports {
		return transportNames[t]
	}

	return fmt.Sprintf("transport(%d)", uint8(t))
}

func (t Transport) Valid() bool {
	return int(t) < NumTransports
}

func (t Transport) Mask() TransportMask {
	if !t.Valid() {
		return 0
	}

	return TransportMask(1) << t
}

// AllTransportList returns every transport in index order.
func AllTransportList() []Transport {
	out := make([]Transport, 0, NumTransports)
	for i := 0; i < NumTransports; i++ {
		out = append(out, Transport(i))
	}

	return out
}

// TransportMask has bit i set when transport i is selected.
type TransportMask uint8

const AllTransports TransportMask = 1<<NumTransports - 1

func MaskOf(transports ...Transport) TransportMask {
	var m TransportMask
	for _, t := range transports {
		m |= t.Mask()
	}

	return m
}

func (m TransportMask) Has(t Transport) bool {
	return t.Valid() && m&t.Mask() != 0
}

func (m TransportMask) Transports() []Transport {
	out := make([]Transport, 0, NumTransports)
	for _, t := range AllTransportList() {
		if m.Has(t) {
			out = append(out, t)
		}
	}

	return out
}

// ThruMatrix holds forward-enabled flags indexed by [source][destination].
// The diagonal toggles same-port thru.
type ThruMatrix [NumTransports][NumTransports]bool

func (m ThruMatrix) Enabled(src, dst Transport) bool {
	if !src.Valid() || !dst.Valid() {
		return false
	}

	return m[src][dst]
}

func (m *ThruMatrix) Set(src, dst Transport, enabled bool) {
	if !src.Valid() || !dst.Valid() {
		return
	}
	m[src][dst] = enabled
}

func (m ThruMatrix) SamePort(t Transport) bool {
	return m.Enabled(t, t)
}

// Destinations returns the transports a message from src is forwarded to, excluding src itself.
func (m ThruMatrix) Destinations(src Transport) TransportMask {
	var out TransportMask
	for _, dst := range AllTransportList() {
		if dst != src && m.Enabled(src, dst) {
			out |= dst.Mask()
		}
	}

	return out
}

type LightMode uint8

const (
	LightModeDark LightMode = iota
	LightModeLight
	LightModeAuto
)

type MidiOutMode uint8

const (
	MidiOutTypeA MidiOutMode = iota
	MidiOutTypeB
)

type ClockMode uint8

const (
	ClockModePreset ClockMode = iota
	ClockModeExternal
	ClockModeGlobal
	ClockModeOff
)

// Internal reports whether the mode drives the pulse generator from a stored tempo.
func (m ClockMode) Internal() bool {
	return m == ClockModePreset || m == ClockModeGlobal
}

type ClockDisplay uint8

const (
	ClockDisplayBPM ClockDisplay = iota
	ClockDisplayMilliseconds
	ClockDisplayIndicator
)

type SwitchMode uint8

const (
	SwitchPressPresetUp SwitchMode = iota
	SwitchPressPresetDown
	SwitchHoldPresetUp
	SwitchHoldPresetDown
	SwitchMidiOnly
)

type WirelessMode uint8

const (
	WirelessNone WirelessMode = iota
	WirelessBLE
	WirelessWiFi
)

type BLERole uint8

const (
	BLERoleServer BLERole = iota
	BLERoleClient
)

type WiFiRole uint8

const (
	WiFiRoleStation WiFiRole = iota
	WiFiRoleAccessPoint
)

var (
	lightModeNames    = []string{"dark", "light", "auto"}
	midiOutModeNames  = []string{"midiOutA", "midiOutB"}
	clockModeNames    = []string{"preset", "external", "global", "none"}
	clockDisplayNames = []string{"bpm", "ms", "indicator"}
	switchModeNames   = []string{"pressUp", "pressDown", "holdUp", "holdDown", "midiOnly"}
	wirelessNames     = []string{"none", "ble", "wifi"}
	bleRoleNames      = []string{"server", "client"}
	wifiRoleNames     = []string{"station", "ap"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}

	return fmt.Sprintf("unknown(%d)", v)
}

func parseEnum(kind string, names []string, raw []byte) (uint8, error) {
	normalized := strings.TrimSpace(string(raw))
	for i, name := range names {
		if strings.EqualFold(name, normalized) {
			return uint8(i), nil
		}
	}

	return 0, fmt.Errorf("unknown %s: %q", kind, normalized)
}

func (m LightMode) Valid() bool    { return int(m) < len(lightModeNames) }
func (m LightMode) String() string { return enumName(lightModeNames, uint8(m)) }
func (m LightMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *LightMode) UnmarshalText(raw []byte) error {
	v, err := parseEnum("light mode", lightModeNames, raw)
	*m = LightMode(v)
	return err
}

func (m MidiOutMode) Valid() bool    { return int(m) < len(midiOutModeNames) }
func (m MidiOutMode) String() string { return enumName(midiOutModeNames, uint8(m)) }
func (m MidiOutMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *MidiOutMode) UnmarshalText(raw []byte) error {
	v, err := parseEnum("midi out mode", midiOutModeNames, raw)
	*m = MidiOutMode(v)
	return err
}

func (m ClockMode) Valid() bool    { return int(m) < len(clockModeNames) }
func (m ClockMode) String() string { return enumName(clockModeNames, uint8(m)) }
func (m ClockMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *ClockMode) UnmarshalText(raw []byte) error {
	v, err := parseEnum("clock mode", clockModeNames, raw)
	*m = ClockMode(v)
	return err
}

func (d ClockDisplay) Valid() bool    { return int(d) < len(clockDisplayNames) }
func (d ClockDisplay) String() string { return enumName(clockDisplayNames, uint8(d)) }
func (d ClockDisplay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
func (d *ClockDisplay) UnmarshalText(raw []byte) error {
	v, err := parseEnum("clock display", clockDisplayNames, raw)
	*d = ClockDisplay(v)
	return err
}

func (m SwitchMode) Valid() bool    { return int(m) < len(switchModeNames) }
func (m SwitchMode) String() string { return enumName(switchModeNames, uint8(m)) }
func (m SwitchMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *SwitchMode) UnmarshalText(raw []byte) error {
	v, err := parseEnum("switch mode", switchModeNames, raw)
	*m = SwitchMode(v)
	return err
}

func (m WirelessMode) Valid() bool    { return int(m) < len(wirelessNames) }
func (m WirelessMode) String() string { return enumName(wirelessNames, uint8(m)) }
func (m WirelessMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
func (m *WirelessMode) UnmarshalText(raw []byte) error {
	v, err := parseEnum("wireless mode", wirelessNames, raw)
	*m = WirelessMode(v)
	return err
}

// Transport returns the MIDI interface served by the wireless mode.
func (m WirelessMode) Transport() (Transport, bool) {
	switch m {
	case WirelessBLE:
		return TransportBLE, true
	case WirelessWiFi:
		return TransportWiFi, true
	default:
		return 0, false
	}
}

func (r BLERole) Valid() bool    { return int(r) < len(bleRoleNames) }
func (r BLERole) String() string { return enumName(bleRoleNames, uint8(r)) }
func (r BLERole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
func (r *BLERole) UnmarshalText(raw []byte) error {
	v, err := parseEnum("ble role", bleRoleNames, raw)
	*r = BLERole(v)
	return err
}

func (r WiFiRole) Valid() bool    { return int(r) < len(wifiRoleNames) }
func (r WiFiRole) String() string { return enumName(wifiRoleNames, uint8(r)) }
func (r WiFiRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
func (r *WiFiRole) UnmarshalText(raw []byte) error {
	v, err := parseEnum("wifi role", wifiRoleNames, raw)
	*r = WiFiRole(v)
	return err
}
