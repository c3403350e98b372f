package settings

import (
	"math"
	"strings"
	"unicode/utf8"
)

// SwitchSettings describes one physical footswitch.
type SwitchSettings struct {
	Mode  SwitchMode   `json:"mode"`
	Press MessageStack `json:"press"`
	Hold  MessageStack `json:"hold"`
}

type BLESettings struct {
	Role BLERole `json:"role"`
}

type WiFiSettings struct {
	Role     WiFiRole `json:"role"`
	StaticIP bool     `json:"staticIp"`
	Address  [4]byte  `json:"address"`
	Gateway  [4]byte  `json:"gateway"`
	Netmask  [4]byte  `json:"netmask"`
}

// GlobalSettings is the device-wide configuration aggregate.
type GlobalSettings struct {
	BootState       uint8  `json:"-"`
	CurrentPreset   uint16 `json:"currentPreset"`
	DeviceName      string `json:"deviceName"`
	ProfileID       uint8  `json:"profileId"`
	PedalModel      uint8  `json:"pedalModel"`
	FirmwareVersion string `json:"firmwareVersion"`

	LightMode       LightMode `json:"lightMode"`
	MainColour      uint16    `json:"mainColour"`
	TextColour      uint16    `json:"textColour"`
	Brightness      uint8     `json:"brightness"`
	LargePresetFont bool      `json:"largePresetFont"`

	MidiChannel  uint8         `json:"midiChannel"`
	GlobalBPM    float32       `json:"globalBpm"`
	MidiOutMode  MidiOutMode   `json:"midiOutPortMode"`
	ClockMode    ClockMode     `json:"clockMode"`
	ClockDisplay ClockDisplay  `json:"clockDisplay"`
	ClockOut     TransportMask `json:"clockOutHandles"`

	Thru          ThruMatrix `json:"thruHandles"`
	PresetUpCC    uint8      `json:"presetUpCc"`
	PresetDownCC  uint8      `json:"presetDownCc"`
	GoToPresetCC  uint8      `json:"goToPresetCc"`
	CustomStackCC uint8      `json:"customStackCc"`

	Switches [NumSwitches]SwitchSettings `json:"switches"`

	Wireless WirelessMode `json:"wirelessType"`
	BLE      BLESettings  `json:"ble"`
	WiFi     WiFiSettings `json:"wifi"`
}

// Preset is one user-configurable slot.
type Preset struct {
	ID                 uint8   `json:"id"`
	Name               string  `json:"name"`
	SecondaryText      string  `json:"secondaryText"`
	ColourOverride     bool    `json:"colourOverride"`
	Colour             uint16  `json:"colour"`
	TextColourOverride bool    `json:"textColourOverride"`
	TextColour         uint16  `json:"textColour"`
	BPM                float32 `json:"bpm"`

	SwitchPress [NumSwitches]MessageStack `json:"switchPress"`
	SwitchHold  [NumSwitches]MessageStack `json:"switchHold"`
	Entry       MessageStack              `json:"entry"`
	Custom      MessageStack              `json:"custom"`
}

// ChannelMatches reports whether an incoming message channel passes the receive filter.
func (g GlobalSettings) ChannelMatches(channel uint8) bool {
	return g.MidiChannel == ChannelOmni || g.MidiChannel == channel
}

// Normalize clamps every field back into its valid domain.
func (g *GlobalSettings) Normalize() {
	if g.CurrentPreset >= NumPresets {
		g.CurrentPreset = 0
	}
	g.DeviceName = truncateUTF8(g.DeviceName, DeviceNameLen)
	g.FirmwareVersion = truncateUTF8(g.FirmwareVersion, FirmwareVersionLen)
	if !g.LightMode.Valid() {
		g.LightMode = LightModeDark
	}
	if g.MidiChannel > ChannelOmni {
		g.MidiChannel = ChannelOmni
	}
	g.GlobalBPM = normalizeBPM(g.GlobalBPM)
	if !g.MidiOutMode.Valid() {
		g.MidiOutMode = MidiOutTypeA
	}
	if !g.ClockMode.Valid() {
		g.ClockMode = ClockModeOff
	}
	if !g.ClockDisplay.Valid() {
		g.ClockDisplay = ClockDisplayBPM
	}
	g.ClockOut &= AllTransports
	g.PresetUpCC = normalizeCC(g.PresetUpCC)
	g.PresetDownCC = normalizeCC(g.PresetDownCC)
	g.GoToPresetCC = normalizeCC(g.GoToPresetCC)
	g.CustomStackCC = normalizeCC(g.CustomStackCC)
	for i := range g.Switches {
		if !g.Switches[i].Mode.Valid() {
			g.Switches[i].Mode = SwitchMidiOnly
		}
	}
	if !g.Wireless.Valid() {
		g.Wireless = WirelessNone
	}
	if !g.BLE.Role.Valid() {
		g.BLE.Role = BLERoleServer
	}
	if !g.WiFi.Role.Valid() {
		g.WiFi.Role = WiFiRoleStation
	}
}

// Normalize clamps preset fields; index is the preset slot the value belongs to.
func (p *Preset) Normalize(index int) {
	p.ID = uint8(index)
	p.Name = truncateUTF8(p.Name, PresetNameLen)
	p.SecondaryText = truncateUTF8(p.SecondaryText, SecondaryTextLen)
	p.BPM = normalizeBPM(p.BPM)
}

func (p Preset) EffectiveColour(g GlobalSettings) uint16 {
	if p.ColourOverride {
		return p.Colour
	}

	return g.MainColour
}

func (p Preset) EffectiveTextColour(g GlobalSettings) uint16 {
	if p.TextColourOverride {
		return p.TextColour
	}

	return g.TextColour
}

func normalizeBPM(bpm float32) float32 {
	v := float64(bpm)
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > MaxBPM {
		return DefaultBPM
	}

	return bpm
}

func normalizeCC(cc uint8) uint8 {
	if cc > 127 {
		return CCUnbound
	}

	return cc
}

func truncateUTF8(s string, maxBytes int) string {
	s = strings.TrimRight(s, "\x00")
	if len(s) <= maxBytes {
		return s
	}
	s = s[:maxBytes]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}

	return s
}
