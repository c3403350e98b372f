package settings

import "fmt"

const DefaultDeviceName = "Scribble"

func DefaultGlobal(firmwareVersion string) GlobalSettings {
	g := GlobalSettings{
		BootState:       0,
		CurrentPreset:   0,
		DeviceName:      DefaultDeviceName,
		FirmwareVersion: firmwareVersion,
		LightMode:       LightModeDark,
		MainColour:      DefaultMainColour,
		TextColour:      DefaultTextColour,
		Brightness:      DefaultBrightness,
		MidiChannel:     ChannelOmni,
		GlobalBPM:       DefaultBPM,
		MidiOutMode:     MidiOutTypeA,
		ClockMode:       ClockModePreset,
		ClockDisplay:    ClockDisplayBPM,
		ClockOut:        0,
		PresetUpCC:      DefaultPresetUpCC,
		PresetDownCC:    DefaultPresetDownCC,
		GoToPresetCC:    DefaultGoToPresetCC,
		CustomStackCC:   CCUnbound,
		Wireless:        WirelessNone,
		BLE:             BLESettings{Role: BLERoleServer},
		WiFi:            WiFiSettings{Role: WiFiRoleStation},
	}
	for _, t := range AllTransportList() {
		g.Thru.Set(t, t, true)
	}
	g.Switches[0].Mode = SwitchPressPresetDown
	g.Switches[1].Mode = SwitchPressPresetUp
	g.Normalize()

	return g
}

func DefaultPreset(index int) Preset {
	p := Preset{
		Name:          fmt.Sprintf("Preset %d", index+1),
		SecondaryText: fmt.Sprintf("Secondary %d", index+1),
		Colour:        DefaultMainColour,
		TextColour:    DefaultTextColour,
		BPM:           DefaultBPM,
	}
	p.Normalize(index)

	return p
}

func DefaultPresets() *[NumPresets]Preset {
	var presets [NumPresets]Preset
	for i := range presets {
		presets[i] = DefaultPreset(i)
	}

	return &presets
}

// Defaults populates raw record buffers with factory values.
type Defaults struct {
	FirmwareVersion string
}

func (d Defaults) PopulateGlobal(buf []byte) error {
	return EncodeGlobal(DefaultGlobal(d.FirmwareVersion), buf)
}

func (d Defaults) PopulatePresets(buf []byte) error {
	return EncodePresets(DefaultPresets(), buf)
}
