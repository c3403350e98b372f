package settings

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	stackRecordSize  = 1 + MaxStackMessages*4
	switchRecordSize = 1 + 2*stackRecordSize

	// GlobalRecordSize is the byte length of the persisted global record.
	GlobalRecordSize = 1 + 2 + DeviceNameLen + 1 + 1 + FirmwareVersionLen + // identity
		1 + 2 + 2 + 1 + 1 + // ui
		1 + 4 + 1 + 1 + 1 + 1 + // midi
		NumTransports*NumTransports + 4 + // routing
		NumSwitches*switchRecordSize +
		1 + 1 + 1 + 1 + 4 + 4 + 4 // connectivity

	// PresetRecordSize is the byte length of one preset inside the presets record.
	PresetRecordSize = PresetNameLen + SecondaryTextLen + 1 + 1 + 2 + 1 + 2 + 4 +
		(2*NumSwitches+2)*stackRecordSize

	PresetsRecordSize = NumPresets * PresetRecordSize
)

// EncodeGlobal writes g into buf using the fixed record layout. BootState is stored at BootFlagOffset.
func EncodeGlobal(g GlobalSettings, buf []byte) error {
	if len(buf) != GlobalRecordSize {
		return fmt.Errorf("global buffer size %d, want %d", len(buf), GlobalRecordSize)
	}
	w := layoutWriter{buf: buf}
	w.u8(g.BootState)
	w.u16(g.CurrentPreset)
	w.str(g.DeviceName, DeviceNameLen)
	w.u8(g.ProfileID)
	w.u8(g.PedalModel)
	w.str(g.FirmwareVersion, FirmwareVersionLen)

	w.u8(uint8(g.LightMode))
	w.u16(g.MainColour)
	w.u16(g.TextColour)
	w.u8(g.Brightness)
	w.bool(g.LargePresetFont)

	w.u8(g.MidiChannel)
	w.f32(g.GlobalBPM)
	w.u8(uint8(g.MidiOutMode))
	w.u8(uint8(g.ClockMode))
	w.u8(uint8(g.ClockDisplay))
	w.u8(uint8(g.ClockOut))

	for src := 0; src < NumTransports; src++ {
		for dst := 0; dst < NumTransports; dst++ {
			w.bool(g.Thru[src][dst])
		}
	}
	w.u8(g.PresetUpCC)
	w.u8(g.PresetDownCC)
	w.u8(g.GoToPresetCC)
	w.u8(g.CustomStackCC)

	for _, sw := range g.Switches {
		w.u8(uint8(sw.Mode))
		w.stack(sw.Press)
		w.stack(sw.Hold)
	}

	w.u8(uint8(g.Wireless))
	w.u8(uint8(g.BLE.Role))
	w.u8(uint8(g.WiFi.Role))
	w.bool(g.WiFi.StaticIP)
	w.raw(g.WiFi.Address[:])
	w.raw(g.WiFi.Gateway[:])
	w.raw(g.WiFi.Netmask[:])

	return w.done()
}

// DecodeGlobal reads a global record. Out-of-domain values are clamped to safe defaults.
func DecodeGlobal(buf []byte) (GlobalSettings, error) {
	if len(buf) != GlobalRecordSize {
		return GlobalSettings{}, fmt.Errorf("global buffer size %d, want %d", len(buf), GlobalRecordSize)
	}
	r := layoutReader{buf: buf}
	var g GlobalSettings
	g.BootState = r.u8()
	g.CurrentPreset = r.u16()
	g.DeviceName = r.str(DeviceNameLen)
	g.ProfileID = r.u8()
	g.PedalModel = r.u8()
	g.FirmwareVersion = r.str(FirmwareVersionLen)

	g.LightMode = LightMode(r.u8())
	g.MainColour = r.u16()
	g.TextColour = r.u16()
	g.Brightness = r.u8()
	g.LargePresetFont = r.bool()

	g.MidiChannel = r.u8()
	g.GlobalBPM = r.f32()
	g.MidiOutMode = MidiOutMode(r.u8())
	g.ClockMode = ClockMode(r.u8())
	g.ClockDisplay = ClockDisplay(r.u8())
	g.ClockOut = TransportMask(r.u8())

	for src := 0; src < NumTransports; src++ {
		for dst := 0; dst < NumTransports; dst++ {
			g.Thru[src][dst] = r.bool()
		}
	}
	g.PresetUpCC = r.u8()
	g.PresetDownCC = r.u8()
	g.GoToPresetCC = r.u8()
	g.CustomStackCC = r.u8()

	for i := range g.Switches {
		g.Switches[i].Mode = SwitchMode(r.u8())
		g.Switches[i].Press = r.stack()
		g.Switches[i].Hold = r.stack()
	}

	g.Wireless = WirelessMode(r.u8())
	g.BLE.Role = BLERole(r.u8())
	g.WiFi.Role = WiFiRole(r.u8())
	g.WiFi.StaticIP = r.bool()
	r.raw(g.WiFi.Address[:])
	r.raw(g.WiFi.Gateway[:])
	r.raw(g.WiFi.Netmask[:])

	if err := r.done(); err != nil {
		return GlobalSettings{}, err
	}
	g.Normalize()

	return g, nil
}

func EncodePresets(presets *[NumPresets]Preset, buf []byte) error {
	if len(buf) != PresetsRecordSize {
		return fmt.Errorf("presets buffer size %d, want %d", len(buf), PresetsRecordSize)
	}
	for i := range presets {
		if err := encodePreset(presets[i], buf[i*PresetRecordSize:(i+1)*PresetRecordSize]); err != nil {
			return fmt.Errorf("encode preset %d: %w", i, err)
		}
	}

	return nil
}

func DecodePresets(buf []byte) (*[NumPresets]Preset, error) {
	if len(buf) != PresetsRecordSize {
		return nil, fmt.Errorf("presets buffer size %d, want %d", len(buf), PresetsRecordSize)
	}
	var presets [NumPresets]Preset
	for i := range presets {
		p, err := decodePreset(buf[i*PresetRecordSize : (i+1)*PresetRecordSize])
		if err != nil {
			return nil, fmt.Errorf("decode preset %d: %w", i, err)
		}
		p.Normalize(i)
		presets[i] = p
	}

	return &presets, nil
}

func encodePreset(p Preset, buf []byte) error {
	w := layoutWriter{buf: buf}
	w.str(p.Name, PresetNameLen)
	w.str(p.SecondaryText, SecondaryTextLen)
	w.u8(p.ID)
	w.bool(p.ColourOverride)
	w.u16(p.Colour)
	w.bool(p.TextColourOverride)
	w.u16(p.TextColour)
	w.f32(p.BPM)
	for i := 0; i < NumSwitches; i++ {
		w.stack(p.SwitchPress[i])
		w.stack(p.SwitchHold[i])
	}
	w.stack(p.Entry)
	w.stack(p.Custom)

	return w.done()
}

func decodePreset(buf []byte) (Preset, error) {
	r := layoutReader{buf: buf}
	var p Preset
	p.Name = r.str(PresetNameLen)
	p.SecondaryText = r.str(SecondaryTextLen)
	p.ID = r.u8()
	p.ColourOverride = r.bool()
	p.Colour = r.u16()
	p.TextColourOverride = r.bool()
	p.TextColour = r.u16()
	p.BPM = r.f32()
	for i := 0; i < NumSwitches; i++ {
		p.SwitchPress[i] = r.stack()
		p.SwitchHold[i] = r.stack()
	}
	p.Entry = r.stack()
	p.Custom = r.stack()

	return p, r.done()
}

type layoutWriter struct {
	buf []byte
	off int
	err error
}

func (w *layoutWriter) reserve(n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.off+n > len(w.buf) {
		w.err = fmt.Errorf("record overflow at offset %d (+%d), size %d", w.off, n, len(w.buf))
		return nil
	}
	out := w.buf[w.off : w.off+n]
	w.off += n

	return out
}

func (w *layoutWriter) u8(v uint8) {
	if b := w.reserve(1); b != nil {
		b[0] = v
	}
}

func (w *layoutWriter) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *layoutWriter) u16(v uint16) {
	if b := w.reserve(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func (w *layoutWriter) f32(v float32) {
	if b := w.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	}
}

func (w *layoutWriter) raw(v []byte) {
	if b := w.reserve(len(v)); b != nil {
		copy(b, v)
	}
}

func (w *layoutWriter) str(v string, size int) {
	b := w.reserve(size)
	if b == nil {
		return
	}
	clear(b)
	copy(b, truncateUTF8(v, size))
}

func (w *layoutWriter) stack(s MessageStack) {
	w.u8(uint8(s.Len()))
	for _, msg := range s.slots() {
		w.u8(uint8(msg.Destinations))
		w.u8(msg.Status)
		w.u8(msg.Data1)
		w.u8(msg.Data2)
	}
}

func (w *layoutWriter) done() error {
	if w.err != nil {
		return w.err
	}
	if w.off != len(w.buf) {
		return fmt.Errorf("record layout wrote %d of %d bytes", w.off, len(w.buf))
	}

	return nil
}

type layoutReader struct {
	buf []byte
	off int
	err error
}

func (r *layoutReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("record underflow at offset %d (+%d), size %d", r.off, n, len(r.buf))
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n

	return out
}

func (r *layoutReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}

	return 0
}

func (r *layoutReader) bool() bool {
	return r.u8() != 0
}

func (r *layoutReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}

	return 0
}

func (r *layoutReader) f32() float32 {
	if b := r.take(4); b != nil {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}

	return 0
}

func (r *layoutReader) raw(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

func (r *layoutReader) str(size int) string {
	b := r.take(size)
	if b == nil {
		return ""
	}
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}

	return truncateUTF8(string(b[:end]), size)
}

// stack reads a stored stack. The explicit count is honoured only up to the first unused slot.
func (r *layoutReader) stack() MessageStack {
	count := int(r.u8())
	var slots [MaxStackMessages]MidiMessage
	for i := range slots {
		slots[i] = MidiMessage{
			Destinations: TransportMask(r.u8()) & AllTransports,
			Status:       r.u8(),
			Data1:        r.u8(),
			Data2:        r.u8(),
		}
	}
	if count > MaxStackMessages {
		count = MaxStackMessages
	}

	return StackFromSlots(slots[:count])
}

func (r *layoutReader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("record layout read %d of %d bytes", r.off, len(r.buf))
	}

	return nil
}
