package deviceapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/persistence"
	"github.com/skobkin/scribblego/internal/settings"
)

type fakeNavigator struct {
	model  *settings.Model
	resets int
}

func (n *fakeNavigator) PresetUp(context.Context)   { n.model.StepPreset(1) }
func (n *fakeNavigator) PresetDown(context.Context) { n.model.StepPreset(-1) }
func (n *fakeNavigator) GoToPreset(_ context.Context, index int) bool {
	return n.model.SetCurrentPreset(index)
}

func (n *fakeNavigator) FactoryReset(context.Context) error {
	n.resets++

	return &persistence.RestartError{Reason: "settings reset"}
}

type fakeRecords struct {
	global, presets, factory int
	err                      error
}

func (r *fakeRecords) SaveGlobal(context.Context) error {
	r.global++

	return r.err
}

func (r *fakeRecords) SavePresets(context.Context) error {
	r.presets++

	return r.err
}

func (r *fakeRecords) ResetToFactory(context.Context) error {
	r.factory++

	return &persistence.RestartError{Reason: "factory reset"}
}

type fakeClock struct {
	applies, tempos int
}

func (c *fakeClock) Apply()    { c.applies++ }
func (c *fakeClock) SetTempo() { c.tempos++ }
func (c *fakeClock) BPM() int  { return -1 }

type fakeWireless struct {
	model *settings.Model
	modes []settings.WirelessMode
}

func (w *fakeWireless) SetWireless(_ context.Context, mode settings.WirelessMode) error {
	w.modes = append(w.modes, mode)
	w.model.UpdateGlobal(func(g *settings.GlobalSettings) { g.Wireless = mode })

	return nil
}

type fakeRestarter struct {
	reasons []string
}

func (r *fakeRestarter) RequestRestart(reason string) {
	r.reasons = append(r.reasons, reason)
}

type fakePorts []settings.Transport

func (p fakePorts) Connected() []settings.Transport { return p }

type apiFixture struct {
	model    *settings.Model
	handler  *Handler
	nav      *fakeNavigator
	records  *fakeRecords
	clock    *fakeClock
	wireless *fakeWireless
	restart  *fakeRestarter
	signals  *events.Signals
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	model := settings.NewModel(settings.DefaultGlobal("1.2.0"), settings.DefaultPresets())
	f := &apiFixture{
		model:    model,
		nav:      &fakeNavigator{model: model},
		records:  &fakeRecords{},
		clock:    &fakeClock{},
		wireless: &fakeWireless{model: model},
		restart:  &fakeRestarter{},
		signals:  events.NewSignals(),
	}
	h, err := NewHandler(Deps{
		Model:     model,
		Navigator: f.nav,
		Records:   f.records,
		Clock:     f.clock,
		Wireless:  f.wireless,
		Restarter: f.restart,
		Ports:     fakePorts{settings.TransportTRS, settings.TransportUSB},
		Signals:   f.signals,
	}, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	f.handler = h

	return f
}

func (f *apiFixture) call(t *testing.T, raw string) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(f.handler.HandleFrame(context.Background(), []byte(raw)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return resp
}

func TestNavigationCommands(t *testing.T) {
	f := newAPIFixture(t)
	if resp := f.call(t, `{"command":"presetUp"}`); !resp.OK {
		t.Fatalf("presetUp failed: %s", resp.Error)
	}
	if resp := f.call(t, `{"command":"bankUp"}`); !resp.OK {
		t.Fatalf("bankUp failed: %s", resp.Error)
	}
	if got := f.model.CurrentPreset(); got != 2 {
		t.Fatalf("expected preset 2, got %d", got)
	}
	if resp := f.call(t, `{"command":"goToBank","index":40}`); !resp.OK {
		t.Fatalf("goToBank failed: %s", resp.Error)
	}
	if resp := f.call(t, `{"command":"goToPreset","index":128}`); resp.OK {
		t.Fatalf("expected out-of-range index to fail")
	}
	if resp := f.call(t, `{"command":"goToPreset"}`); resp.OK {
		t.Fatalf("expected missing index to fail")
	}
	if got := f.model.CurrentPreset(); got != 40 {
		t.Fatalf("expected preset 40, got %d", got)
	}
}

func TestSaveCommands(t *testing.T) {
	f := newAPIFixture(t)
	f.call(t, `{"command":"saveGlobal"}`)
	f.call(t, `{"command":"savePresets"}`)
	if f.records.global != 1 || f.records.presets != 1 {
		t.Fatalf("unexpected saves: %+v", f.records)
	}

	f.records.err = &persistence.ShortIOError{Op: "write", Record: "presets", Expected: 10, Actual: 4}
	if resp := f.call(t, `{"command":"savePresets"}`); resp.OK || resp.Error == "" {
		t.Fatalf("expected short write to surface, got %+v", resp)
	}
}

func TestResetCommandsReportRestart(t *testing.T) {
	f := newAPIFixture(t)
	if resp := f.call(t, `{"command":"factoryReset"}`); !resp.OK {
		t.Fatalf("factoryReset failed: %s", resp.Error)
	}
	if resp := f.call(t, `{"command":"resetAllSettings"}`); !resp.OK {
		t.Fatalf("resetAllSettings failed: %s", resp.Error)
	}
	if f.nav.resets != 1 || f.records.factory != 1 {
		t.Fatalf("unexpected reset calls: nav=%d records=%d", f.nav.resets, f.records.factory)
	}
}

func TestRestartAndBootloader(t *testing.T) {
	f := newAPIFixture(t)
	f.call(t, `{"command":"restart"}`)
	if len(f.restart.reasons) != 1 {
		t.Fatalf("expected restart request")
	}
	resp := f.call(t, `{"command":"enterBootloader"}`)
	if resp.OK || resp.Error != ErrBootloaderUnsupported.Error() {
		t.Fatalf("unexpected bootloader response: %+v", resp)
	}
}

func TestSetGlobalPartialUpdate(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.call(t, `{"command":"setGlobal","global":{"midiChannel":3,"clockMode":"global","globalBpm":500,"firmwareVersion":"9.9.9","wirelessType":"ble"}}`)
	if !resp.OK {
		t.Fatalf("setGlobal failed: %s", resp.Error)
	}
	g := f.model.Global()
	if g.MidiChannel != 3 || g.ClockMode != settings.ClockModeGlobal {
		t.Fatalf("fields not applied: channel=%d clock=%s", g.MidiChannel, g.ClockMode)
	}
	if g.GlobalBPM != settings.DefaultBPM {
		t.Fatalf("expected out-of-range bpm to fall back to default, got %v", g.GlobalBPM)
	}
	if g.FirmwareVersion != "1.2.0" {
		t.Fatalf("firmware version must not be writable, got %q", g.FirmwareVersion)
	}
	if g.DeviceName != settings.DefaultDeviceName {
		t.Fatalf("untouched fields must keep their values, got %q", g.DeviceName)
	}
	if f.clock.applies != 1 {
		t.Fatalf("expected clock mode to be re-applied")
	}
	if len(f.wireless.modes) != 1 || f.wireless.modes[0] != settings.WirelessBLE {
		t.Fatalf("expected wireless switch to ble, got %v", f.wireless.modes)
	}
}

func TestSetGlobalKeepsConcurrentPresetChange(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"command":"setGlobal","global":{"midiChannel":5,"deviceName":"` + strings.Repeat("x", 4<<20) + `"}}`

	done := make(chan []byte, 1)
	go func() {
		done <- f.handler.HandleFrame(context.Background(), []byte(body))
	}()
	if !f.nav.GoToPreset(context.Background(), 42) {
		t.Fatalf("go to preset failed")
	}
	var resp Response
	if err := json.Unmarshal(<-done, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK {
		t.Fatalf("setGlobal failed: %s", resp.Error)
	}

	g := f.model.Global()
	if g.CurrentPreset != 42 {
		t.Fatalf("current preset = %d, setGlobal must not revert navigation", g.CurrentPreset)
	}
	if g.MidiChannel != 5 {
		t.Fatalf("midi channel not applied: %d", g.MidiChannel)
	}
}

func TestSetGlobalWithoutWirelessKeepsMode(t *testing.T) {
	f := newAPIFixture(t)
	f.model.UpdateGlobal(func(g *settings.GlobalSettings) { g.Wireless = settings.WirelessBLE })
	if resp := f.call(t, `{"command":"setGlobal","global":{"midiChannel":2}}`); !resp.OK {
		t.Fatalf("setGlobal failed: %s", resp.Error)
	}
	if len(f.wireless.modes) != 0 {
		t.Fatalf("wireless must not be switched, got %v", f.wireless.modes)
	}
	if f.model.Global().Wireless != settings.WirelessBLE {
		t.Fatalf("wireless mode changed")
	}
}

func TestSetGlobalRejectsUnknownEnum(t *testing.T) {
	f := newAPIFixture(t)
	if resp := f.call(t, `{"command":"setGlobal","global":{"clockMode":"sometimes"}}`); resp.OK {
		t.Fatalf("expected unknown clock mode to fail")
	}
	if f.model.Global().ClockMode != settings.ClockModePreset {
		t.Fatalf("failed update must not change the model")
	}
}

func TestGetAndSetPreset(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.call(t, `{"command":"setPreset","index":0,"preset":{"name":"Verse","bpm":90}}`)
	if !resp.OK {
		t.Fatalf("setPreset failed: %s", resp.Error)
	}
	p, _ := f.model.Preset(0)
	if p.Name != "Verse" || p.BPM != 90 || p.SecondaryText != "Secondary 1" {
		t.Fatalf("unexpected preset: %+v", p)
	}
	if f.clock.tempos != 1 || !f.signals.Take(events.KindPresetChanged) {
		t.Fatalf("editing the active preset must refresh tempo and display")
	}

	resp = f.call(t, `{"command":"getPreset","index":0}`)
	data, _ := json.Marshal(resp.Data)
	var got settings.Preset
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode preset: %v", err)
	}
	if got.Name != "Verse" {
		t.Fatalf("unexpected preset name: %q", got.Name)
	}
	if resp := f.call(t, `{"command":"getPreset","index":-1}`); resp.OK {
		t.Fatalf("expected out-of-range getPreset to fail")
	}
}

func TestWirelessAliases(t *testing.T) {
	f := newAPIFixture(t)
	f.call(t, `{"command":"turnOnBLE"}`)
	f.call(t, `{"command":"turnOffBLE"}`)
	f.call(t, `{"command":"setWireless","mode":"wifi"}`)
	want := []settings.WirelessMode{settings.WirelessBLE, settings.WirelessNone, settings.WirelessWiFi}
	if len(f.wireless.modes) != len(want) {
		t.Fatalf("unexpected modes: %v", f.wireless.modes)
	}
	for i := range want {
		if f.wireless.modes[i] != want[i] {
			t.Fatalf("mode %d: got %v want %v", i, f.wireless.modes[i], want[i])
		}
	}
}

func TestGetState(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.call(t, `{"command":"getState"}`)
	data, _ := json.Marshal(resp.Data)
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.FirmwareVersion != "1.2.0" || st.BPM != int(settings.DefaultBPM) || len(st.Connected) != 2 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestMalformedAndUnknownRequests(t *testing.T) {
	f := newAPIFixture(t)
	if resp := f.call(t, `{not json`); resp.OK || resp.Error == "" {
		t.Fatalf("expected decode error, got %+v", resp)
	}
	if resp := f.call(t, `{"command":"selfDestruct"}`); resp.OK {
		t.Fatalf("expected unknown command to fail")
	}
}

func TestNewHandlerRequiresDeps(t *testing.T) {
	if _, err := NewHandler(Deps{}, nil); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRestartErrorIsSuccess(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.handler.Handle(context.Background(), Request{Command: CmdFactoryReset})
	if !resp.OK {
		t.Fatalf("restart path must report success")
	}
	if !errors.Is(f.nav.FactoryReset(context.Background()), persistence.ErrRestart) {
		t.Fatalf("fake must return restart error")
	}
}

func TestGetStateColoursFollowOverrides(t *testing.T) {
	f := newAPIFixture(t)
	f.model.UpdateGlobal(func(g *settings.GlobalSettings) {
		g.MainColour = 0x001F
		g.TextColour = 0xFFFF
	})
	f.model.UpdatePreset(0, func(p *settings.Preset) {
		p.ColourOverride = true
		p.Colour = 0xF800
	})

	resp := f.call(t, `{"command":"getState"}`)
	data, _ := json.Marshal(resp.Data)
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Colour != 0xF800 {
		t.Fatalf("expected preset colour override, got %#04x", st.Colour)
	}
	if st.TextColour != 0xFFFF {
		t.Fatalf("expected global text colour, got %#04x", st.TextColour)
	}
}
