package deviceapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/persistence"
	"github.com/skobkin/scribblego/internal/settings"
)

// Command names. The bank* aliases are accepted for older editor versions.
const (
	CmdRestart          = "restart"
	CmdEnterBootloader  = "enterBootloader"
	CmdPresetUp         = "presetUp"
	CmdPresetDown       = "presetDown"
	CmdGoToPreset       = "goToPreset"
	CmdSavePresets      = "savePresets"
	CmdSaveGlobal       = "saveGlobal"
	CmdFactoryReset     = "factoryReset"
	CmdResetAllSettings = "resetAllSettings"
	CmdGetGlobal        = "getGlobal"
	CmdSetGlobal        = "setGlobal"
	CmdGetPreset        = "getPreset"
	CmdSetPreset        = "setPreset"
	CmdSetWireless      = "setWireless"
	CmdGetState         = "getState"
)

var aliases = map[string]string{
	"bankUp":     CmdPresetUp,
	"bankDown":   CmdPresetDown,
	"goToBank":   CmdGoToPreset,
	"turnOnBLE":  CmdSetWireless,
	"turnOffBLE": CmdSetWireless,
}

var ErrBootloaderUnsupported = errors.New("bootloader is not available on this host")

type Request struct {
	Command string          `json:"command"`
	Index   *int            `json:"index,omitempty"`
	Global  json.RawMessage `json:"global,omitempty"`
	Preset  json.RawMessage `json:"preset,omitempty"`
	Mode    string          `json:"mode,omitempty"`
}

type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// State is the payload of getState.
type State struct {
	CurrentPreset   int      `json:"currentPreset"`
	PresetName      string   `json:"presetName"`
	BPM             int      `json:"bpm"`
	ClockMode       string   `json:"clockMode"`
	Wireless        string   `json:"wirelessType"`
	Connected       []string `json:"connected"`
	FirmwareVersion string   `json:"firmwareVersion"`
	Colour          uint16   `json:"colour"`
	TextColour      uint16   `json:"textColour"`
}

type Navigator interface {
	PresetUp(ctx context.Context)
	PresetDown(ctx context.Context)
	GoToPreset(ctx context.Context, index int) bool
	FactoryReset(ctx context.Context) error
}

// Records persists the configuration model.
type Records interface {
	SaveGlobal(ctx context.Context) error
	SavePresets(ctx context.Context) error
	ResetToFactory(ctx context.Context) error
}

type Clock interface {
	Apply()
	SetTempo()
	BPM() int
}

type Wireless interface {
	SetWireless(ctx context.Context, mode settings.WirelessMode) error
}

type Restarter interface {
	RequestRestart(reason string)
}

type ConnectedLister interface {
	Connected() []settings.Transport
}

// Deps are the collaborators a Handler mutates and queries.
type Deps struct {
	Model     *settings.Model
	Navigator Navigator
	Records   Records
	Clock     Clock
	Wireless  Wireless
	Restarter Restarter
	Ports     ConnectedLister
	Signals   *events.Signals
}

func (d Deps) validate() error {
	switch {
	case d.Model == nil:
		return errors.New("deviceapi: settings model is required")
	case d.Navigator == nil:
		return errors.New("deviceapi: navigator is required")
	case d.Records == nil:
		return errors.New("deviceapi: records are required")
	case d.Clock == nil:
		return errors.New("deviceapi: clock is required")
	case d.Wireless == nil:
		return errors.New("deviceapi: wireless switcher is required")
	case d.Restarter == nil:
		return errors.New("deviceapi: restarter is required")
	case d.Ports == nil:
		return errors.New("deviceapi: port set is required")
	case d.Signals == nil:
		return errors.New("deviceapi: signals are required")
	}

	return nil
}

// Handler executes device API commands against the configuration model.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandler(deps Deps, logger *slog.Logger) (*Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{deps: deps, logger: logger}, nil
}

// HandleFrame decodes one request payload and returns the encoded response.
func (h *Handler) HandleFrame(ctx context.Context, payload []byte) []byte {
	var req Request
	resp := Response{}
	if err := json.Unmarshal(payload, &req); err != nil {
		resp.Error = fmt.Sprintf("decode request: %v", err)
	} else {
		resp = h.Handle(ctx, req)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("encode response failed", "command", req.Command, "error", err)
		out, _ = json.Marshal(Response{Error: "encode response failed"})
	}

	return out
}

func (h *Handler) Handle(ctx context.Context, req Request) Response {
	cmd := strings.TrimSpace(req.Command)
	if alias, ok := aliases[cmd]; ok {
		switch cmd {
		case "turnOnBLE":
			req.Mode = settings.WirelessBLE.String()
		case "turnOffBLE":
			req.Mode = settings.WirelessNone.String()
		}
		cmd = alias
	}

	data, err := h.dispatch(ctx, cmd, req)
	if err != nil {
		if errors.Is(err, persistence.ErrRestart) {
			h.logger.Info("command triggered restart", "command", cmd)

			return Response{OK: true, Data: map[string]bool{"restarting": true}}
		}
		h.logger.Debug("command failed", "command", cmd, "error", err)

		return Response{Error: err.Error()}
	}
	h.logger.Debug("command handled", "command", cmd)

	return Response{OK: true, Data: data}
}

func (h *Handler) dispatch(ctx context.Context, cmd string, req Request) (any, error) {
	d := h.deps
	switch cmd {
	case CmdRestart:
		d.Restarter.RequestRestart("device api")

		return map[string]bool{"restarting": true}, nil
	case CmdEnterBootloader:
		return nil, ErrBootloaderUnsupported
	case CmdPresetUp:
		d.Navigator.PresetUp(ctx)

		return h.state(), nil
	case CmdPresetDown:
		d.Navigator.PresetDown(ctx)

		return h.state(), nil
	case CmdGoToPreset:
		index, err := requireIndex(req)
		if err != nil {
			return nil, err
		}
		if !d.Navigator.GoToPreset(ctx, index) {
			return nil, fmt.Errorf("preset index %d out of range", index)
		}

		return h.state(), nil
	case CmdSavePresets:
		return nil, d.Records.SavePresets(ctx)
	case CmdSaveGlobal:
		return nil, d.Records.SaveGlobal(ctx)
	case CmdFactoryReset:
		return nil, d.Navigator.FactoryReset(ctx)
	case CmdResetAllSettings:
		return nil, d.Records.ResetToFactory(ctx)
	case CmdGetGlobal:
		return d.Model.Global(), nil
	case CmdSetGlobal:
		return h.setGlobal(ctx, req.Global)
	case CmdGetPreset:
		index, err := requireIndex(req)
		if err != nil {
			return nil, err
		}
		p, ok := d.Model.Preset(index)
		if !ok {
			return nil, fmt.Errorf("preset index %d out of range", index)
		}

		return p, nil
	case CmdSetPreset:
		index, err := requireIndex(req)
		if err != nil {
			return nil, err
		}

		return h.setPreset(index, req.Preset)
	case CmdSetWireless:
		var mode settings.WirelessMode
		if err := mode.UnmarshalText([]byte(req.Mode)); err != nil {
			return nil, err
		}
		if err := d.Wireless.SetWireless(ctx, mode); err != nil {
			return nil, fmt.Errorf("set wireless: %w", err)
		}

		return h.state(), nil
	case CmdGetState:
		return h.state(), nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func (h *Handler) setGlobal(ctx context.Context, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("global is required")
	}
	var scratch settings.GlobalSettings
	if err := json.Unmarshal(raw, &scratch); err != nil {
		return nil, fmt.Errorf("decode global: %w", err)
	}
	wantWireless := scratch.Wireless
	wirelessSent := jsonHasKey(raw, "wirelessType")

	d := h.deps
	var wireless settings.WirelessMode
	d.Model.UpdateGlobal(func(g *settings.GlobalSettings) {
		wireless = g.Wireless
		next := *g
		if err := json.Unmarshal(raw, &next); err != nil {
			return
		}
		// Identity, navigation and radio state are owned by the device.
		next.BootState = g.BootState
		next.FirmwareVersion = g.FirmwareVersion
		next.CurrentPreset = g.CurrentPreset
		next.Wireless = g.Wireless
		*g = next
	})
	d.Clock.Apply()
	if wirelessSent && wantWireless != wireless {
		if err := d.Wireless.SetWireless(ctx, wantWireless); err != nil {
			return nil, fmt.Errorf("set wireless: %w", err)
		}
	}

	return d.Model.Global(), nil
}

func (h *Handler) setPreset(index int, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("preset is required")
	}
	d := h.deps
	current, ok := d.Model.Preset(index)
	if !ok {
		return nil, fmt.Errorf("preset index %d out of range", index)
	}
	next := current
	if err := json.Unmarshal(raw, &next); err != nil {
		return nil, fmt.Errorf("decode preset: %w", err)
	}
	d.Model.UpdatePreset(index, func(p *settings.Preset) {
		*p = next
	})
	if index == d.Model.CurrentPreset() {
		d.Clock.SetTempo()
		d.Signals.Raise(events.KindPresetChanged)
	}
	p, _ := d.Model.Preset(index)

	return p, nil
}

func (h *Handler) state() State {
	d := h.deps
	g, p := d.Model.Current()
	connected := []string{}
	for _, t := range d.Ports.Connected() {
		connected = append(connected, t.String())
	}
	bpm := d.Clock.BPM()
	if bpm < 0 {
		bpm = int(p.BPM)
	}

	return State{
		CurrentPreset:   int(g.CurrentPreset),
		PresetName:      p.Name,
		BPM:             bpm,
		ClockMode:       g.ClockMode.String(),
		Wireless:        g.Wireless.String(),
		Connected:       connected,
		FirmwareVersion: g.FirmwareVersion,
		Colour:          p.EffectiveColour(g),
		TextColour:      p.EffectiveTextColour(g),
	}
}

func jsonHasKey(raw json.RawMessage, key string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	_, ok := fields[key]

	return ok
}

func requireIndex(req Request) (int, error) {
	if req.Index == nil {
		return 0, errors.New("index is required")
	}

	return *req.Index, nil
}
