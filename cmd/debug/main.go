package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/scribblego/internal/app"
	"github.com/skobkin/scribblego/internal/bluetoothutil"
	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
	"github.com/skobkin/scribblego/internal/transport"
)

const maxHexPreviewLen = 64

type options struct {
	ListPorts bool
	ScanBLE   time.Duration
	Adapter   string
	ListenFor time.Duration
	DataDir   string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("scribble-debug", flag.ContinueOnError)
	fs.BoolVar(&opts.ListPorts, "list-ports", false, "print OS MIDI ports and exit")
	fs.DurationVar(&opts.ScanBLE, "scan-ble", 0, "scan for BLE-MIDI peripherals for this long and exit")
	fs.StringVar(&opts.Adapter, "adapter", "", "bluetooth adapter for -scan-ble, e.g. hci1")
	fs.DurationVar(&opts.ListenFor, "listen-for", 0, "run for a fixed duration, e.g. 30s")
	fs.StringVar(&opts.DataDir, "root", "", "use this directory instead of the user config dir")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.ListenFor < 0 || opts.ScanBLE < 0 {
		return options{}, errors.New("durations must not be negative")
	}
	if opts.ListPorts && opts.ScanBLE > 0 {
		return options{}, errors.New("list-ports and scan-ble are exclusive")
	}

	return opts, nil
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	if opts.ListPorts {
		return listPorts()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.ScanBLE > 0 {
		return scanBLE(ctx, opts.Adapter, opts.ScanBLE)
	}
	if opts.ListenFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ListenFor)
		defer cancel()
	}

	runOpts := app.Options{
		OnStart: func(rt *app.Runtime) {
			logger := rt.LogManager.Logger("cli")
			logger.Info("scribble runtime started", "version", app.BuildVersion(), "build_date", app.BuildDateYMD())
			logSnapshot(logger, rt.Model)
			watch(rt.Ctx, rt.Bus, rt.Model, logger)
		},
	}
	if opts.DataDir != "" {
		paths, err := app.PathsIn(opts.DataDir)
		if err != nil {
			return fmt.Errorf("resolve paths: %w", err)
		}
		runOpts.Paths = &paths
	}

	if err := app.Run(ctx, runOpts); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func listPorts() error {
	ins, outs, err := transport.USBPortNames()
	if err != nil {
		return fmt.Errorf("list usb midi ports: %w", err)
	}
	for _, name := range ins {
		fmt.Printf("in\t%s\n", name)
	}
	for _, name := range outs {
		fmt.Printf("out\t%s\n", name)
	}

	return nil
}

func scanBLE(ctx context.Context, adapterID string, d time.Duration) error {
	adapter, err := bluetoothutil.OpenAdapter(adapterID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	found, err := bluetoothutil.ScanMIDI(ctx, adapter)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no BLE-MIDI peripherals found")
	}
	for _, p := range found {
		fmt.Printf("%s\t%d dBm\t%s\n", p.Address, p.RSSI, p.Name)
	}

	return nil
}

func logSnapshot(logger *slog.Logger, model *settings.Model) {
	g, preset := model.Current()
	logger.Info(
		"device settings",
		"device_name", g.DeviceName,
		"firmware", g.FirmwareVersion,
		"midi_channel", g.MidiChannel,
		"clock_mode", g.ClockMode,
		"wireless", g.Wireless.String(),
	)
	logger.Info("current preset", "number", g.CurrentPreset+1, "name", preset.Name, "bpm", preset.BPM)
}

func watch(ctx context.Context, b bus.MessageBus, model *settings.Model, logger *slog.Logger) {
	topics := []string{
		events.TopicConnStatus,
		events.TopicMidiIn,
		events.TopicMidiOut,
		events.TopicPresetChanged,
		events.TopicSettingsSaved,
		events.TopicDeviceRestart,
	}
	sub := b.Subscribe(topics...)

	go func() {
		defer b.Unsubscribe(sub, topics...)
		for {
			select {
			case <-ctx.Done():
				return
			case <-model.Changes():
				logger.Debug("settings model changed")
			case raw, ok := <-sub:
				if !ok {
					return
				}
				logEvent(logger, raw)
			}
		}
	}()
}

func logEvent(logger *slog.Logger, raw any) {
	switch ev := raw.(type) {
	case events.ConnStatus:
		logger.Info("conn", "transport", ev.TransportName, "state", ev.State, "target", ev.Target, "error", ev.Err)
	case events.MidiFrame:
		logger.Info("midi", "transport", ev.Transport.String(), "len", len(ev.Bytes), "hex", previewHex(ev.Hex()))
	case events.PresetChanged:
		logger.Info("preset", "number", ev.Index+1, "name", ev.Name, "bpm", ev.BPM)
	case events.SettingsSaved:
		logger.Info("settings saved", "record", ev.Record, "bytes", ev.Bytes)
	case events.RestartRequested:
		logger.Info("restart requested", "reason", ev.Reason)
	default:
		logger.Debug("ignoring unexpected payload", "payload_type", fmt.Sprintf("%T", raw))
	}
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}

	return hex[:maxHexPreviewLen] + "..."
}
