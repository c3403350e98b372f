package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skobkin/scribblego/internal/config"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/router"
	"github.com/skobkin/scribblego/internal/settings"
	"github.com/skobkin/scribblego/internal/transport"
)

// PortFactory builds the port that serves a wireless mode.
type PortFactory func(mode settings.WirelessMode) (transport.Port, error)

type portRunner interface {
	start(p transport.Port)
	stop(p transport.Port)
}

var wirelessTransports = []settings.Transport{settings.TransportBLE, settings.TransportWiFi}

// WirelessSwitcher keeps exactly one wireless port (or none) in the port set,
// matching the wireless mode of the model.
type WirelessSwitcher struct {
	model   *settings.Model
	ports   *router.PortSet
	runner  portRunner
	signals *events.Signals
	factory PortFactory
	logger  *slog.Logger

	mu sync.Mutex
}

func NewWirelessSwitcher(
	model *settings.Model,
	ports *router.PortSet,
	runner portRunner,
	signals *events.Signals,
	factory PortFactory,
	logger *slog.Logger,
) (*WirelessSwitcher, error) {
	switch {
	case model == nil:
		return nil, errors.New("app: settings model is required")
	case ports == nil:
		return nil, errors.New("app: port set is required")
	case runner == nil:
		return nil, errors.New("app: port runner is required")
	case signals == nil:
		return nil, errors.New("app: signals are required")
	case factory == nil:
		return nil, errors.New("app: port factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WirelessSwitcher{
		model:   model,
		ports:   ports,
		runner:  runner,
		signals: signals,
		factory: factory,
		logger:  logger,
	}, nil
}

// SetWireless swaps the active wireless port for mode. The model field and the
// port set change together under the model lock; the previous port is closed afterwards.
func (w *WirelessSwitcher) SetWireless(_ context.Context, mode settings.WirelessMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown wireless mode %d", mode)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	kind, wantPort := mode.Transport()
	if w.model.Global().Wireless == mode && (!wantPort || w.ports.Get(kind) != nil) {
		return nil
	}

	var next transport.Port
	if wantPort {
		p, err := w.factory(mode)
		if err != nil {
			return fmt.Errorf("create %s port: %w", mode, err)
		}
		next = p
	}

	var previous []transport.Port
	w.model.UpdateGlobal(func(g *settings.GlobalSettings) {
		g.Wireless = mode
		for _, t := range wirelessTransports {
			var replacement transport.Port
			if next != nil && t == kind {
				replacement = next
			}
			if old := w.ports.Swap(t, replacement); old != nil {
				previous = append(previous, old)
			}
		}
	})

	for _, p := range previous {
		w.runner.stop(p)
	}
	w.signals.RaiseWireless(events.WirelessState{Mode: mode})
	w.logger.Info("wireless mode switched", "mode", mode.String())
	if next == nil {
		return nil
	}
	if notifier, ok := next.(transport.ConnectionNotifier); ok {
		notifier.OnPeerChange(func(connected bool) {
			w.signals.RaiseWireless(events.WirelessState{Mode: mode, Connected: connected})
		})
	}
	w.runner.start(next)

	return nil
}

// NewWirelessPortFactory builds BLE and RTP ports from host transport config.
func NewWirelessPortFactory(cfg config.TransportsConfig) PortFactory {
	return func(mode settings.WirelessMode) (transport.Port, error) {
		switch mode {
		case settings.WirelessBLE:
			if cfg.BLE.Role == config.BLERoleClient {
				return transport.NewBLEClientPort(cfg.BLE.Address, cfg.BLE.Adapter), nil
			}

			p, err := transport.NewBLEServerPort(cfg.BLE.Adapter, cfg.BLE.LocalName)
			if err != nil {
				return nil, err
			}

			return p, nil
		case settings.WirelessWiFi:
			return transport.NewRTPPort(cfg.RTP.ListenHost, cfg.RTP.Port, cfg.RTP.SessionName), nil
		default:
			return nil, fmt.Errorf("wireless mode %s has no port", mode)
		}
	}
}
