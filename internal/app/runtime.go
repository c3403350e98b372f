package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/clock"
	"github.com/skobkin/scribblego/internal/config"
	"github.com/skobkin/scribblego/internal/deviceapi"
	"github.com/skobkin/scribblego/internal/display"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/logging"
	"github.com/skobkin/scribblego/internal/navigation"
	"github.com/skobkin/scribblego/internal/persistence"
	"github.com/skobkin/scribblego/internal/platform"
	"github.com/skobkin/scribblego/internal/router"
	"github.com/skobkin/scribblego/internal/settings"
	"github.com/skobkin/scribblego/internal/transport"
)

// Options customize one runtime generation.
type Options struct {
	// Paths overrides the user config directory layout.
	Paths *Paths
	// Display receives draw calls. A LogDisplay is used when nil.
	Display display.Display
	// OnStart is called with each booted runtime before Run waits on it.
	OnStart func(*Runtime)
}

// Runtime is one booted generation of the pedal: store, model and every task around them.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	WriterQueue *persistence.WriterQueue
	Store       *persistence.Store
	Records     *Records

	Model     *settings.Model
	Signals   *events.Signals
	Ports     *router.PortSet
	Output    *router.Output
	Clock     *clock.Engine
	Navigator *navigation.Navigator
	Router    *router.Router
	Wireless  *WirelessSwitcher
	DeviceAPI *deviceapi.Handler
	Presenter *display.Presenter

	lock       platform.StoreLock
	restart    *restartSignal
	connectors *connectorGroup
	tasks      sync.WaitGroup

	connStatusMu sync.RWMutex
	connStatus   map[settings.Transport]events.ConnStatus
}

// Initialize boots the store and wires every component. When the store had to
// be reset the returned error matches persistence.ErrRestart.
func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := resolveOptionPaths(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:        ctx,
		cancel:     cancel,
		Paths:      paths,
		Config:     cfg,
		connStatus: make(map[settings.Transport]events.ConnStatus),
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting scribblego runtime", "version", BuildVersion(), "build_date", BuildDateYMD())

	if err := rt.openStore(ctx); err != nil {
		_ = rt.Close()

		return nil, err
	}
	if err := rt.wire(ctx, opts); err != nil {
		_ = rt.Close()

		return nil, err
	}

	return rt, nil
}

func resolveOptionPaths(opts Options) (Paths, error) {
	if opts.Paths != nil {
		return *opts.Paths, nil
	}

	return ResolvePaths()
}

func (r *Runtime) openStore(ctx context.Context) error {
	lock, err := platform.AcquireStoreLock(r.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	r.lock = lock

	db, err := persistence.Open(ctx, r.Paths.DBFile)
	if err != nil {
		return err
	}
	r.DB = db

	r.Bus = bus.New(r.LogManager.Logger("bus"))
	r.Bus.Quiet(events.HighRateTopics...)
	r.restart = newRestartSignal(r.Bus, r.LogManager.Logger("runtime"))

	r.WriterQueue = persistence.NewWriterQueue(r.LogManager.Logger("persistence"), WriterQueueSize)
	r.WriterQueue.Start(ctx)

	layout := persistence.Layout{
		GlobalSize:      settings.GlobalRecordSize,
		PresetSize:      settings.PresetRecordSize,
		PresetCount:     settings.NumPresets,
		BootFlagOffset:  settings.BootFlagOffset,
		ConfiguredValue: settings.ConfiguredValue,
	}
	defaults := settings.Defaults{FirmwareVersion: FirmwareVersion()}
	store, err := persistence.NewStore(persistence.NewRecordRepo(db), layout, defaults, r.restart, r.LogManager.Logger("persistence"))
	if err != nil {
		return fmt.Errorf("initialize record store: %w", err)
	}
	store.UseWriter(r.WriterQueue)
	r.Store = store

	if err := store.Boot(ctx); err != nil {
		return err
	}
	model, err := loadModel(ctx, store, r.LogManager.Logger("persistence"))
	if err != nil {
		return err
	}
	r.Model = model

	return nil
}

func (r *Runtime) wire(ctx context.Context, opts Options) error {
	lm := r.LogManager
	r.Signals = events.NewSignals()
	r.Ports = router.NewPortSet()
	r.Output = router.NewOutput(r.Ports, r.Bus, lm.Logger("router"))

	var err error
	if r.Clock, err = clock.NewEngine(r.Model, r.Output, r.Signals, lm.Logger("clock")); err != nil {
		return err
	}
	if r.Navigator, err = navigation.New(r.Model, r.Output, r.Clock, r.Store, r.Signals, r.Bus, lm.Logger("navigation")); err != nil {
		return err
	}
	if r.Router, err = router.New(r.Model, r.Output, r.Navigator, r.Clock, r.Signals, r.Bus, lm.Logger("router")); err != nil {
		return err
	}
	if r.Records, err = NewRecords(r.Store, r.Model, r.Bus, lm.Logger("persistence")); err != nil {
		return err
	}

	connSub := r.Bus.Subscribe(events.TopicConnStatus)
	r.goTask(func() { r.captureConnStatus(ctx, connSub) })

	r.connectors = newConnectorGroup(ctx, r.Router, r.Bus, lm.Logger("transport"))
	for _, p := range wiredPorts(r.Config.Transports) {
		r.Ports.Swap(p.Kind(), p)
		r.connectors.start(p)
	}
	r.Wireless, err = NewWirelessSwitcher(r.Model, r.Ports, r.connectors, r.Signals, NewWirelessPortFactory(r.Config.Transports), lm.Logger("wireless"))
	if err != nil {
		return err
	}
	if err := r.Wireless.SetWireless(ctx, r.Model.Global().Wireless); err != nil {
		lm.Logger("wireless").Warn("wireless port unavailable", "mode", r.Model.Global().Wireless.String(), "error", err)
	}

	r.DeviceAPI, err = deviceapi.NewHandler(deviceapi.Deps{
		Model:     r.Model,
		Navigator: r.Navigator,
		Records:   r.Records,
		Clock:     r.Clock,
		Wireless:  r.Wireless,
		Restarter: r.restart,
		Ports:     r.Ports,
		Signals:   r.Signals,
	}, lm.Logger("deviceapi"))
	if err != nil {
		return err
	}
	if r.Config.DeviceAPI.Enabled {
		link := transport.NewFrameLink(r.Config.DeviceAPI.Port, r.Config.DeviceAPI.Baud)
		server, err := deviceapi.NewServer(link, r.DeviceAPI, lm.Logger("deviceapi"))
		if err != nil {
			return err
		}
		r.goTask(func() { _ = server.Run(ctx) })
	}

	r.Clock.Apply()
	r.goTask(func() { r.Clock.Run(ctx) })

	d := opts.Display
	if d == nil {
		d = display.NewLogDisplay(lm.Logger("display"))
	}
	if r.Presenter, err = display.NewPresenter(d, r.Model, r.Signals, lm.Logger("display")); err != nil {
		return err
	}
	r.goTask(func() { r.Presenter.Run(ctx) })

	return nil
}

func wiredPorts(cfg config.TransportsConfig) []transport.Port {
	var ports []transport.Port
	if cfg.TRS.Enabled {
		ports = append(ports, transport.NewTRSPort(cfg.TRS.Port, cfg.TRS.Baud))
	}
	if cfg.USB.Enabled {
		ports = append(ports, transport.NewUSBPort(cfg.USB.InPort, cfg.USB.OutPort))
	}

	return ports
}

func (r *Runtime) goTask(fn func()) {
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()
		fn()
	}()
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(events.ConnStatus)
			if !ok {
				continue
			}
			r.connStatusMu.Lock()
			r.connStatus[status.Transport] = status
			r.connStatusMu.Unlock()
		}
	}
}

// ConnStatus returns the last status seen for transport t.
func (r *Runtime) ConnStatus(t settings.Transport) (events.ConnStatus, bool) {
	r.connStatusMu.RLock()
	defer r.connStatusMu.RUnlock()
	status, ok := r.connStatus[t]

	return status, ok
}

// Restarted is closed once a restart has been requested for this runtime.
func (r *Runtime) Restarted() <-chan struct{} {
	return r.restart.Done()
}

func (r *Runtime) RestartReason() string {
	return r.restart.Reason()
}

func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.connectors != nil {
		r.connectors.stopAll()
	}
	if r.Clock != nil {
		r.Clock.Close()
	}
	r.tasks.Wait()

	var errs []error
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if r.lock != nil {
		if err := r.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return errors.Join(errs...)
}
