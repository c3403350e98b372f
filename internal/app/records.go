package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/persistence"
	"github.com/skobkin/scribblego/internal/settings"
)

// Records encodes the configuration model into the store records and persists them.
type Records struct {
	store  *persistence.Store
	model  *settings.Model
	bus    bus.Publisher
	logger *slog.Logger
}

func NewRecords(store *persistence.Store, model *settings.Model, pub bus.Publisher, logger *slog.Logger) (*Records, error) {
	switch {
	case store == nil:
		return nil, errors.New("app: record store is required")
	case model == nil:
		return nil, errors.New("app: settings model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Records{store: store, model: model, bus: pub, logger: logger}, nil
}

func (r *Records) SaveGlobal(ctx context.Context) error {
	g := r.model.Global()
	g.BootState = settings.ConfiguredValue
	buf := make([]byte, settings.GlobalRecordSize)
	if err := settings.EncodeGlobal(g, buf); err != nil {
		return fmt.Errorf("encode global: %w", err)
	}

	return r.persist(ctx, persistence.RecordGlobal, buf)
}

func (r *Records) SavePresets(ctx context.Context) error {
	_, presets := r.model.Snapshot()
	buf := make([]byte, settings.PresetsRecordSize)
	if err := settings.EncodePresets(presets, buf); err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}

	return r.persist(ctx, persistence.RecordPresets, buf)
}

// ResetToFactory rewrites both records with defaults. It returns a *persistence.RestartError.
func (r *Records) ResetToFactory(ctx context.Context) error {
	return r.store.ResetToFactory(ctx)
}

func (r *Records) persist(ctx context.Context, which persistence.Record, buf []byte) error {
	if err := r.store.Stage(which, buf); err != nil {
		return err
	}
	n, err := r.store.Save(ctx, which)
	if err != nil {
		return fmt.Errorf("save %s: %w", which, err)
	}
	r.logger.Info("settings saved", "record", which, "bytes", n)
	if r.bus != nil {
		r.bus.Publish(events.TopicSettingsSaved, events.SettingsSaved{Record: string(which), Bytes: n})
	}

	return nil
}

// loadModel decodes the booted records. Records written by a different layout
// major version, or that no longer decode, are reset to factory defaults.
func loadModel(ctx context.Context, store *persistence.Store, logger *slog.Logger) (*settings.Model, error) {
	rawGlobal, err := store.Bytes(persistence.RecordGlobal)
	if err != nil {
		return nil, err
	}
	rawPresets, err := store.Bytes(persistence.RecordPresets)
	if err != nil {
		return nil, err
	}

	global, err := settings.DecodeGlobal(rawGlobal)
	if err != nil {
		logger.Warn("global record does not decode", "error", err)

		return nil, store.ResetToFactory(ctx)
	}
	if !SameLayoutMajor(global.FirmwareVersion, FirmwareVersion()) {
		logger.Warn("records written by another major version", "stored", global.FirmwareVersion, "running", FirmwareVersion())

		return nil, store.ResetToFactory(ctx)
	}
	presets, err := settings.DecodePresets(rawPresets)
	if err != nil {
		logger.Warn("presets record does not decode", "error", err)

		return nil, store.ResetToFactory(ctx)
	}
	global.FirmwareVersion = FirmwareVersion()

	return settings.NewModel(global, presets), nil
}
