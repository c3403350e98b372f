package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skobkin/scribblego/internal/persistence"
)

// FactoryResetMessage is shown while a reset boot restarts the runtime.
const FactoryResetMessage = "Configuring default settings"

// Run boots runtimes until ctx ends. A restart request closes the current
// runtime and boots a fresh one in the same process.
func Run(ctx context.Context, opts Options) error {
	resets := 0
	for {
		rt, err := Initialize(ctx, opts)
		if errors.Is(err, persistence.ErrRestart) {
			resets++
			if resets > maxBootRestarts {
				return fmt.Errorf("store keeps resetting after %d boots: %w", resets-1, err)
			}
			slog.Warn("boot reset the record store, restarting", "error", err)
			if opts.Display != nil {
				opts.Display.DrawMessage(FactoryResetMessage)
			}

			continue
		}
		if err != nil {
			return err
		}
		resets = 0
		if opts.OnStart != nil {
			opts.OnStart(rt)
		}

		select {
		case <-ctx.Done():
			return rt.Close()
		case <-rt.Restarted():
			reason := rt.RestartReason()
			if err := rt.Close(); err != nil {
				slog.Warn("close runtime before restart", "error", err)
			}
			slog.Info("runtime restarting", "reason", reason)
		}
	}
}
