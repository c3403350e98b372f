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
	"sync"
	"syscall"

	"fyne.io/fyne/v2"

	"github.com/skobkin/scribblego/internal/app"
	"github.com/skobkin/scribblego/internal/config"
	"github.com/skobkin/scribblego/internal/ui"
)

type launchOptions struct {
	StartHidden bool
	DataDir     string
}

func parseLaunchOptions(args []string) (launchOptions, error) {
	var opts launchOptions
	fs := flag.NewFlagSet("scribble", flag.ContinueOnError)
	fs.BoolVar(&opts.StartHidden, "start-hidden", false, "start with the main window hidden in the tray")
	fs.StringVar(&opts.DataDir, "root", "", "keep config, store and logs in this directory")
	if err := fs.Parse(args); err != nil {
		return launchOptions{}, err
	}
	if fs.NArg() > 0 {
		return launchOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return opts, nil
}

func main() {
	launch, err := parseLaunchOptions(os.Args[1:])
	if err != nil {
		slog.Error("parse launch options", "error", err)
		os.Exit(2)
	}

	paths, err := resolvePaths(launch.DataDir)
	if err != nil {
		slog.Error("resolve paths", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := ui.NewSimulator(ui.NewApp(), ui.Dependencies{
		Launch: ui.LaunchOptions{StartHidden: launch.StartHidden || configStartHidden(paths)},
		OnQuit: stop,
	})

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.Run(ctx, app.Options{
			Paths:   &paths,
			Display: sim.Display(),
			OnStart: func(rt *app.Runtime) {
				sim.Attach(ui.Session{
					Ctx:               rt.Ctx,
					Switches:          rt.Navigator,
					Bus:               rt.Bus,
					CurrentConnStatus: rt.ConnStatus,
				})
			},
		})
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			slog.Error("run pedal runtime", "error", runErr)
		}
		fyne.Do(sim.Quit)
	}()
	go func() {
		<-ctx.Done()
		fyne.Do(sim.Quit)
	}()

	sim.Run()
	stop()
	wg.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

func resolvePaths(dataDir string) (app.Paths, error) {
	if dataDir == "" {
		return app.ResolvePaths()
	}

	return app.PathsIn(dataDir)
}

// configStartHidden peeks at the host config before the runtime loads it.
func configStartHidden(paths app.Paths) bool {
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return false
	}

	return cfg.UI.StartHidden
}
