package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stgpx/internal/cleanup"
	"stgpx/internal/components/chrono"
	"stgpx/internal/components/telemetry"
	"stgpx/internal/driver"
	"stgpx/internal/driver/roddriver"
	"stgpx/internal/history"
	"stgpx/internal/scrapers/sportstracker"
	"stgpx/lib/snapshotutil"
)

const serviceName = "stgpx"

// launchBrowser is swapped out by tests.
var launchBrowser = func(ctx context.Context, opts roddriver.Options, tel telemetry.API) (driver.Driver, error) {
	return roddriver.Launch(ctx, opts, tel)
}

// validateBrowser checks everything needed before a browser may be
// started.
func (g *globals) validateBrowser() error {
	if (g.username == "") != (g.password == "") {
		if g.username == "" {
			return usageError("--username is required when --password is given")
		}
		return usageError("--password is required when --username is given")
	}
	if g.remote != "" {
		return nil
	}
	_, err := roddriver.ParseEngine(g.browser)
	if errors.Is(err, roddriver.ErrNoEngine) && g.browserBin == "" {
		return &ExitError{
			Code: ExitNoBrowser,
			Err:  fmt.Errorf("a browser must be selected with --browser %v or --remote", roddriver.Engines),
		}
	}
	if err != nil && !errors.Is(err, roddriver.ErrNoEngine) {
		return usageError("%w", err)
	}
	return nil
}

type env struct {
	tel    telemetry.API
	logger *slog.Logger
	config Config
	close  func()
}

// setup creates the logger and telemetry and reads the tuning file. The
// returned env's close must be called when the command is done.
func (g *globals) setup(ctx context.Context) (env, error) {
	logger, closeLog, err := telemetry.NewLogger(telemetry.LogOptions{
		Console:      g.stderr,
		ConsoleLevel: telemetry.LevelFromCount(g.verbose),
		File:         g.logfile,
		FileLevel:    telemetry.LevelFromCount(g.debug),
		NoColor:      g.noColor,
	})
	if err != nil {
		return env{}, usageError("open logfile: %w", err)
	}
	tel := telemetry.NewSlogAPI(logger)

	config, err := readConfig(g.config)
	if err != nil {
		closeLog()
		return env{}, usageError("read config %s: %w", g.config, err)
	}

	otelCtx, cancelPerf := context.WithCancel(ctx)
	otelSetup, err := telemetry.SetupFromEnv(otelCtx, serviceName)
	if err != nil {
		tel.ReportWarning("telemetry.setup", err)
	}
	if otelSetup.Enabled() {
		telemetry.InstrumentPerfStats(otelCtx, tel)
	}

	return env{
		tel:    tel,
		logger: logger,
		config: config,
		close: func() {
			cancelPerf()
			err := otelSetup.Shutdown(context.WithoutCancel(ctx))
			if err != nil {
				tel.ReportWarning("telemetry.shutdown", err)
			}
			closeLog()
		},
	}, nil
}

func (g *globals) openHistory() (*history.Store, error) {
	if g.history == "" {
		return nil, nil
	}
	store, err := history.Open(g.history, chrono.NewStandardImpl())
	if err != nil {
		return nil, failure(err)
	}
	return store, nil
}

func (g *globals) credentials() sportstracker.Credentials {
	return sportstracker.Credentials{Username: g.username, Password: g.password}
}

// launch starts the browser and wraps it with instrumentation.
func (g *globals) launch(ctx context.Context, rt env) (driver.Driver, error) {
	opts := roddriver.Options{
		Bin:               g.browserBin,
		RemoteURL:         g.remote,
		Headless:          g.headless,
		DownloadDir:       g.output,
		NavigationTimeout: seconds(rt.config.Timeouts.Navigation),
	}
	if g.browser != "" {
		engine, err := roddriver.ParseEngine(g.browser)
		if err != nil {
			return nil, usageError("%w", err)
		}
		opts.Engine = engine
	}
	if g.snapshots != "" {
		out, err := snapshotutil.NewFilesystemOutput(g.snapshots)
		if err != nil {
			return nil, usageError("snapshot directory: %w", err)
		}
		opts.Snapshots = out
	}

	d, err := launchBrowser(ctx, opts, rt.tel)
	if err != nil {
		return nil, failure(fmt.Errorf("start browser: %w", err))
	}
	return driver.Instrument(d, rt.tel), nil
}

func newCleaner(rt env) cleanup.Cleaner {
	return cleanup.NewCleaner(cleanup.OSFileSystem{}, cleanup.Options{
		Extension: rt.config.CleanupExtension,
	}, rt.tel)
}
