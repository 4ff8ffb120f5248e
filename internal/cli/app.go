package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"mirrorgate/internal/coherence"
	"mirrorgate/internal/config"
	"mirrorgate/internal/environment"
	"mirrorgate/internal/gate"
	"mirrorgate/internal/identity"
	"mirrorgate/internal/logging"
	"mirrorgate/internal/metrics"
	"mirrorgate/internal/presentation"
	"mirrorgate/internal/store"
	"mirrorgate/internal/tracing"
)

// App is the wired process: configuration, logging, storage and telemetry.
type App struct {
	Config    *config.Config
	Loader    *config.Loader
	Logger    *logging.Logger
	Backend   store.Backend
	Identity  *identity.Store
	Hasher    *identity.Hasher
	Telemetry *tracing.Provider
	Metrics   *metrics.Session
	Prober    environment.Prober

	// Tilt is the orientation sensor, nil when the device has none.
	Tilt presentation.TiltSource
}

// appOptions adjust configuration for one invocation.
type appOptions struct {
	// Ephemeral selects the memory backend.
	Ephemeral bool

	// Digest overrides identity.digest when set.
	Digest string

	// LogWriter, when set, receives log output instead of the configured
	// destination.
	LogWriter io.Writer

	// Prober replaces the host probe.
	Prober environment.Prober
}

// openApp loads configuration and opens every dependency. The caller
// must Close the returned App.
func openApp(ctx context.Context, root *RootOptions, o appOptions) (*App, error) {
	path := root.ConfigPath
	if path == "" {
		path = config.ConfigPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Ephemeral {
		cfg.Storage.Type = store.TypeMemory
	}
	if o.Digest != "" {
		cfg.Identity.Digest = o.Digest
	}
	if root.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, WrapExitError(ExitCommandError, "prepare directories", err)
	}

	app := &App{Config: cfg, Loader: loader, Prober: o.Prober}

	lc, err := loggingConfig(cfg.Logging)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "logging", err)
	}
	if o.LogWriter != nil {
		lc.Writer = o.LogWriter
	}
	if app.Logger, err = logging.New(lc); err != nil {
		return nil, WrapExitError(ExitCommandError, "logging", err)
	}
	logging.SetDefault(app.Logger)

	if app.Hasher, err = identity.NewHasher(cfg.Identity.Digest); err != nil {
		app.Close(ctx)
		return nil, WrapExitError(ExitCommandError, "hasher", err)
	}

	if app.Backend, err = store.Open(ctx, cfg.StoreOptions()); err != nil {
		app.Close(ctx)
		return nil, WrapExitError(ExitCommandError, "open storage", err)
	}
	app.Identity = identity.NewStore(app.Backend,
		identity.WithKey(cfg.Identity.StorageKey),
		identity.WithLogger(app.Logger.WithComponent("identity")),
	)

	tc := tracing.DefaultConfig()
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = Version
	tc.Endpoint = cfg.Telemetry.OTLPEndpoint
	tc.Insecure = cfg.Telemetry.Insecure
	tc.SampleRate = cfg.Telemetry.SampleRate
	if app.Telemetry, err = tracing.New(ctx, tc); err != nil {
		app.Logger.Warn("telemetry disabled", "error", err)
		app.Telemetry = tracing.Noop()
	}
	if app.Metrics, err = metrics.New(app.Telemetry.Meter()); err != nil {
		app.Logger.Warn("metrics disabled", "error", err)
		app.Metrics = nil
	}

	if app.Prober == nil {
		host := environment.NewHost("mirrorgate/" + Version)
		host.Screen = cfg.Session.Screen
		app.Prober = host
	}
	if accel, err := environment.FindAccelerometer(environment.DefaultSysfs); err == nil {
		app.Tilt = accel
	} else {
		app.Logger.Debug("tilt unavailable, following the pointer", "error", err)
	}
	return app, nil
}

func loggingConfig(c config.LoggingConfig) (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Output
	lc.FilePath = c.FilePath
	lc.MaxSize = int64(c.MaxSizeMB)
	lc.MaxBackups = c.MaxBackups
	lc.MaxAge = c.MaxAgeDays
	lc.Compress = c.Compress
	return lc, nil
}

// GateOptions wires the session to the app's dependencies.
func (a *App) GateOptions() []gate.Option {
	opts := []gate.Option{
		gate.WithConfig(gate.Config{
			ObserveDwell: a.Config.ObserveDwell(),
			HashTimeout:  a.Config.HashTimeout(),
		}),
		gate.WithHasher(a.Hasher),
		gate.WithScorer(coherence.NewScorer(a.Config.Session.ScoreSeed)),
		gate.WithProber(a.Prober),
		gate.WithLogger(a.Logger.WithComponent("gate")),
		gate.WithTracer(a.Telemetry.Tracer()),
	}
	if a.Metrics != nil {
		opts = append(opts, gate.WithMetrics(a.Metrics))
	}
	return opts
}

// WatchConfig hot-reloads the config file and applies the log level.
// Other settings take effect on the next session.
func (a *App) WatchConfig() error {
	a.Loader.OnChange(func(c *config.Config) {
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return
		}
		a.Logger.SetLevel(level)
		a.Logger.Info("config reloaded", "log_level", logging.LevelString(level))
	})
	if err := a.Loader.Watch(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	go func() {
		for err := range a.Loader.Errors() {
			a.Logger.Warn("config reload failed", "error", err)
		}
	}()
	return nil
}

// Close releases everything openApp acquired.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Loader != nil {
		errs = append(errs, a.Loader.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	if a.Backend != nil {
		errs = append(errs, a.Backend.Close())
	}
	if a.Logger != nil {
		errs = append(errs, a.Logger.Close())
	}
	return errors.Join(errs...)
}
