// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file when one exists, otherwise from
// WAKEACCT_* environment variables.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/wakeacct/adapters/clock"
	apihttp "github.com/artpar/wakeacct/adapters/http"
	"github.com/artpar/wakeacct/adapters/idgen"
	"github.com/artpar/wakeacct/adapters/metrics"
	"github.com/artpar/wakeacct/app"
	"github.com/artpar/wakeacct/config"
	"github.com/artpar/wakeacct/domain/wakelock"
	"github.com/artpar/wakeacct/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrShuttingDown is reported by the readiness check once shutdown begins.
var ErrShuttingDown = errors.New("shutting down")

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Clock      ports.Clock
	Registry   *app.Registry
	Reporter   *app.Reporter
	Metrics    *metrics.Collector // nil when metrics are disabled
	Prometheus *prometheus.Registry
	HTTPServer *http.Server

	// Config is nil when configuration came from the environment only.
	Config *config.Holder

	cfg          *config.Config
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Options controls application initialization.
type Options struct {
	ConfigPath string    // YAML config; falls back to env when missing
	Version    string    // reported by /version
	Watch      bool      // hot reload on file change and SIGHUP
	LogOutput  io.Writer // default: os.Stdout
}

// New loads configuration and creates the application.
func New(opts Options) (*App, error) {
	bootLogger := NewLogger(config.LoggingConfig{Level: "info", Format: "json"}, opts.LogOutput)

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			holder, err := config.NewHolder(opts.ConfigPath, bootLogger)
			if err != nil {
				return nil, err
			}
			a, err := NewWithConfig(holder.Get(), opts)
			if err != nil {
				return nil, err
			}
			a.attachHolder(holder, opts.Watch)
			return a, nil
		}
		bootLogger.Warn().Str("path", opts.ConfigPath).Msg("config file not found, using environment")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig creates the application from an already loaded config.
func NewWithConfig(cfg *config.Config, opts Options) (*App, error) {
	logger := NewLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Str("version", opts.Version).Msg("initializing wakeacct")

	a := &App{
		Logger:     logger,
		Clock:      clock.NewReal(),
		Prometheus: prometheus.NewRegistry(),
		cfg:        cfg,
	}

	var observer ports.AccountingObserver
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewWithRegistry(a.Prometheus)
		a.Prometheus.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		observer = a.Metrics
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.Registry = app.NewRegistry(app.RegistryDeps{
		Clock:    a.Clock,
		IDGen:    idgen.UUID{},
		Observer: observer,
		Logger:   logger,
	}, app.RegistryConfig{Histogram: histogramConfig(cfg.Accounting)})

	if a.Metrics != nil {
		a.Prometheus.MustRegister(metrics.NewStatsCollector(a.Registry))
	}

	a.Reporter = app.NewReporter(a.Registry, logger)

	if err := a.initHTTPServer(opts.Version); err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return a, nil
}

func (a *App) initHTTPServer(version string) error {
	cfg := a.cfg

	routerCfg := apihttp.RouterConfig{
		Version:     version,
		MetricsPath: cfg.Metrics.Path,
		Timeout:     cfg.Server.WriteTimeout,
	}
	if a.Metrics != nil {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Prometheus, promhttp.HandlerOpts{})
	}

	stats := apihttp.NewStatsHandler(a.Registry, a.Registry, a.Clock, a.Logger)
	router := apihttp.NewRouter(stats, apihttp.NewHealthHandler(a), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

// attachHolder applies reloadable settings whenever the config changes.
func (a *App) attachHolder(holder *config.Holder, watch bool) {
	a.Config = holder

	holder.OnChange(func(cfg *config.Config) {
		a.applyConfig(cfg)
		if a.Metrics != nil {
			a.Metrics.ConfigReloads.Inc()
			a.Metrics.ConfigLastReload.SetToCurrentTime()
		}
	})
	holder.OnError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	if !watch {
		return
	}
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch disabled")
	}
	holder.WatchSignals()
}

func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.Registry.SetHistogramConfig(histogramConfig(cfg.Accounting))

	if !cfg.Reporter.Enabled {
		a.Reporter.Stop()
		return
	}
	if err := a.Reporter.Start(cfg.Reporter.Schedule); err != nil {
		a.Logger.Error().Err(err).Msg("reporter reschedule failed")
	}
}

func histogramConfig(cfg config.AccountingConfig) wakelock.HistogramConfig {
	return wakelock.HistogramConfig{
		BucketCount: cfg.HistogramBuckets,
		MinSamples:  cfg.HistogramMinSamples,
	}
}

// HealthCheck reports whether the app still accepts events.
func (a *App) HealthCheck(context.Context) error {
	if a.shuttingDown.Load() {
		return ErrShuttingDown
	}
	return nil
}

// Run starts the reporter and HTTP server and blocks until ctx is done or
// the server fails. Shutdown runs in both cases.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Reporter.Enabled {
		if err := a.Reporter.Start(a.cfg.Reporter.Schedule); err != nil {
			return fmt.Errorf("start reporter: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("shutting down")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops accepting events, completes every pending request at the
// current uptime, logs a final report and stops background work. It is safe
// to call more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shuttingDown.Store(true)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			a.shutdownErr = err
		}

		a.Registry.StopTrackingAll(a.Clock.UptimeMillis())

		select {
		case <-a.Reporter.Stop().Done():
		case <-ctx.Done():
			a.Logger.Warn().Msg("reporter did not stop in time")
		}
		a.Reporter.RunOnce()

		if a.Config != nil {
			a.Config.Stop()
		}

		a.Logger.Info().Msg("shutdown complete")
	})
	return a.shutdownErr
}

// NewLogger builds the process logger and sets the global level.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
