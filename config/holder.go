package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// field is one dotted config path. Restart-only fields have a keep func that
// copies the running value back over a freshly loaded config.
type field struct {
	path string
	get  func(*Config) any
	keep func(dst, running *Config)
}

func live(path string, get func(*Config) any) field {
	return field{path: path, get: get}
}

func restartOnly(path string, get func(*Config) any, keep func(dst, running *Config)) field {
	return field{path: path, get: get, keep: keep}
}

var fields = []field{
	restartOnly("server.host",
		func(c *Config) any { return c.Server.Host },
		func(d, r *Config) { d.Server.Host = r.Server.Host }),
	restartOnly("server.port",
		func(c *Config) any { return c.Server.Port },
		func(d, r *Config) { d.Server.Port = r.Server.Port }),
	restartOnly("server.read_timeout",
		func(c *Config) any { return c.Server.ReadTimeout },
		func(d, r *Config) { d.Server.ReadTimeout = r.Server.ReadTimeout }),
	restartOnly("server.write_timeout",
		func(c *Config) any { return c.Server.WriteTimeout },
		func(d, r *Config) { d.Server.WriteTimeout = r.Server.WriteTimeout }),
	live("logging.level", func(c *Config) any { return c.Logging.Level }),
	restartOnly("logging.format",
		func(c *Config) any { return c.Logging.Format },
		func(d, r *Config) { d.Logging.Format = r.Logging.Format }),
	restartOnly("metrics.enabled",
		func(c *Config) any { return c.Metrics.Enabled },
		func(d, r *Config) { d.Metrics.Enabled = r.Metrics.Enabled }),
	restartOnly("metrics.path",
		func(c *Config) any { return c.Metrics.Path },
		func(d, r *Config) { d.Metrics.Path = r.Metrics.Path }),
	live("reporter.enabled", func(c *Config) any { return c.Reporter.Enabled }),
	live("reporter.schedule", func(c *Config) any { return c.Reporter.Schedule }),
	live("accounting.histogram_buckets", func(c *Config) any { return c.Accounting.HistogramBuckets }),
	live("accounting.histogram_min_samples", func(c *Config) any { return c.Accounting.HistogramMinSamples }),
}

// Changes lists the fields that differ between two configs.
type Changes struct {
	Live    []string // applied by OnChange listeners
	Restart []string // ignored until the process restarts
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Live) == 0 && len(c.Restart) == 0
}

// Diff compares two configs field by field.
// This is a PURE function.
func Diff(old, next *Config) Changes {
	var ch Changes
	for _, f := range fields {
		if f.get(old) == f.get(next) {
			continue
		}
		if f.keep != nil {
			ch.Restart = append(ch.Restart, f.path)
		} else {
			ch.Live = append(ch.Live, f.path)
		}
	}
	return ch
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	var out []string
	for _, f := range fields {
		if f.keep == nil {
			out = append(out, f.path)
		}
	}
	return out
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	var out []string
	for _, f := range fields {
		if f.keep != nil {
			out = append(out, f.path)
		}
	}
	return out
}

// Holder serves the running configuration and reloads its live fields from
// disk. Restart-only fields keep the values the process started with.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	onChange []func(*Config)
	onError  []func(error)

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the configuration at path.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		config: cfg,
		path:   absPath,
		logger: logger.With().Str("component", "config").Logger(),
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the running configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reads the file again. An invalid file keeps the running config and
// is reported to OnError listeners. OnChange listeners run only when a live
// field changed.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping running config")
		h.mu.RLock()
		listeners := h.onError
		h.mu.RUnlock()
		for _, fn := range listeners {
			fn(err)
		}
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	running := h.config
	changes := Diff(running, next)
	for _, f := range fields {
		if f.keep != nil {
			f.keep(next, running)
		}
	}
	if len(changes.Live) > 0 {
		h.config = next
	}
	listeners := h.onChange
	h.mu.Unlock()

	h.logChanges(running, next, changes)
	if len(changes.Live) == 0 {
		return nil
	}

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// OnChange registers a callback for applied reloads.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers a callback for failed reloads.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// WatchFile reloads whenever the config file is written or replaced.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Editors that save atomically replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file")
	return nil
}

// WatchSignals reloads on SIGHUP.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP")
				_ = h.Reload()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.logger.Debug().Str("event", event.Op.String()).Msg("config file changed")
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = h.Reload()

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(running, next *Config, changes Changes) {
	if changes.Empty() {
		h.logger.Debug().Msg("config file unchanged")
		return
	}
	if len(changes.Restart) > 0 {
		h.logger.Warn().
			Strs("fields", changes.Restart).
			Msg("restart required to apply config changes, keeping running values")
	}
	if len(changes.Live) == 0 {
		return
	}

	if running.Logging.Level != next.Logging.Level {
		h.logger.Info().
			Str("old", running.Logging.Level).
			Str("new", next.Logging.Level).
			Msg("log level changed")
	}
	if running.Accounting != next.Accounting {
		h.logger.Info().
			Int("buckets", next.Accounting.HistogramBuckets).
			Int("min_samples", next.Accounting.HistogramMinSamples).
			Msg("histogram sizing changed, applies to new clients")
	}
	h.logger.Info().Strs("fields", changes.Live).Msg("configuration reloaded")
}
