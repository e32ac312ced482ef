// ABOUTME: Engine application orchestration
// ABOUTME: Coordinates config loading, the engine, the bridge and the dashboard
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/capability"
	"github.com/Resonate-Protocol/resonate-feedback/internal/config"
	"github.com/Resonate-Protocol/resonate-feedback/internal/server"
	"github.com/Resonate-Protocol/resonate-feedback/internal/ui"
	"github.com/Resonate-Protocol/resonate-feedback/internal/version"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/feedback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Config holds application options resolved from the command line
type Config struct {
	ConfigFile string
	LogFile    string
	UseTUI     bool
	// Bridge serves hosts and renders haptics and speech through them
	Bridge bool
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level": "log_level",
	"addr":      "bridge.addr",
	"name":      "bridge.name",
	"advertise": "bridge.advertise",
	"output":    "output.backend",
}

// App represents the running engine process
type App struct {
	config   Config
	log      zerolog.Logger
	logFile  io.Closer
	loader   *config.Loader
	registry *prometheus.Registry
	engine   *feedback.Engine
	server   *server.Server
}

// New sets up logging and the config loader. Nothing starts until Run.
func New(cfg Config) (*App, error) {
	logger, closer, err := NewLogger(cfg.LogFile, !cfg.UseTUI)
	if err != nil {
		return nil, err
	}
	return &App{
		config:  cfg,
		log:     logger,
		logFile: closer,
		loader:  config.NewLoader(cfg.ConfigFile, logger),
	}, nil
}

// NewLogger writes to path and, when console is set, to stdout as well
func NewLogger(path string, console bool) (zerolog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = io.NopCloser(nil)

	if path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("error opening log file: %w", err)
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339})
		closer = f
	}
	if console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return logger, closer, nil
}

// BindFlags lets command-line flags override config file values
func (a *App) BindFlags(flags *pflag.FlagSet) error {
	v := a.loader.Viper()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// Engine returns the engine once Run has built it
func (a *App) Engine() *feedback.Engine {
	return a.engine
}

// Run loads the config, starts the engine and blocks until ctx ends or
// the dashboard quits
func (a *App) Run(ctx context.Context) error {
	defer a.logFile.Close()

	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.log.Info().
		Str("version", version.Version).
		Str("config", a.loader.ConfigFile()).
		Bool("bridge", a.config.Bridge).
		Msg("starting feedback engine")

	if err := a.build(ctx, cfg); err != nil {
		return err
	}
	if err := a.engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer func() {
		if err := a.engine.Shutdown(); err != nil {
			a.log.Warn().Err(err).Msg("engine shutdown")
		}
	}()

	if a.loader.ConfigFile() != "" {
		a.loader.Watch(a.reload)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		a.server.Attach(a.engine)
		g.Go(func() error { return a.server.Run(gctx) })
	}
	g.Go(func() error {
		if !a.config.UseTUI {
			<-gctx.Done()
			return nil
		}
		if err := ui.Run(gctx, a.engine, a.hostInfo); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return errQuit
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	a.log.Info().Msg("feedback engine stopped")
	return nil
}

// errQuit ends the group when the user leaves the dashboard
var errQuit = errors.New("dashboard closed")

func (a *App) build(ctx context.Context, cfg config.Config) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector())

	opts := feedback.Options{
		Config:     cfg,
		Logger:     a.log,
		Registerer: a.registry,
	}

	if a.config.Bridge {
		a.server = server.New(server.Config{
			Addr:      cfg.Bridge.Addr,
			Name:      cfg.Bridge.Name,
			Advertise: cfg.Bridge.Advertise,
			Gatherer:  a.registry,
			Logger:    a.log,
		})
		// hosts render vibration even though this process cannot
		caps := capability.Detect(ctx, a.log)
		caps.Vibration = true
		opts.Capabilities = &caps
		opts.Vibrator = a.server.Vibrator()
		opts.Synthesizer = a.server.Synthesizer()
	}

	engine, err := feedback.New(opts)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	a.engine = engine
	return nil
}

func (a *App) reload(cfg config.Config) {
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if err := a.engine.UpdateConfig(cfg); err != nil {
		a.log.Warn().Err(err).Msg("config update rejected")
	}
}

func (a *App) hostInfo() []ui.HostInfo {
	if a.server == nil {
		return nil
	}
	return lo.Map(a.server.Hosts(), func(h *server.Host, _ int) ui.HostInfo {
		return ui.HostInfo{Name: h.Name, Vibration: h.Vibration, Speech: h.Speech}
	})
}
