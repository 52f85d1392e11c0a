package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/beacon/internal/config"
	"github.com/fyrsmithlabs/beacon/internal/logging"
	"github.com/fyrsmithlabs/beacon/internal/server"
	"github.com/fyrsmithlabs/beacon/internal/telemetry"
	"github.com/fyrsmithlabs/beacon/pkg/device"
	"github.com/fyrsmithlabs/beacon/pkg/remoteconfig"
	"github.com/fyrsmithlabs/beacon/pkg/screen"
	"github.com/fyrsmithlabs/beacon/pkg/session"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline until interrupted",
		Long: `Run the telemetry pipeline, the remote config poller and the local
HTTP server until SIGINT or SIGTERM.

Configuration is read from the config file and BEACON_* environment
variables, for example:
  BEACON_TELEMETRY_ENABLED=true
  BEACON_REMOTE_CONFIG_URL=https://config.example.com/v1/interactions
  BEACON_SERVER_ENABLED=true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, *configPath)
		},
	}
}

// configStore is the snapshot type kept by the run loop.
type configStore = remoteconfig.Store[remoteconfig.InteractionConfig]

// run starts beacon and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Creates the session manager and device identity
//  3. Initializes telemetry with the enrichment pipeline
//  4. Initializes the logger, bridged to the logger provider
//  5. Starts the remote config poller (and file watcher)
//  6. Starts the local HTTP server
//  7. Ends the session and flushes telemetry on shutdown
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sessions := session.NewManager(sessionConfig(cfg))
	screens := screen.NewTracker()

	stateDir, err := device.DefaultStateDir()
	if err != nil {
		stateDir = ""
	}
	identity := device.NewHostIdentity(stateDir)

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg), telemetry.Pipeline{
		Sessions: sessions,
		Screens:  screens,
		Device:   device.NewResourceEnricher(identity),
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.ShutdownTimeout.Duration())
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	if tel.IsEnabled() {
		fields := []zap.Field{
			zap.String("endpoint", cfg.Telemetry.Endpoint),
			zap.String("protocol", cfg.Telemetry.Protocol),
		}
		for _, name := range slices.Sorted(maps.Keys(cfg.Telemetry.Headers)) {
			fields = append(fields, logging.Secret("header."+name, cfg.Telemetry.Headers[name]))
		}
		logger.Info(ctx, "Exporting telemetry", fields...)
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "Telemetry degraded", zap.Strings("reasons", h.Reasons))
	}
	if err := identity.Err(); err != nil {
		logger.Warn(ctx, "Device id not persisted", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	g, gctx := errgroup.WithContext(ctx)

	var (
		store  *configStore
		poller *remoteconfig.Poller[remoteconfig.InteractionConfig]
	)
	if cfg.RemoteConfig.Enabled() {
		store = remoteconfig.NewStore[remoteconfig.InteractionConfig]()
		source, watch := newConfigSource(cfg, tel, logger)
		poller = remoteconfig.NewPoller(source, store, pollerConfig(cfg),
			remoteconfig.WithLogger(logger.Underlying()),
			remoteconfig.WithMetrics(remoteconfig.NewMetrics(reg)),
		)
		g.Go(func() error { return poller.Run(gctx) })

		if watch != nil {
			changes, err := watch(gctx)
			if err != nil {
				logger.Warn(ctx, "Config file watch disabled", zap.Error(err))
			} else {
				g.Go(func() error {
					for range changes {
						poller.Trigger()
					}
					return nil
				})
			}
		}
	}

	if cfg.Server.Enabled {
		opts := []server.Option{
			server.WithLogger(logger.Underlying()),
			server.WithGatherer(reg),
			server.WithHealth(tel),
			server.WithHTTPMetrics(server.NewHTTPMetrics(tel.Meter("github.com/fyrsmithlabs/beacon/internal/server"), logger.Underlying())),
		}
		if store != nil {
			opts = append(opts, server.WithConfigStore(store), server.WithRefresher(poller))
		}
		srv := server.NewServer(server.Config{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
			Service:         cfg.Service.Name,
		}, opts...)
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	logger.Info(ctx, "Starting beacon",
		zap.String("service", cfg.Service.Name),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.Bool("remote_config", cfg.RemoteConfig.Enabled()),
		zap.Bool("server", cfg.Server.Enabled),
		zap.String("session.id", sessions.Current().ID))

	err = g.Wait()

	// The final session end record must reach the exporter before shutdown.
	sessions.End()
	logger.Info(context.Background(), "beacon stopped")
	return err
}

// newConfigSource returns the configured source. The watch function is
// non-nil for file sources.
func newConfigSource(cfg *config.Config, tel *telemetry.Telemetry, logger *logging.Logger) (
	remoteconfig.Source[remoteconfig.InteractionConfig],
	func(context.Context) (<-chan struct{}, error),
) {
	if cfg.RemoteConfig.URL != "" {
		url := cfg.RemoteConfig.URL
		return remoteconfig.NewHTTPSource[remoteconfig.InteractionConfig](
			func() string { return url },
			remoteconfig.WithTracerProvider(tel.TracerProvider()),
		), nil
	}
	fs := remoteconfig.NewFileSource[remoteconfig.InteractionConfig](cfg.RemoteConfig.File, logger.Underlying())
	return fs, fs.Watch
}

func pollerConfig(cfg *config.Config) remoteconfig.PollerConfig {
	rc := cfg.RemoteConfig
	return remoteconfig.PollerConfig{
		Interval:     rc.Interval.Duration(),
		Timeout:      rc.Timeout.Duration(),
		MaxBackoff:   rc.MaxBackoff.Duration(),
		TriggerRate:  rate.Limit(rc.TriggerRate),
		TriggerBurst: rc.TriggerBurst,
	}
}
