// Package main is the entry point for the tower control plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshtower/tower/internal/admin"
	"github.com/meshtower/tower/internal/config"
	"github.com/meshtower/tower/internal/observability"
	"github.com/meshtower/tower/internal/xds/admission"
	"github.com/meshtower/tower/internal/xds/server"
	"github.com/meshtower/tower/internal/xds/snapshot"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// shutdownTimeout bounds the graceful shutdown of all components.
const shutdownTimeout = 30 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg, configPath := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runControlPlane(app, configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("TOWER_CONFIG_PATH", "tower.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("TOWER_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("TOWER_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("tower version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig resolves, loads, and validates the
// configuration, returning it with the resolved path for watching.
func loadAndValidateConfig(configPath string, logger observability.Logger) (*config.Config, string) {
	logger.Info("starting tower",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	resolved, err := config.ResolveConfigPath(configPath)
	if err != nil {
		logger.Fatal("configuration file not found",
			observability.String("config", configPath),
			observability.Error(err),
		)
	}

	cfg, err := config.LoadConfig(resolved)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("config", resolved),
		observability.Bool("ads", cfg.Discovery.ADS),
		observability.Bool("wildcard_enforcement", cfg.Discovery.OutgoingPermissions.Enabled),
		observability.Int("wildcard_allowlist", len(cfg.Discovery.OutgoingPermissions.ServicesAllowedToUseWildcard)),
		observability.Int("admission_rules", len(cfg.Discovery.AdmissionRules)),
	)

	return cfg, resolved
}

// application holds all application components.
type application struct {
	xdsServer   *server.Server
	adminServer *admin.Server
	callbacks   *server.Callbacks
	cache       *snapshot.Cache
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	config      *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("tower")
	metrics.InitVecMetrics()
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer := initTracer(cfg, logger)

	gate, err := admission.NewGate(cfg.Discovery.AdmissionConfig())
	if err != nil {
		logger.Fatal("failed to build admission gate", observability.Error(err))
	}

	cache := snapshot.NewCache(cfg.Discovery.ADS,
		snapshot.WithLogger(logger),
		snapshot.WithMetrics(metrics),
	)

	callbacks := server.NewCallbacks(gate,
		server.WithCallbacksLogger(logger),
		server.WithCallbacksMetrics(metrics),
		server.WithCallbacksTracer(tracer),
	)

	xdsServer, err := server.New(&cfg.Server, cache.Mux(), callbacks,
		server.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to create xDS server", observability.Error(err))
	}

	var adminServer *admin.Server
	if cfg.Admin.Enabled {
		adminServer = admin.New(&cfg.Admin, adminOptions(cfg, xdsServer, callbacks, cache, metrics, logger)...)
	}

	return &application{
		xdsServer:   xdsServer,
		adminServer: adminServer,
		callbacks:   callbacks,
		cache:       cache,
		metrics:     metrics,
		tracer:      tracer,
		config:      cfg,
	}
}

// adminOptions assembles the admin server options from configuration.
func adminOptions(
	cfg *config.Config,
	xdsServer *server.Server,
	callbacks *server.Callbacks,
	cache *snapshot.Cache,
	metrics *observability.Metrics,
	logger observability.Logger,
) []admin.Option {
	opts := []admin.Option{
		admin.WithLogger(logger),
		admin.WithVersion(version),
		admin.WithGateSource(callbacks),
		admin.WithNodeSource(cache),
		admin.WithReadyCheck(xdsServer.IsRunning),
	}

	obs := cfg.Observability
	if obs != nil && obs.Metrics != nil && obs.Metrics.Enabled {
		opts = append(opts, admin.WithMetrics(metrics))
		if obs.Metrics.Path != "" {
			opts = append(opts, admin.WithMetricsPath(obs.Metrics.Path))
		}
	}

	return opts
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  "tower",
		Enabled:      false,
		SamplingRate: 1.0,
	}

	if cfg.Observability != nil && cfg.Observability.Tracing != nil {
		tracerCfg.Enabled = cfg.Observability.Tracing.Enabled
		tracerCfg.SamplingRate = cfg.Observability.Tracing.SamplingRate
		tracerCfg.OTLPEndpoint = cfg.Observability.Tracing.OTLPEndpoint
		if cfg.Observability.Tracing.ServiceName != "" {
			tracerCfg.ServiceName = cfg.Observability.Tracing.ServiceName
		}
	}

	tracer, err := observability.NewTracer(tracerCfg)
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}

	return tracer
}

// runControlPlane starts the servers and handles shutdown.
func runControlPlane(app *application, configPath string, logger observability.Logger) {
	ctx := context.Background()

	if err := app.xdsServer.Start(ctx); err != nil {
		logger.Fatal("failed to start xDS server", observability.Error(err))
	}

	if app.adminServer != nil {
		if err := app.adminServer.Start(ctx); err != nil {
			logger.Fatal("failed to start admin server", observability.Error(err))
		}
	}

	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// startConfigWatcher watches the configuration file and swaps the
// admission gate when it changes. A configuration that fails to build
// a gate keeps the previous gate in place.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		gate, gateErr := admission.NewGate(newCfg.Discovery.AdmissionConfig())
		if gateErr != nil {
			logger.Error("failed to rebuild admission gate, keeping previous",
				observability.Error(gateErr),
			)
			return
		}
		app.callbacks.SwapGate(gate)
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if app.adminServer != nil {
		if err := app.adminServer.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop admin server", observability.Error(err))
		}
	}

	if err := app.xdsServer.GracefulStop(shutdownCtx); err != nil {
		logger.Error("failed to stop xDS server gracefully", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("tower stopped")
}
