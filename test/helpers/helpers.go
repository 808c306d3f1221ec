// Package helpers provides common test utilities for the control plane tests.
package helpers

import (
	"context"
	"fmt"
	"os"

	"github.com/meshtower/tower/internal/admin"
	"github.com/meshtower/tower/internal/config"
	"github.com/meshtower/tower/internal/observability"
	"github.com/meshtower/tower/internal/xds/admission"
	"github.com/meshtower/tower/internal/xds/server"
	"github.com/meshtower/tower/internal/xds/snapshot"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// NewTestConfig returns a configuration suitable for in-process tests.
// Both servers bind ephemeral localhost ports so parallel tests do not
// collide, and the admin server stays disabled unless a test enables it.
func NewTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Address = getEnvOrDefault("TEST_XDS_ADDRESS", "127.0.0.1:0")
	cfg.Admin.Enabled = false
	cfg.Admin.Address = getEnvOrDefault("TEST_ADMIN_ADDRESS", "127.0.0.1:0")
	return cfg
}

// ControlPlaneInstance represents a running control plane for testing.
type ControlPlaneInstance struct {
	XDSServer   *server.Server
	AdminServer *admin.Server
	Callbacks   *server.Callbacks
	Cache       *snapshot.Cache
	Config      *config.Config
	Address     string
}

// StartControlPlane starts a control plane instance from a configuration file.
func StartControlPlane(ctx context.Context, configPath string) (*ControlPlaneInstance, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return StartControlPlaneWithConfig(ctx, cfg)
}

// StartControlPlaneWithConfig starts a control plane instance with the given
// configuration struct.
func StartControlPlaneWithConfig(ctx context.Context, cfg *config.Config) (*ControlPlaneInstance, error) {
	logger := observability.NopLogger()

	gate, err := admission.NewGate(cfg.Discovery.AdmissionConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build admission gate: %w", err)
	}

	cache := snapshot.NewCache(cfg.Discovery.ADS, snapshot.WithLogger(logger))
	callbacks := server.NewCallbacks(gate, server.WithCallbacksLogger(logger))

	xdsServer, err := server.New(&cfg.Server, cache.Mux(), callbacks, server.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create xds server: %w", err)
	}

	if err := xdsServer.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start xds server: %w", err)
	}

	inst := &ControlPlaneInstance{
		XDSServer: xdsServer,
		Callbacks: callbacks,
		Cache:     cache,
		Config:    cfg,
		Address:   xdsServer.ListenerAddress(),
	}

	if cfg.Admin.Enabled {
		adminServer := admin.New(&cfg.Admin,
			admin.WithLogger(logger),
			admin.WithGateSource(callbacks),
			admin.WithNodeSource(cache),
			admin.WithReadyCheck(xdsServer.IsRunning),
		)
		if err := adminServer.Start(ctx); err != nil {
			_ = xdsServer.Stop(ctx)
			return nil, fmt.Errorf("failed to start admin server: %w", err)
		}
		inst.AdminServer = adminServer
	}

	return inst, nil
}

// Stop shuts down the control plane instance.
func (i *ControlPlaneInstance) Stop(ctx context.Context) error {
	if i.AdminServer != nil {
		if err := i.AdminServer.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop admin server: %w", err)
		}
	}
	return i.XDSServer.GracefulStop(ctx)
}
