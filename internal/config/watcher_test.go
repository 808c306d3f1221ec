package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshtower/tower/internal/observability"
)

// validConfigYAML is a minimal valid configuration for testing
const validConfigYAML = `
server:
  address: ":18000"
admin:
  enabled: true
  address: ":9090"
discovery:
  outgoingPermissions:
    enabled: true
    servicesAllowedToUseWildcard:
      - gateway
  enabledCommunicationModes:
    ads: true
    xds: true
`

// invalidConfigYAML fails validation because every communication mode
// is disabled
const invalidConfigYAML = `
discovery:
  enabledCommunicationModes:
    ads: false
    xds: false
`

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	callback := func(cfg *Config) {}

	watcher, err := NewWatcher(configPath, callback)
	require.NoError(t, err)
	require.NotNil(t, watcher)

	assert.Equal(t, configPath, watcher.path)
	assert.NotNil(t, watcher.callback)
	assert.Equal(t, 100*time.Millisecond, watcher.debounceDelay)
}

func TestNewWatcher_WithOptions(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	callback := func(cfg *Config) {}
	logger := observability.NopLogger()
	errorCallback := func(err error) {}

	watcher, err := NewWatcher(configPath, callback,
		WithDebounceDelay(200*time.Millisecond),
		WithLogger(logger),
		WithErrorCallback(errorCallback),
	)
	require.NoError(t, err)
	require.NotNil(t, watcher)

	assert.Equal(t, 200*time.Millisecond, watcher.debounceDelay)
	assert.Equal(t, logger, watcher.logger)
	assert.NotNil(t, watcher.errorCallback)
}

func TestWatcher_Start(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	callback := func(cfg *Config) {}

	watcher, err := NewWatcher(configPath, callback,
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)

	// Verify initial config was loaded
	cfg := watcher.GetLastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"gateway"}, cfg.Discovery.OutgoingPermissions.ServicesAllowedToUseWildcard)

	err = watcher.Stop()
	require.NoError(t, err)
}

func TestWatcher_Start_AlreadyRunning(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	callback := func(cfg *Config) {}

	watcher, err := NewWatcher(configPath, callback)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)

	// Start again should return nil (already running)
	err = watcher.Start(ctx)
	assert.NoError(t, err)

	err = watcher.Stop()
	require.NoError(t, err)
}

func TestWatcher_Start_InvalidConfig(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(invalidConfigYAML), 0644)
	require.NoError(t, err)

	callback := func(cfg *Config) {}

	watcher, err := NewWatcher(configPath, callback)
	require.NoError(t, err)

	ctx := context.Background()
	err = watcher.Start(ctx)
	assert.Error(t, err)
}

func TestWatcher_Start_FileNotFound(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nonexistent.yaml")

	callback := func(cfg *Config) {}

	watcher, err := NewWatcher(configPath, callback)
	require.NoError(t, err)

	ctx := context.Background()
	err = watcher.Start(ctx)
	assert.Error(t, err)
}

func TestWatcher_Stop_AfterFailedStart(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nonexistent.yaml")

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	require.Error(t, watcher.Start(context.Background()))
	assert.NoError(t, watcher.Stop())
}

func TestWatcher_Stop_NotRunning(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	err = watcher.Stop()
	assert.NoError(t, err)
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	var reloaded atomic.Bool
	var lastAllowed atomic.Value
	callback := func(cfg *Config) {
		lastAllowed.Store(cfg.Discovery.OutgoingPermissions.ServicesAllowedToUseWildcard)
		reloaded.Store(true)
	}

	watcher, err := NewWatcher(configPath, callback,
		WithDebounceDelay(10*time.Millisecond),
		WithLogger(observability.NopLogger()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()

	// Give the watch loop a moment to come up
	time.Sleep(50 * time.Millisecond)

	updatedConfig := `
discovery:
  outgoingPermissions:
    enabled: true
    servicesAllowedToUseWildcard:
      - gateway
      - mesh-router
`
	err = os.WriteFile(configPath, []byte(updatedConfig), 0644)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reloaded.Load()
	}, 2*time.Second, 10*time.Millisecond)

	allowed, ok := lastAllowed.Load().([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"gateway", "mesh-router"}, allowed)

	cfg := watcher.GetLastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"gateway", "mesh-router"},
		cfg.Discovery.OutgoingPermissions.ServicesAllowedToUseWildcard)
}

func TestWatcher_ReloadInvalidKeepsLastConfig(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	var callbackCount atomic.Int32
	var errorCount atomic.Int32

	watcher, err := NewWatcher(configPath,
		func(cfg *Config) { callbackCount.Add(1) },
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(err error) { errorCount.Add(1) }),
		WithLogger(observability.NopLogger()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()

	time.Sleep(50 * time.Millisecond)

	err = os.WriteFile(configPath, []byte(invalidConfigYAML), 0644)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return errorCount.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	// The broken file must not become the last known config
	assert.Equal(t, int32(0), callbackCount.Load())
	cfg := watcher.GetLastConfig()
	require.NotNil(t, cfg)
	assert.True(t, cfg.Discovery.EnabledCommunicationModes.ADS)
}

func TestWatcher_ForceReload(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	var callbackCount atomic.Int32
	watcher, err := NewWatcher(configPath, func(cfg *Config) {
		callbackCount.Add(1)
	})
	require.NoError(t, err)

	err = watcher.ForceReload()
	require.NoError(t, err)

	assert.Equal(t, int32(1), callbackCount.Load())
	assert.NotNil(t, watcher.GetLastConfig())
}

func TestWatcher_ForceReload_InvalidConfig(t *testing.T) {
	// Not parallel due to file system operations

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tower.yaml")
	err := os.WriteFile(configPath, []byte(invalidConfigYAML), 0644)
	require.NoError(t, err)

	watcher, err := NewWatcher(configPath, func(cfg *Config) {})
	require.NoError(t, err)

	err = watcher.ForceReload()
	assert.Error(t, err)
	assert.Nil(t, watcher.GetLastConfig())
}
