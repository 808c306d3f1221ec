//go:build integration
// +build integration

package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshtower/tower/internal/config"
	"github.com/meshtower/tower/internal/xds/admission"
)

// mustGate builds an admission gate from the discovery section of cfg.
func mustGate(t *testing.T, cfg *config.Config) *admission.Gate {
	t.Helper()

	gate, err := admission.NewGate(cfg.Discovery.AdmissionConfig())
	require.NoError(t, err)
	return gate
}
