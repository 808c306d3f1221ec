package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, ":18000", cfg.Server.Address)
	assert.Equal(t, uint32(1000), cfg.Server.MaxConcurrentStreams)
	require.NotNil(t, cfg.Server.Keepalive)
	assert.Equal(t, 30*time.Second, cfg.Server.Keepalive.Time.Duration())
	assert.Equal(t, 5*time.Second, cfg.Server.Keepalive.Timeout.Duration())
	assert.True(t, cfg.Server.Keepalive.PermitWithoutStream)

	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, ":9090", cfg.Admin.Address)

	assert.False(t, cfg.Discovery.ADS)
	assert.True(t, cfg.Discovery.OutgoingPermissions.Enabled)
	assert.Empty(t, cfg.Discovery.OutgoingPermissions.ServicesAllowedToUseWildcard)
	assert.True(t, cfg.Discovery.EnabledCommunicationModes.ADS)
	assert.True(t, cfg.Discovery.EnabledCommunicationModes.XDS)
	assert.Empty(t, cfg.Discovery.AdmissionRules)

	require.NotNil(t, cfg.Observability)
	require.NotNil(t, cfg.Observability.Logging)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
	require.NotNil(t, cfg.Observability.Metrics)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	require.NotNil(t, cfg.Observability.Tracing)
	assert.False(t, cfg.Observability.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Observability.Tracing.SamplingRate)
}

func TestDiscoveryConfig_AdmissionConfig(t *testing.T) {
	t.Parallel()

	discovery := DiscoveryConfig{
		ADS: true,
		OutgoingPermissions: OutgoingPermissionsConfig{
			Enabled:                      true,
			ServicesAllowedToUseWildcard: []string{"gateway", "mesh-router"},
		},
		EnabledCommunicationModes: EnabledCommunicationModesConfig{
			ADS: true,
			XDS: false,
		},
		AdmissionRules: []AdmissionRuleConfig{
			{Name: "block-legacy", Expression: `service.startsWith("legacy-")`},
		},
	}

	ac := discovery.AdmissionConfig()

	assert.True(t, ac.OutgoingPermissions.Enabled)
	assert.Equal(t, []string{"gateway", "mesh-router"}, ac.OutgoingPermissions.ServicesAllowedToUseWildcard)
	assert.True(t, ac.CommunicationModes.ADS)
	assert.False(t, ac.CommunicationModes.XDS)
	require.Len(t, ac.Rules, 1)
	assert.Equal(t, "block-legacy", ac.Rules[0].Name)
	assert.Equal(t, `service.startsWith("legacy-")`, ac.Rules[0].Expression)
}

func TestDiscoveryConfig_AdmissionConfig_CopiesAllowlist(t *testing.T) {
	t.Parallel()

	discovery := DiscoveryConfig{
		OutgoingPermissions: OutgoingPermissionsConfig{
			Enabled:                      true,
			ServicesAllowedToUseWildcard: []string{"gateway"},
		},
	}

	ac := discovery.AdmissionConfig()
	discovery.OutgoingPermissions.ServicesAllowedToUseWildcard[0] = "mutated"

	assert.Equal(t, []string{"gateway"}, ac.OutgoingPermissions.ServicesAllowedToUseWildcard)
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	content := `
server:
  address: ":15000"
  maxConcurrentStreams: 500
  keepalive:
    time: "1m"
admin:
  enabled: true
  address: ":8081"
discovery:
  ads: true
  outgoingPermissions:
    enabled: true
    servicesAllowedToUseWildcard:
      - gateway
  enabledCommunicationModes:
    ads: true
    xds: false
  admissionRules:
    - name: block-legacy
      expression: service.startsWith("legacy-")
`

	cfg := DefaultConfig()
	err := yaml.Unmarshal([]byte(content), cfg)
	require.NoError(t, err)

	assert.Equal(t, ":15000", cfg.Server.Address)
	assert.Equal(t, uint32(500), cfg.Server.MaxConcurrentStreams)
	require.NotNil(t, cfg.Server.Keepalive)
	assert.Equal(t, time.Minute, cfg.Server.Keepalive.Time.Duration())
	// Keys absent from the document keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Server.Keepalive.Timeout.Duration())

	assert.Equal(t, ":8081", cfg.Admin.Address)
	assert.True(t, cfg.Discovery.ADS)
	assert.Equal(t, []string{"gateway"}, cfg.Discovery.OutgoingPermissions.ServicesAllowedToUseWildcard)
	assert.True(t, cfg.Discovery.EnabledCommunicationModes.ADS)
	assert.False(t, cfg.Discovery.EnabledCommunicationModes.XDS)
	require.Len(t, cfg.Discovery.AdmissionRules, 1)
	assert.Equal(t, "block-legacy", cfg.Discovery.AdmissionRules[0].Name)
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{
			name:     "seconds",
			input:    `value: "30s"`,
			expected: 30 * time.Second,
		},
		{
			name:     "compound",
			input:    `value: "1h30m"`,
			expected: 90 * time.Minute,
		},
		{
			name:     "empty string",
			input:    `value: ""`,
			expected: 0,
		},
		{
			name:    "invalid",
			input:   `value: "not-a-duration"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var target struct {
				Value Duration `yaml:"value"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &target)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, target.Value.Duration())
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	t.Parallel()

	d := Duration(90 * time.Second)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var back Duration
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)
}

func TestDuration_UnmarshalJSON_Null(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, json.Unmarshal([]byte("null"), &d))
	assert.Equal(t, time.Duration(0), d.Duration())
}
