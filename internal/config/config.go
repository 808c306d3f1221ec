package config

import (
	"time"

	"github.com/meshtower/tower/internal/xds/admission"
)

// Config is the root configuration for the control plane.
type Config struct {
	// Server contains the xDS gRPC server configuration.
	Server ServerConfig `yaml:"server" json:"server"`

	// Admin contains the admin HTTP server configuration.
	Admin AdminConfig `yaml:"admin" json:"admin"`

	// Discovery contains discovery service and admission configuration.
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Observability contains logging, metrics, and tracing configuration.
	Observability *ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// ServerConfig contains the xDS gRPC server configuration.
type ServerConfig struct {
	// Address is the listen address for the xDS gRPC server.
	Address string `yaml:"address" json:"address"`

	// MaxConcurrentStreams limits the number of concurrent streams per connection.
	MaxConcurrentStreams uint32 `yaml:"maxConcurrentStreams,omitempty" json:"maxConcurrentStreams,omitempty"`

	// MaxRecvMsgSize is the maximum message size in bytes the server can receive.
	MaxRecvMsgSize int `yaml:"maxRecvMsgSize,omitempty" json:"maxRecvMsgSize,omitempty"`

	// MaxSendMsgSize is the maximum message size in bytes the server can send.
	MaxSendMsgSize int `yaml:"maxSendMsgSize,omitempty" json:"maxSendMsgSize,omitempty"`

	// GracefulStopTimeout bounds how long a graceful stop may take before
	// the server is stopped forcefully.
	GracefulStopTimeout Duration `yaml:"gracefulStopTimeout,omitempty" json:"gracefulStopTimeout,omitempty"`

	// Keepalive contains keepalive configuration.
	Keepalive *KeepaliveConfig `yaml:"keepalive,omitempty" json:"keepalive,omitempty"`

	// Reflection enables the gRPC reflection service.
	Reflection bool `yaml:"reflection,omitempty" json:"reflection,omitempty"`
}

// KeepaliveConfig contains gRPC keepalive configuration.
type KeepaliveConfig struct {
	// Time is the duration after which if the server doesn't see any activity
	// it pings the client to see if the transport is still alive.
	Time Duration `yaml:"time,omitempty" json:"time,omitempty"`

	// Timeout is the duration the server waits for activity before closing the connection.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MinTime is the minimum interval a client is allowed between keepalive pings.
	MinTime Duration `yaml:"minTime,omitempty" json:"minTime,omitempty"`

	// PermitWithoutStream if true, server allows keepalive pings even when there are no active streams.
	PermitWithoutStream bool `yaml:"permitWithoutStream,omitempty" json:"permitWithoutStream,omitempty"`
}

// AdminConfig contains the admin HTTP server configuration.
type AdminConfig struct {
	// Enabled indicates whether the admin server should be started.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Address is the listen address for the admin HTTP server.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration before timing out a response write.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`

	// ShutdownTimeout bounds how long a graceful shutdown may take.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// DiscoveryConfig contains discovery service and admission configuration.
type DiscoveryConfig struct {
	// ADS enforces a single resource version across all resource types
	// delivered to a node.
	ADS bool `yaml:"ads" json:"ads"`

	// OutgoingPermissions governs which services may declare a wildcard
	// dependency on all other services.
	OutgoingPermissions OutgoingPermissionsConfig `yaml:"outgoingPermissions" json:"outgoingPermissions"`

	// EnabledCommunicationModes selects which transport variants clients
	// may use to receive updates.
	EnabledCommunicationModes EnabledCommunicationModesConfig `yaml:"enabledCommunicationModes" json:"enabledCommunicationModes"`

	// AdmissionRules is an ordered list of expression-based admission rules
	// evaluated after the built-in policies.
	AdmissionRules []AdmissionRuleConfig `yaml:"admissionRules,omitempty" json:"admissionRules,omitempty"`
}

// OutgoingPermissionsConfig governs wildcard dependency usage.
type OutgoingPermissionsConfig struct {
	// Enabled turns wildcard enforcement on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ServicesAllowedToUseWildcard lists services permitted to depend on
	// all other services.
	ServicesAllowedToUseWildcard []string `yaml:"servicesAllowedToUseWildcard,omitempty" json:"servicesAllowedToUseWildcard,omitempty"`
}

// EnabledCommunicationModesConfig selects the supported transport variants.
type EnabledCommunicationModesConfig struct {
	// ADS permits clients that aggregate all resource types onto one stream.
	ADS bool `yaml:"ads" json:"ads"`

	// XDS permits clients that open separate streams per resource type.
	XDS bool `yaml:"xds" json:"xds"`
}

// AdmissionRuleConfig is a single expression-based admission rule.
type AdmissionRuleConfig struct {
	// Name identifies the rule in rejection messages and logs.
	Name string `yaml:"name" json:"name"`

	// Expression is a CEL expression over service, dependencies, and ads.
	// A node is rejected when the expression evaluates to true.
	Expression string `yaml:"expression" json:"expression"`
}

// ObservabilityConfig represents observability configuration.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Tracing *TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// MetricsConfig represents metrics configuration. Metrics are served on
// the admin HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:              ":18000",
			MaxConcurrentStreams: 1000,
			GracefulStopTimeout:  Duration(30 * time.Second),
			Keepalive: &KeepaliveConfig{
				Time:                Duration(30 * time.Second),
				Timeout:             Duration(5 * time.Second),
				MinTime:             Duration(5 * time.Second),
				PermitWithoutStream: true,
			},
		},
		Admin: AdminConfig{
			Enabled:         true,
			Address:         ":9090",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Discovery: DiscoveryConfig{
			ADS: false,
			OutgoingPermissions: OutgoingPermissionsConfig{
				Enabled: true,
			},
			EnabledCommunicationModes: EnabledCommunicationModesConfig{
				ADS: true,
				XDS: true,
			},
		},
		Observability: &ObservabilityConfig{
			Metrics: &MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: &TracingConfig{
				Enabled:      false,
				SamplingRate: 1.0,
				ServiceName:  "tower",
			},
			Logging: &LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// AdmissionConfig converts the discovery section into the admission
// gate configuration.
func (d *DiscoveryConfig) AdmissionConfig() admission.Config {
	rules := make([]admission.RuleConfig, 0, len(d.AdmissionRules))
	for _, r := range d.AdmissionRules {
		rules = append(rules, admission.RuleConfig{
			Name:       r.Name,
			Expression: r.Expression,
		})
	}

	return admission.Config{
		OutgoingPermissions: admission.OutgoingPermissionsConfig{
			Enabled:                      d.OutgoingPermissions.Enabled,
			ServicesAllowedToUseWildcard: append([]string(nil), d.OutgoingPermissions.ServicesAllowedToUseWildcard...),
		},
		CommunicationModes: admission.CommunicationModesConfig{
			ADS: d.EnabledCommunicationModes.ADS,
			XDS: d.EnabledCommunicationModes.XDS,
		},
		Rules: rules,
	}
}
