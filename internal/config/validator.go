package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates control plane configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a control plane configuration.
func ValidateConfig(config *Config) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateAdmin(&config.Admin, &config.Server)
	v.validateDiscovery(&config.Discovery)

	if config.Observability != nil {
		v.validateObservability(config.Observability, "observability")
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateServer validates the xDS server configuration.
func (v *Validator) validateServer(server *ServerConfig) {
	if server.Address == "" {
		v.addError("server.address", "address is required")
	}

	if server.MaxRecvMsgSize < 0 {
		v.addError("server.maxRecvMsgSize", "maxRecvMsgSize must not be negative")
	}

	if server.MaxSendMsgSize < 0 {
		v.addError("server.maxSendMsgSize", "maxSendMsgSize must not be negative")
	}

	if server.Keepalive != nil {
		if server.Keepalive.Time < 0 {
			v.addError("server.keepalive.time", "time must not be negative")
		}
		if server.Keepalive.Timeout < 0 {
			v.addError("server.keepalive.timeout", "timeout must not be negative")
		}
	}
}

// validateAdmin validates the admin server configuration.
func (v *Validator) validateAdmin(admin *AdminConfig, server *ServerConfig) {
	if !admin.Enabled {
		return
	}

	if admin.Address == "" {
		v.addError("admin.address", "address is required when admin is enabled")
	} else if admin.Address == server.Address {
		v.addError("admin.address", "admin and server addresses must differ")
	}
}

// validateDiscovery validates discovery and admission configuration.
func (v *Validator) validateDiscovery(discovery *DiscoveryConfig) {
	modes := discovery.EnabledCommunicationModes
	if !modes.ADS && !modes.XDS {
		v.addError("discovery.enabledCommunicationModes",
			"at least one communication mode must be enabled")
	}

	names := make(map[string]bool)
	for i, rule := range discovery.AdmissionRules {
		path := fmt.Sprintf("discovery.admissionRules[%d]", i)

		if rule.Name == "" {
			v.addError(path+".name", "name is required")
		} else if names[rule.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate rule name: %s", rule.Name))
		}
		names[rule.Name] = true

		if rule.Expression == "" {
			v.addError(path+".expression", "expression is required")
		}
	}
}

// validateObservability validates observability configuration.
func (v *Validator) validateObservability(obs *ObservabilityConfig, path string) {
	if obs.Metrics != nil {
		if obs.Metrics.Path != "" && !strings.HasPrefix(obs.Metrics.Path, "/") {
			v.addError(path+".metrics.path", "metrics path must start with /")
		}
	}

	if obs.Tracing != nil {
		if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
			v.addError(path+".tracing.samplingRate", "samplingRate must be between 0 and 1")
		}
	}

	if obs.Logging != nil {
		validLevels := map[string]bool{
			"":      true,
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if !validLevels[strings.ToLower(obs.Logging.Level)] {
			v.addError(path+".logging.level", fmt.Sprintf("invalid log level: %s", obs.Logging.Level))
		}

		validFormats := map[string]bool{
			"":        true,
			"json":    true,
			"console": true,
		}

		if !validFormats[strings.ToLower(obs.Logging.Format)] {
			v.addError(path+".logging.format", fmt.Sprintf("invalid log format: %s", obs.Logging.Format))
		}
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
