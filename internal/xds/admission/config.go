package admission

// OutgoingPermissionsConfig controls which services may declare the
// wildcard dependency. Values are fixed before serving starts.
type OutgoingPermissionsConfig struct {
	// Enabled turns wildcard enforcement on. When false every request
	// passes the wildcard check regardless of its dependencies.
	Enabled bool `json:"enabled"`

	// ServicesAllowedToUseWildcard lists the services permitted to
	// depend on all other services.
	ServicesAllowedToUseWildcard []string `json:"servicesAllowedToUseWildcard,omitempty"`
}

// CommunicationModesConfig declares which discovery transports this
// server accepts.
type CommunicationModesConfig struct {
	// ADS accepts clients using the aggregated transport.
	ADS bool `json:"ads"`

	// XDS accepts clients using per-type transports.
	XDS bool `json:"xds"`
}

// RuleConfig is one custom admission rule. The expression is a CEL
// program over the request metadata that evaluates to true when the
// request must be blocked.
type RuleConfig struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Config carries everything needed to build a Gate.
type Config struct {
	OutgoingPermissions OutgoingPermissionsConfig `json:"outgoingPermissions"`
	CommunicationModes  CommunicationModesConfig  `json:"communicationModes"`
	Rules               []RuleConfig              `json:"rules,omitempty"`
}

// DefaultConfig returns the admission configuration used when none is
// provided: wildcard enforcement on with an empty allow list, both
// transports accepted, no custom rules.
func DefaultConfig() Config {
	return Config{
		OutgoingPermissions: OutgoingPermissionsConfig{
			Enabled: true,
		},
		CommunicationModes: CommunicationModesConfig{
			ADS: true,
			XDS: true,
		},
	}
}
