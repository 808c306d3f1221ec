package admission

import "github.com/meshtower/tower/internal/xds/node"

// Gate runs admission policies against discovery requests. The policy
// order is fixed when the gate is built: the wildcard-dependency check
// runs before the communication-mode check, with custom rules last.
// A request failing several policies is reported with the violation of
// the earliest one.
//
// A Gate is immutable and safe for concurrent use from any number of
// streams without locking.
type Gate struct {
	cfg      Config
	policies []Policy
}

// NewGate builds a gate from configuration. The only error source is
// custom rule compilation.
func NewGate(cfg Config) (*Gate, error) {
	policies := []Policy{
		NewWildcardDependenciesPolicy(cfg.OutgoingPermissions),
		NewCommunicationModePolicy(cfg.CommunicationModes),
	}

	if len(cfg.Rules) > 0 {
		rules, err := NewRulesPolicy(cfg.Rules)
		if err != nil {
			return nil, err
		}
		policies = append(policies, rules)
	}

	return &Gate{cfg: cfg, policies: policies}, nil
}

// Validate checks one request against every policy in order and
// returns the first violation, or nil when all policies accept. The
// stream ID is carried for caller-side correlation only and never
// influences the outcome.
func (g *Gate) Validate(streamID int64, md node.Metadata) error {
	for _, policy := range g.policies {
		if violation := policy.Check(md); violation != nil {
			return violation
		}
	}
	return nil
}

// PolicyNames returns the names of the configured policies in
// evaluation order.
func (g *Gate) PolicyNames() []string {
	names := make([]string, 0, len(g.policies))
	for _, policy := range g.policies {
		names = append(names, policy.Name())
	}
	return names
}

// Config returns the configuration the gate was built from.
func (g *Gate) Config() Config {
	return g.cfg
}
