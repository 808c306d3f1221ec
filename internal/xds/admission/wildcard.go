package admission

import "github.com/meshtower/tower/internal/xds/node"

// WildcardDependenciesPolicy blocks services that declare the wildcard
// dependency without being explicitly allowed to. Services absent from
// the allow list may still declare any set of named dependencies.
type WildcardDependenciesPolicy struct {
	enabled bool
	allowed map[string]struct{}
}

// NewWildcardDependenciesPolicy builds the policy from configuration.
// The allow list is converted to a set once so lookups are O(1) per
// request.
func NewWildcardDependenciesPolicy(cfg OutgoingPermissionsConfig) *WildcardDependenciesPolicy {
	allowed := make(map[string]struct{}, len(cfg.ServicesAllowedToUseWildcard))
	for _, name := range cfg.ServicesAllowedToUseWildcard {
		allowed[name] = struct{}{}
	}
	return &WildcardDependenciesPolicy{
		enabled: cfg.Enabled,
		allowed: allowed,
	}
}

// Name implements Policy.
func (p *WildcardDependenciesPolicy) Name() string {
	return "wildcard-dependencies"
}

// Check implements Policy.
func (p *WildcardDependenciesPolicy) Check(md node.Metadata) *Violation {
	if !p.enabled {
		return nil
	}
	if !md.Dependencies.HasWildcard() {
		return nil
	}
	if _, ok := p.allowed[md.ServiceName]; ok {
		return nil
	}
	return &Violation{
		Kind:    KindWildcardNotAllowed,
		Service: md.ServiceName,
	}
}

var _ Policy = (*WildcardDependenciesPolicy)(nil)
