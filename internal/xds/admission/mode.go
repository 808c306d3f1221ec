package admission

import "github.com/meshtower/tower/internal/xds/node"

// CommunicationModePolicy blocks requests for discovery transports the
// server does not accept. Exactly one transport branch is evaluated
// per request, chosen by the metadata's ADS flag.
type CommunicationModePolicy struct {
	ads bool
	xds bool
}

// NewCommunicationModePolicy builds the policy from configuration.
func NewCommunicationModePolicy(cfg CommunicationModesConfig) *CommunicationModePolicy {
	return &CommunicationModePolicy{
		ads: cfg.ADS,
		xds: cfg.XDS,
	}
}

// Name implements Policy.
func (p *CommunicationModePolicy) Name() string {
	return "communication-mode"
}

// Check implements Policy.
func (p *CommunicationModePolicy) Check(md node.Metadata) *Violation {
	if md.ADS {
		if p.ads {
			return nil
		}
		return &Violation{
			Kind:    KindModeNotSupported,
			Service: md.ServiceName,
			Mode:    ModeADS,
		}
	}

	if p.xds {
		return nil
	}
	return &Violation{
		Kind:    KindModeNotSupported,
		Service: md.ServiceName,
		Mode:    ModeXDS,
	}
}

var _ Policy = (*CommunicationModePolicy)(nil)
