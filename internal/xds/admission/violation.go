package admission

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind discriminates the possible admission violations.
type Kind uint8

const (
	// KindWildcardNotAllowed marks a service that declared the wildcard
	// dependency without being on the allow list.
	KindWildcardNotAllowed Kind = iota

	// KindModeNotSupported marks a request for a discovery transport
	// the server does not accept.
	KindModeNotSupported

	// KindRuleDenied marks a request blocked by a custom admission
	// rule.
	KindRuleDenied
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindWildcardNotAllowed:
		return "wildcard_not_allowed"
	case KindModeNotSupported:
		return "mode_not_supported"
	case KindRuleDenied:
		return "rule_denied"
	default:
		return "unknown"
	}
}

// Mode names a discovery transport in violation messages.
type Mode string

const (
	// ModeADS is the aggregated transport.
	ModeADS Mode = "ADS"

	// ModeXDS is the per-type transport.
	ModeXDS Mode = "XDS"
)

// Violation describes why a request was not admitted. Exactly one
// policy produces it and its fields depend on the kind: Mode is set
// for KindModeNotSupported, Rule for KindRuleDenied.
type Violation struct {
	Kind    Kind
	Service string
	Mode    Mode
	Rule    string
}

// Error returns the client-facing description of the violation. The
// text is part of the protocol surface relied upon by operators and
// must not change between releases.
func (v *Violation) Error() string {
	switch v.Kind {
	case KindWildcardNotAllowed:
		return fmt.Sprintf(
			"Blocked service %s from using all dependencies. Only defined services can use all dependencies",
			v.Service,
		)
	case KindModeNotSupported:
		return fmt.Sprintf(
			"Blocked service %s from receiving updates. %s is not supported by server.",
			v.Service, v.Mode,
		)
	case KindRuleDenied:
		return fmt.Sprintf("Blocked service %s by admission rule %s.", v.Service, v.Rule)
	default:
		return fmt.Sprintf("Blocked service %s.", v.Service)
	}
}

// GRPCStatus maps the violation to an InvalidArgument status. The
// grpc status package picks this up automatically when the violation
// is returned through the server callbacks, so the stream closes with
// the violation message as the status description.
func (v *Violation) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, v.Error())
}
