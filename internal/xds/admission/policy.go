package admission

import "github.com/meshtower/tower/internal/xds/node"

// Policy is a single admission check. Implementations must be pure:
// the result depends only on the metadata and the configuration the
// policy was built with.
type Policy interface {
	// Name identifies the policy in logs and introspection output.
	Name() string

	// Check returns nil when the request is acceptable, or a violation
	// describing why it is not.
	Check(md node.Metadata) *Violation
}
