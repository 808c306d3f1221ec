// Package node provides the normalized view of discovery-client node
// metadata used by admission policies.
package node

import "sort"

// Wildcard is the dependency name a client uses to request access to
// all services.
const Wildcard = "*"

// ServiceSet is an immutable set of service names. The zero value is
// an empty set.
type ServiceSet struct {
	members map[string]struct{}
}

// NewServiceSet creates a set containing the given service names.
// Empty names are ignored.
func NewServiceSet(names ...string) ServiceSet {
	if len(names) == 0 {
		return ServiceSet{}
	}
	members := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		members[name] = struct{}{}
	}
	return ServiceSet{members: members}
}

// Has returns true if the set contains the given service name.
func (s ServiceSet) Has(name string) bool {
	_, ok := s.members[name]
	return ok
}

// HasWildcard returns true if the set contains the wildcard entry.
func (s ServiceSet) HasWildcard() bool {
	return s.Has(Wildcard)
}

// Len returns the number of entries in the set.
func (s ServiceSet) Len() int {
	return len(s.members)
}

// Values returns the entries as a sorted slice.
func (s ServiceSet) Values() []string {
	values := make([]string, 0, len(s.members))
	for name := range s.members {
		values = append(values, name)
	}
	sort.Strings(values)
	return values
}

// Metadata is a read-only projection of the node metadata carried by a
// discovery request. It is constructed once per request and never
// modified afterwards.
type Metadata struct {
	// ServiceName identifies the service the client claims to be.
	// Empty when the client did not present an identity.
	ServiceName string

	// Dependencies is the set of services the client declares it wants
	// to reach. May contain the wildcard entry.
	Dependencies ServiceSet

	// ADS is true when the client requested the aggregated transport,
	// false for per-type transports.
	ADS bool
}
