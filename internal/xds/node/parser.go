package node

import (
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	"google.golang.org/protobuf/types/known/structpb"
)

// Node metadata keys presented by discovery clients.
const (
	serviceNameKey   = "service_name"
	adsKey           = "ads"
	proxySettingsKey = "proxy_settings"
	outgoingKey      = "outgoing"
	dependenciesKey  = "dependencies"
	serviceKey       = "service"
)

// FromProto extracts the normalized metadata view from a discovery
// node. Parsing is lenient: a nil node, absent fields, or entries of
// an unexpected shape yield zero values instead of errors, leaving
// any enforcement to the admission policies.
func FromProto(n *corev3.Node) Metadata {
	if n == nil {
		return Metadata{}
	}

	fields := n.GetMetadata().GetFields()

	return Metadata{
		ServiceName:  fields[serviceNameKey].GetStringValue(),
		ADS:          fields[adsKey].GetBoolValue(),
		Dependencies: dependenciesFrom(fields[proxySettingsKey]),
	}
}

// dependenciesFrom reads the declared outgoing dependencies from the
// proxy_settings metadata subtree. Entries are objects carrying a
// service field; bare string entries are accepted as well.
func dependenciesFrom(proxySettings *structpb.Value) ServiceSet {
	outgoing := proxySettings.GetStructValue().GetFields()[outgoingKey]
	list := outgoing.GetStructValue().GetFields()[dependenciesKey].GetListValue()
	if list == nil {
		return ServiceSet{}
	}

	names := make([]string, 0, len(list.GetValues()))
	for _, entry := range list.GetValues() {
		if obj := entry.GetStructValue(); obj != nil {
			names = append(names, obj.GetFields()[serviceKey].GetStringValue())
			continue
		}
		names = append(names, entry.GetStringValue())
	}
	return NewServiceSet(names...)
}
