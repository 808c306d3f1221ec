package helpers

import (
	"context"
	"fmt"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	clusterservice "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// DialControlPlane opens an insecure client connection to the xDS server.
func DialControlPlane(ctx context.Context, address string) (*grpc.ClientConn, error) {
	conn, err := grpc.DialContext(ctx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial control plane at %s: %w", address, err)
	}
	return conn, nil
}

// BuildNode constructs an Envoy node carrying the admission metadata the
// control plane inspects: the service name, the transport flag, and the
// declared outgoing dependencies.
func BuildNode(service string, ads bool, dependencies ...string) (*corev3.Node, error) {
	deps := make([]interface{}, 0, len(dependencies))
	for _, dep := range dependencies {
		deps = append(deps, map[string]interface{}{"service": dep})
	}

	md, err := structpb.NewStruct(map[string]interface{}{
		"service_name": service,
		"ads":          ads,
		"proxy_settings": map[string]interface{}{
			"outgoing": map[string]interface{}{
				"dependencies": deps,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build node metadata: %w", err)
	}

	return &corev3.Node{
		Id:       service,
		Cluster:  service,
		Metadata: md,
	}, nil
}

// NewDiscoveryRequest builds a discovery request for the given node and type URL.
func NewDiscoveryRequest(node *corev3.Node, typeURL string) *discoveryv3.DiscoveryRequest {
	return &discoveryv3.DiscoveryRequest{
		Node:    node,
		TypeUrl: typeURL,
	}
}

// NewDeltaDiscoveryRequest builds a delta discovery request for the given
// node and type URL.
func NewDeltaDiscoveryRequest(node *corev3.Node, typeURL string) *discoveryv3.DeltaDiscoveryRequest {
	return &discoveryv3.DeltaDiscoveryRequest{
		Node:    node,
		TypeUrl: typeURL,
	}
}

// OpenADSStream opens an aggregated discovery stream on the connection.
func OpenADSStream(ctx context.Context, conn *grpc.ClientConn) (discoveryv3.AggregatedDiscoveryService_StreamAggregatedResourcesClient, error) {
	client := discoveryv3.NewAggregatedDiscoveryServiceClient(conn)
	stream, err := client.StreamAggregatedResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open ADS stream: %w", err)
	}
	return stream, nil
}

// OpenDeltaADSStream opens an aggregated delta discovery stream on the
// connection.
func OpenDeltaADSStream(ctx context.Context, conn *grpc.ClientConn) (discoveryv3.AggregatedDiscoveryService_DeltaAggregatedResourcesClient, error) {
	client := discoveryv3.NewAggregatedDiscoveryServiceClient(conn)
	stream, err := client.DeltaAggregatedResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open delta ADS stream: %w", err)
	}
	return stream, nil
}

// OpenClusterStream opens a cluster discovery stream on the connection. It
// exercises the per-type endpoint rather than the aggregated one.
func OpenClusterStream(ctx context.Context, conn *grpc.ClientConn) (clusterservice.ClusterDiscoveryService_StreamClustersClient, error) {
	client := clusterservice.NewClusterDiscoveryServiceClient(conn)
	stream, err := client.StreamClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster stream: %w", err)
	}
	return stream, nil
}
