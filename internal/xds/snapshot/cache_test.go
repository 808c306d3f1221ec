package snapshot

import (
	"context"
	"strings"
	"testing"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	"github.com/envoyproxy/go-control-plane/pkg/cache/types"
	resourcev3 "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshtower/tower/internal/observability"
)

func staticCluster(name string) types.Resource {
	return &clusterv3.Cluster{
		Name: name,
		ClusterDiscoveryType: &clusterv3.Cluster_Type{
			Type: clusterv3.Cluster_STATIC,
		},
	}
}

func edsCluster(name string) types.Resource {
	return &clusterv3.Cluster{
		Name: name,
		ClusterDiscoveryType: &clusterv3.Cluster_Type{
			Type: clusterv3.Cluster_EDS,
		},
		EdsClusterConfig: &clusterv3.Cluster_EdsClusterConfig{
			EdsConfig: &corev3.ConfigSource{
				ConfigSourceSpecifier: &corev3.ConfigSource_Ads{
					Ads: &corev3.AggregatedConfigSource{},
				},
			},
		},
	}
}

func TestNewCache(t *testing.T) {
	t.Parallel()

	c := NewCache(false)
	require.NotNil(t, c)
	assert.NotNil(t, c.Mux())
	assert.Empty(t, c.NodeIDs())
}

func TestCache_SetResources(t *testing.T) {
	t.Parallel()

	c := NewCache(false, WithLogger(observability.NopLogger()))

	resources := map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("billing")},
		resourcev3.ListenerType: {
			&listenerv3.Listener{Name: "ingress"},
		},
	}

	err := c.SetResources(context.Background(), "sidecar-1", resources)
	require.NoError(t, err)

	snap, err := c.inner.GetSnapshot("sidecar-1")
	require.NoError(t, err)
	assert.Equal(t, "1", snap.GetVersion(resourcev3.ClusterType))

	clusters := snap.GetResources(resourcev3.ClusterType)
	assert.Contains(t, clusters, "billing")

	listeners := snap.GetResources(resourcev3.ListenerType)
	assert.Contains(t, listeners, "ingress")
}

func TestCache_SetResources_VersionIncreases(t *testing.T) {
	t.Parallel()

	c := NewCache(false)
	ctx := context.Background()

	err := c.SetResources(ctx, "sidecar-1", map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("billing")},
	})
	require.NoError(t, err)

	err = c.SetResources(ctx, "sidecar-2", map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("billing")},
	})
	require.NoError(t, err)

	err = c.SetResources(ctx, "sidecar-1", map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("orders")},
	})
	require.NoError(t, err)

	snap1, err := c.inner.GetSnapshot("sidecar-1")
	require.NoError(t, err)
	assert.Equal(t, "3", snap1.GetVersion(resourcev3.ClusterType))

	snap2, err := c.inner.GetSnapshot("sidecar-2")
	require.NoError(t, err)
	assert.Equal(t, "2", snap2.GetVersion(resourcev3.ClusterType))
}

func TestCache_SetResources_Inconsistent(t *testing.T) {
	t.Parallel()

	c := NewCache(false)

	// An EDS cluster without a matching endpoint resource cannot
	// produce a consistent snapshot.
	resources := map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {edsCluster("billing")},
	}

	err := c.SetResources(context.Background(), "sidecar-1", resources)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot is inconsistent")
	assert.Empty(t, c.NodeIDs())
}

func TestCache_ClearNode(t *testing.T) {
	t.Parallel()

	c := NewCache(false)
	ctx := context.Background()

	err := c.SetResources(ctx, "sidecar-1", map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("billing")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"sidecar-1"}, c.NodeIDs())

	c.ClearNode("sidecar-1")

	assert.Empty(t, c.NodeIDs())
	_, err = c.inner.GetSnapshot("sidecar-1")
	assert.Error(t, err)
}

func TestCache_NodeIDs_Sorted(t *testing.T) {
	t.Parallel()

	c := NewCache(false)
	ctx := context.Background()

	for _, nodeID := range []string{"zeta", "alpha", "mike"} {
		err := c.SetResources(ctx, nodeID, map[resourcev3.Type][]types.Resource{
			resourcev3.ClusterType: {staticCluster("billing")},
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "mike", "zeta"}, c.NodeIDs())
}

func TestCache_ConnectedNodeIDs_EmptyWithoutStreams(t *testing.T) {
	t.Parallel()

	c := NewCache(false)

	err := c.SetResources(context.Background(), "sidecar-1", map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("billing")},
	})
	require.NoError(t, err)

	// Status keys track open streams, not stored snapshots
	assert.Empty(t, c.ConnectedNodeIDs())
}

func TestCache_Metrics(t *testing.T) {
	t.Parallel()

	m := observability.NewMetrics("towersnap")
	c := NewCache(false, WithMetrics(m))
	ctx := context.Background()

	err := c.SetResources(ctx, "sidecar-1", map[resourcev3.Type][]types.Resource{
		resourcev3.ClusterType: {staticCluster("billing")},
	})
	require.NoError(t, err)

	expected := `
# HELP towersnap_snapshot_nodes Number of nodes with a snapshot in the cache
# TYPE towersnap_snapshot_nodes gauge
towersnap_snapshot_nodes 1
`
	err = testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"towersnap_snapshot_nodes")
	assert.NoError(t, err)

	c.ClearNode("sidecar-1")

	expected = `
# HELP towersnap_snapshot_nodes Number of nodes with a snapshot in the cache
# TYPE towersnap_snapshot_nodes gauge
towersnap_snapshot_nodes 0
`
	err = testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"towersnap_snapshot_nodes")
	assert.NoError(t, err)
}

func TestControlPlaneLogger(t *testing.T) {
	t.Parallel()

	l := controlPlaneLogger{logger: observability.NopLogger()}

	assert.NotPanics(t, func() {
		l.Debugf("debug %s", "message")
		l.Infof("info %d", 1)
		l.Warnf("warn")
		l.Errorf("error %v", assert.AnError)
	})
}
