// Package snapshot wraps the go-control-plane snapshot cache with
// versioning, node tracking, and observability for the control plane.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/envoyproxy/go-control-plane/pkg/cache/types"
	cachev3 "github.com/envoyproxy/go-control-plane/pkg/cache/v3"
	"github.com/envoyproxy/go-control-plane/pkg/log"
	resourcev3 "github.com/envoyproxy/go-control-plane/pkg/resource/v3"

	"github.com/meshtower/tower/internal/observability"
)

// Cache stores per-node resource snapshots and hands them to the xDS
// server. Every successful update stamps a monotonically increasing
// version shared across all nodes.
type Cache struct {
	inner   cachev3.SnapshotCache
	logger  observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	version uint64
	nodes   map[string]struct{}
}

// Option is a functional option for configuring the cache.
type Option func(*Cache)

// WithLogger sets the logger for the cache.
func WithLogger(logger observability.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the cache.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// NewCache creates a snapshot cache. When ads is true a single version
// is enforced across all resource types delivered to a node.
func NewCache(ads bool, opts ...Option) *Cache {
	c := &Cache{
		logger: observability.NopLogger(),
		nodes:  make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.inner = cachev3.NewSnapshotCache(ads, cachev3.IDHash{}, controlPlaneLogger{logger: c.logger})

	return c
}

// SetResources stores a new consistent snapshot for the node.
func (c *Cache) SetResources(
	ctx context.Context,
	nodeID string,
	resources map[resourcev3.Type][]types.Resource,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++
	version := strconv.FormatUint(c.version, 10)

	snapshot, err := cachev3.NewSnapshot(version, resources)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	if err := snapshot.Consistent(); err != nil {
		return fmt.Errorf("snapshot is inconsistent: %w", err)
	}

	if err := c.inner.SetSnapshot(ctx, nodeID, snapshot); err != nil {
		return fmt.Errorf("failed to set snapshot for node %s: %w", nodeID, err)
	}

	c.nodes[nodeID] = struct{}{}

	c.logger.Info("updated snapshot",
		observability.String("node_id", nodeID),
		observability.String("version", version),
	)

	if c.metrics != nil {
		c.metrics.RecordSnapshotUpdate()
		c.metrics.SetSnapshotNodes(len(c.nodes))
	}

	return nil
}

// ClearNode removes the snapshot for the node.
func (c *Cache) ClearNode(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inner.ClearSnapshot(nodeID)
	delete(c.nodes, nodeID)

	c.logger.Info("cleared snapshot",
		observability.String("node_id", nodeID),
	)

	if c.metrics != nil {
		c.metrics.SetSnapshotNodes(len(c.nodes))
	}
}

// NodeIDs returns the sorted IDs of all nodes with a stored snapshot.
func (c *Cache) NodeIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectedNodeIDs returns the IDs of nodes with open discovery streams.
func (c *Cache) ConnectedNodeIDs() []string {
	return c.inner.GetStatusKeys()
}

// Mux returns the underlying cache for the xDS server.
func (c *Cache) Mux() cachev3.Cache {
	return c.inner
}

// controlPlaneLogger adapts observability.Logger to the go-control-plane
// logging interface.
type controlPlaneLogger struct {
	logger observability.Logger
}

var _ log.Logger = controlPlaneLogger{}

func (l controlPlaneLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l controlPlaneLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l controlPlaneLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l controlPlaneLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
