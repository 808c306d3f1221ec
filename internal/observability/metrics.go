package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Discovery transport labels for stream metrics.
const (
	// TransportSotW labels state-of-the-world discovery streams.
	TransportSotW = "sotw"

	// TransportDelta labels incremental discovery streams.
	TransportDelta = "delta"
)

// Metrics holds all Prometheus metrics for the control plane.
type Metrics struct {
	admissionDecisions  *prometheus.CounterVec
	admissionRejections *prometheus.CounterVec
	activeStreams       *prometheus.GaugeVec
	discoveryRequests   *prometheus.CounterVec
	discoveryResponses  *prometheus.CounterVec
	snapshotUpdates     prometheus.Counter
	snapshotNodes       prometheus.Gauge
	buildInfo           *prometheus.GaugeVec
	startTime           prometheus.Gauge
	registry            *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tower"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.admissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Total number of admission decisions",
		},
		[]string{"outcome"},
	)

	m.admissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help: "Total number of rejected discovery requests " +
				"by violation kind",
		},
		[]string{"kind"},
	)

	m.activeStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of open discovery streams",
		},
		[]string{"transport"},
	)

	m.discoveryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_requests_total",
			Help:      "Total number of discovery requests received",
		},
		[]string{"type_url"},
	)

	m.discoveryResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_responses_total",
			Help:      "Total number of discovery responses sent",
		},
		[]string{"type_url"},
	)

	m.snapshotUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_updates_total",
			Help:      "Total number of snapshot cache updates",
		},
	)

	m.snapshotNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_nodes",
			Help:      "Number of nodes with a snapshot in the cache",
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the control plane",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help: "Start time of the control plane " +
				"in unix seconds",
		},
	)

	m.registerCollectors()

	m.startTime.SetToCurrentTime()

	return m
}

// registerCollectors registers all metric collectors with the
// Prometheus registry.
func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.admissionDecisions,
		m.admissionRejections,
		m.activeStreams,
		m.discoveryRequests,
		m.discoveryResponses,
		m.snapshotUpdates,
		m.snapshotNodes,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// InitVecMetrics pre-populates common label combinations with zero
// values so that Vec metrics appear in /metrics output immediately
// after startup. Prometheus *Vec types only emit metric lines after
// WithLabelValues() is called at least once. This method is idempotent.
func (m *Metrics) InitVecMetrics() {
	m.admissionDecisions.WithLabelValues("accepted")
	m.admissionDecisions.WithLabelValues("rejected")
	m.activeStreams.WithLabelValues(TransportSotW)
	m.activeStreams.WithLabelValues(TransportDelta)
}

// RecordAdmissionAccepted records an admitted discovery request.
func (m *Metrics) RecordAdmissionAccepted() {
	m.admissionDecisions.WithLabelValues("accepted").Inc()
}

// RecordAdmissionRejected records a rejected discovery request. The
// kind is the violation kind name, keeping cardinality bounded by the
// fixed set of violation kinds.
func (m *Metrics) RecordAdmissionRejected(kind string) {
	m.admissionDecisions.WithLabelValues("rejected").Inc()
	m.admissionRejections.WithLabelValues(kind).Inc()
}

// IncActiveStreams increments the open stream gauge for a transport.
func (m *Metrics) IncActiveStreams(transport string) {
	m.activeStreams.WithLabelValues(transport).Inc()
}

// DecActiveStreams decrements the open stream gauge for a transport.
func (m *Metrics) DecActiveStreams(transport string) {
	m.activeStreams.WithLabelValues(transport).Dec()
}

// RecordDiscoveryRequest records a received discovery request. The
// type URL label stays bounded: clients can only subscribe to the
// fixed set of resource types the server registers.
func (m *Metrics) RecordDiscoveryRequest(typeURL string) {
	m.discoveryRequests.WithLabelValues(typeURL).Inc()
}

// RecordDiscoveryResponse records a sent discovery response.
func (m *Metrics) RecordDiscoveryResponse(typeURL string) {
	m.discoveryResponses.WithLabelValues(typeURL).Inc()
}

// RecordSnapshotUpdate records one snapshot cache update.
func (m *Metrics) RecordSnapshotUpdate() {
	m.snapshotUpdates.Inc()
}

// SetSnapshotNodes sets the number of nodes tracked by the snapshot
// cache.
func (m *Metrics) SetSnapshotNodes(n int) {
	m.snapshotNodes.Set(float64(n))
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCollector registers an additional collector with the custom
// registry. It returns an error if the collector is already registered
// or conflicts with an existing one.
func (m *Metrics) RegisterCollector(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// MustRegisterCollector registers an additional collector with the
// custom registry, panicking on error.
func (m *Metrics) MustRegisterCollector(c prometheus.Collector) {
	m.registry.MustRegister(c)
}
