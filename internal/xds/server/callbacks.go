package server

import (
	"context"
	"errors"
	"sync/atomic"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	serverv3 "github.com/envoyproxy/go-control-plane/pkg/server/v3"

	"github.com/meshtower/tower/internal/observability"
	"github.com/meshtower/tower/internal/xds/admission"
	"github.com/meshtower/tower/internal/xds/node"
)

// fetchStreamID is the correlation ID used for unary fetches, which
// have no stream.
const fetchStreamID = 0

// Callbacks validates every discovery request against the admission
// gate before the xDS server answers it. Rejections close the stream
// with an InvalidArgument status carrying the violation message.
//
// The gate is replaced atomically on configuration reload; a request
// is validated against whichever gate was current when it arrived.
type Callbacks struct {
	gate    atomic.Pointer[admission.Gate]
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

var _ serverv3.Callbacks = (*Callbacks)(nil)

// CallbacksOption is a functional option for configuring callbacks.
type CallbacksOption func(*Callbacks)

// WithCallbacksLogger sets the logger for the callbacks.
func WithCallbacksLogger(logger observability.Logger) CallbacksOption {
	return func(c *Callbacks) {
		c.logger = logger
	}
}

// WithCallbacksMetrics sets the metrics recorder for the callbacks.
func WithCallbacksMetrics(metrics *observability.Metrics) CallbacksOption {
	return func(c *Callbacks) {
		c.metrics = metrics
	}
}

// WithCallbacksTracer sets the tracer for the callbacks.
func WithCallbacksTracer(tracer *observability.Tracer) CallbacksOption {
	return func(c *Callbacks) {
		c.tracer = tracer
	}
}

// NewCallbacks creates admission callbacks around the given gate.
func NewCallbacks(gate *admission.Gate, opts ...CallbacksOption) *Callbacks {
	c := &Callbacks{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.gate.Store(gate)

	return c
}

// SwapGate atomically replaces the admission gate. A nil gate is
// ignored. In-flight validations finish against the gate they started
// with.
func (c *Callbacks) SwapGate(gate *admission.Gate) {
	if gate == nil {
		return
	}

	c.gate.Store(gate)

	c.logger.Info("admission gate replaced",
		observability.Strings("policies", gate.PolicyNames()),
	)
}

// Gate returns the current admission gate.
func (c *Callbacks) Gate() *admission.Gate {
	return c.gate.Load()
}

// admit runs the gate against the request node and reports the outcome.
func (c *Callbacks) admit(streamID int64, n *corev3.Node, typeURL string) error {
	gate := c.gate.Load()
	if gate == nil {
		return nil
	}

	md := node.FromProto(n)

	if err := gate.Validate(streamID, md); err != nil {
		var violation *admission.Violation
		if errors.As(err, &violation) {
			c.logger.Warn("rejected discovery request",
				observability.Int64("stream_id", streamID),
				observability.String("service", md.ServiceName),
				observability.String("type_url", typeURL),
				observability.String("violation", violation.Kind.String()),
			)
			if c.metrics != nil {
				c.metrics.RecordAdmissionRejected(violation.Kind.String())
			}
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordAdmissionAccepted()
	}

	return nil
}

// OnStreamOpen is called when a state-of-the-world stream is opened.
func (c *Callbacks) OnStreamOpen(_ context.Context, id int64, typ string) error {
	c.logger.Debug("stream opened",
		observability.Int64("stream_id", id),
		observability.String("type_url", typ),
	)
	if c.metrics != nil {
		c.metrics.IncActiveStreams(observability.TransportSotW)
	}
	return nil
}

// OnStreamClosed is called when a state-of-the-world stream is closed.
func (c *Callbacks) OnStreamClosed(id int64, n *corev3.Node) {
	c.logger.Debug("stream closed",
		observability.Int64("stream_id", id),
		observability.String("service", node.FromProto(n).ServiceName),
	)
	if c.metrics != nil {
		c.metrics.DecActiveStreams(observability.TransportSotW)
	}
}

// OnStreamRequest validates a state-of-the-world discovery request.
// A non-nil error closes the stream.
func (c *Callbacks) OnStreamRequest(id int64, req *discoverygrpc.DiscoveryRequest) error {
	if c.metrics != nil {
		c.metrics.RecordDiscoveryRequest(req.GetTypeUrl())
	}
	return c.admit(id, req.GetNode(), req.GetTypeUrl())
}

// OnStreamResponse is called before a response is sent on a stream.
func (c *Callbacks) OnStreamResponse(
	_ context.Context,
	id int64,
	_ *discoverygrpc.DiscoveryRequest,
	resp *discoverygrpc.DiscoveryResponse,
) {
	c.logger.Debug("stream response",
		observability.Int64("stream_id", id),
		observability.String("type_url", resp.GetTypeUrl()),
		observability.String("version", resp.GetVersionInfo()),
		observability.Int("num_resources", len(resp.GetResources())),
	)
	if c.metrics != nil {
		c.metrics.RecordDiscoveryResponse(resp.GetTypeUrl())
	}
}

// OnFetchRequest validates a unary discovery fetch.
func (c *Callbacks) OnFetchRequest(ctx context.Context, req *discoverygrpc.DiscoveryRequest) error {
	if c.tracer != nil {
		_, span := c.tracer.StartSpan(ctx, "xds.fetch")
		defer span.End()
	}

	if c.metrics != nil {
		c.metrics.RecordDiscoveryRequest(req.GetTypeUrl())
	}
	return c.admit(fetchStreamID, req.GetNode(), req.GetTypeUrl())
}

// OnFetchResponse is called before a fetch response is sent.
func (c *Callbacks) OnFetchResponse(_ *discoverygrpc.DiscoveryRequest, resp *discoverygrpc.DiscoveryResponse) {
	if c.metrics != nil {
		c.metrics.RecordDiscoveryResponse(resp.GetTypeUrl())
	}
}

// OnDeltaStreamOpen is called when an incremental stream is opened.
func (c *Callbacks) OnDeltaStreamOpen(_ context.Context, id int64, typ string) error {
	c.logger.Debug("delta stream opened",
		observability.Int64("stream_id", id),
		observability.String("type_url", typ),
	)
	if c.metrics != nil {
		c.metrics.IncActiveStreams(observability.TransportDelta)
	}
	return nil
}

// OnDeltaStreamClosed is called when an incremental stream is closed.
func (c *Callbacks) OnDeltaStreamClosed(id int64, n *corev3.Node) {
	c.logger.Debug("delta stream closed",
		observability.Int64("stream_id", id),
		observability.String("service", node.FromProto(n).ServiceName),
	)
	if c.metrics != nil {
		c.metrics.DecActiveStreams(observability.TransportDelta)
	}
}

// OnStreamDeltaRequest validates an incremental discovery request.
// A non-nil error closes the stream.
func (c *Callbacks) OnStreamDeltaRequest(id int64, req *discoverygrpc.DeltaDiscoveryRequest) error {
	if c.metrics != nil {
		c.metrics.RecordDiscoveryRequest(req.GetTypeUrl())
	}
	return c.admit(id, req.GetNode(), req.GetTypeUrl())
}

// OnStreamDeltaResponse is called before a delta response is sent.
func (c *Callbacks) OnStreamDeltaResponse(
	id int64,
	_ *discoverygrpc.DeltaDiscoveryRequest,
	resp *discoverygrpc.DeltaDiscoveryResponse,
) {
	c.logger.Debug("delta stream response",
		observability.Int64("stream_id", id),
		observability.String("type_url", resp.GetTypeUrl()),
		observability.String("version", resp.GetSystemVersionInfo()),
	)
	if c.metrics != nil {
		c.metrics.RecordDiscoveryResponse(resp.GetTypeUrl())
	}
}
