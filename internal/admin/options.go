package admin

import "github.com/meshtower/tower/internal/observability"

// Option is a functional option for configuring the admin server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics exposes the given metrics on the metrics endpoint.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithMetricsPath sets the path the metrics endpoint is served on.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithGateSource sets the source of the current admission gate for the
// admission diagnostics endpoint.
func WithGateSource(gates GateSource) Option {
	return func(s *Server) {
		s.gates = gates
	}
}

// WithNodeSource sets the source of snapshot cache contents for the
// node diagnostics endpoint.
func WithNodeSource(nodes NodeSource) Option {
	return func(s *Server) {
		s.nodes = nodes
	}
}

// WithReadyCheck sets the readiness probe function. The readiness
// endpoint reports unavailable until the function returns true.
func WithReadyCheck(ready func() bool) Option {
	return func(s *Server) {
		s.ready = ready
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}
