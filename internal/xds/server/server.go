// Package server hosts the xDS gRPC server and the admission
// callbacks it consults on every discovery request.
package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	clusterservice "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	endpointservice "github.com/envoyproxy/go-control-plane/envoy/service/endpoint/v3"
	listenerservice "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"
	routeservice "github.com/envoyproxy/go-control-plane/envoy/service/route/v3"
	secretservice "github.com/envoyproxy/go-control-plane/envoy/service/secret/v3"
	cachev3 "github.com/envoyproxy/go-control-plane/pkg/cache/v3"
	serverv3 "github.com/envoyproxy/go-control-plane/pkg/server/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/meshtower/tower/internal/config"
	"github.com/meshtower/tower/internal/observability"
)

// State represents the server state.
type State int32

const (
	// StateStopped indicates the server is stopped.
	StateStopped State = iota
	// StateStarting indicates the server is starting.
	StateStarting
	// StateRunning indicates the server is running.
	StateRunning
	// StateStopping indicates the server is stopping.
	StateStopping
)

// Default server configuration constants.
const (
	// DefaultMaxConcurrentStreams is the default maximum number of concurrent streams per connection.
	DefaultMaxConcurrentStreams = 1000

	// DefaultMaxMsgSize is the default maximum message size in bytes (4MB).
	DefaultMaxMsgSize = 4 * 1024 * 1024

	// DefaultGracefulStopTimeout is the default timeout for graceful server shutdown.
	DefaultGracefulStopTimeout = 30 * time.Second
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Server serves the v3 discovery services backed by a snapshot cache,
// with admission callbacks screening every request.
type Server struct {
	address              string
	maxConcurrentStreams uint32
	maxRecvMsgSize       int
	maxSendMsgSize       int
	keepaliveParams      *keepalive.ServerParameters
	keepaliveEnforcement *keepalive.EnforcementPolicy
	gracefulStopTimeout  time.Duration
	reflectionEnabled    bool
	healthServiceEnabled bool

	cache     cachev3.Cache
	callbacks *Callbacks

	unaryInterceptors  []grpc.UnaryServerInterceptor
	streamInterceptors []grpc.StreamServerInterceptor

	grpcServer   *grpc.Server
	healthServer *health.Server
	listener     net.Listener
	logger       observability.Logger
	state        atomic.Int32
	startTime    time.Time
}

// New creates a new xDS server.
func New(cfg *config.ServerConfig, cache cachev3.Cache, callbacks *Callbacks, opts ...Option) (*Server, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if callbacks == nil {
		return nil, fmt.Errorf("callbacks are required")
	}

	s := &Server{
		cache:                cache,
		callbacks:            callbacks,
		logger:               observability.NopLogger(),
		maxConcurrentStreams: DefaultMaxConcurrentStreams,
		maxRecvMsgSize:       DefaultMaxMsgSize,
		maxSendMsgSize:       DefaultMaxMsgSize,
		gracefulStopTimeout:  DefaultGracefulStopTimeout,
		healthServiceEnabled: true,
	}

	// Apply configuration from config struct
	if cfg != nil {
		if cfg.Address != "" {
			s.address = cfg.Address
		}
		if cfg.MaxConcurrentStreams > 0 {
			s.maxConcurrentStreams = cfg.MaxConcurrentStreams
		}
		if cfg.MaxRecvMsgSize > 0 {
			s.maxRecvMsgSize = cfg.MaxRecvMsgSize
		}
		if cfg.MaxSendMsgSize > 0 {
			s.maxSendMsgSize = cfg.MaxSendMsgSize
		}
		if cfg.GracefulStopTimeout > 0 {
			s.gracefulStopTimeout = cfg.GracefulStopTimeout.Duration()
		}
		s.reflectionEnabled = cfg.Reflection

		if cfg.Keepalive != nil {
			s.keepaliveParams = &keepalive.ServerParameters{
				Time:    cfg.Keepalive.Time.Duration(),
				Timeout: cfg.Keepalive.Timeout.Duration(),
			}
			s.keepaliveEnforcement = &keepalive.EnforcementPolicy{
				MinTime:             cfg.Keepalive.MinTime.Duration(),
				PermitWithoutStream: cfg.Keepalive.PermitWithoutStream,
			}
		}
	}

	// Apply functional options
	for _, opt := range opts {
		opt(s)
	}

	s.state.Store(int32(StateStopped))

	return s, nil
}

// Start starts the xDS server.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("server is not in stopped state, current state: %s", State(s.state.Load()))
	}

	s.logger.Info("starting xDS server",
		observability.String("address", s.address),
	)

	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)

	xdsServer := serverv3.NewServer(ctx, s.cache, s.callbacks)
	s.registerServices(xdsServer)

	if s.healthServiceEnabled {
		s.healthServer = health.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	if s.reflectionEnabled {
		reflection.Register(s.grpcServer)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = ln

	s.startTime = time.Now()
	s.state.Store(int32(StateRunning))

	s.logger.Info("xDS server started",
		observability.String("address", ln.Addr().String()),
		observability.Bool("reflection", s.reflectionEnabled),
	)

	go s.serve()

	return nil
}

// registerServices registers the discovery services on the gRPC server.
func (s *Server) registerServices(xdsServer serverv3.Server) {
	discoverygrpc.RegisterAggregatedDiscoveryServiceServer(s.grpcServer, xdsServer)
	endpointservice.RegisterEndpointDiscoveryServiceServer(s.grpcServer, xdsServer)
	clusterservice.RegisterClusterDiscoveryServiceServer(s.grpcServer, xdsServer)
	routeservice.RegisterRouteDiscoveryServiceServer(s.grpcServer, xdsServer)
	listenerservice.RegisterListenerDiscoveryServiceServer(s.grpcServer, xdsServer)
	secretservice.RegisterSecretDiscoveryServiceServer(s.grpcServer, xdsServer)
}

// serve starts serving gRPC requests.
func (s *Server) serve() {
	if err := s.grpcServer.Serve(s.listener); err != nil {
		if s.state.Load() != int32(StateStopping) && s.state.Load() != int32(StateStopped) {
			s.logger.Error("xDS server error",
				observability.String("address", s.address),
				observability.Error(err),
			)
		}
	}
	s.state.Store(int32(StateStopped))
}

// Stop stops the xDS server immediately.
func (s *Server) Stop(_ context.Context) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}

	s.logger.Info("stopping xDS server",
		observability.String("address", s.address),
	)

	if s.healthServer != nil {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	s.grpcServer.Stop()
	s.state.Store(int32(StateStopped))

	return nil
}

// GracefulStop stops the xDS server gracefully, falling back to a hard
// stop when the timeout expires.
func (s *Server) GracefulStop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}

	s.logger.Info("gracefully stopping xDS server",
		observability.String("address", s.address),
	)

	if s.healthServer != nil {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.gracefulStopTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("xDS server stopped gracefully",
			observability.String("address", s.address),
		)
	case <-ctx.Done():
		s.logger.Warn("graceful stop timeout, forcing stop",
			observability.String("address", s.address),
		)
		s.grpcServer.Stop()
	}

	s.state.Store(int32(StateStopped))
	return nil
}

// Callbacks returns the admission callbacks attached to the server.
func (s *Server) Callbacks() *Callbacks {
	return s.callbacks
}

// GRPCServer returns the underlying gRPC server, or nil before Start.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// State returns the current server state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.address
}

// ListenerAddress returns the bound listener address once the server has
// started. It differs from Address when the configuration uses port 0.
func (s *Server) ListenerAddress() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// buildServerOptions builds gRPC server options.
func (s *Server) buildServerOptions() []grpc.ServerOption {
	opts := make([]grpc.ServerOption, 0, 8)

	opts = append(opts,
		grpc.MaxConcurrentStreams(s.maxConcurrentStreams),
		grpc.MaxRecvMsgSize(s.maxRecvMsgSize),
		grpc.MaxSendMsgSize(s.maxSendMsgSize),
	)

	if s.keepaliveParams != nil {
		opts = append(opts, grpc.KeepaliveParams(*s.keepaliveParams))
	}
	if s.keepaliveEnforcement != nil {
		opts = append(opts, grpc.KeepaliveEnforcementPolicy(*s.keepaliveEnforcement))
	}

	unary := make([]grpc.UnaryServerInterceptor, 0, len(s.unaryInterceptors)+1)
	unary = append(unary, UnaryRecoveryInterceptor(s.logger))
	unary = append(unary, s.unaryInterceptors...)

	stream := make([]grpc.StreamServerInterceptor, 0, len(s.streamInterceptors)+1)
	stream = append(stream, StreamRecoveryInterceptor(s.logger))
	stream = append(stream, s.streamInterceptors...)

	opts = append(opts,
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)

	return opts
}
