package server

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/meshtower/tower/internal/observability"
)

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAddress sets the listen address.
func WithAddress(address string) Option {
	return func(s *Server) {
		s.address = address
	}
}

// WithMaxConcurrentStreams sets the maximum number of concurrent streams per connection.
func WithMaxConcurrentStreams(n uint32) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxConcurrentStreams = n
		}
	}
}

// WithMaxRecvMsgSize sets the maximum receive message size in bytes.
func WithMaxRecvMsgSize(size int) Option {
	return func(s *Server) {
		if size > 0 {
			s.maxRecvMsgSize = size
		}
	}
}

// WithMaxSendMsgSize sets the maximum send message size in bytes.
func WithMaxSendMsgSize(size int) Option {
	return func(s *Server) {
		if size > 0 {
			s.maxSendMsgSize = size
		}
	}
}

// WithKeepaliveParams sets the keepalive server parameters.
func WithKeepaliveParams(params keepalive.ServerParameters) Option {
	return func(s *Server) {
		s.keepaliveParams = &params
	}
}

// WithKeepaliveEnforcementPolicy sets the keepalive enforcement policy.
func WithKeepaliveEnforcementPolicy(policy keepalive.EnforcementPolicy) Option {
	return func(s *Server) {
		s.keepaliveEnforcement = &policy
	}
}

// WithUnaryInterceptors adds unary server interceptors.
func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(s *Server) {
		s.unaryInterceptors = append(s.unaryInterceptors, interceptors...)
	}
}

// WithStreamInterceptors adds stream server interceptors.
func WithStreamInterceptors(interceptors ...grpc.StreamServerInterceptor) Option {
	return func(s *Server) {
		s.streamInterceptors = append(s.streamInterceptors, interceptors...)
	}
}

// WithReflection enables or disables gRPC server reflection.
func WithReflection(enabled bool) Option {
	return func(s *Server) {
		s.reflectionEnabled = enabled
	}
}

// WithHealthService enables or disables the gRPC health service.
func WithHealthService(enabled bool) Option {
	return func(s *Server) {
		s.healthServiceEnabled = enabled
	}
}

// WithGracefulStopTimeout sets the timeout for graceful shutdown.
func WithGracefulStopTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.gracefulStopTimeout = timeout
		}
	}
}
