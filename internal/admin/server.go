// Package admin serves the operational HTTP endpoints of the control
// plane: health probes, Prometheus metrics, and admission diagnostics.
package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meshtower/tower/internal/config"
	"github.com/meshtower/tower/internal/observability"
	"github.com/meshtower/tower/internal/xds/admission"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Default admin server configuration.
const (
	DefaultAddress         = ":9090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMetricsPath     = "/metrics"
)

// GateSource provides the admission gate currently enforced by the
// discovery server.
type GateSource interface {
	Gate() *admission.Gate
}

// NodeSource lists the nodes known to the snapshot cache.
type NodeSource interface {
	NodeIDs() []string
	ConnectedNodeIDs() []string
}

// Server is the admin HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener

	address         string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	metricsPath     string

	logger  observability.Logger
	metrics *observability.Metrics
	gates   GateSource
	nodes   NodeSource
	ready   func() bool
	version string

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates an admin server from configuration.
func New(cfg *config.AdminConfig, opts ...Option) *Server {
	s := &Server{
		address:         DefaultAddress,
		readTimeout:     DefaultReadTimeout,
		writeTimeout:    DefaultWriteTimeout,
		idleTimeout:     DefaultIdleTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		metricsPath:     DefaultMetricsPath,
		logger:          observability.NopLogger(),
	}

	if cfg != nil {
		if cfg.Address != "" {
			s.address = cfg.Address
		}
		if cfg.ReadTimeout > 0 {
			s.readTimeout = cfg.ReadTimeout.Duration()
		}
		if cfg.WriteTimeout > 0 {
			s.writeTimeout = cfg.WriteTimeout.Duration()
		}
		if cfg.IdleTimeout > 0 {
			s.idleTimeout = cfg.IdleTimeout.Duration()
		}
		if cfg.ShutdownTimeout > 0 {
			s.shutdownTimeout = cfg.ShutdownTimeout.Duration()
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s.engine = gin.New()
	s.engine.Use(CorrelationIDMiddleware())
	s.engine.Use(RequestLogMiddleware(s.logger))
	s.engine.Use(gin.Recovery())
	s.registerRoutes()

	return s
}

// registerRoutes sets up the admin endpoints.
func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/livez", s.handleLivez)
	s.engine.GET("/readyz", s.handleReadyz)

	if s.metrics != nil {
		s.engine.GET(s.metricsPath, gin.WrapH(s.metrics.Handler()))
	}

	debug := s.engine.Group("/debug")
	debug.GET("/admission", s.handleAdmission)
	debug.GET("/nodes", s.handleNodes)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   s.version,
		"uptime":    s.Uptime().String(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleLivez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleReadyz(c *gin.Context) {
	if s.ready != nil && !s.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleAdmission reports the admission policies currently enforced and
// the configuration the gate was built from.
func (s *Server) handleAdmission(c *gin.Context) {
	policies := []string{}
	var cfg interface{}
	if s.gates != nil {
		if gate := s.gates.Gate(); gate != nil {
			policies = gate.PolicyNames()
			cfg = gate.Config()
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"policies": policies,
		"config":   cfg,
	})
}

// handleNodes reports the nodes known to the snapshot cache and the
// nodes with open discovery streams.
func (s *Server) handleNodes(c *gin.Context) {
	nodes := []string{}
	connected := []string{}
	if s.nodes != nil {
		nodes = s.nodes.NodeIDs()
		connected = s.nodes.ConnectedNodeIDs()
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes":     nodes,
		"connected": connected,
	})
}

// Start starts the admin server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.address,
		Handler:      s.engine,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = ln
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting admin server",
		observability.String("address", ln.Addr().String()),
	)

	go s.serve()

	return nil
}

// serve starts serving HTTP requests.
func (s *Server) serve() {
	if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		s.logger.Error("admin server error",
			observability.String("address", s.address),
			observability.Error(err),
		)
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop stops the admin server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping admin server")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("admin server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenerAddress returns the bound listener address once the server has
// started. It differs from the configured address when port 0 is used.
func (s *Server) ListenerAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Uptime returns the time since the server started.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}
