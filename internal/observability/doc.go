// Package observability provides logging, metrics, and tracing
// functionality for the control plane.
//
// This package implements the three pillars of observability:
// structured logging via zap, Prometheus metrics collection, and
// distributed tracing via OpenTelemetry with OTLP export.
//
// # Logging
//
// The Logger interface provides structured logging:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("stream opened",
//	    observability.Int64("stream_id", id),
//	    observability.String("type_url", typeURL),
//	)
//
// # Metrics
//
// Prometheus metrics for admission decisions, discovery streams, and
// snapshot updates:
//
//	metrics := observability.NewMetrics("tower")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP export:
//
//	tracer, err := observability.NewTracer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
