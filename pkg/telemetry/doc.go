// Package telemetry provides observability instrumentation for cloudscan.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring collection runs.
//
// # Architecture
//
// The telemetry system is built on three pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("scheduler")
//	logger = logger.WithRunID("run-123").WithTask("ec2", "us-east-1")
//	logger.Info("Task started")
//	logger.WithError(err).Error("Task failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into run and task flow:
//
//	ctx, span := tel.Tracer.StartTaskSpan(ctx, "ec2", "us-east-1")
//	defer span.End()
//
// Tracing is disabled by default and exports to stdout or an OTLP gRPC
// collector when enabled.
//
// # Metrics
//
// Metrics use a dedicated Prometheus registry under the cloudscan namespace:
// run and task counters by status, operation outcomes and durations, error
// counts by class, indexed resource gauges, and a queued-task gauge. The
// optional HTTP listener serves them on /metrics.
package telemetry
