package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("scheduler")

	// Add context fields
	logger = logger.WithRunID("run-123").WithTask("ec2", "us-east-1")

	// Log at different levels
	logger.Debug("Task queued")
	logger.Info("Task completed")

	// Log with error
	err := fmt.Errorf("network timeout")
	logger.WithError(err).Error("Endpoint unreachable")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a run span
	ctx, span := tel.Tracer.StartRunSpan(ctx, "run-789")
	defer span.End()

	// Nested task span
	_, taskSpan := tel.Tracer.StartTaskSpan(ctx, "s3", "us-east-1")
	defer taskSpan.End()

	taskSpan.SetAttributes(
		attribute.Int("task.operations", 12),
	)

	// Simulate work
	time.Sleep(10 * time.Millisecond)

	// Record success
	telemetry.RecordSuccess(taskSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Record run metrics
	tel.Metrics.RecordRunStarted("cli")

	// Simulate run execution
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordRunCompleted("completed", duration)

	// Record task metrics
	tel.Metrics.RecordTaskExecution("ec2", "completed", 25*time.Millisecond)
	tel.Metrics.RecordTaskSkipped("endpoint_unavailable")

	// Record operation metrics
	tel.Metrics.RecordOperation("ec2", "success", 15*time.Millisecond)

	// Record error metrics
	tel.Metrics.RecordError("throttled", "Throttling")

	// Set resource counts
	tel.Metrics.SetResourcesIndexed("ec2", "us-east-1", 42)
	tel.Metrics.SetResourcesIndexed("s3", "us-east-1", 7)

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_runInstrumentation demonstrates instrumenting a complete run.
func Example_runInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Metrics.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start run context
	runID := "run-123"
	ctx = telemetry.WithRunContext(ctx, runID, "cli")

	// Execute one task (simulated)
	executeTask(ctx, runID)

	// End run context
	telemetry.EndRunContext(ctx, "completed", 60*time.Millisecond, nil)

	fmt.Println("Run instrumentation complete")
	// Output: Run instrumentation complete
}

func executeTask(ctx context.Context, runID string) {
	ctx = telemetry.WithTaskContext(ctx, runID, "iam", "us-east-1")

	// Get logger from context
	logger := telemetry.FromContext(ctx)
	logger.Info("Executing task")

	// Simulate work
	time.Sleep(10 * time.Millisecond)

	// End task context
	telemetry.EndTaskContext(ctx, "iam", "completed", nil)
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	// Customize for your environment
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "production"

	// Configure OTLP exporter
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1 // 10% sampling
	cfg.Tracing.Insecure = false   // Use TLS in production

	// Configure metrics
	cfg.Metrics.ListenAddress = ":9090"

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}

// Example_errorRecording demonstrates error recording with proper classification.
func Example_errorRecording() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Metrics.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a span
	ctx, span := tel.Tracer.Start(ctx, "risky_operation")
	defer span.End()

	// Simulate an error
	err := fmt.Errorf("connection timeout")

	if err != nil {
		// Record error on span
		telemetry.RecordError(span, err)

		// Record error metric with classification
		tel.Metrics.RecordError("connectivity", "Timeout")

		// Log error
		logger := telemetry.FromContext(ctx)
		logger.WithError(err).Error("Operation failed")
	}

	fmt.Println("Error recording complete")
	// Output: Error recording complete
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stderr"
	cfg.Metrics.Enabled = false
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific loggers
	schedulerLogger := tel.Logger.NewComponentLogger("scheduler")
	plannerLogger := tel.Logger.NewComponentLogger("planner")
	indexerLogger := tel.Logger.NewComponentLogger("indexer")

	schedulerLogger.Info("Scheduler initialized")
	plannerLogger.Info("Planning tasks")
	indexerLogger.Info("Indexing run results")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
