package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 20 {
		t.Errorf("Workers = %d, want 20", cfg.Workers)
	}
	if cfg.ReferenceRegion != "us-east-1" {
		t.Errorf("ReferenceRegion = %q, want us-east-1", cfg.ReferenceRegion)
	}
	if cfg.Limits.MaxPages != 100 || cfg.Limits.MaxFollowups != 5 {
		t.Errorf("Limits = %+v, want max_pages 100 max_followups 5", cfg.Limits)
	}
	if cfg.Retry.MaxRetries != 2 || time.Duration(cfg.Retry.BaseDelay) != time.Second {
		t.Errorf("Retry = %+v, want 2 retries base 1s", cfg.Retry)
	}
	if !cfg.Execution.TryZeroArgMulti {
		t.Error("TryZeroArgMulti should default on")
	}
	if len(cfg.Execution.CatalogOperations) == 0 {
		t.Error("CatalogOperations should have a default set")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
regions: [eu-west-1, eu-central-1]
workers: 4
rate_limit: 10
limits:
  max_pages: 10
  task_budget: 90s
retry:
  max_retries: 5
  base_delay: 250ms
namespaces:
  allow: [s3, iam]
storage:
  path: /tmp/scan.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "eu-west-1" {
		t.Errorf("Regions = %v", cfg.Regions)
	}
	if time.Duration(cfg.Limits.TaskBudget) != 90*time.Second {
		t.Errorf("TaskBudget = %v, want 90s", cfg.Limits.TaskBudget)
	}
	if time.Duration(cfg.Retry.BaseDelay) != 250*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 250ms", cfg.Retry.BaseDelay)
	}
	// Untouched sections keep their defaults.
	if cfg.Limits.MaxFollowups != 5 {
		t.Errorf("MaxFollowups = %d, want default 5", cfg.Limits.MaxFollowups)
	}
	if cfg.Storage.Path != "/tmp/scan.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero workers", "workers: 0"},
		{"negative rate limit", "rate_limit: -1"},
		{"bad duration", "limits:\n  task_budget: often"},
		{"bad exporter", "telemetry:\n  tracing_exporter: jaeger"},
		{"empty reference region", `reference_region: ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExecutorConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 5
	cfg.Execution.CatalogOperations = []string{"LookupEvents"}

	ec := cfg.ExecutorConfig()
	if ec.MaxPages != 100 || ec.MaxFollowups != 5 || ec.MaxRetries != 2 {
		t.Errorf("ExecutorConfig = %+v", ec)
	}
	if ec.Limiter == nil {
		t.Fatal("Limiter should be set when rate_limit > 0")
	}
	if _, ok := ec.CatalogOperations["LookupEvents"]; !ok {
		t.Error("CatalogOperations not mapped")
	}

	cfg.RateLimit = 0
	if cfg.ExecutorConfig().Limiter != nil {
		t.Error("Limiter should be nil when rate_limit is 0")
	}
}

func TestSchedulerConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 8
	cfg.Limits.OperationBudget = 30
	cfg.Limits.BudgetOverrides = map[string]int{"ec2": 80}

	sc := cfg.SchedulerConfig()
	if sc.Width != 8 || sc.OperationBudget != 30 {
		t.Errorf("SchedulerConfig = %+v", sc)
	}
	if sc.BudgetOverrides["ec2"] != 80 {
		t.Error("BudgetOverrides not mapped")
	}
	if len(sc.PriorityOperations) == 0 {
		t.Error("PriorityOperations should fall back to the built-in table")
	}
}

func TestTelemetryConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.MetricsEnabled = true
	cfg.Telemetry.TracingEnabled = true
	cfg.Telemetry.TracingExporter = "otlp"
	cfg.Telemetry.TracingEndpoint = "collector:4317"

	tc := cfg.TelemetryConfig()
	if !tc.Metrics.Enabled {
		t.Error("Metrics.Enabled not mapped")
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "otlp" || tc.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing = %+v", tc.Tracing)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if out != "1m30s" {
		t.Errorf("MarshalYAML() = %v, want 1m30s", out)
	}
}
