package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/executor"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/indexer"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/telemetry"
)

// Duration wraps time.Duration for YAML decoding from strings like "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// NamespaceConfig filters which namespaces a run collects.
type NamespaceConfig struct {
	// Allow restricts collection to these namespaces. Empty admits all.
	Allow []string `yaml:"allow"`

	// Deny excludes namespaces. Deny wins over allow.
	Deny []string `yaml:"deny"`
}

// LimitsConfig bounds the work one run may perform.
type LimitsConfig struct {
	// MaxPages bounds pagination per operation.
	MaxPages int `yaml:"max_pages" validate:"gte=1,lte=10000"`

	// MaxFollowups bounds inferred-parameter calls per operation.
	MaxFollowups int `yaml:"max_followups" validate:"gte=1,lte=100"`

	// OperationBudget caps operations executed per task.
	OperationBudget int `yaml:"operation_budget" validate:"gte=1"`

	// BudgetOverrides replaces the operation budget for specific namespaces.
	BudgetOverrides map[string]int `yaml:"budget_overrides" validate:"dive,gte=1"`

	// TaskBudget is the wall-clock allowance for one task.
	TaskBudget Duration `yaml:"task_budget"`

	// OperationTimeout is the wall-clock budget for one operation including
	// retries.
	OperationTimeout Duration `yaml:"operation_timeout"`
}

// RetryConfig tunes throttling recovery. Only throttled calls retry.
type RetryConfig struct {
	MaxRetries int      `yaml:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  Duration `yaml:"base_delay"`
}

// ExecutionConfig tunes the call decision tree.
type ExecutionConfig struct {
	// TryZeroArgMulti attempts a zero-argument call for operations that
	// declare more than one required parameter.
	TryZeroArgMulti bool `yaml:"try_zero_arg_multi"`

	// CatalogOperations are clamped to a single page when paginated.
	CatalogOperations []string `yaml:"catalog_operations"`

	// ExpectedErrorMessages downgrades log severity for matching failures.
	ExpectedErrorMessages []string `yaml:"expected_error_messages"`
}

// IndexConfig tunes resource counting.
type IndexConfig struct {
	// PriorityOperations restricts counting (and orders execution) per
	// namespace. Unset falls back to the built-in table.
	PriorityOperations map[string][]string `yaml:"priority_operations"`

	// ExcludedNamespaces never contribute to the resource index.
	ExcludedNamespaces []string `yaml:"excluded_namespaces"`
}

// StorageConfig locates the run database.
type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ModelConfig locates the service model files.
type ModelConfig struct {
	// Dir holds one YAML service definition per namespace.
	Dir string `yaml:"dir" validate:"required"`

	// Rules optionally overrides the built-in classification rules.
	Rules string `yaml:"rules"`
}

// TelemetryConfig tunes metrics and tracing.
type TelemetryConfig struct {
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsListen   string `yaml:"metrics_listen"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// Config is the complete run configuration.
type Config struct {
	// Regions to collect. May also come from the command line.
	Regions []string `yaml:"regions"`

	// ReferenceRegion hosts the single task of every global namespace.
	ReferenceRegion string `yaml:"reference_region" validate:"required"`

	Namespaces NamespaceConfig `yaml:"namespaces"`

	// Workers is the concurrent task pool width.
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`

	// RateLimit caps outbound calls per second across the run. Zero
	// disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	Limits    LimitsConfig    `yaml:"limits"`
	Retry     RetryConfig     `yaml:"retry"`
	Execution ExecutionConfig `yaml:"execution"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Models    ModelConfig     `yaml:"models"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		ReferenceRegion: "us-east-1",
		Workers:         20,
		Limits: LimitsConfig{
			MaxPages:         100,
			MaxFollowups:     5,
			OperationBudget:  40,
			TaskBudget:       Duration(2 * time.Minute),
			OperationTimeout: Duration(2 * time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			BaseDelay:  Duration(time.Second),
		},
		Execution: ExecutionConfig{
			TryZeroArgMulti:   true,
			CatalogOperations: DefaultCatalogOperations(),
		},
		Storage: StorageConfig{Path: "cloudscan.db"},
		Models:  ModelConfig{Dir: "models"},
		Telemetry: TelemetryConfig{
			MetricsListen:   ":9090",
			TracingExporter: "stdout",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Limits.TaskBudget <= 0 {
		return fmt.Errorf("invalid config: task_budget must be positive")
	}
	if c.Limits.OperationTimeout <= 0 {
		return fmt.Errorf("invalid config: operation_timeout must be positive")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("invalid config: base_delay must be positive")
	}
	return nil
}

// ExecutorConfig maps the configuration onto the execution engine.
func (c *Config) ExecutorConfig() executor.Config {
	catalogOps := make(map[string]struct{}, len(c.Execution.CatalogOperations))
	for _, op := range c.Execution.CatalogOperations {
		catalogOps[op] = struct{}{}
	}
	var limiter *rate.Limiter
	if c.RateLimit > 0 {
		burst := int(c.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(c.RateLimit), burst)
	}
	return executor.Config{
		MaxPages:              c.Limits.MaxPages,
		MaxFollowups:          c.Limits.MaxFollowups,
		MaxRetries:            c.Retry.MaxRetries,
		BaseDelay:             time.Duration(c.Retry.BaseDelay),
		OperationTimeout:      time.Duration(c.Limits.OperationTimeout),
		TryZeroArgMulti:       c.Execution.TryZeroArgMulti,
		CatalogOperations:     catalogOps,
		ExpectedErrorMessages: c.Execution.ExpectedErrorMessages,
		Limiter:               limiter,
	}
}

// SchedulerConfig maps the configuration onto the task scheduler.
func (c *Config) SchedulerConfig() engine.SchedulerConfig {
	priority := c.Index.PriorityOperations
	if priority == nil {
		priority = indexer.DefaultPriorityOperations()
	}
	return engine.SchedulerConfig{
		Width:              c.Workers,
		OperationBudget:    c.Limits.OperationBudget,
		BudgetOverrides:    c.Limits.BudgetOverrides,
		TaskBudget:         time.Duration(c.Limits.TaskBudget),
		PriorityOperations: priority,
	}
}

// IndexerConfig maps the configuration onto the resource indexer.
func (c *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		PriorityOperations: c.Index.PriorityOperations,
		ExcludedNamespaces: c.Index.ExcludedNamespaces,
	}
}

// TelemetryConfig maps the configuration onto the telemetry stack.
func (c *Config) TelemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = c.Telemetry.MetricsEnabled
	if c.Telemetry.MetricsListen != "" {
		cfg.Metrics.ListenAddress = c.Telemetry.MetricsListen
	}
	cfg.Tracing.Enabled = c.Telemetry.TracingEnabled
	if c.Telemetry.TracingExporter != "" {
		cfg.Tracing.Exporter = c.Telemetry.TracingExporter
	}
	if c.Telemetry.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	}
	return cfg
}

// DefaultCatalogOperations lists operations whose payloads are catalogs or
// event histories rather than inventory. Their pagination is clamped to one
// page.
func DefaultCatalogOperations() []string {
	return []string{
		"LookupEvents",
		"ListDocuments",
		"DescribeReservedDBInstancesOfferings",
		"DescribeOrderableDBInstanceOptions",
		"DescribeCertificates",
		"DescribeReservedInstancesOfferings",
		"DescribeInstanceTypeOfferings",
		"DescribeInstanceTypes",
		"DescribeSpotPriceHistory",
		"DescribeAvailabilityZones",
		"DescribeRegions",
		"DescribeReservedCacheNodesOfferings",
		"DescribeCacheParameterGroups",
		"DescribeCacheEngineVersions",
		"ListVersions",
		"DescribeSavingsPlansOfferings",
		"DescribeSavingsPlansOfferingRates",
		"DescribeReservedNodeOfferings",
		"DescribeNodeConfigurationOptions",
		"ListAvailableZones",
	}
}
