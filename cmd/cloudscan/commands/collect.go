package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/clients"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/config"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/executor"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/model"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/stores"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/telemetry"
)

func newCollectCommand() *cobra.Command {
	var (
		regions    []string
		namespaces []string
		exclude    []string
		endpoint   string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a collection across namespaces and regions",
		Long: `Execute every safe read-only operation of the selected namespaces in
every selected region, persist the results, and print the run summary.

Operations with required parameters are attempted with a single inferred
identifier taken from earlier listings in the same task. Each task runs
under a wall-clock budget and each namespace under an operation budget, so
a run always terminates.`,
		Example: `  # Collect two regions with the default namespace set
  cloudscan collect --region us-east-1 --region eu-west-1

  # Collect only storage namespaces
  cloudscan collect --namespace s3 --namespace efs --region us-east-1

  # Point at a local emulator
  cloudscan collect --endpoint "http://localhost:4566" --region us-east-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(regions) > 0 {
				cfg.Regions = regions
			}
			if len(namespaces) > 0 {
				cfg.Namespaces.Allow = namespaces
			}
			if len(exclude) > 0 {
				cfg.Namespaces.Deny = append(cfg.Namespaces.Deny, exclude...)
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if len(cfg.Regions) == 0 {
				return fmt.Errorf("no regions selected: pass --region or set regions in the config file")
			}
			if endpoint == "" {
				return fmt.Errorf("no endpoint template: pass --endpoint")
			}
			return runCollect(cmd.Context(), cfg, endpoint)
		},
	}

	cmd.Flags().StringSliceVar(&regions, "region", nil, "region to collect (repeatable)")
	cmd.Flags().StringSliceVar(&namespaces, "namespace", nil, "restrict collection to these namespaces (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude namespaces (repeatable)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "endpoint URL template, {namespace} and {region} are substituted")
	cmd.Flags().IntVar(&workers, "workers", 0, "override the worker pool width")

	return cmd
}

func runCollect(ctx context.Context, cfg *config.Config, endpoint string) error {
	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	if cfg.Telemetry.MetricsEnabled {
		if err := tel.StartMetricsServer(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}
	// The scheduler picks the run span and run/task metrics up from here.
	ctx = tel.WithContext(ctx)
	log := tel.Logger.Zerolog()

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Storage.Path})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}

	loader := model.NewFileLoader(cfg.Models.Dir)

	rules := catalog.DefaultRules()
	if cfg.Models.Rules != "" {
		rules, err = catalog.LoadRules(cfg.Models.Rules)
		if err != nil {
			return fmt.Errorf("loading classification rules: %w", err)
		}
	}
	builder := catalog.NewBuilder(loader, rules, log)

	clientFactory, err := clients.NewHTTPClientFactory(clients.Config{
		EndpointTemplate: endpoint,
		ReadTimeout:      time.Duration(cfg.Limits.OperationTimeout),
	}, log)
	if err != nil {
		return err
	}
	execFactory := executor.NewFactory(clientFactory, cfg.ExecutorConfig(), log)

	planner := engine.NewPlanner(loader, cfg.ReferenceRegion, cfg.Namespaces.Allow, cfg.Namespaces.Deny, log)
	tasks, err := planner.PlanTasks(ctx, cfg.Regions)
	if err != nil {
		return fmt.Errorf("planning tasks: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("nothing to collect: no namespaces admitted by the allow/deny lists")
	}

	log.Info().
		Int("tasks", len(tasks)).
		Strs("regions", cfg.Regions).
		Int("workers", cfg.Workers).
		Msg("Starting collection")

	scheduler := engine.NewScheduler(cfg.SchedulerConfig(), builder, execFactory, store, store, tel.Metrics, log)
	summary, err := scheduler.Run(ctx, tasks, cfg.Regions)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	return printSummary(summary)
}

func printSummary(summary *engine.RunSummary) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("Run %s completed in %s\n", summary.RunID, summary.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Tasks:      %d planned, %d skipped\n", summary.Counters.TasksPlanned, summary.Counters.TasksSkipped)
	fmt.Printf("  Operations: %d executed, %d successful, %d failed, %d skipped\n",
		summary.Counters.Executed, summary.Counters.Successful, summary.Counters.Failed, summary.Counters.Skipped)
	if len(summary.Errors) > 0 {
		fmt.Printf("  Errors (%d):\n", len(summary.Errors))
		for _, e := range summary.Errors {
			fmt.Printf("    %s/%s: %s\n", e.Namespace, e.Region, e.Message)
		}
	}
	return nil
}
