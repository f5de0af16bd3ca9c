package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/config"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored collection runs",
		Example: `  # The last twenty runs
  cloudscan runs

  # Everything, as JSON
  cloudscan runs --limit 0 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Storage.Path})
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()
			if err := store.Init(cmd.Context()); err != nil {
				return fmt.Errorf("initializing store: %w", err)
			}

			if limit <= 0 {
				limit = -1 // SQLite treats a negative LIMIT as unbounded
			}
			runs, err := store.ListRuns(cmd.Context(), limit, 0)
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			for _, run := range runs {
				elapsed := "-"
				if run.CompletedAt != nil {
					elapsed = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				fmt.Printf("%s  %-10s  %s  %s  %d ops, %d failed\n",
					run.ID, run.Status, run.StartedAt.Format(time.RFC3339), elapsed,
					run.Counters.Executed, run.Counters.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list, 0 for all")

	return cmd
}
