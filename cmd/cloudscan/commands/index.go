package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/config"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/indexer"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/stores"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/telemetry"
)

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <run-id>",
		Short: "Build the resource index for a stored run",
		Long: `Read every persisted result of a run and aggregate it into per-namespace
and per-region operation and resource counts.

Resource counting is restricted to each namespace's primary listing
operations so that auxiliary lookups never inflate the totals.`,
		Example: `  # Index a run and print the per-namespace totals
  cloudscan index 2f9c1c1e-8a43-4f2b-b1de-3a6c0b6f9d41

  # Full index as JSON
  cloudscan index 2f9c1c1e-8a43-4f2b-b1de-3a6c0b6f9d41 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
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

			ix := indexer.NewIndexer(store, cfg.IndexerConfig(), log.Zerolog())
			idx, err := ix.BuildIndex(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("building index: %w", err)
			}
			return printIndex(idx)
		},
	}
	return cmd
}

func printIndex(idx *indexer.Index) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(idx)
	}

	fmt.Printf("Run %s: %d operations, %d resources across %d namespaces\n",
		idx.RunID, idx.TotalOperations, idx.TotalResources, len(idx.Namespaces))

	names := make([]string, 0, len(idx.Namespaces))
	for name := range idx.Namespaces {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ns := idx.Namespaces[name]
		fmt.Printf("  %-20s %4d resources  (%d/%d operations succeeded)\n",
			name, ns.Resources, ns.SuccessfulOperations, ns.TotalOperations)
	}
	return nil
}
