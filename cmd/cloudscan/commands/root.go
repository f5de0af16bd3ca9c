package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudscan",
		Short: "cloudscan - safe read-only API surface inventory",
		Long: `cloudscan inventories an account's API surface without mutating anything.

It discovers the read-only operations of every namespace from pre-generated
service models, executes them concurrently per region under strict budgets,
infers missing parameters from earlier listings, and indexes the collected
results into per-namespace resource counts.

Commands:
  collect   run a collection across namespaces and regions
  index     build the resource index for a stored run
  catalog   show the read-only operation catalog for a namespace
  classify  classify operation names as read or write
  runs      list stored collection runs`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newCollectCommand())
	rootCmd.AddCommand(newIndexCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newClassifyCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
