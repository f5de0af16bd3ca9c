package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/config"
)

func newClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <operation>...",
		Short: "Classify operation names as read or write",
		Long: `Apply the classification rules to one or more operation names and
print the verdict for each. Useful for checking how a rules file treats
an operation before running a collection with it.`,
		Example: `  # Built-in rules
  cloudscan classify ListBuckets DeleteBucket GetBucketPolicy

  # With a custom rules file
  cloudscan classify TerminateInstances -c cloudscan.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			rules := catalog.DefaultRules()
			if cfg.Models.Rules != "" {
				rules, err = catalog.LoadRules(cfg.Models.Rules)
				if err != nil {
					return fmt.Errorf("loading classification rules: %w", err)
				}
			}

			verdicts := make(map[string]catalog.Classification, len(args))
			for _, name := range args {
				verdicts[name] = rules.Classify(name)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(verdicts)
			}
			for _, name := range args {
				fmt.Printf("%-40s %s\n", name, verdicts[name])
			}
			return nil
		},
	}
	return cmd
}
