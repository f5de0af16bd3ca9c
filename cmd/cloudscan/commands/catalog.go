package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/config"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/model"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/telemetry"
)

func newCatalogCommand() *cobra.Command {
	var safeOnly bool

	cmd := &cobra.Command{
		Use:   "catalog <namespace>",
		Short: "Show the read-only operation catalog for a namespace",
		Long: `Load a namespace's service model and print its read-only operation
catalog: which operations are safe to call without parameters, which
require inference, and which paginate.`,
		Example: `  # All read-only s3 operations
  cloudscan catalog s3

  # Only the zero-argument operations
  cloudscan catalog ec2 --safe-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := args[0]

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
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

			loader := model.NewFileLoader(cfg.Models.Dir)
			builder := catalog.NewBuilder(loader, rules, log.Zerolog())
			ops, err := builder.Build(cmd.Context(), namespace)
			if err != nil {
				return fmt.Errorf("building catalog for %s: %w", namespace, err)
			}

			if safeOnly {
				kept := ops[:0]
				for _, op := range ops {
					if op.SafeToCall {
						kept = append(kept, op)
					}
				}
				ops = kept
			}
			return printCatalog(namespace, ops)
		},
	}

	cmd.Flags().BoolVar(&safeOnly, "safe-only", false, "show only operations callable without parameters")

	return cmd
}

func printCatalog(namespace string, ops []catalog.OperationDescriptor) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ops)
	}

	fmt.Printf("%s: %d read-only operations\n", namespace, len(ops))
	for _, op := range ops {
		marker := " "
		if op.SafeToCall {
			marker = "*"
		}
		suffix := ""
		if len(op.RequiredParams) > 0 {
			suffix = fmt.Sprintf("  (requires %s)", op.RequiredParams[0].Name)
			if len(op.RequiredParams) > 1 {
				suffix = fmt.Sprintf("  (requires %d params)", len(op.RequiredParams))
			}
		}
		if op.Paginated {
			suffix += "  [paginated]"
		}
		fmt.Printf("  %s %s%s\n", marker, op.Name, suffix)
	}
	fmt.Println("\n  * safe to call without parameters")
	return nil
}
