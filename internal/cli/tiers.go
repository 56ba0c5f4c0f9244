package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/khanglvm/skill-hub/internal/tier"
	"github.com/spf13/cobra"
)

// NewTiersCmd creates the 'tiers' command that prints the tier catalog.
func NewTiersCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "List the tier catalog",
		Long:  `Display every tier with its daily limits, retained-output bound and feature flags, in upgrade order.`,
		Example: `  skill-hub tiers
  skill-hub tiers --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(catalog.List())
			}
			return printTiers(cmd.OutOrStdout(), catalog)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printTiers(w io.Writer, catalog *tier.Catalog) error {
	skills := tier.Skills()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"TIER", "OUTPUTS", "BATCH"}
	for _, s := range skills {
		header = append(header, strings.ToUpper(string(s)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, t := range catalog.List() {
		row := []string{t.Name, fmt.Sprint(t.MaxMemoryOutputs), yesNo(t.Features.BatchOperations)}
		for _, s := range skills {
			row = append(row, formatLimit(t.Limit(s)))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func formatLimit(limit int) string {
	if limit == tier.Unlimited {
		return "∞"
	}
	return fmt.Sprint(limit)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
