package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/spf13/cobra"
)

// NewUsageCmd creates the 'usage' command that reports an owner's quota position.
func NewUsageCmd() *cobra.Command {
	var tierName string
	var jsonOutput bool
	var history bool

	cmd := &cobra.Command{
		Use:   "usage <owner>",
		Short: "Show today's quota usage for an owner",
		Long: `Display today's generate count and remaining quota per skill for an owner.

Quota days are bounded by the configured timezone. Tier assignments are
per session, so pass --tier to evaluate against a tier other than the
configured default.`,
		Example: `  skill-hub usage alice
  skill-hub usage alice --tier Pro
  skill-hub usage alice --history`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage(cmd.OutOrStdout(), args[0], tierName, jsonOutput, history)
		},
	}

	cmd.Flags().StringVarP(&tierName, "tier", "t", "", "Evaluate against this tier")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&history, "history", false, "Also print the owner's full ledger history")

	return cmd
}

func runUsage(w io.Writer, owner, tierName string, jsonOutput, history bool) error {
	sess, err := openSession(false)
	if err != nil {
		return err
	}
	defer sess.Close()

	if tierName != "" {
		if _, _, err := sess.hub.SetTier(owner, tierName); err != nil {
			return err
		}
	}

	snap, err := sess.hub.UsageSummary(owner)
	if err != nil {
		return err
	}

	var records []storage.UsageRecord
	if history {
		for rec, err := range sess.hub.Ledger().History(owner) {
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			hub.UsageSnapshot
			History []storage.UsageRecord `json:"history,omitempty"`
		}{snap, records})
	}

	fmt.Fprintf(w, "Usage for %s on %s (tier %s)\n\n", snap.Owner, snap.Day.Format(time.DateOnly), snap.Tier)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tUSED\tLIMIT\tREMAINING")
	for _, su := range snap.Skills {
		remaining := fmt.Sprint(su.Remaining)
		if su.Unlimited {
			remaining = "∞"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", su.Skill, su.Used, formatLimit(su.Limit), remaining)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if history {
		fmt.Fprintf(w, "\nHistory (%d records):\n", len(records))
		for _, rec := range records {
			fmt.Fprintf(w, "  %s  %-9s %-18s %s\n", rec.Timestamp.Format(time.RFC3339), rec.Action, rec.Skill, rec.OutputID)
		}
	}
	return nil
}
