package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/khanglvm/skill-hub/internal/analytics"
	"github.com/spf13/cobra"
)

// NewAnalyticsCmd creates the 'analytics' command, the operator dashboard.
//
// This reads the ledger and corpus directly and is not subject to the
// per-tier analytics gate that applies to analytics.report over RPC.
func NewAnalyticsCmd() *cobra.Command {
	var owner string
	var jsonOutput bool
	opts := analytics.DefaultReportOptions()

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show usage and learning rollups",
		Long: `Display usage totals by skill and action, the most used skills, pattern
counts, the weekly promotion trend and the top-ranked patterns.

Without --owner the report covers every owner.`,
		Example: `  skill-hub analytics
  skill-hub analytics --owner alice --weeks 8 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(false)
			if err != nil {
				return err
			}
			defer sess.Close()

			report, err := sess.hub.Analytics().Report(owner, opts)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Restrict to one owner")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().IntVar(&opts.TopSkills, "top-skills", opts.TopSkills, "Number of most used skills")
	cmd.Flags().IntVar(&opts.Weeks, "weeks", opts.Weeks, "Weeks in the promotion trend")
	cmd.Flags().IntVar(&opts.TopPatterns, "top-patterns", opts.TopPatterns, "Number of top-ranked patterns")

	return cmd
}

func printReport(w io.Writer, r analytics.Report) {
	scope := r.Owner
	if scope == "" {
		scope = "all owners"
	}
	fmt.Fprintf(w, "Analytics for %s (%s)\n\n", scope, r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintln(w, "Actions:")
	for _, a := range slices.Sorted(maps.Keys(r.UsageByAction)) {
		fmt.Fprintf(w, "  %-10s %d\n", a, r.UsageByAction[a])
	}

	fmt.Fprintln(w, "\nMost used skills:")
	for _, sc := range r.MostUsedSkills {
		fmt.Fprintf(w, "  %-20s %d\n", sc.Skill, sc.Count)
	}

	fmt.Fprintf(w, "\nPatterns: %d (average success %.0f%%)\n", r.PatternCount, r.AverageSuccessRate*100)
	for _, wb := range r.WeeklyTrend {
		fmt.Fprintf(w, "  week of %s  +%d  %.0f%%\n", wb.Start.Format(time.DateOnly), wb.PatternsAdded, wb.AverageSuccessRate*100)
	}

	if len(r.TopPatterns) > 0 {
		fmt.Fprintln(w, "\nTop patterns:")
		for i, ps := range r.TopPatterns {
			fmt.Fprintf(w, "  %d. %.3f  %s\n", i+1, ps.Score, ps.Summary)
		}
	}
}
