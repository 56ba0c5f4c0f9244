package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/khanglvm/skill-hub/internal/analytics"
	"github.com/khanglvm/skill-hub/internal/learning"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
	"github.com/spf13/cobra"
)

// newLearningStatusCmd shows corpus statistics.
func newLearningStatusCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show learning corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(false)
			if err != nil {
				return err
			}
			defer sess.Close()

			var patterns []storage.Pattern
			for p, err := range sess.hub.CorpusExport() {
				if err != nil {
					return err
				}
				patterns = append(patterns, p)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Learning Corpus Status")
			fmt.Fprintln(out, "======================")
			fmt.Fprintf(out, "Backend:  %s\n", sess.cfg.StorageBackend)
			fmt.Fprintf(out, "Patterns: %d\n", len(patterns))
			fmt.Fprintf(out, "Ranking:  0.6*usage + 0.3*recency + 0.1*successRate\n")

			if len(patterns) == 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "No patterns yet. Promote an approved output with outputs.promote.")
				return nil
			}

			ranked := analytics.RankPatterns(patterns, time.Now())
			if top > 0 && len(ranked) > top {
				ranked = ranked[:top]
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Top %d:\n", len(ranked))
			for i, ps := range ranked {
				fmt.Fprintf(out, "  %d. %s  score=%.3f uses=%d success=%.0f%%\n     %s\n",
					i+1, ps.PatternID, ps.Score, ps.UsageCount, ps.SuccessRate*100, ps.Summary)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 5, "Number of top-ranked patterns to show")
	return cmd
}

// newLearningExportCmd writes the corpus in creation order.
func newLearningExportCmd() *cobra.Command {
	var outputFile string
	var formatName string
	var compress bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the learning corpus",
		Long: `Write every pattern in creation order.

Formats are jsonl (one JSON object per line) and cbor (a CBOR sequence).
Output is zstd-compressed with --compress or when the output file ends in .zst.`,
		Example: `  skill-hub learning export > corpus.jsonl
  skill-hub learning export --format cbor -o corpus.cbor.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := learning.ParseFormat(formatName)
			if err != nil {
				return err
			}
			opts := learning.ExportOptions{
				Format:   format,
				Compress: compress || strings.HasSuffix(outputFile, ".zst"),
			}

			sess, err := openSession(false)
			if err != nil {
				return err
			}
			defer sess.Close()

			var w io.Writer = cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			n, err := learning.WriteCorpus(w, sess.hub.CorpusExport(), opts)
			if err != nil {
				return fmt.Errorf("export failed after %d patterns: %w", n, err)
			}
			if outputFile != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d patterns to %s\n", n, outputFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&formatName, "format", "f", string(learning.FormatJSONL), "Output format: jsonl or cbor")
	cmd.Flags().BoolVarP(&compress, "compress", "z", false, "Compress with zstd")
	return cmd
}

// newLearningReinforceCmd records one reuse outcome.
func newLearningReinforceCmd() *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "reinforce <pattern-id>",
		Short: "Record a reuse outcome for a pattern",
		Example: `  skill-hub learning reinforce 5f0c...
  skill-hub learning reinforce 5f0c... --failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(false)
			if err != nil {
				return err
			}
			defer sess.Close()

			p, err := sess.hub.Reinforce(args[0], !failed)
			if errors.Is(err, learning.ErrPatternNotFound) {
				return fmt.Errorf("no pattern with id %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d uses, %.0f%% success\n", p.ID, p.UsageCount, p.SuccessRate*100)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Record the reuse as unsuccessful")
	return cmd
}

// newLearningSearchCmd searches pattern text.
func newLearningSearchCmd() *cobra.Command {
	var skill string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the learning corpus",
		Example: `  skill-hub learning search "sunset poster"
  skill-hub learning search --skill CodeHelper`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			sess, err := openSession(true)
			if err != nil {
				return err
			}
			defer sess.Close()

			results, err := sess.hub.SearchPatterns(query, tier.Skill(skill), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matching patterns.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%.3f  %s  [%s/%s]\n       %s\n", r.Score, r.PatternID, r.Skill, r.ContentType, r.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&skill, "skill", "s", "", "Only patterns from this skill")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum results")
	return cmd
}
