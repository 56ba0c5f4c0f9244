package cli

import (
	"github.com/spf13/cobra"
)

// NewLearningCmd creates the learning command group.
func NewLearningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Inspect and maintain the learning corpus",
		Long: `The learning corpus holds patterns promoted from approved outputs.
Each pattern tracks how often it was reused and how often reuse succeeded.

Commands:
  status     Show corpus size and top-ranked patterns
  export     Write the corpus as JSON Lines or CBOR, optionally zstd-compressed
  reinforce  Record one reuse outcome for a pattern
  search     Full-text search over pattern summaries and steps`,
	}

	cmd.AddCommand(newLearningStatusCmd())
	cmd.AddCommand(newLearningExportCmd())
	cmd.AddCommand(newLearningReinforceCmd())
	cmd.AddCommand(newLearningSearchCmd())

	return cmd
}
