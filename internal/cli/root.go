/*
Package cli implements the command-line interface for skill-hub.

Each command is implemented as a separate function that returns a *cobra.Command,
allowing for clean separation and easy testing.
*/
package cli

import (
	"github.com/khanglvm/skill-hub/internal/version"
	"github.com/spf13/cobra"
)

// configPath is set by the persistent --config flag. Empty means
// $SKILL_HUB_CONFIG or ~/.skill-hub.json.
var configPath string

// NewRootCmd creates the skill-hub root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skill-hub",
		Short: "Tiered quotas, output lifecycle and a learning corpus for generation skills",
		Long: `skill-hub meters on-demand content generation per owner and skill.

Every generate, download, copy, discard and learn action is appended to a
durable usage ledger. Daily quotas come from the owner's tier. Generated
outputs are held until finalized, and approved outputs can be promoted
into a searchable learning corpus.`,
		Version:       version.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $SKILL_HUB_CONFIG or ~/.skill-hub.json)")

	rootCmd.AddCommand(NewSetupCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTiersCmd())
	rootCmd.AddCommand(NewUsageCmd())
	rootCmd.AddCommand(NewLearningCmd())
	rootCmd.AddCommand(NewAnalyticsCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
