package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/khanglvm/skill-hub/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the 'version' command
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the version, commit and build date of this skill-hub binary.

Release builds carry values stamped at link time; 'go install' builds report
the module version and VCS revision recorded by the Go toolchain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runVersion(w io.Writer, jsonOutput bool) error {
	info := version.Current()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	commit := info.Commit
	if info.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(w, "Version:  %s\n", info.Version)
	fmt.Fprintf(w, "Commit:   %s\n", commit)
	fmt.Fprintf(w, "Built:    %s\n", info.Date)
	fmt.Fprintf(w, "Go:       %s\n", info.GoVersion)
	return nil
}
