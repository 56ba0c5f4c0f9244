package cli

import (
	"fmt"
	"os"

	"github.com/khanglvm/skill-hub/internal/config"
	"github.com/spf13/cobra"
)

type setupOptions struct {
	backend     string
	dataDir     string
	timezone    string
	defaultTier string
	tiersFile   string
	noEvict     bool
	force       bool
}

// NewSetupCmd creates the 'setup' command that writes a configuration file.
func NewSetupCmd() *cobra.Command {
	var opts setupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a skill-hub configuration file",
		Long: `Create ~/.skill-hub.json (or the --config path) with storage and quota settings.

Settings:
  • backend      sqlite (default) or journal
  • data-dir     where the ledger lives (default ~/.skill-hub)
  • timezone     IANA zone that bounds a quota day (default local)
  • default-tier tier for owners without an assignment (default Free)
  • tiers-file   YAML catalog replacing the built-in Free/Pro/Creator tiers`,
		Example: `  # Defaults
  skill-hub setup

  # Journal backend, quota days in UTC
  skill-hub setup --backend journal --timezone UTC`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.backend, "backend", config.BackendSQLite, "Storage backend: sqlite or journal")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (default: ~/.skill-hub)")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "", "IANA time zone for quota days (default: local)")
	cmd.Flags().StringVar(&opts.defaultTier, "default-tier", config.DefaultTier, "Tier for owners without an assignment")
	cmd.Flags().StringVar(&opts.tiersFile, "tiers-file", "", "YAML tier catalog")
	cmd.Flags().BoolVar(&opts.noEvict, "no-evict", false, "Reject new outputs at capacity instead of evicting the oldest")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing config")

	return cmd
}

func runSetup(cmd *cobra.Command, opts setupOptions) error {
	out := cmd.OutOrStdout()

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.NewConfig()
	cfg.StorageBackend = opts.backend
	cfg.DataDir = opts.dataDir
	cfg.Timezone = opts.timezone
	cfg.DefaultTier = opts.defaultTier
	cfg.TiersFile = opts.tiersFile
	evict := !opts.noEvict
	cfg.EvictOnFull = &evict

	// The default tier must exist in whichever catalog will be used.
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	if _, err := catalog.Get(cfg.DefaultTier); err != nil {
		return fmt.Errorf("default tier: %w", err)
	}

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	storagePath, err := cfg.StoragePath()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Wrote %s\n", path)
	fmt.Fprintf(out, "  Storage:      %s (%s)\n", cfg.StorageBackend, storagePath)
	fmt.Fprintf(out, "  Default tier: %s\n", cfg.DefaultTier)
	fmt.Fprintf(out, "  Tiers:        %d\n", len(catalog.List()))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  skill-hub serve")
	return nil
}
