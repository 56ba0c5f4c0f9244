package cli

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/khanglvm/skill-hub/internal/rpc"
	"github.com/khanglvm/skill-hub/internal/spawner"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the 'serve' command for running the JSON-RPC server.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server (stdio transport)",
		Long: `Start the skill-hub server using stdio transport.

One JSON-RPC 2.0 request is read per line from stdin and one response is
written per line to stdout. A single hub lives for the whole session, so
held outputs and tier assignments persist until stdin closes.

Methods:
  • tiers.list, session.setTier, quota.canProceed, skills.generate
  • outputs.add, outputs.get, outputs.list, outputs.finalize, outputs.promote
  • learning.reinforce, learning.search
  • usage.summary, analytics.report, corpus.export

skills.generate runs the generator process configured for the skill under
"generators" in the config file. Each generator is spawned on first use and
kept alive until the server exits.`,
		Example: `  # Run directly
  skill-hub serve

  # One-shot query
  echo '{"jsonrpc":"2.0","id":1,"method":"tiers.list"}' | skill-hub serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	return cmd
}

// runServe serves stdin/stdout until EOF or SIGINT/SIGTERM/SIGQUIT.
func runServe() error {
	sess, err := openSession(true)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer sess.Close()

	pool := spawner.NewPool(sess.cfg.Generators)
	defer func() {
		if err := pool.Close(); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()
	if skills := pool.Skills(); len(skills) > 0 {
		log.Printf("Generators configured for: %v", skills)
	}

	server := rpc.NewServer(sess.hub, rpc.WithGenerators(pool))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(os.Stdin, os.Stdout)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down gracefully...", sig)
		return nil

	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
