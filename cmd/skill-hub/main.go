/*
Package main is the entry point for the skill-hub CLI.

skill-hub meters on-demand content generation. Owners are assigned a tier,
each tier grants daily quotas per skill, generated outputs are held until
downloaded, copied or discarded, and approved outputs feed a learning
corpus.

Usage:
  skill-hub [command]

Available Commands:
  setup       Write a config file
  serve       Run the JSON-RPC server (stdio transport)
  tiers       Show the tier catalog
  usage       Show an owner's quota position for today
  learning    Inspect and export the learning corpus
  analytics   Print usage rollups
  version     Print version information

Examples:
  # Create ~/.skill-hub.json with a journal backend
  skill-hub setup --backend journal

  # Run as JSON-RPC server
  skill-hub serve
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/skill-hub/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
