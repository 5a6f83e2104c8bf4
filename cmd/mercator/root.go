package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mercator",
	Short: "Mercator - an LLM API gateway with pool-based routing and failover",
	Long: `Mercator is an LLM API gateway that multiplexes client traffic across many
upstream providers.

Clients address three virtual models (conventionally haiku/sonnet/opus) and
the gateway routes each request to a concrete (provider, model) endpoint
chosen from the matching pool. Routing is round-robin across providers and
weight-proportional across each provider's models, with automatic failover
around temporarily unhealthy endpoints and transparent OpenAI<->Anthropic
request/response translation.

For more information, visit: https://github.com/xiongxionghk/api-pool-gateway`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (not read by any command; seed import is run's --seed flag)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
