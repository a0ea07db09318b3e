package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid config).
	ExitCodeError = 1
)

// rootCmd is the base command for the goblin aggregation gateway.
var rootCmd = &cobra.Command{
	Use:   "goblin",
	Short: "Aggregate multiple MCP servers behind a single endpoint",
	Long: `goblin is a protocol aggregation gateway for the Model Context
Protocol: it connects to a fleet of upstream MCP servers, merges their
tools, prompts, and resources into one namespaced capability set, and
exposes that set to a single client-facing MCP endpoint.`,
	SilenceUsage: true,
}

// SetVersion sets the version reported by --version, injected from main at
// build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command; it is the sole entry point called from
// main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "goblin version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}
