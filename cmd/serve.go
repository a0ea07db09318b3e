package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"goblin/internal/app"
	"goblin/internal/config"

	"github.com/spf13/cobra"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aggregation gateway",
	Long: `serve loads the gateway configuration, connects to every enabled
upstream MCP server, and starts the client-facing front-end (stdio, SSE, or
Streamable-HTTP, per the gateway.transport setting). It keeps running,
hot-reloading configuration changes and re-syncing upstream capabilities,
until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path := serveConfigPath
	if path == "" {
		resolved, err := config.ResolveConfigPath("")
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		path = resolved
	}

	application, err := app.New(path)
	if err != nil {
		return fmt.Errorf("initializing gateway: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return application.Run(ctx)
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the gateway configuration file (default: platform config dir)")
	rootCmd.AddCommand(serveCmd)
}
