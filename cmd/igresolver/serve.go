package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"igresolver/pkg/ui"
)

var servePort int

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API.

Routes:
  GET /instagram/p/{shortcode}
  GET /instagram/u/{user_name}
  GET /instagram/s/{user_name}
  GET /instagram/s/{user_name}/{story_id}
  GET /healthz

The server stops gracefully on SIGINT or SIGTERM.`,
	Example: `  # Serve on the configured port with both tiers
  igresolver serve --username myaccount

  # Public data only, no Redis
  igresolver serve --tiers embed --no-cache --port 9000`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	flags := commandFlags()
	if servePort > 0 {
		flags["port"] = servePort
	}

	ctx := context.Background()
	a, err := loadApp(ctx, flags)
	if err != nil {
		ui.PrintError("Failed to start", err.Error())
		os.Exit(1)
	}

	err = a.Serve(ctx)
	if cerr := a.Close(); cerr != nil {
		a.Logger.WithError(cerr).Warn("failed to close cache")
	}
	if err != nil {
		a.Logger.WithError(err).Error("server stopped")
		ui.PrintError("Server error", err.Error())
		os.Exit(1)
	}
}
