package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igresolver/internal/app"
	"igresolver/pkg/config"
	"igresolver/pkg/logger"
	"igresolver/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	noColor      bool
	username     string
	settingsFile string
	tierOrder    []string
	noCache      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igresolver",
	Short: "Resolve Instagram posts, profiles and stories into stable JSON",
	Long: `igresolver turns Instagram shortcodes, usernames and story ids into
normalized JSON documents.

Lookups go through an ordered list of tiers:
  - embed: public embed pages with a GraphQL fallback, no login needed
  - private: the mobile API, signed in with a stored account

Results are cached in Redis. Run 'igresolver serve' for the HTTP API or use
the lookup commands for one-off resolution.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./config.yaml or ~/.config/igresolver/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "account the private tier signs in with")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings-file", "", "where the private session is persisted")
	rootCmd.PersistentFlags().StringSliceVar(&tierOrder, "tiers", nil, "tier order, e.g. embed,private")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "use an in-process cache instead of Redis")

	rootCmd.SetVersionTemplate(`igresolver {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandFlags collects the global flags the configuration layer understands
func commandFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if username != "" {
		flags["username"] = username
	}
	if settingsFile != "" {
		flags["settings-file"] = settingsFile
	}
	if len(tierOrder) > 0 {
		flags["tiers"] = tierOrder
	}
	if noCache {
		flags["no-cache"] = true
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

// loadApp loads configuration, sets up logging, builds the resolver and
// establishes the private session
func loadApp(ctx context.Context, flags map[string]interface{}) (*app.App, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger().WithField("version", version)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
