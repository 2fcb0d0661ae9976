package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igresolver/internal/app"
	"igresolver/pkg/ui"
)

var postCmd = &cobra.Command{
	Use:     "post <shortcode>",
	Short:   "Resolve a post by shortcode",
	Example: `  igresolver post CxYz123AbCd --tiers embed`,
	Args:    cobra.ExactArgs(1),
	Run: lookup(func(ctx context.Context, a *app.App, args []string) (interface{}, error) {
		return a.API.GetPost(ctx, args[0])
	}),
}

var userCmd = &cobra.Command{
	Use:     "user <username>",
	Short:   "Resolve a profile",
	Example: `  igresolver user instagram`,
	Args:    cobra.ExactArgs(1),
	Run: lookup(func(ctx context.Context, a *app.App, args []string) (interface{}, error) {
		return a.API.GetUser(ctx, args[0])
	}),
}

var storiesCmd = &cobra.Command{
	Use:     "stories <username>",
	Short:   "List the active stories of a profile",
	Example: `  igresolver stories instagram --username myaccount`,
	Args:    cobra.ExactArgs(1),
	Run: lookup(func(ctx context.Context, a *app.App, args []string) (interface{}, error) {
		return a.API.GetStories(ctx, args[0])
	}),
}

var storyCmd = &cobra.Command{
	Use:   "story <username> <story-id>",
	Short: "Resolve a single story",
	Long: `Resolve a single story of a profile.

Prints null when the story is no longer available.`,
	Example: `  igresolver story instagram 3141592653589793238`,
	Args:    cobra.ExactArgs(2),
	Run: lookup(func(ctx context.Context, a *app.App, args []string) (interface{}, error) {
		return a.API.GetStory(ctx, args[0], args[1])
	}),
}

func init() {
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(storyCmd)
}

// lookup wraps a single resolution as a command that prints the result as JSON
func lookup(resolve func(ctx context.Context, a *app.App, args []string) (interface{}, error)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := loadApp(ctx, commandFlags())
		if err != nil {
			ui.PrintError("Failed to initialize", err.Error())
			os.Exit(1)
		}

		result, err := resolve(ctx, a, args)
		if cerr := a.Close(); cerr != nil {
			a.Logger.WithError(cerr).Warn("failed to close cache")
		}
		if err != nil {
			a.Logger.WithError(err).WithField("command", cmd.Name()).Error("lookup failed")
			ui.PrintError("Lookup failed", err.Error())
			os.Exit(1)
		}

		if err := ui.WriteJSON(cmd.OutOrStdout(), result); err != nil {
			ui.PrintError("Failed to write result", err.Error())
			os.Exit(1)
		}
	}
}
