package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/config"
	"github.com/nfrund/classhub/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "classhub",
	Short: "classhub presence and messaging CLI",
	Long: `classhub drives the presence, deferred delivery and messaging core from the
command line. It reads the same .env configuration as the application.

Available commands:
  online      Keep a user online with a heartbeat session
  deliver     Run the deferred delivery engine for a user
  schedule    Schedule a message for when its recipient comes online
  pending     List scheduled messages
  send        Send a direct or group message
  history     Print a conversation or group stream
  users       List or search users
  key         Print the conversation key of two users
  events      List the events published on the bus

Use "classhub [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command. SIGINT and SIGTERM cancel the command
// context so long-running commands shut down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type appRunner func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error

// withApp loads configuration, builds the service container for the duration
// of one command and shuts it down afterwards.
func withApp(run appRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := logging.New()
		cfg := config.New()
		if err := cfg.Validate(); err != nil {
			return err
		}

		a := app.New(cfg, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.Shutdown(ctx); err != nil {
				slog.Warn("Shutdown finished with errors", "error", err)
			}
		}()
		return run(cmd.Context(), cmd, a, args)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd, keyCmd, eventsCmd)
}
