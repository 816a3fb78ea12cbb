package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/cmd/classhub/internal/format"
	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/domain"
)

var (
	pendingUID    string
	pendingAll    bool
	pendingFormat string
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List scheduled messages",
	Long: `List a sender's scheduled messages, newest first. By default only messages
still waiting for their recipient are shown.

Examples:
  classhub pending --uid alice            # Still waiting
  classhub pending --uid alice --all      # Including delivered ones`,
	RunE: withApp(runPending),
}

func runPending(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	if !format.Valid(pendingFormat) {
		return fmt.Errorf("invalid format %q: valid formats are table, json", pendingFormat)
	}
	queue, err := a.Queue()
	if err != nil {
		return err
	}
	list := queue.ListPending
	if pendingAll {
		list = queue.List
	}
	msgs, err := list(ctx, domain.UserIdentity(pendingUID))
	if err != nil {
		return err
	}
	return format.Deferred(cmd.OutOrStdout(), pendingFormat, msgs)
}

func init() {
	pendingCmd.Flags().StringVar(&pendingUID, "uid", "", "Sender identity")
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "Include delivered messages")
	pendingCmd.Flags().StringVarP(&pendingFormat, "format", "f", format.Table, "Output format (table, json)")
	_ = pendingCmd.MarkFlagRequired("uid")
	rootCmd.AddCommand(pendingCmd)
}
