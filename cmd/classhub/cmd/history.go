package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/cmd/classhub/internal/format"
	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/domain"
)

var (
	historyA      string
	historyB      string
	historyGroup  string
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a conversation or group stream",
	Long: `Print the messages of a direct conversation or a group, oldest first.

Examples:
  classhub history --a alice --b bob
  classhub history --group physics --format json`,
	RunE: withApp(runHistory),
}

func runHistory(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	if !format.Valid(historyFormat) {
		return fmt.Errorf("invalid format %q: valid formats are table, json", historyFormat)
	}
	svc, err := a.Messaging()
	if err != nil {
		return err
	}

	var msgs []domain.Message
	switch {
	case historyGroup != "":
		msgs, err = svc.Group(ctx, historyGroup)
	case historyA != "" && historyB != "":
		msgs, err = svc.Conversation(ctx, domain.UserIdentity(historyA), domain.UserIdentity(historyB))
	default:
		return errors.New("either --group or both --a and --b are required")
	}
	if err != nil {
		return err
	}
	return format.Messages(cmd.OutOrStdout(), historyFormat, msgs)
}

func init() {
	historyCmd.Flags().StringVar(&historyA, "a", "", "First participant")
	historyCmd.Flags().StringVar(&historyB, "b", "", "Second participant")
	historyCmd.Flags().StringVar(&historyGroup, "group", "", "Group id")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", format.Table, "Output format (table, json)")
	rootCmd.AddCommand(historyCmd)
}
