package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/domain"
)

var (
	sendFrom  string
	sendName  string
	sendTo    string
	sendGroup string
	sendText  string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a direct or group message",
	Long: `Append a message to a direct conversation or a group stream.

Examples:
  classhub send --from alice --to bob --text "hi"
  classhub send --from alice --group physics --text "lab at 3"`,
	RunE: withApp(runSend),
}

func runSend(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	if (sendTo == "") == (sendGroup == "") {
		return errors.New("exactly one of --to or --group is required")
	}
	svc, err := a.Messaging()
	if err != nil {
		return err
	}
	from := domain.Sender{UID: domain.UserIdentity(sendFrom), DisplayName: sendName}

	var msg *domain.Message
	if sendGroup != "" {
		msg, err = svc.SendGroup(ctx, from, sendGroup, sendText)
	} else {
		msg, err = svc.SendDirect(ctx, from, domain.UserIdentity(sendTo), sendText)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "Sender identity")
	sendCmd.Flags().StringVar(&sendName, "name", "", "Sender display name")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Recipient identity")
	sendCmd.Flags().StringVar(&sendGroup, "group", "", "Group id")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Message text")
	_ = sendCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(sendCmd)
}
