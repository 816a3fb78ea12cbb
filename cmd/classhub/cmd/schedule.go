package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/domain"
)

var (
	scheduleFrom string
	scheduleName string
	scheduleTo   string
	scheduleText string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a message for when its recipient comes online",
	Long: `Store a message that is delivered to the recipient's conversation the next
time they are online. Delivery is done by a running "classhub deliver" for the
sender.

Examples:
  classhub schedule --from alice --to bob --text "See you at 5"`,
	RunE: withApp(runSchedule),
}

func runSchedule(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	queue, err := a.Queue()
	if err != nil {
		return err
	}
	dm, err := queue.Schedule(ctx,
		domain.Sender{UID: domain.UserIdentity(scheduleFrom), DisplayName: scheduleName},
		domain.UserIdentity(scheduleTo),
		scheduleText)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s for %s\n", dm.ID, dm.TargetUserID)
	return nil
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleFrom, "from", "", "Sender identity")
	scheduleCmd.Flags().StringVar(&scheduleName, "name", "", "Sender display name")
	scheduleCmd.Flags().StringVar(&scheduleTo, "to", "", "Recipient identity")
	scheduleCmd.Flags().StringVar(&scheduleText, "text", "", "Message text")
	_ = scheduleCmd.MarkFlagRequired("from")
	_ = scheduleCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(scheduleCmd)
}
