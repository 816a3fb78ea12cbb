package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/deferred"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

var (
	deliverUID  string
	deliverName string
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run the deferred delivery engine for a user",
	Long: `Watch a sender's pending scheduled messages and deliver each one as soon as
its recipient is online. Several engines for the same sender may run at once;
every message is still delivered exactly once. Interrupt to stop.

Examples:
  classhub deliver --uid alice --name Alice`,
	RunE: withApp(runDeliver),
}

func runDeliver(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	engine, err := a.NewEngine(domain.Sender{UID: domain.UserIdentity(deliverUID), DisplayName: deliverName})
	if err != nil {
		return err
	}
	bus, err := a.Bus()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = pubsub.Subscribe(ctx, bus, deferred.EventMessageDelivered, func(_ context.Context, d deferred.Delivered) error {
		fmt.Fprintln(out, d.Notice)
		return nil
	})
	if err != nil {
		return err
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()
	if err := serveMetrics(ctx, a, a.Config().GetMetricsAddr()); err != nil {
		return err
	}

	fmt.Fprintf(out, "Delivering scheduled messages from %s. Press Ctrl+C to stop.\n", deliverUID)
	<-ctx.Done()
	return nil
}

func init() {
	deliverCmd.Flags().StringVar(&deliverUID, "uid", "", "Sender identity")
	deliverCmd.Flags().StringVar(&deliverName, "name", "", "Sender display name")
	_ = deliverCmd.MarkFlagRequired("uid")
	rootCmd.AddCommand(deliverCmd)
}
