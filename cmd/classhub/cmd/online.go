package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/presence"
	"github.com/nfrund/classhub/internal/pubsub"
)

var (
	onlineUID  string
	onlineName string
)

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Keep a user online with a heartbeat session",
	Long: `Sign a user in, refresh their presence record every heartbeat and print
other users coming online or going offline. Interrupt to sign out.

Examples:
  classhub online --uid bob --name Bob`,
	RunE: withApp(runOnline),
}

func runOnline(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	session, err := a.NewSession(domain.UserIdentity(onlineUID), onlineName)
	if err != nil {
		return err
	}
	dir, err := a.Directory()
	if err != nil {
		return err
	}
	bus, err := a.Bus()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	announce := func(verb string) func(context.Context, presence.StatusChange) error {
		return func(_ context.Context, c presence.StatusChange) error {
			if c.UID == session.UID() {
				return nil
			}
			name := c.DisplayName
			if name == "" {
				name = string(c.UID)
			}
			fmt.Fprintf(out, "%s is %s\n", name, verb)
			return nil
		}
	}
	if err := pubsub.Subscribe(ctx, bus, presence.EventUserOnline, announce("online")); err != nil {
		return err
	}
	if err := pubsub.Subscribe(ctx, bus, presence.EventUserOffline, announce("offline")); err != nil {
		return err
	}

	if err := session.Start(ctx); err != nil {
		return err
	}
	if err := dir.Start(ctx); err != nil {
		_ = session.Stop(context.WithoutCancel(ctx))
		return err
	}
	if err := serveMetrics(ctx, a, a.Config().GetMetricsAddr()); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s is online. Press Ctrl+C to sign out.\n", session.UID())
	<-ctx.Done()

	dir.Stop()
	return session.Stop(context.WithoutCancel(ctx))
}

func init() {
	onlineCmd.Flags().StringVar(&onlineUID, "uid", "", "User identity")
	onlineCmd.Flags().StringVar(&onlineName, "name", "", "Display name")
	_ = onlineCmd.MarkFlagRequired("uid")
	rootCmd.AddCommand(onlineCmd)
}
