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
	usersSearch  string
	usersExclude string
	usersOnline  bool
	usersFormat  string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List or search users",
	Long: `List users that have a display name, sorted by name. --search matches
display names case-insensitively.

Examples:
  classhub users
  classhub users --search ali --exclude alice
  classhub users --online`,
	RunE: withApp(runUsers),
}

func runUsers(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	if !format.Valid(usersFormat) {
		return fmt.Errorf("invalid format %q: valid formats are table, json", usersFormat)
	}
	dir, err := a.Directory()
	if err != nil {
		return err
	}
	if err := dir.Refresh(ctx); err != nil {
		return err
	}

	recs := dir.Search(usersSearch, domain.UserIdentity(usersExclude))
	if usersOnline {
		recs = dir.OnlineUsers()
	}
	out := make([]format.UserDisplay, 0, len(recs))
	for _, r := range recs {
		out = append(out, format.UserDisplay{
			UID:         r.UID,
			DisplayName: r.DisplayName,
			Online:      dir.Online(r.UID),
			LastActive:  r.LastActive,
		})
	}
	return format.Users(cmd.OutOrStdout(), usersFormat, out)
}

func init() {
	usersCmd.Flags().StringVarP(&usersSearch, "search", "s", "", "Case-insensitive display name filter")
	usersCmd.Flags().StringVar(&usersExclude, "exclude", "", "Leave this user out")
	usersCmd.Flags().BoolVar(&usersOnline, "online", false, "Only users online right now")
	usersCmd.Flags().StringVarP(&usersFormat, "format", "f", format.Table, "Output format (table, json)")
	rootCmd.AddCommand(usersCmd)
}
