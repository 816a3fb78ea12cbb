package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/internal/conversation"
	"github.com/nfrund/classhub/internal/domain"
)

var keyCmd = &cobra.Command{
	Use:   "key <uid> <uid>",
	Short: "Print the conversation key of two users",
	Long: `Print the canonical conversation key of two users. The key does not depend
on the order of the arguments.

Examples:
  classhub key alice bob     # alice_bob
  classhub key bob alice     # alice_bob`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), conversation.DeriveKey(domain.UserIdentity(args[0]), domain.UserIdentity(args[1])))
	},
}
