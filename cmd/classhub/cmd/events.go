package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/classhub/cmd/classhub/internal/format"
	"github.com/nfrund/classhub/internal/pubsub"
)

var (
	eventsOutputFormat string
	eventsModuleFilter string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the events published on the bus",
	Long: `List every typed event the core publishes on the in-process bus, with its
payload fields.

Examples:
  classhub events                      # All events as a table
  classhub events --module presence    # Only presence events
  classhub events --format json        # Machine-readable output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !format.Valid(eventsOutputFormat) {
			return fmt.Errorf("invalid format %q: valid formats are table, json", eventsOutputFormat)
		}
		var events []pubsub.EventInfo
		for _, e := range pubsub.Events() {
			if eventsModuleFilter == "" || e.Module == eventsModuleFilter {
				events = append(events, e)
			}
		}
		return format.Events(cmd.OutOrStdout(), eventsOutputFormat, events)
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "format", "f", format.Table, "Output format (table, json)")
	eventsCmd.Flags().StringVarP(&eventsModuleFilter, "module", "m", "", "Only show events of this module")
}
