package main

import (
	"github.com/spf13/cobra"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/eventbus"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Replay run-completed events from NATS JetStream",
	Long: `Read the run records published on the run-completed subject, oldest
first, from the server named by NATS_URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bus, err := eventbus.Connect(config.Load().NATSURL, logger)
		if err != nil {
			return err
		}
		defer bus.Close()

		runs, err := eventbus.Replay(bus.JetStream(), eventsLimit)
		if err != nil {
			return err
		}
		return render(runs)
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "maximum number of events")
}
