package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-notifier/internal/service/publish"
)

// newPublishCommand builds the `publish` subcommand.
func newPublishCommand() *cobra.Command {
	options := new(publish.Options)

	command := &cobra.Command{
		Use:   "publish <alarm-id>",
		Short: "Publish one alarm event to a running notifier.",
		Long: `Sends a single alarm state-change event to the notifier.

Use it to check that an alarm is wired to a user and a sender:
publish an inactive event, then an active one, and the email is sent.
Server address is taken from the configuration file unless --server is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.ConfigPath = configPath
			options.AlarmID = args[0]

			return publish.Run(ctx, options)
		},
	}

	command.Flags().StringVarP(&options.ServerAddress, "server", "s", "", "notifier address (overrides config)")
	command.Flags().BoolVar(&options.Active, "active", false, "alarm active state")
	command.Flags().StringVar(&options.AckedState, "acked", "0", "acknowledgement state label")
	command.Flags().StringVar(&options.ConfirmedState, "confirmed", "0", "confirmation state label")

	return command
}
