package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-notifier/internal/config"
	"github.com/oshokin/alarm-notifier/internal/service/server"
	"github.com/oshokin/alarm-notifier/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// retainedFile path where retained alarms are persisted.
	retainedFile string
	// logLevel overrides the log level from the configuration file.
	logLevel string

	// rootCmd represents the base command for running the notifier.
	rootCmd = &cobra.Command{
		Use:   "alarm-notifier [listen-address]",
		Short: "Email users when their alarms become active.",
		Long: `Starts the alarm notifier that watches the configured alarms.

Alarm state-change events are published to the gRPC listen address.
When an alarm goes from inactive to active, an email with the alarm details is sent
to the user referenced by the alarm's EmailUser property through the sender
referenced by its EmailSender property.
The last state of every alarm is persisted to a JSON file, so an alarm that was
already active before a restart does not trigger a second email.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				RetainedFile:  retainedFile,
				LogLevel:      logLevel,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-notifier CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&retainedFile, "retained-file", "r", "", "path to persist retained alarms (overrides config)")
	rootCmd.Flags().
		StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(newPublishCommand())
}
