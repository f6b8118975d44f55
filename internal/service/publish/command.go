package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	api "github.com/oshokin/alarm-notifier/internal/api/grpc/events"
	"github.com/oshokin/alarm-notifier/internal/config"
	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
	"github.com/oshokin/alarm-notifier/internal/logger"
)

// Options describes the event to publish.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the listen address from config when specified.
	ServerAddress string
	// AlarmID is the alarm the event belongs to.
	AlarmID string
	// Active is the alarm active state.
	Active bool
	// AckedState is the acknowledgement state label.
	AckedState string
	// ConfirmedState is the confirmation state label.
	ConfirmedState string
}

// errAlarmIDRequired is returned when no alarm is given.
var errAlarmIDRequired = errors.New("alarm id must be provided")

// Run publishes one event and returns once the server accepted it.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-notifier-publish")

	if opts.AlarmID == "" {
		return errAlarmIDRequired
	}

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ListenAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := api.Dial(serverAddress, api.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	fields := domain.Fields{
		ActiveState:    opts.Active,
		Time:           time.Now().UTC(),
		AckedState:     opts.AckedState,
		ConfirmedState: opts.ConfirmedState,
	}

	if err = client.Publish(ctx, opts.AlarmID, fields); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Alarm event published",
		"server_address", serverAddress,
		"alarm_id", opts.AlarmID,
		"active_state", opts.Active)

	return nil
}
