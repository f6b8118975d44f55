package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"

	api "github.com/oshokin/alarm-notifier/internal/api/grpc/events"
	"github.com/oshokin/alarm-notifier/internal/config"
	"github.com/oshokin/alarm-notifier/internal/logger"
	"github.com/oshokin/alarm-notifier/internal/metrics"
	repository "github.com/oshokin/alarm-notifier/internal/repository/retained"
	"github.com/oshokin/alarm-notifier/internal/version"
)

// Options controls the alarm-notifier process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// RetainedFile specifies the path to persist retained alarms JSON.
	RetainedFile string
	// LogLevel overrides the log level from settings.
	LogLevel string
	// Ready, when set, receives the bound listen address once the server accepts events.
	Ready func(address string)
}

// Run starts the alarm-notifier and blocks until context is canceled or the server stops.
//
//nolint:funlen // Sequential wiring reads best in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-notifier")

	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(settings, opts)

	if err = logger.ConfigureLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	m := metrics.New()

	// Retained alarms give every notifier its initial active state.
	retained := repository.NewFileRepository(settings.RetainedFile)

	app, err := newApplication(ctx, settings, retained, m)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	defer func() {
		_ = app.close(ctx)
	}()

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	// Create and configure gRPC server with the event service.
	grpcServer := grpc.NewServer()
	api.RegisterAlarmEventServiceServer(grpcServer, api.NewServer(app.service))

	if settings.MetricsAddress != "" {
		go func() {
			if err := m.Serve(ctx, settings.MetricsAddress); err != nil {
				logger.ErrorKV(ctx, "Metrics endpoint stopped", "error", err)
			}
		}()
	}

	logger.InfoKV(ctx, "Alarm notifier listening",
		"listen_address", lis.Addr().String(),
		"retained_file", settings.RetainedFile,
		"alarms", len(settings.Alarms),
		"version", version.Short())

	if opts.Ready != nil {
		opts.Ready(lis.Addr().String())
	}

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// applyOverrides replaces settings with the command line values that are set.
func applyOverrides(settings *config.Config, opts *Options) {
	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.RetainedFile != "" {
		settings.RetainedFile = opts.RetainedFile
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}
}
