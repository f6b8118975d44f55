package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/alarm-notifier/internal/config"
	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
	"github.com/oshokin/alarm-notifier/internal/events"
	"github.com/oshokin/alarm-notifier/internal/logger"
	"github.com/oshokin/alarm-notifier/internal/metrics"
	"github.com/oshokin/alarm-notifier/internal/model"
	repo "github.com/oshokin/alarm-notifier/internal/repository/retained"
	"github.com/oshokin/alarm-notifier/internal/sender/logsender"
	"github.com/oshokin/alarm-notifier/internal/sender/smtp"
	"github.com/oshokin/alarm-notifier/internal/service/notifier"
)

// application holds everything built from the settings.
type application struct {
	// service handles incoming events.
	service *service
	// notifiers watch one alarm each.
	notifiers []*notifier.Notifier
	// closers release senders on shutdown.
	closers []func() error
}

// newApplication builds the information model, opens the senders and starts
// one notifier per alarm. On error everything already started is released.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	retained repo.Repository,
	m *metrics.Metrics,
) (_ *application, err error) {
	var (
		registry = model.NewRegistry()
		bus      = events.NewBus()
		app      = &application{
			service: newService(registry, bus, retained),
		}
	)

	defer func() {
		if err != nil {
			_ = app.close(ctx)
		}
	}()

	for _, user := range cfg.Users {
		if err = registry.Register(&model.User{ID: user.ID, Name: user.Name, Email: user.Email}); err != nil {
			return nil, fmt.Errorf("register user: %w", err)
		}
	}

	for i := range cfg.Senders {
		if err = app.addSender(ctx, registry, &cfg.Senders[i]); err != nil {
			return nil, err
		}
	}

	deps := notifier.Dependencies{
		Resolver:   registry,
		Subscriber: bus,
		Retained:   retained,
	}

	for _, alarm := range cfg.Alarms {
		subject := &domain.Subject{
			ID:      alarm.ID,
			Name:    alarm.Name,
			Message: alarm.Message,
		}

		if err = app.service.addSubject(subject); err != nil {
			return nil, err
		}

		for property, reference := range alarm.Properties {
			registry.SetProperty(alarm.ID, property, reference)
		}

		var n *notifier.Notifier

		if n, err = notifier.New(subject, deps, notifier.WithMetrics(m)); err != nil {
			return nil, fmt.Errorf("create notifier for alarm %s: %w", alarm.ID, err)
		}

		if err = n.Start(ctx); err != nil {
			return nil, fmt.Errorf("start notifier for alarm %s: %w", alarm.ID, err)
		}

		app.notifiers = append(app.notifiers, n)
	}

	return app, nil
}

// addSender creates, opens and registers one sender.
func (a *application) addSender(ctx context.Context, registry *model.Registry, cfg *config.Sender) error {
	switch cfg.Kind {
	case config.SenderKindSMTP:
		s, err := smtp.NewSender(cfg.ID, *cfg.SMTP)
		if err != nil {
			return err
		}

		if err = s.Open(ctx); err != nil {
			return fmt.Errorf("open sender %s: %w", cfg.ID, err)
		}

		a.closers = append(a.closers, s.Close)

		return registry.Register(s)
	case config.SenderKindLog:
		// Pinned to info so dry-run emails show up whatever the global level.
		dryRun := logger.FromContext(ctx).Desugar().WithOptions(logger.WithLevel(zapcore.InfoLevel)).Sugar()

		return registry.Register(logsender.NewSender(cfg.ID, dryRun))
	default:
		return fmt.Errorf("sender %s: unknown kind %q", cfg.ID, cfg.Kind)
	}
}

// close stops the notifiers and then the senders, so queued emails are flushed.
func (a *application) close(ctx context.Context) error {
	var errs []error

	for _, n := range a.notifiers {
		if err := n.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, closeSender := range a.closers {
		if err := closeSender(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.ErrorKV(ctx, "Failed to release resources", "error", err)

		return err
	}

	return nil
}
