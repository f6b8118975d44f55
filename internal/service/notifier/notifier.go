package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
	"github.com/oshokin/alarm-notifier/internal/events"
	"github.com/oshokin/alarm-notifier/internal/logger"
	"github.com/oshokin/alarm-notifier/internal/metrics"
	"github.com/oshokin/alarm-notifier/internal/model"
)

// Reference properties read from the alarm.
const (
	// PropertyEmailUser references the user who receives the email.
	PropertyEmailUser = "EmailUser"
	// PropertyEmailSender references the sender that dispatches the email.
	PropertyEmailSender = "EmailSender"
)

// EmailSender dispatches an email. Delivery is not awaited.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// EmailRecipient is an entity exposing an email address.
type EmailRecipient interface {
	EmailAddress() string
}

// RetainedLookup reports the last known active state of an alarm by name.
type RetainedLookup interface {
	ActiveState(ctx context.Context, name string) (active, found bool, err error)
}

// Subscriber registers observers for the state changes of one alarm.
type Subscriber interface {
	Subscribe(ctx context.Context, subjectID string, observer events.Observer) (*events.Registration, error)
}

// Dependencies are the collaborators a Notifier needs.
type Dependencies struct {
	// Resolver resolves the reference properties of the alarm.
	Resolver model.Resolver
	// Subscriber delivers the alarm state changes.
	Subscriber Subscriber
	// Retained provides the initial active state. Optional.
	Retained RetainedLookup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMetrics records events, transitions and notifications in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

var (
	// errSubjectRequired is returned when the watched alarm is missing.
	errSubjectRequired = errors.New("alarm subject with an id must be provided")
	// errResolverRequired is returned when no resolver is provided.
	errResolverRequired = errors.New("resolver must be provided")
	// errSubscriberRequired is returned when no subscriber is provided.
	errSubscriberRequired = errors.New("subscriber must be provided")
)

// Notifier watches one alarm and emails its activation.
// It is driven by a single event source and is not safe for concurrent OnAlarmEvent calls.
type Notifier struct {
	// subject is the watched alarm.
	subject *domain.Subject
	// resolver resolves the EmailUser and EmailSender properties.
	resolver model.Resolver
	// subscriber delivers the alarm events.
	subscriber Subscriber
	// retained provides the initial active state.
	retained RetainedLookup
	// metrics records notifier activity, may be nil.
	metrics *metrics.Metrics
	// newID generates notification correlation IDs.
	newID func() string
	// registration is the event subscription handle.
	registration *events.Registration
	// email is the last resolved recipient address.
	email string
	// previousActive is the last observed active state.
	previousActive bool
}

// New creates a notifier for subject.
func New(subject *domain.Subject, deps Dependencies, opts ...Option) (*Notifier, error) {
	if subject == nil || subject.ID == "" {
		return nil, errSubjectRequired
	}

	if deps.Resolver == nil {
		return nil, errResolverRequired
	}

	if deps.Subscriber == nil {
		return nil, errSubscriberRequired
	}

	n := &Notifier{
		subject:    subject.Clone(),
		resolver:   deps.Resolver,
		subscriber: deps.Subscriber,
		retained:   deps.Retained,
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

// Start reads the initial active state, subscribes to the alarm events and
// resolves the recipient once. A missing recipient is logged, not returned.
func (n *Notifier) Start(ctx context.Context) error {
	ctx = n.withLogger(ctx)

	n.previousActive = n.initialActiveState(ctx)

	registration, err := n.subscriber.Subscribe(ctx, n.subject.ID, n)
	if err != nil {
		return fmt.Errorf("subscribe to alarm %s: %w", n.subject.Name, err)
	}

	n.registration = registration

	n.readRecipient(ctx)

	logger.InfoKV(ctx, "Watching alarm", "initial_active_state", n.previousActive)

	return nil
}

// Stop releases the event subscription. It is safe to call more than once.
func (n *Notifier) Stop() error {
	return n.registration.Close()
}

// OnAlarmEvent handles a state change of the watched alarm and sends an email
// when the alarm goes from inactive to active.
func (n *Notifier) OnAlarmEvent(ctx context.Context, source *domain.Subject, fields domain.Fields) {
	if source == nil {
		source = n.subject
	}

	ctx = n.withLogger(ctx)
	n.metrics.ObserveEvent(n.subject.Name)

	if !n.isTransitioningFromInactiveState(fields.ActiveState) {
		return
	}

	n.metrics.ObserveTransition(n.subject.Name)

	// The user or its address may have changed since the last activation.
	n.readRecipient(ctx)

	n.sendEmail(ctx, domain.NewNotification(source, fields))
}

// ResolveReferencedObject returns the entity referenced by the property of the
// watched alarm. Resolution failures are logged and reported as not found.
//
//nolint:ireturn // Referenced entities are polymorphic.
func (n *Notifier) ResolveReferencedObject(ctx context.Context, property string) (model.Entity, bool) {
	entity, err := n.resolver.Resolve(ctx, n.subject.ID, property)

	switch {
	case err == nil && entity != nil:
		return entity, true
	case err == nil:
		logger.ErrorKV(ctx, "Could not resolve alarm property", "property", property)
	case errors.Is(err, model.ErrPropertyNotFound):
		logger.ErrorKV(ctx, "Alarm property could not be found", "property", property, "error", err)
	case errors.Is(err, model.ErrEmptyReference):
		logger.ErrorKV(ctx, "Invalid or missing value for alarm property", "property", property, "error", err)
	default:
		logger.ErrorKV(ctx, "Could not resolve alarm property", "property", property, "error", err)
	}

	return nil, false
}

// isTransitioningFromInactiveState reports a rising edge and always stores the current state.
func (n *Notifier) isTransitioningFromInactiveState(currentActive bool) bool {
	triggered := !n.previousActive && currentActive
	n.previousActive = currentActive

	return triggered
}

// initialActiveState reads the retained active state of the alarm, defaulting to inactive.
func (n *Notifier) initialActiveState(ctx context.Context) bool {
	if n.retained == nil {
		return false
	}

	active, found, err := n.retained.ActiveState(ctx, n.subject.Name)
	if err != nil {
		logger.ErrorKV(ctx, "Could not read retained alarm state, assuming inactive", "error", err)

		return false
	}

	return found && active
}

// readRecipient refreshes the cached email address. On failure the cache is
// cleared so that a stale address is never used.
func (n *Notifier) readRecipient(ctx context.Context) bool {
	n.email = ""

	entity, ok := n.ResolveReferencedObject(ctx, PropertyEmailUser)
	if !ok {
		return false
	}

	recipient, ok := entity.(EmailRecipient)
	if !ok {
		logger.ErrorKV(ctx, "Could not find email address of user",
			"user", entity.EntityID(), "property", PropertyEmailUser)

		return false
	}

	email := strings.TrimSpace(recipient.EmailAddress())
	if email == "" {
		logger.ErrorKV(ctx, "Email address missing in user set in alarm",
			"user", entity.EntityID(), "property", PropertyEmailUser)

		return false
	}

	n.email = email

	return true
}

// sendEmail dispatches the notification when both recipient and sender are resolved.
func (n *Notifier) sendEmail(ctx context.Context, notification *domain.Notification) {
	if n.email == "" {
		logger.ErrorKV(ctx, "Could not send email: recipient is not resolved", "property", PropertyEmailUser)
		n.metrics.ObserveSkipped(n.subject.Name, metrics.ReasonRecipientUnresolved)

		return
	}

	entity, ok := n.ResolveReferencedObject(ctx, PropertyEmailSender)

	var sender EmailSender
	if ok {
		sender, ok = entity.(EmailSender)
	}

	if !ok {
		logger.ErrorKV(ctx, "Could not send email: invalid or missing email sender", "property", PropertyEmailSender)
		n.metrics.ObserveSkipped(n.subject.Name, metrics.ReasonSenderUnresolved)

		return
	}

	notificationID := n.newID()
	logger.InfoKV(ctx, "Sending email", "to", n.email, "notification_id", notificationID)

	if err := sender.SendEmail(ctx, n.email, notification.Subject(), notification.Body()); err != nil {
		logger.ErrorKV(ctx, "Email dispatch failed", "to", n.email, "notification_id", notificationID, "error", err)
		n.metrics.ObserveSkipped(n.subject.Name, metrics.ReasonDispatchFailed)

		return
	}

	n.metrics.ObserveSent(n.subject.Name)
}

// withLogger scopes the context logger to this notifier.
func (n *Notifier) withLogger(ctx context.Context) context.Context {
	return logger.WithFields(logger.WithName(ctx, "notifier"), "alarm", n.subject.Name)
}
