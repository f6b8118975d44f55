package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
	"github.com/oshokin/alarm-notifier/internal/events"
	"github.com/oshokin/alarm-notifier/internal/logger"
	"github.com/oshokin/alarm-notifier/internal/metrics"
	"github.com/oshokin/alarm-notifier/internal/model"
)

var (
	errTestRetained = errors.New("test retained error")
	errTestDispatch = errors.New("test dispatch error")
)

// emailCall is one SendEmail invocation captured by fakeSender.
type emailCall struct {
	// to is the recipient address.
	to string
	// subject is the subject line.
	subject string
	// body is the message body.
	body string
}

// fakeSender records emails instead of sending them.
type fakeSender struct {
	// id is the entity identifier.
	id string
	// err is returned from SendEmail.
	err error
	// calls collects every SendEmail invocation.
	calls []emailCall
}

// EntityID returns the identifier of the fake sender.
func (f *fakeSender) EntityID() string { return f.id }

// SendEmail records the email.
func (f *fakeSender) SendEmail(_ context.Context, to, subject, body string) error {
	f.calls = append(f.calls, emailCall{to: to, subject: subject, body: body})

	return f.err
}

// fakeRetained is a map-backed RetainedLookup.
type fakeRetained struct {
	// states maps alarm names to active states.
	states map[string]bool
	// err is returned from ActiveState when set.
	err error
}

// ActiveState returns the stored state of the alarm.
func (f *fakeRetained) ActiveState(_ context.Context, name string) (bool, bool, error) {
	if f.err != nil {
		return false, false, f.err
	}

	active, found := f.states[name]

	return active, found, nil
}

// fixture bundles a started notifier with its collaborators.
type fixture struct {
	// ctx carries an observed logger.
	ctx context.Context
	// logs collects log entries.
	logs *observer.ObservedLogs
	// bus delivers events to the notifier.
	bus *events.Bus
	// registry is the information model.
	registry *model.Registry
	// sender captures dispatched emails.
	sender *fakeSender
	// subject is the watched alarm.
	subject *domain.Subject
	// metrics records notifier activity.
	metrics *metrics.Metrics
	// notifier is the component under test.
	notifier *Notifier
}

// newFixture wires a notifier for alarm Tank1 with a valid user and sender.
// The configure callback may change the model before the notifier starts.
func newFixture(t *testing.T, retained RetainedLookup, configure func(f *fixture)) *fixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)

	f := &fixture{
		ctx:      logger.ToContext(context.Background(), zap.New(core).Sugar()),
		logs:     logs,
		bus:      events.NewBus(),
		registry: model.NewRegistry(),
		sender:   &fakeSender{id: "senders/main"},
		metrics:  metrics.New(),
		subject: &domain.Subject{
			ID:      "alarms/tank1",
			Name:    "Tank1",
			Message: "High level",
		},
	}

	require.NoError(t, f.registry.Register(&model.User{ID: "users/ops", Email: "ops@example.com"}))
	require.NoError(t, f.registry.Register(f.sender))
	f.registry.SetProperty(f.subject.ID, PropertyEmailUser, "users/ops")
	f.registry.SetProperty(f.subject.ID, PropertyEmailSender, "senders/main")

	if configure != nil {
		configure(f)
	}

	n, err := New(f.subject, Dependencies{
		Resolver:   f.registry,
		Subscriber: f.bus,
		Retained:   retained,
	}, WithMetrics(f.metrics))
	require.NoError(t, err)

	n.newID = func() string { return "notification-1" }

	require.NoError(t, n.Start(f.ctx))
	t.Cleanup(func() { _ = n.Stop() })

	f.notifier = n

	return f
}

// publish sends one event for the watched alarm through the bus.
func (f *fixture) publish(t *testing.T, fields domain.Fields) {
	t.Helper()

	require.NoError(t, f.bus.Publish(f.ctx, &domain.Event{Source: f.subject, Fields: fields}))
}

// errorMessages returns the messages logged at error level.
func (f *fixture) errorMessages() []string {
	var result []string

	for _, entry := range f.logs.FilterLevelExact(zap.ErrorLevel).All() {
		result = append(result, entry.Message)
	}

	return result
}

// TestNew_Validation checks required dependencies.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	deps := Dependencies{Resolver: model.NewRegistry(), Subscriber: events.NewBus()}

	_, err := New(nil, deps)
	require.Error(t, err)

	_, err = New(&domain.Subject{}, deps)
	require.Error(t, err)

	_, err = New(&domain.Subject{ID: "alarms/tank1"}, Dependencies{Subscriber: events.NewBus()})
	require.Error(t, err)

	_, err = New(&domain.Subject{ID: "alarms/tank1"}, Dependencies{Resolver: model.NewRegistry()})
	require.Error(t, err)
}

// TestNotifier_OneEmailPerActiveRun verifies exactly one email per maximal run of active states.
func TestNotifier_OneEmailPerActiveRun(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		states []bool
		want   int
	}{
		"empty":              {states: nil, want: 0},
		"always inactive":    {states: []bool{false, false, false}, want: 0},
		"single activation":  {states: []bool{true}, want: 1},
		"long active run":    {states: []bool{true, true, true}, want: 1},
		"two runs":           {states: []bool{true, false, true}, want: 2},
		"runs with gaps":     {states: []bool{false, true, true, false, false, true, false, true, true}, want: 3},
		"inactive then once": {states: []bool{false, false, true}, want: 1},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil, nil)

			for _, active := range tc.states {
				f.publish(t, domain.Fields{ActiveState: active, Time: time.Now()})

				// The stored state always follows the last event.
				require.Equal(t, active, f.notifier.previousActive)
			}

			require.Len(t, f.sender.calls, tc.want)
			require.InDelta(t, float64(tc.want),
				testutil.ToFloat64(f.metrics.NotificationsSentTotal.WithLabelValues("Tank1")), 0)
		})
	}
}

// TestNotifier_RetainedActiveState verifies a retained active alarm does not re-notify on start.
func TestNotifier_RetainedActiveState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeRetained{states: map[string]bool{"Tank1": true}}, nil)
	require.True(t, f.notifier.previousActive)

	f.publish(t, domain.Fields{ActiveState: true})
	require.Empty(t, f.sender.calls)

	f.publish(t, domain.Fields{ActiveState: false})
	f.publish(t, domain.Fields{ActiveState: true})
	require.Len(t, f.sender.calls, 1)
}

// TestNotifier_RetainedLookupFallback covers missing records and lookup errors.
func TestNotifier_RetainedLookupFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeRetained{states: map[string]bool{"Other": true}}, nil)
	require.False(t, f.notifier.previousActive)

	f = newFixture(t, &fakeRetained{err: errTestRetained}, nil)
	require.False(t, f.notifier.previousActive)
	require.Contains(t, f.errorMessages(), "Could not read retained alarm state, assuming inactive")

	f.publish(t, domain.Fields{ActiveState: true})
	require.Len(t, f.sender.calls, 1)
}

// TestNotifier_Scenario runs the Tank1 example end to end.
func TestNotifier_Scenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)

	f.publish(t, domain.Fields{ActiveState: false})
	require.Empty(t, f.sender.calls)
	require.False(t, f.notifier.previousActive)

	f.publish(t, domain.Fields{
		ActiveState:    true,
		Time:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		AckedState:     "0",
		ConfirmedState: "0",
	})

	require.Len(t, f.sender.calls, 1)

	call := f.sender.calls[0]
	require.Equal(t, "ops@example.com", call.to)
	require.Equal(t, "Tank1", call.subject)
	require.Contains(t, call.body, "Alarm name: Tank1")
	require.Contains(t, call.body, "Message: High level")
	require.Contains(t, call.body, "Timestamp: 2024-01-01T00:00:00Z")
	require.Contains(t, call.body, "Acked: 0")
	require.Contains(t, call.body, "Confirmed: 0")

	sending := f.logs.FilterMessage("Sending email").All()
	require.Len(t, sending, 1)
	require.Equal(t, "notification-1", sending[0].ContextMap()["notification_id"])
}

// TestNotifier_MissingEmailUser verifies an unset EmailUser logs an error and skips dispatch.
func TestNotifier_MissingEmailUser(t *testing.T) {
	t.Parallel()

	cases := map[string]func(f *fixture){
		"property absent": func(f *fixture) {
			f.subject.ID = "alarms/tank1-no-props"
			f.registry.SetProperty(f.subject.ID, PropertyEmailSender, "senders/main")
		},
		"empty reference": func(f *fixture) {
			f.registry.SetProperty(f.subject.ID, PropertyEmailUser, "")
		},
		"dangling reference": func(f *fixture) {
			f.registry.SetProperty(f.subject.ID, PropertyEmailUser, "users/gone")
		},
	}

	for name, configure := range cases {
		configure := configure
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil, configure)
			f.publish(t, domain.Fields{ActiveState: true})

			require.Empty(t, f.sender.calls)
			require.Contains(t, f.errorMessages(), "Could not send email: recipient is not resolved")
			require.True(t, f.notifier.previousActive)
			require.InDelta(t, 1, testutil.ToFloat64(
				f.metrics.NotificationsSkippedTotal.WithLabelValues("Tank1", metrics.ReasonRecipientUnresolved)), 0)
		})
	}
}

// TestNotifier_EmptyEmail verifies a user without an address behaves like a missing user.
func TestNotifier_EmptyEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(f *fixture) {
		require.NoError(t, f.registry.Register(&model.User{ID: "users/ops", Email: "  "}))
	})

	f.publish(t, domain.Fields{ActiveState: true})

	require.Empty(t, f.sender.calls)
	require.Contains(t, f.errorMessages(), "Email address missing in user set in alarm")
}

// TestNotifier_EmailUserNotAUser verifies a reference to an entity without an address is reported.
func TestNotifier_EmailUserNotAUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(f *fixture) {
		f.registry.SetProperty(f.subject.ID, PropertyEmailUser, "senders/main")
	})

	f.publish(t, domain.Fields{ActiveState: true})

	require.Empty(t, f.sender.calls)

	entries := f.logs.FilterMessage("Could not find email address of user").All()
	require.NotEmpty(t, entries)

	fields := entries[len(entries)-1].ContextMap()
	require.Equal(t, "senders/main", fields["user"])
	require.Equal(t, PropertyEmailUser, fields["property"])
}

// TestNotifier_EmailRefreshedOnTrigger verifies the address is re-read on every activation.
func TestNotifier_EmailRefreshedOnTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)

	f.publish(t, domain.Fields{ActiveState: true})
	f.publish(t, domain.Fields{ActiveState: false})

	require.NoError(t, f.registry.Register(&model.User{ID: "users/ops", Email: "night@example.com"}))
	f.publish(t, domain.Fields{ActiveState: true})
	f.publish(t, domain.Fields{ActiveState: false})

	// A user that lost its address must not receive the old one.
	require.NoError(t, f.registry.Register(&model.User{ID: "users/ops"}))
	f.publish(t, domain.Fields{ActiveState: true})

	require.Len(t, f.sender.calls, 2)
	require.Equal(t, "ops@example.com", f.sender.calls[0].to)
	require.Equal(t, "night@example.com", f.sender.calls[1].to)
}

// TestNotifier_UnresolvableSender verifies dispatch is skipped when EmailSender is unusable.
func TestNotifier_UnresolvableSender(t *testing.T) {
	t.Parallel()

	cases := map[string]func(f *fixture){
		"empty reference": func(f *fixture) {
			f.registry.SetProperty(f.subject.ID, PropertyEmailSender, "")
		},
		"dangling reference": func(f *fixture) {
			f.registry.SetProperty(f.subject.ID, PropertyEmailSender, "senders/gone")
		},
		"not a sender": func(f *fixture) {
			f.registry.SetProperty(f.subject.ID, PropertyEmailSender, "users/ops")
		},
	}

	for name, configure := range cases {
		configure := configure
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil, configure)
			f.publish(t, domain.Fields{ActiveState: true})

			require.Empty(t, f.sender.calls)
			require.Contains(t, f.errorMessages(), "Could not send email: invalid or missing email sender")
			require.InDelta(t, 1, testutil.ToFloat64(
				f.metrics.NotificationsSkippedTotal.WithLabelValues("Tank1", metrics.ReasonSenderUnresolved)), 0)
		})
	}
}

// TestNotifier_DispatchError verifies a sender error is logged and does not stop edge tracking.
func TestNotifier_DispatchError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(f *fixture) {
		f.sender.err = errTestDispatch
	})

	f.publish(t, domain.Fields{ActiveState: true})
	f.publish(t, domain.Fields{ActiveState: true})

	require.Len(t, f.sender.calls, 1)
	require.Contains(t, f.errorMessages(), "Email dispatch failed")
	require.True(t, f.notifier.previousActive)
}

// TestNotifier_StopIsIdempotent verifies Stop releases the subscription once and tolerates repeats.
func TestNotifier_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	require.Equal(t, 1, f.bus.Subscribers(f.subject.ID))

	require.NoError(t, f.notifier.Stop())
	require.NoError(t, f.notifier.Stop())
	require.Zero(t, f.bus.Subscribers(f.subject.ID))

	f.publish(t, domain.Fields{ActiveState: true})
	require.Empty(t, f.sender.calls)

	// A notifier that never started can be stopped too.
	n, err := New(f.subject, Dependencies{Resolver: f.registry, Subscriber: f.bus})
	require.NoError(t, err)
	require.NoError(t, n.Stop())
}

// TestNotifier_ResolveReferencedObject checks the resolution helper directly.
func TestNotifier_ResolveReferencedObject(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)

	entity, ok := f.notifier.ResolveReferencedObject(f.ctx, PropertyEmailUser)
	require.True(t, ok)
	require.Equal(t, "users/ops", entity.EntityID())

	entity, ok = f.notifier.ResolveReferencedObject(f.ctx, "Missing")
	require.False(t, ok)
	require.Nil(t, entity)
	require.Contains(t, f.errorMessages(), "Alarm property could not be found")
}
