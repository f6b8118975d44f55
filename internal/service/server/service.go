package server

import (
	"context"
	"fmt"
	"sync"

	api "github.com/oshokin/alarm-notifier/internal/api/grpc/events"
	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
	"github.com/oshokin/alarm-notifier/internal/events"
	"github.com/oshokin/alarm-notifier/internal/logger"
	"github.com/oshokin/alarm-notifier/internal/model"
	repo "github.com/oshokin/alarm-notifier/internal/repository/retained"
)

// service routes incoming alarm events to the observers and the retained store.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// registry is the information model the alarms live in.
	registry *model.Registry
	// bus delivers events to the notifiers.
	bus *events.Bus
	// retained records the last state of every alarm, may be nil.
	retained repo.Repository
	// subjects maps alarm IDs to the watched alarms.
	subjects map[string]*domain.Subject
	// mu protects subjects.
	mu sync.Mutex
	// publishMu keeps delivery and retained writes in the same order.
	publishMu sync.Mutex
}

// newService creates a service for the given alarms.
func newService(registry *model.Registry, bus *events.Bus, retained repo.Repository) *service {
	return &service{
		registry: registry,
		bus:      bus,
		retained: retained,
		subjects: make(map[string]*domain.Subject),
	}
}

// addSubject makes the alarm known to the service and the information model.
func (s *service) addSubject(subject *domain.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.Register(subject.Clone()); err != nil {
		return fmt.Errorf("register alarm %s: %w", subject.ID, err)
	}

	s.subjects[subject.ID] = subject.Clone()

	return nil
}

// Publish updates the alarm, delivers the event to its observers and records
// it in the retained store. A retained store failure is logged, not returned.
func (s *service) Publish(ctx context.Context, alarmID string, fields domain.Fields) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	source, err := s.applyState(alarmID, fields.ActiveState)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Alarm event received", "alarm", source.Name, "active_state", fields.ActiveState)

	if err = s.bus.Publish(ctx, &domain.Event{Source: source, Fields: fields}); err != nil {
		return fmt.Errorf("deliver event of alarm %s: %w", alarmID, err)
	}

	if s.retained == nil {
		return nil
	}

	if err = s.retained.Update(ctx, source.Name, repo.RecordFromFields(fields)); err != nil {
		logger.ErrorKV(ctx, "Failed to record retained alarm", "alarm", source.Name, "error", err)
	}

	return nil
}

// applyState stores the new active state and returns a snapshot of the alarm.
func (s *service) applyState(alarmID string, active bool) (*domain.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, ok := s.subjects[alarmID]
	if !ok {
		return nil, fmt.Errorf("alarm %s: %w", alarmID, api.ErrUnknownAlarm)
	}

	subject.Active = active
	snapshot := subject.Clone()

	if err := s.registry.Register(snapshot.Clone()); err != nil {
		return nil, fmt.Errorf("update alarm %s: %w", alarmID, err)
	}

	return snapshot, nil
}
