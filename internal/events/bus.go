package events

import (
	"context"
	"errors"
	"sync"

	domain "github.com/oshokin/alarm-notifier/internal/domain/alarm"
)

// Observer receives alarm state-change events.
type Observer interface {
	OnAlarmEvent(ctx context.Context, source *domain.Subject, fields domain.Fields)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, source *domain.Subject, fields domain.Fields)

// OnAlarmEvent calls f.
func (f ObserverFunc) OnAlarmEvent(ctx context.Context, source *domain.Subject, fields domain.Fields) {
	f(ctx, source, fields)
}

var (
	// errSubjectRequired is returned when subscribing without a subject.
	errSubjectRequired = errors.New("subject id must be provided")
	// errObserverRequired is returned when subscribing a nil observer.
	errObserverRequired = errors.New("observer must be provided")
	// errEventSourceRequired is returned when publishing an event without a source.
	errEventSourceRequired = errors.New("event source must be provided")
)

// Bus dispatches alarm events to the observers subscribed to their source.
// Delivery is sequential: one event is handled by all its observers before
// the next one is delivered.
type Bus struct {
	// observers maps subject IDs to registrations.
	observers map[string]map[uint64]Observer
	// nextID is the identifier assigned to the next registration.
	nextID uint64
	// mu protects observers and nextID.
	mu sync.Mutex
	// deliveryMu serializes event delivery.
	deliveryMu sync.Mutex
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		observers: make(map[string]map[uint64]Observer),
	}
}

// Subscribe registers observer for the state changes of the subject.
func (b *Bus) Subscribe(_ context.Context, subjectID string, observer Observer) (*Registration, error) {
	if subjectID == "" {
		return nil, errSubjectRequired
	}

	if observer == nil {
		return nil, errObserverRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	subscribers, ok := b.observers[subjectID]
	if !ok {
		subscribers = make(map[uint64]Observer)
		b.observers[subjectID] = subscribers
	}

	subscribers[id] = observer

	return &Registration{
		release: func() { b.unsubscribe(subjectID, id) },
	}, nil
}

// Publish delivers the event to every observer of its source.
// It returns once all observers have handled it.
func (b *Bus) Publish(ctx context.Context, event *domain.Event) error {
	if event == nil || event.Source == nil || event.Source.ID == "" {
		return errEventSourceRequired
	}

	b.deliveryMu.Lock()
	defer b.deliveryMu.Unlock()

	for _, observer := range b.snapshot(event.Source.ID) {
		observer.OnAlarmEvent(ctx, event.Source.Clone(), event.Fields)
	}

	return nil
}

// Subscribers returns the number of observers of the subject.
func (b *Bus) Subscribers(subjectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.observers[subjectID])
}

// snapshot copies the observers of the subject so that delivery does not hold mu.
func (b *Bus) snapshot(subjectID string) []Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]Observer, 0, len(b.observers[subjectID]))
	for _, observer := range b.observers[subjectID] {
		result = append(result, observer)
	}

	return result
}

// unsubscribe removes a single registration.
func (b *Bus) unsubscribe(subjectID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.observers[subjectID]
	delete(subscribers, id)

	if len(subscribers) == 0 {
		delete(b.observers, subjectID)
	}
}

// Registration is the handle returned by Subscribe.
type Registration struct {
	// release removes the observer from the bus.
	release func()
	// once guards release.
	once sync.Once
}

// Close releases the subscription. It is safe to call more than once
// and on a nil Registration.
func (r *Registration) Close() error {
	if r == nil || r.release == nil {
		return nil
	}

	r.once.Do(r.release)

	return nil
}
