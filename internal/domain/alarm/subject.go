package alarm

import "time"

// Subject identifies an alarm being watched.
type Subject struct {
	// ID is the unique identifier of the alarm in the information model.
	ID string
	// Name is the alarm name used as the email subject line.
	Name string
	// Message is the human-readable alarm message.
	Message string
	// Active indicates whether the alarm is currently active.
	Active bool
}

// EntityID returns the identifier of the alarm in the information model.
func (s *Subject) EntityID() string {
	return s.ID
}

// Clone returns a copy of the subject to avoid leaking internal references.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// Fields is the set of values delivered with an alarm state-change event.
type Fields struct {
	// ActiveState is the alarm active state after the change.
	ActiveState bool
	// Time is when the state change happened.
	Time time.Time
	// AckedState is the acknowledgement state label.
	AckedState string
	// ConfirmedState is the confirmation state label.
	ConfirmedState string
}

// Event is a state change emitted by an alarm.
type Event struct {
	// Source is the alarm that emitted the event.
	Source *Subject
	// Fields holds the event values.
	Fields Fields
}
