package alarm

import (
	"fmt"
	"time"
)

// Notification is the email composed when an alarm becomes active.
type Notification struct {
	// AlarmName is the name of the alarm, also used as the subject line.
	AlarmName string
	// Message is the alarm message text.
	Message string
	// Timestamp is when the alarm became active.
	Timestamp time.Time
	// AckedState is the acknowledgement state label at activation.
	AckedState string
	// ConfirmedState is the confirmation state label at activation.
	ConfirmedState string
}

// NewNotification builds the notification for an activation event.
func NewNotification(source *Subject, fields Fields) *Notification {
	return &Notification{
		AlarmName:      source.Name,
		Message:        source.Message,
		Timestamp:      fields.Time,
		AckedState:     fields.AckedState,
		ConfirmedState: fields.ConfirmedState,
	}
}

// Subject returns the email subject line.
func (n *Notification) Subject() string {
	return n.AlarmName
}

// Body renders the email body.
func (n *Notification) Body() string {
	return fmt.Sprintf(
		"Alarm name: %s\nMessage: %s\nTimestamp: %s\nAcked: %s\nConfirmed: %s",
		n.AlarmName,
		n.Message,
		n.Timestamp.Format(time.RFC3339Nano),
		n.AckedState,
		n.ConfirmedState,
	)
}
