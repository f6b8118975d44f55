package logsender

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// errNoRecipient is returned when the recipient address is empty.
var errNoRecipient = errors.New("not logging email, no recipient defined")

// Sender logs every email instead of delivering it.
type Sender struct {
	// id is the identifier of the sender in the information model.
	id string
	// log receives the emails.
	log *zap.SugaredLogger
}

// NewSender creates a dry-run sender writing to log.
func NewSender(id string, log *zap.SugaredLogger) *Sender {
	return &Sender{
		id:  id,
		log: log.With("sender", id),
	}
}

// EntityID returns the identifier of the sender in the information model.
func (s *Sender) EntityID() string {
	return s.id
}

// SendEmail writes the email to the log.
func (s *Sender) SendEmail(_ context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return errNoRecipient
	}

	s.log.Infow("Email not sent, dry-run sender", "to", to, "subject", subject, "body", body)

	return nil
}
