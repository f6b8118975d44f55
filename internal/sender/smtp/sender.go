package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/oshokin/alarm-notifier/internal/logger"
)

var (
	// ErrNotOpen is returned when sending through a sender that is not open.
	ErrNotOpen = errors.New("smtp sender is not open")
	// ErrQueueFull is returned when the outgoing queue has no room left.
	ErrQueueFull = errors.New("smtp queue is full")
	// ErrNoRecipient is returned when the recipient address is empty.
	ErrNoRecipient = errors.New("not sending email, no recipient defined")
)

// dialFunc opens a connection to the SMTP server.
type dialFunc func() (gomail.SendCloser, error)

// Sender delivers alarm emails through SMTP.
type Sender struct {
	// id is the identifier of the sender in the information model.
	id string
	// cfg holds the validated SMTP settings.
	cfg Config
	// dial opens SMTP connections, replaceable in tests.
	dial dialFunc
	// ctx carries the logger of the mailer goroutine.
	ctx context.Context //nolint:containedctx // Mailer goroutine outlives Open's caller.
	// mail is the outgoing queue.
	mail chan *gomail.Message
	// wg tracks the mailer goroutine.
	wg sync.WaitGroup
	// mu protects mail and opened.
	mu sync.RWMutex
	// opened indicates whether the mailer goroutine is running.
	opened bool
}

// NewSender creates an SMTP sender. Call Open before sending.
func NewSender(id string, cfg Config) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("smtp sender %s: %w", id, err)
	}

	s := &Sender{
		id:  id,
		cfg: cfg,
	}

	s.dial = func() (gomail.SendCloser, error) {
		return s.dialer().Dial()
	}

	return s, nil
}

// EntityID returns the identifier of the sender in the information model.
func (s *Sender) EntityID() string {
	return s.id
}

// Open starts the mailer goroutine. Opening an open sender is a no-op.
func (s *Sender) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	s.opened = true
	s.ctx = logger.WithKV(context.WithoutCancel(ctx), "sender", s.id)
	s.mail = make(chan *gomail.Message, s.cfg.QueueSize)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.runMailer(s.mail)
	}()

	return nil
}

// Close stops accepting emails, delivers the queued ones and stops the mailer.
func (s *Sender) Close() error {
	s.mu.Lock()

	if !s.opened {
		s.mu.Unlock()

		return nil
	}

	s.opened = false
	close(s.mail)
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

// SendEmail queues an email for delivery and returns without waiting for it.
func (s *Sender) SendEmail(_ context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return ErrNotOpen
	}

	select {
	case s.mail <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// dialer builds the gomail dialer from the settings.
func (s *Sender) dialer() *gomail.Dialer {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if s.cfg.NoVerify {
		//nolint:gosec // Explicitly requested by the operator.
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return d
}

// runMailer delivers queued messages until the queue is closed.
func (s *Sender) runMailer(mail <-chan *gomail.Message) {
	var conn gomail.SendCloser

	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for {
		timer := time.NewTimer(s.cfg.IdleTimeout)

		select {
		case m, ok := <-mail:
			if !ok {
				timer.Stop()

				return
			}

			conn = s.deliver(conn, m)
		case <-timer.C:
			// No email in the last idle timeout, release the connection.
			if conn != nil {
				if err := conn.Close(); err != nil {
					logger.ErrorKV(s.ctx, "Error closing connection to SMTP server", "error", err)
				}

				conn = nil
			}
		}

		timer.Stop()
	}
}

// deliver sends one message, dialing first when there is no open connection.
// It returns the connection to reuse, or nil when it should be reopened.
func (s *Sender) deliver(conn gomail.SendCloser, m *gomail.Message) gomail.SendCloser {
	if conn == nil {
		var err error

		if conn, err = s.dial(); err != nil {
			logger.ErrorKV(s.ctx, "Error connecting to SMTP server", "host", s.cfg.Host, "error", err)

			return nil
		}
	}

	if err := gomail.Send(conn, m); err != nil {
		logger.ErrorKV(s.ctx, "Failed to send email", "to", m.GetHeader("To"), "error", err)

		// The server may have dropped the connection, dial again next time.
		_ = conn.Close()

		return nil
	}

	logger.DebugKV(s.ctx, "Email sent", "to", m.GetHeader("To"))

	return conn
}
