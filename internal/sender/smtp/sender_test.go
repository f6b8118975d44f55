package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

var errTestDial = errors.New("test dial error")

// sentMail is one message captured by fakeConn.
type sentMail struct {
	// from is the envelope sender.
	from string
	// to holds the envelope recipients.
	to []string
	// raw is the rendered message.
	raw string
}

// fakeConn is an in-memory gomail.SendCloser.
type fakeConn struct {
	// mu protects sent and closed.
	mu sync.Mutex
	// sent collects delivered messages.
	sent []sentMail
	// closed counts Close calls.
	closed int
}

// Send records the rendered message.
func (f *fakeConn) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, sentMail{from: from, to: to, raw: buf.String()})

	return nil
}

// Close counts connection closes.
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++

	return nil
}

// newTestSender builds a sender whose connections all go to conn.
func newTestSender(t *testing.T, conn *fakeConn) *Sender {
	t.Helper()

	s, err := NewSender("senders/smtp", Config{
		Host: "smtp.example.com",
		From: "scada@example.com",
	})
	require.NoError(t, err)

	s.dial = func() (gomail.SendCloser, error) { return conn, nil }

	return s
}

// TestConfig_Validate checks required fields and defaults.
func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{From: "scada@example.com"}
	require.Error(t, cfg.Validate())

	cfg = Config{Host: "smtp.example.com", From: "scada"}
	require.Error(t, cfg.Validate())

	cfg = Config{Host: "smtp.example.com", From: "scada@example.com", IdleTimeout: -1}
	require.Error(t, cfg.Validate())

	cfg = Config{Host: "smtp.example.com", From: "scada@example.com"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	require.Equal(t, DefaultQueueSize, cfg.QueueSize)
}

// TestSender_DeliversQueuedMailOnClose verifies queued messages are sent before Close returns.
func TestSender_DeliversQueuedMailOnClose(t *testing.T) {
	t.Parallel()

	conn := new(fakeConn)
	s := newTestSender(t, conn)
	ctx := context.Background()

	require.Equal(t, "senders/smtp", s.EntityID())
	require.ErrorIs(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "body"), ErrNotOpen)

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "Alarm name: Tank1"))
	require.ErrorIs(t, s.SendEmail(ctx, " ", "Tank1", "body"), ErrNoRecipient)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	conn.mu.Lock()
	defer conn.mu.Unlock()

	require.Len(t, conn.sent, 1)
	require.Equal(t, "scada@example.com", conn.sent[0].from)
	require.Equal(t, []string{"ops@example.com"}, conn.sent[0].to)
	require.Contains(t, conn.sent[0].raw, "Subject: Tank1")
	require.Contains(t, conn.sent[0].raw, "Alarm name: Tank1")
	require.Equal(t, 1, conn.closed)
}

// TestSender_DialFailureDropsMessage ensures a dial error is logged and the mailer keeps running.
func TestSender_DialFailureDropsMessage(t *testing.T) {
	t.Parallel()

	conn := new(fakeConn)
	s := newTestSender(t, conn)

	failures := 1
	s.dial = func() (gomail.SendCloser, error) {
		if failures > 0 {
			failures--

			return nil, errTestDial
		}

		return conn, nil
	}

	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "first"))
	require.NoError(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "second"))
	require.NoError(t, s.Close())

	conn.mu.Lock()
	defer conn.mu.Unlock()

	require.Len(t, conn.sent, 1)
	require.Contains(t, conn.sent[0].raw, "second")
}

// TestSender_ClosesIdleConnection verifies the connection is released after the idle timeout.
func TestSender_ClosesIdleConnection(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		conn := new(fakeConn)
		s := newTestSender(t, conn)
		ctx := context.Background()

		require.NoError(t, s.Open(ctx))
		require.NoError(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "body"))
		synctest.Wait()

		conn.mu.Lock()
		require.Len(t, conn.sent, 1)
		require.Zero(t, conn.closed)
		conn.mu.Unlock()

		time.Sleep(DefaultIdleTimeout + time.Second)
		synctest.Wait()

		conn.mu.Lock()
		require.Equal(t, 1, conn.closed)
		conn.mu.Unlock()

		require.NoError(t, s.Close())

		conn.mu.Lock()
		defer conn.mu.Unlock()

		require.Equal(t, 1, conn.closed)
	})
}

// TestSender_QueueFull verifies SendEmail fails instead of blocking when the queue is full.
func TestSender_QueueFull(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		s, err := NewSender("senders/smtp", Config{
			Host:      "smtp.example.com",
			From:      "scada@example.com",
			QueueSize: 1,
		})
		require.NoError(t, err)

		conn := new(fakeConn)
		gate := make(chan struct{})
		s.dial = func() (gomail.SendCloser, error) {
			<-gate

			return conn, nil
		}

		ctx := context.Background()
		require.NoError(t, s.Open(ctx))

		// The mailer takes the first email and waits in dial.
		require.NoError(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "first"))
		synctest.Wait()

		require.NoError(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "second"))
		require.ErrorIs(t, s.SendEmail(ctx, "ops@example.com", "Tank1", "third"), ErrQueueFull)

		close(gate)
		require.NoError(t, s.Close())

		conn.mu.Lock()
		defer conn.mu.Unlock()

		require.Len(t, conn.sent, 2)
	})
}
