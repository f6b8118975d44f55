package smtp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPort is the SMTP port used when none is configured.
	DefaultPort = 25
	// DefaultIdleTimeout closes the SMTP connection after this much inactivity.
	DefaultIdleTimeout = 30 * time.Second
	// DefaultQueueSize is the number of emails that can wait for delivery.
	DefaultQueueSize = 64
)

var (
	// errHostRequired is returned when the SMTP host is missing.
	errHostRequired = errors.New("smtp host cannot be empty")
	// errNegativeIdleTimeout is returned for a negative idle timeout.
	errNegativeIdleTimeout = errors.New("smtp idle timeout must not be negative")
)

// Config holds SMTP connection settings.
type Config struct {
	// Host is the SMTP server host name.
	Host string `yaml:"host"`
	// Port is the SMTP server port.
	Port int `yaml:"port"`
	// Username for PLAIN authentication. Empty disables authentication.
	Username string `yaml:"username"`
	// Password for PLAIN authentication.
	Password string `yaml:"password"`
	// From is the sender address.
	From string `yaml:"from"`
	// NoVerify skips TLS certificate verification.
	NoVerify bool `yaml:"no_verify"`
	// IdleTimeout closes the connection after no email was sent for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// QueueSize is the capacity of the outgoing queue.
	QueueSize int `yaml:"queue_size"`
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errHostRequired
	}

	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.Port < 0 {
		return fmt.Errorf("invalid smtp port %d", c.Port)
	}

	if c.IdleTimeout < 0 {
		return errNegativeIdleTimeout
	}

	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}

	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}

	// Poor man's check, enough to catch typos in the settings file.
	if !strings.ContainsRune(c.From, '@') {
		return fmt.Errorf("invalid from email address: %q", c.From)
	}

	return nil
}
