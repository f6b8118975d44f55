package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-notifier/internal/sender/smtp"
)

// Sender kinds.
const (
	// SenderKindSMTP delivers emails through an SMTP server.
	SenderKindSMTP = "smtp"
	// SenderKindLog writes emails to the log.
	SenderKindLog = "log"
)

// Config holds the settings of the alarm-notifier service.
type Config struct {
	// ListenAddress is the gRPC address events are published to.
	ListenAddress string `yaml:"listen_addr"`
	// MetricsAddress is the optional HTTP address serving Prometheus metrics.
	MetricsAddress string `yaml:"metrics_addr,omitempty"`
	// RetainedFile is the path to the JSON file storing retained alarms.
	RetainedFile string `yaml:"retained_file"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum log level name.
	LogLevel string `yaml:"log_level,omitempty"`
	// Users are the recipients referenced by alarms.
	Users []User `yaml:"users"`
	// Senders are the email senders referenced by alarms.
	Senders []Sender `yaml:"senders"`
	// Alarms are the watched alarms.
	Alarms []Alarm `yaml:"alarms"`
}

// User is a recipient of alarm emails.
type User struct {
	// ID is the unique identifier referenced by alarms.
	ID string `yaml:"id"`
	// Name is the display name.
	Name string `yaml:"name,omitempty"`
	// Email is the address emails are sent to.
	Email string `yaml:"email"`
}

// Sender configures an email sender.
type Sender struct {
	// ID is the unique identifier referenced by alarms.
	ID string `yaml:"id"`
	// Kind selects the implementation: smtp or log.
	Kind string `yaml:"kind"`
	// SMTP holds settings for the smtp kind.
	SMTP *smtp.Config `yaml:"smtp,omitempty"`
}

// Alarm configures a watched alarm.
type Alarm struct {
	// ID is the unique identifier events are published with.
	ID string `yaml:"id"`
	// Name is the alarm name, also the retained record key and email subject.
	Name string `yaml:"name"`
	// Message is the human-readable alarm message.
	Message string `yaml:"message"`
	// Properties are reference properties such as EmailUser and EmailSender.
	Properties map[string]string `yaml:"properties"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-notifier-settings.yaml"

	// DefaultRetainedFilename is the default filename for retained alarms JSON.
	DefaultRetainedFilename = "alarm-notifier-retained.json"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when the listen address is missing.
	errListenAddressRequired = errors.New("listen address must be provided")
	// errIDRequired is returned when an entity has no identifier.
	errIDRequired = errors.New("id must be provided")
	// errAlarmNameRequired is returned when an alarm has no name.
	errAlarmNameRequired = errors.New("alarm name must be provided")
	// errSMTPSettingsRequired is returned when an smtp sender has no settings.
	errSMTPSettingsRequired = errors.New("smtp settings must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold SMTP credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting
// and fills in defaults. References between entities are not checked here:
// a dangling reference is reported by the notifier when the alarm fires.
func Validate(settings *Config) error {
	if settings.ListenAddress == "" {
		return errListenAddressRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if settings.MetricsAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}

	// Set default timeout if not specified.
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	// Set default retained file if not specified.
	if settings.RetainedFile == "" {
		settings.RetainedFile = DefaultRetainedFilename
	}

	ids := make(map[string]string)

	for i := range settings.Users {
		if err := validateUser(&settings.Users[i], ids); err != nil {
			return err
		}
	}

	for i := range settings.Senders {
		if err := validateSender(&settings.Senders[i], ids); err != nil {
			return err
		}
	}

	// Retained records are keyed by alarm name.
	names := make(map[string]string, len(settings.Alarms))

	for i := range settings.Alarms {
		if err := validateAlarm(&settings.Alarms[i], ids, names); err != nil {
			return err
		}
	}

	return nil
}

// claimID registers id in ids and fails on duplicates.
func claimID(ids map[string]string, id, kind string) error {
	if id == "" {
		return fmt.Errorf("%s: %w", kind, errIDRequired)
	}

	if owner, ok := ids[id]; ok {
		return fmt.Errorf("duplicate id %q used by %s and %s", id, owner, kind)
	}

	ids[id] = kind

	return nil
}

// validateUser checks a user entry.
func validateUser(user *User, ids map[string]string) error {
	if err := claimID(ids, user.ID, "user"); err != nil {
		return err
	}

	// An empty address is allowed and reported when an alarm fires.
	if user.Email != "" && !strings.ContainsRune(user.Email, '@') {
		return fmt.Errorf("user %s: invalid email address %q", user.ID, user.Email)
	}

	return nil
}

// validateSender checks a sender entry.
func validateSender(sender *Sender, ids map[string]string) error {
	if err := claimID(ids, sender.ID, "sender"); err != nil {
		return err
	}

	switch sender.Kind {
	case SenderKindSMTP:
		if sender.SMTP == nil {
			return fmt.Errorf("sender %s: %w", sender.ID, errSMTPSettingsRequired)
		}

		if err := sender.SMTP.Validate(); err != nil {
			return fmt.Errorf("sender %s: %w", sender.ID, err)
		}
	case SenderKindLog:
	default:
		return fmt.Errorf("sender %s: unknown kind %q", sender.ID, sender.Kind)
	}

	return nil
}

// validateAlarm checks an alarm entry.
func validateAlarm(alarm *Alarm, ids, names map[string]string) error {
	if err := claimID(ids, alarm.ID, "alarm"); err != nil {
		return err
	}

	name := strings.TrimSpace(alarm.Name)
	if name == "" {
		return fmt.Errorf("alarm %s: %w", alarm.ID, errAlarmNameRequired)
	}

	if owner, ok := names[name]; ok {
		return fmt.Errorf("alarm %s: name %q already used by alarm %s", alarm.ID, name, owner)
	}

	names[name] = alarm.ID

	return nil
}
