package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "server.port"
	Message string // e.g., "must be between 1 and 65535"
	Hint    string // e.g., "set PORT"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Streaming cluster ids and channel names share the NATS subject alphabet.
var identRe = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// Validate performs validation of the entire config.
// It aggregates all errors so the caller can print every issue at once.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateBus()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateCrossFields()...)
	return errs
}

func (c *Config) validateServer() []error {
	var errs []error
	s := c.Server

	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, ValidationError{Path: "server.host", Message: "must not be empty", Hint: "use 0.0.0.0 to listen on every interface"})
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, ValidationError{Path: "server.port", Message: fmt.Sprintf("must be between 1 and 65535; got %d", s.Port)})
	}
	if s.SubscribePath == "" {
		errs = append(errs, ValidationError{Path: "server.subscribe_path", Message: "must not be empty", Hint: "e.g. /subscribe/"})
	}
	if s.PingInterval <= 0 {
		errs = append(errs, ValidationError{Path: "server.ping_interval", Message: "must be positive"})
	} else if s.PingInterval < 100*time.Millisecond {
		errs = append(errs, ValidationError{Path: "server.ping_interval", Message: fmt.Sprintf("%s is too short", s.PingInterval), Hint: "use at least 100ms"})
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, ValidationError{Path: "server.write_timeout", Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateBus() []error {
	var errs []error
	b := c.Bus

	if !identRe.MatchString(b.Channel) {
		errs = append(errs, ValidationError{Path: "bus.channel", Message: fmt.Sprintf("invalid channel %q", b.Channel)})
	}
	if b.ConnectWait <= 0 {
		errs = append(errs, ValidationError{Path: "bus.connect_wait", Message: "must be positive"})
	}

	switch b.Backend {
	case BackendStan:
		if !identRe.MatchString(b.ClusterID) {
			errs = append(errs, ValidationError{Path: "bus.cluster_id", Message: fmt.Sprintf("invalid cluster id %q", b.ClusterID)})
		}
		if u, err := url.Parse(b.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Path: "bus.url", Message: fmt.Sprintf("invalid URL %q", b.URL), Hint: "expected nats://host:port"})
		}
	case BackendRQLite:
		if u, err := url.Parse(b.RQLiteDSN); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{Path: "bus.rqlite_dsn", Message: fmt.Sprintf("invalid DSN %q", b.RQLiteDSN), Hint: "expected http://host:port"})
		}
		if !regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`).MatchString(b.RQLiteTable) {
			errs = append(errs, ValidationError{Path: "bus.rqlite_table", Message: fmt.Sprintf("invalid table name %q", b.RQLiteTable)})
		}
		if b.PollInterval <= 0 {
			errs = append(errs, ValidationError{Path: "bus.poll_interval", Message: "must be positive"})
		}
	case BackendMemory:
	default:
		errs = append(errs, ValidationError{
			Path:    "bus.backend",
			Message: fmt.Sprintf("unknown backend %q", b.Backend),
			Hint:    "one of stan, rqlite, memory",
		})
	}
	return errs
}

func (c *Config) validateLogging() []error {
	switch c.Logging.Level {
	case "info", "all":
		return nil
	default:
		return []error{ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid level %q", c.Logging.Level),
			Hint:    "one of info, all",
		}}
	}
}

func (c *Config) validateCrossFields() []error {
	if c.Server.PublishEnabled && c.Bus.Backend != BackendMemory {
		return []error{ValidationError{
			Path:    "server.publish_enabled",
			Message: fmt.Sprintf("publishing is only supported by the memory backend, not %q", c.Bus.Backend),
		}}
	}
	return nil
}
