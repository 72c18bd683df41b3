package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv builds the configuration from defaults, an optional YAML file and
// the process environment, in that order of increasing priority.
func FromEnv(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any recognised variables found through lookup.
// Empty values are ignored. Every unparsable value is reported.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []error

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	setString := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := parseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := ParseInterval(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("HOST", &cfg.Server.Host)
	setInt("PORT", &cfg.Server.Port)
	setString("SUB_PATH", &cfg.Server.SubscribePath)
	setDuration("PING_INTERVAL", &cfg.Server.PingInterval)
	setDuration("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setBool("METRICS_ENABLED", &cfg.Server.MetricsEnabled)
	setBool("PUBLISH_ENABLED", &cfg.Server.PublishEnabled)

	setString("BUS_BACKEND", &cfg.Bus.Backend)
	setString("CLUSTER_ID", &cfg.Bus.ClusterID)
	setString("NATS_URL", &cfg.Bus.URL)
	setString("CHANNEL", &cfg.Bus.Channel)
	setDuration("CONNECT_WAIT", &cfg.Bus.ConnectWait)
	setString("RQLITE_DSN", &cfg.Bus.RQLiteDSN)
	setString("RQLITE_TABLE", &cfg.Bus.RQLiteTable)
	setDuration("RQLITE_POLL_INTERVAL", &cfg.Bus.PollInterval)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setBool("LOG_COLOR", &cfg.Logging.Color)

	return errors.Join(errs...)
}

// ParseInterval accepts a Go duration ("30s") or a bare integer number of
// milliseconds ("30000").
func ParseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor milliseconds", v)
	}
	return d, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean", v)
	}
}
