package config

import (
	"net"
	"strconv"
	"time"
)

// Bus backend names accepted by bus.backend / BUS_BACKEND.
const (
	BackendStan   = "stan"
	BackendRQLite = "rqlite"
	BackendMemory = "memory"
)

// Config is the relay configuration. It is built once at start and shared
// read-only by every connection.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bus     BusConfig     `yaml:"bus"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the websocket listener configuration
type ServerConfig struct {
	Host           string        `yaml:"host"`            // Listen host
	Port           int           `yaml:"port"`            // Listen port
	SubscribePath  string        `yaml:"subscribe_path"`  // Prefix preceding the start sequence, e.g. "/subscribe/"
	PingInterval   time.Duration `yaml:"ping_interval"`   // Heartbeat sweep interval
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // Deadline for a single frame write
	MetricsEnabled bool          `yaml:"metrics_enabled"` // Expose /metrics
	PublishEnabled bool          `yaml:"publish_enabled"` // Expose POST /v1/publish (memory backend only)
}

// BusConfig contains message bus configuration
type BusConfig struct {
	Backend      string        `yaml:"backend"`       // stan, rqlite or memory
	ClusterID    string        `yaml:"cluster_id"`    // Streaming cluster id
	URL          string        `yaml:"url"`           // NATS server URL for the stan backend
	Channel      string        `yaml:"channel"`       // Channel every connection subscribes to
	ConnectWait  time.Duration `yaml:"connect_wait"`  // Bus connect timeout
	RQLiteDSN    string        `yaml:"rqlite_dsn"`    // rqlite HTTP endpoint for the rqlite backend
	RQLiteTable  string        `yaml:"rqlite_table"`  // Table holding the message log
	PollInterval time.Duration `yaml:"poll_interval"` // rqlite backend poll interval
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // info or all
	Color bool   `yaml:"color"` // ANSI colors on console output
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			SubscribePath:  "/subscribe/",
			PingInterval:   30 * time.Second,
			WriteTimeout:   10 * time.Second,
			MetricsEnabled: true,
		},
		Bus: BusConfig{
			Backend:      BackendStan,
			ClusterID:    "usgs",
			URL:          "nats://127.0.0.1:4222",
			Channel:      "anss.pdl.realtime",
			ConnectWait:  5 * time.Second,
			RQLiteDSN:    "http://localhost:4001",
			RQLiteTable:  "relay_messages",
			PollInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			Color: true,
		},
	}
}

// ListenAddr returns host:port for the websocket listener.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
