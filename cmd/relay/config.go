package main

import (
	"os"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/spf13/cobra"
)

// relayFlags holds command-line overrides. Only flags that were set on the
// command line are applied.
type relayFlags struct {
	configPath   string
	host         string
	port         int
	subPath      string
	channel      string
	clusterID    string
	natsURL      string
	backend      string
	pingInterval time.Duration
	logLevel     string
	noColor      bool
	publish      bool
}

func bindFlags(cmd *cobra.Command, f *relayFlags) {
	fs := cmd.PersistentFlags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (env RELAY_CONFIG)")
	fs.StringVar(&f.host, "host", "", "listen host (env HOST)")
	fs.IntVarP(&f.port, "port", "p", 0, "listen port (env PORT)")
	fs.StringVar(&f.subPath, "sub-path", "", "path prefix preceding the start sequence (env SUB_PATH)")
	fs.StringVar(&f.channel, "channel", "", "bus channel to relay (env CHANNEL)")
	fs.StringVar(&f.clusterID, "cluster-id", "", "streaming cluster id (env CLUSTER_ID)")
	fs.StringVar(&f.natsURL, "nats-url", "", "NATS server URL (env NATS_URL)")
	fs.StringVar(&f.backend, "backend", "", "bus backend: stan, rqlite or memory (env BUS_BACKEND)")
	fs.DurationVar(&f.pingInterval, "ping-interval", 0, "heartbeat interval (env PING_INTERVAL)")
	fs.StringVar(&f.logLevel, "log-level", "", "log verbosity: info or all (env LOG_LEVEL)")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored log output")
	fs.BoolVar(&f.publish, "publish", false, "enable POST /v1/publish (memory backend only)")
}

// loadConfig resolves the configuration.
// Priority: flags > env > file > defaults.
func loadConfig(cmd *cobra.Command, f *relayFlags) (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = os.Getenv("RELAY_CONFIG")
	}

	cfg, err := config.FromEnv(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("sub-path") {
		cfg.Server.SubscribePath = f.subPath
	}
	if flags.Changed("channel") {
		cfg.Bus.Channel = f.channel
	}
	if flags.Changed("cluster-id") {
		cfg.Bus.ClusterID = f.clusterID
	}
	if flags.Changed("nats-url") {
		cfg.Bus.URL = f.natsURL
	}
	if flags.Changed("backend") {
		cfg.Bus.Backend = f.backend
	}
	if flags.Changed("ping-interval") {
		cfg.Server.PingInterval = f.pingInterval
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("no-color") {
		cfg.Logging.Color = !f.noColor
	}
	if flags.Changed("publish") {
		cfg.Server.PublishEnabled = f.publish
	}
	return cfg, nil
}
