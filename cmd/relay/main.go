package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	"github.com/DeBrosOfficial/stream-relay/pkg/monitoring"
	"github.com/DeBrosOfficial/stream-relay/pkg/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appName = "stream-relay"

// version metadata populated via -ldflags at build time
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &relayFlags{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Relay a streaming bus channel to websocket clients",
		Long:          "Serves websocket clients that connect at <sub-path><sequence> and streams every bus message from that sequence onwards.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg)
		},
	}
	bindFlags(root, flags)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionString())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return root
}

func versionString() string {
	s := fmt.Sprintf("%s %s", appName, version)
	if commit != "" {
		s += fmt.Sprintf(" (commit %s)", commit)
	}
	if date != "" {
		s += fmt.Sprintf(" built %s", date)
	}
	return s + "\n"
}

func runRelay(parent context.Context, cfg *config.Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		return fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}

	logger, err := logging.NewColoredLogger(cfg.Logging.Level, cfg.Logging.Color)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.ComponentInfo(logging.ComponentGeneral, "Starting "+appName,
		zap.String("version", version),
		zap.String("commit", commit))

	connector, err := bus.Open(cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := connector.(io.Closer); ok {
		defer c.Close()
	}

	var srv *relay.Server
	sampler := monitoring.NewSampler(logger, func() int { return srv.Connections() })
	opts := []relay.Option{
		relay.WithVersion(appName, version),
		relay.WithSampler(sampler),
	}
	if cfg.Server.MetricsEnabled {
		opts = append(opts, relay.WithMetrics(relay.NewMetrics()))
	}
	srv = relay.NewServer(cfg, connector, logger, opts...)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.ComponentInfo(logging.ComponentGeneral, "Setup complete, waiting for connections...",
		zap.String("addr", cfg.ListenAddr()),
		zap.String("backend", connector.Name()))

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "relay stopped with error", zap.Error(err))
		return err
	}
	logger.ComponentInfo(logging.ComponentGeneral, "Relay shutdown complete")
	return nil
}
