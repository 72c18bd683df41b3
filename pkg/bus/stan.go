package bus

import (
	"context"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	stan "github.com/nats-io/stan.go"
	"go.uber.org/zap"
)

// StanConnector connects to a NATS Streaming cluster.
type StanConnector struct {
	ClusterID   string
	URL         string
	ConnectWait time.Duration

	logger *logging.ColoredLogger
	dial   func(clusterID, clientID string, opts ...stan.Option) (stan.Conn, error)
}

// NewStanConnector creates a connector for the given cluster
func NewStanConnector(clusterID, url string, connectWait time.Duration, logger *logging.ColoredLogger) *StanConnector {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &StanConnector{
		ClusterID:   clusterID,
		URL:         url,
		ConnectWait: connectWait,
		logger:      logger,
		dial:        stan.Connect,
	}
}

// Name implements Connector.
func (c *StanConnector) Name() string { return "stan" }

// Connect implements Connector.
func (c *StanConnector) Connect(ctx context.Context, clientID string, onLost LostHandler) (Conn, error) {
	opts := []stan.Option{
		stan.NatsURL(c.URL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			c.logger.ComponentWarn(logging.ComponentBus, "stan connection lost",
				zap.String("client_id", clientID),
				zap.Error(reason))
			if onLost != nil {
				onLost(reason)
			}
		}),
	}
	if c.ConnectWait > 0 {
		opts = append(opts, stan.ConnectWait(c.ConnectWait))
	}

	sc, err := dialContext(ctx,
		func() (stan.Conn, error) { return c.dial(c.ClusterID, clientID, opts...) },
		func(late stan.Conn) {
			c.logger.ComponentDebug(logging.ComponentBus, "closing stan connection completed after teardown",
				zap.String("client_id", clientID))
			_ = late.Close()
		})
	if err != nil {
		return nil, err
	}
	return &stanConn{sc: sc}, nil
}

type stanConn struct {
	sc stan.Conn
}

// Subscribe implements Conn.
func (s *stanConn) Subscribe(channel string, startSeq uint64, handler MessageHandler) (Subscription, error) {
	return s.sc.Subscribe(channel, func(m *stan.Msg) {
		handler(fromStan(m))
	}, stan.StartAtSequence(startSeq))
}

// Close implements Conn.
func (s *stanConn) Close() error {
	return s.sc.Close()
}

func fromStan(m *stan.Msg) Message {
	return Message{
		Sequence:  m.Sequence,
		Timestamp: m.Timestamp,
		Data:      m.Data,
	}
}
