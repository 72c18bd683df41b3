package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	"github.com/rqlite/gorqlite"
	"go.uber.org/zap"
)

// RQLiteConnector reads channels from a message log table in rqlite:
//
//	CREATE TABLE relay_messages (
//	    channel   TEXT    NOT NULL,
//	    sequence  INTEGER NOT NULL,
//	    timestamp INTEGER NOT NULL,
//	    data      TEXT    NOT NULL,
//	    PRIMARY KEY (channel, sequence)
//	)
//
// Subscriptions poll the table for rows at or past their cursor.
type RQLiteConnector struct {
	DSN          string
	Table        string
	PollInterval time.Duration
	BatchSize    int
	// MaxFailures is the number of consecutive failed polls after which
	// the connection is reported lost.
	MaxFailures int

	logger *logging.ColoredLogger
	open   func(dsn string) (logSource, error)
}

// logSource is the read side of the message log.
type logSource interface {
	Since(channel string, from uint64, limit int) ([]Message, error)
	Close()
}

// NewRQLiteConnector creates a connector for the log table at dsn
func NewRQLiteConnector(dsn, table string, pollInterval time.Duration, logger *logging.ColoredLogger) *RQLiteConnector {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &RQLiteConnector{
		DSN:          dsn,
		Table:        table,
		PollInterval: pollInterval,
		BatchSize:    256,
		MaxFailures:  5,
		logger:       logger,
	}
	c.open = func(dsn string) (logSource, error) {
		conn, err := gorqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		return &rqliteLog{conn: conn, table: c.Table}, nil
	}
	return c
}

// Name implements Connector.
func (c *RQLiteConnector) Name() string { return "rqlite" }

// Connect implements Connector. rqlite has no subscriber identity, so
// clientID is only used for logging.
func (c *RQLiteConnector) Connect(ctx context.Context, clientID string, onLost LostHandler) (Conn, error) {
	src, err := dialContext(ctx,
		func() (logSource, error) { return c.open(c.DSN) },
		func(late logSource) { late.Close() })
	if err != nil {
		return nil, err
	}
	c.logger.ComponentDebug(logging.ComponentBus, "rqlite log opened",
		zap.String("client_id", clientID),
		zap.String("table", c.Table))

	return &rqliteConn{
		connector: c,
		src:       src,
		clientID:  clientID,
		onLost:    onLost,
		stop:      make(chan struct{}),
	}, nil
}

type rqliteConn struct {
	connector *RQLiteConnector
	src       logSource
	clientID  string
	onLost    LostHandler

	lostOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	// mu orders wg.Add in Subscribe against the wg.Wait started by Close.
	mu     sync.Mutex
	closed bool
}

type rqliteSub struct {
	once sync.Once
	stop chan struct{}
}

// Close implements Subscription.
func (s *rqliteSub) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Subscribe implements Conn.
func (r *rqliteConn) Subscribe(channel string, startSeq uint64, handler MessageHandler) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrBusClosed
	}

	sub := &rqliteSub{stop: make(chan struct{})}
	r.wg.Add(1)
	go r.poll(channel, startSeq, handler, sub)
	return sub, nil
}

func (r *rqliteConn) poll(channel string, next uint64, handler MessageHandler, sub *rqliteSub) {
	defer r.wg.Done()

	c := r.connector
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		msgs, err := r.src.Since(channel, next, c.BatchSize)
		if err != nil {
			failures++
			c.logger.ComponentWarn(logging.ComponentBus, "rqlite poll failed",
				zap.String("client_id", r.clientID),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			if c.MaxFailures > 0 && failures >= c.MaxFailures {
				r.lost(fmt.Errorf("rqlite poll failed %d times: %w", failures, err))
				return
			}
		} else {
			failures = 0
		}

		for _, m := range msgs {
			select {
			case <-sub.stop:
				return
			case <-r.stop:
				return
			default:
			}
			if m.Sequence < next {
				continue
			}
			handler(m)
			next = m.Sequence + 1
		}

		// A full batch means there is probably more waiting.
		if err == nil && len(msgs) == c.BatchSize {
			continue
		}

		select {
		case <-sub.stop:
			return
		case <-r.stop:
			return
		case <-ticker.C:
		}
	}
}

func (r *rqliteConn) lost(err error) {
	select {
	case <-r.stop:
		return
	default:
	}
	r.lostOnce.Do(func() {
		if r.onLost != nil {
			r.onLost(err)
		}
	})
}

// Close implements Conn. It does not wait for pollers, so it is safe to
// call from inside a handler.
func (r *rqliteConn) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.stop)
	go func() {
		r.wg.Wait()
		r.src.Close()
	}()
	return nil
}

// rqliteLog reads the log table through gorqlite.
type rqliteLog struct {
	conn  *gorqlite.Connection
	table string
}

func (l *rqliteLog) Since(channel string, from uint64, limit int) ([]Message, error) {
	result, err := l.conn.QueryOneParameterized(gorqlite.ParameterizedStatement{
		Query:     fmt.Sprintf("SELECT sequence, timestamp, data FROM %s WHERE channel = ? AND sequence >= ? ORDER BY sequence ASC LIMIT ?", l.table),
		Arguments: []interface{}{channel, int64(from), limit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query message log: %w", err)
	}

	msgs := make([]Message, 0, result.NumRows())
	for result.Next() {
		var (
			seq, ts int64
			data    string
		)
		if err := result.Scan(&seq, &ts, &data); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, Message{Sequence: uint64(seq), Timestamp: ts, Data: []byte(data)})
	}
	return msgs, nil
}

func (l *rqliteLog) Close() {
	l.conn.Close()
}
