package relay

import (
	"context"
	"sync"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle position of one connection.
type State int

const (
	StateAccepted State = iota
	StateSequenceValid
	StateSequenceInvalid
	StateBusConnecting
	StateSubscribed
	StateForwarding
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateSequenceValid:
		return "sequence_valid"
	case StateSequenceInvalid:
		return "sequence_invalid"
	case StateBusConnecting:
		return "bus_connecting"
	case StateSubscribed:
		return "subscribed"
	case StateForwarding:
		return "forwarding"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnHandler drives one client connection: it connects to the bus under a
// fresh client id, subscribes at the requested sequence and forwards every
// message to the socket until teardown.
type ConnHandler struct {
	cfg       *config.Config
	connector bus.Connector
	socket    Socket
	logger    *logging.ColoredLogger
	metrics   *Metrics

	clientID string
	target   string
	startSeq uint64
	seqErr   error

	// onClose runs once during teardown, before bus resources are released.
	onClose func()

	mu        sync.Mutex
	state     State
	closed    bool
	closeCode int
	cancel    context.CancelFunc
	conn      bus.Conn
	sub       bus.Subscription
	done      chan struct{}
}

// NewConnHandler creates a handler for the connection accepted at target.
// The start sequence is parsed here; Run reports an invalid one.
func NewConnHandler(cfg *config.Config, connector bus.Connector, socket Socket, target string, logger *logging.ColoredLogger) *ConnHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &ConnHandler{
		cfg:       cfg,
		connector: connector,
		socket:    socket,
		logger:    logger,
		clientID:  uuid.NewString(),
		target:    target,
		state:     StateAccepted,
		done:      make(chan struct{}),
	}

	h.startSeq, h.seqErr = ParseSequence(target, cfg.Server.SubscribePath)
	if h.seqErr != nil {
		h.state = StateSequenceInvalid
	} else {
		h.state = StateSequenceValid
	}
	return h
}

// ClientID returns the bus subscriber identity of this connection.
func (h *ConnHandler) ClientID() string { return h.clientID }

// StartSequence returns the parsed start sequence and whether it is valid.
func (h *ConnHandler) StartSequence() (uint64, bool) { return h.startSeq, h.seqErr == nil }

// State returns the current lifecycle state.
func (h *ConnHandler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// CloseCode returns the code the connection was closed with, 0 while open.
func (h *ConnHandler) CloseCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCode
}

// Done is closed once teardown has completed.
func (h *ConnHandler) Done() <-chan struct{} { return h.done }

// Run connects to the bus and subscribes. It returns once the subscription
// is established or the connection has been closed; messages are then
// forwarded from the bus's delivery goroutine.
func (h *ConnHandler) Run(ctx context.Context) {
	remote := h.socket.RemoteAddr()

	if h.seqErr != nil {
		h.logger.ComponentWarn(logging.ComponentRelay, "rejecting connection without a valid sequence",
			zap.String("remote", remote),
			zap.String("target", h.target),
			zap.Error(h.seqErr))
		h.metrics.connectionAccepted(false)
		h.Close(CloseSequenceInvalid, ReasonSequenceInvalid)
		return
	}
	h.metrics.connectionAccepted(true)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	parent := ctx
	ctx, h.cancel = context.WithCancel(parent)
	h.state = StateBusConnecting
	h.mu.Unlock()

	channel := h.cfg.Bus.Channel
	h.logger.ComponentInfo(logging.ComponentRelay, "connecting to bus",
		zap.String("remote", remote),
		zap.String("client_id", h.clientID),
		zap.String("backend", h.connector.Name()),
		zap.Uint64("sequence", h.startSeq))

	conn, err := h.connector.Connect(ctx, h.clientID, h.onLost)
	if err != nil {
		switch {
		case h.isClosed():
			h.logger.ComponentDebug(logging.ComponentRelay, "bus connect abandoned after close",
				zap.String("client_id", h.clientID),
				zap.Bool("cancelled", errors.IsCancelled(err)))
		case errors.IsCancelled(err) || parent.Err() != nil:
			// Only the server's context can cancel a connect while open.
			h.Close(CloseGoingAway, ReasonGoingAway)
		default:
			h.fail("connect", channel, err)
		}
		return
	}
	if !h.attachConn(conn) {
		_ = conn.Close()
		return
	}

	sub, err := conn.Subscribe(channel, h.startSeq, h.forward)
	if err != nil {
		if h.isClosed() {
			return
		}
		h.fail("subscribe", channel, err)
		return
	}
	if !h.attachSub(sub) {
		_ = sub.Close()
		return
	}

	h.logger.ComponentInfo(logging.ComponentRelay, "subscribed",
		zap.String("client_id", h.clientID),
		zap.String("channel", channel),
		zap.Uint64("sequence", h.startSeq))
}

func (h *ConnHandler) attachConn(c bus.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conn = c
	return true
}

func (h *ConnHandler) attachSub(s bus.Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sub = s
	if h.state == StateBusConnecting {
		h.state = StateSubscribed
	}
	return true
}

func (h *ConnHandler) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fail closes the connection after a bus error.
func (h *ConnHandler) fail(op, channel string, cause error) {
	err := errors.NewBusError(op, channel, cause)
	h.logger.ComponentError(logging.ComponentBus, "bus failure, closing connection",
		zap.String("client_id", h.clientID),
		zap.String("op", op),
		zap.Error(err))
	h.metrics.busFailure(op)
	h.Close(CloseRelayFailure, ReasonRelayFailure)
}

func (h *ConnHandler) onLost(cause error) {
	if h.isClosed() {
		return
	}
	h.fail("lost", h.cfg.Bus.Channel, cause)
}

// forward handles one message from the subscription.
func (h *ConnHandler) forward(msg bus.Message) {
	if msg.Sequence < h.startSeq {
		h.metrics.dropped()
		h.logger.ComponentDebug(logging.ComponentRelay, "dropping message before start sequence",
			zap.String("client_id", h.clientID),
			zap.Uint64("sequence", msg.Sequence),
			zap.Uint64("start", h.startSeq))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if h.state == StateSubscribed || h.state == StateBusConnecting {
		h.state = StateForwarding
	}
	h.mu.Unlock()

	frame, err := Translate(msg)
	if err != nil {
		if errors.IsDecode(err) {
			h.metrics.decodeError()
			h.logger.ComponentWarn(logging.ComponentRelay, "skipping message with undecodable payload",
				zap.String("client_id", h.clientID),
				zap.Uint64("sequence", msg.Sequence),
				zap.Error(err))
			return
		}
		h.logger.ComponentError(logging.ComponentRelay, "failed to build frame, skipping message",
			zap.String("client_id", h.clientID),
			zap.Uint64("sequence", msg.Sequence),
			zap.Error(err))
		return
	}

	if err := h.socket.Send(frame); err != nil {
		if errors.IsCancelled(err) {
			// The socket was closed under us; teardown is already under way.
			h.logger.ComponentDebug(logging.ComponentRelay, "send after close",
				zap.String("client_id", h.clientID),
				zap.Uint64("sequence", msg.Sequence))
		} else {
			h.logger.ComponentInfo(logging.ComponentRelay, "send failed, closing connection",
				zap.String("client_id", h.clientID),
				zap.Error(err))
		}
		// Teardown closes the subscription that is calling us.
		go h.Close(CloseNormal, ReasonNormal)
		return
	}
	h.metrics.forwarded()

	if h.logger.DebugEnabled() {
		h.logger.ComponentDebug(logging.ComponentRelay, "forwarded",
			zap.String("client_id", h.clientID),
			zap.Uint64("sequence", msg.Sequence))
	}
}

// Close tears the connection down with the given close code. Only the first
// call has any effect. A pending bus connect is cancelled; a connection or
// subscription that completes afterwards is closed by Run.
func (h *ConnHandler) Close(code int, reason string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.closeCode = code
	h.state = StateClosing
	cancel, sub, conn := h.cancel, h.sub, h.conn
	h.sub, h.conn = nil, nil
	h.mu.Unlock()

	if h.onClose != nil {
		h.onClose()
	}
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			h.logger.ComponentDebug(logging.ComponentBus, "subscription close failed",
				zap.String("client_id", h.clientID),
				zap.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			h.logger.ComponentDebug(logging.ComponentBus, "bus connection close failed",
				zap.String("client_id", h.clientID),
				zap.Error(err))
		}
	}
	_ = h.socket.Close(code, reason)
	h.metrics.closed(code)

	h.mu.Lock()
	h.state = StateClosed
	h.mu.Unlock()
	close(h.done)

	h.logger.ComponentInfo(logging.ComponentRelay, "connection closed",
		zap.String("client_id", h.clientID),
		zap.String("remote", h.socket.RemoteAddr()),
		zap.Int("code", code),
		zap.String("reason", reason))
}
