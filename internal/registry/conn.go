package registry

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

// Errors
var (
	ErrNotOpen        = errors.New("connection not open")
	ErrSendBufferFull = errors.New("send buffer full")
)

// State is the connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Wire is the subset of *websocket.Conn the registry depends on.
// Tests substitute an in-memory implementation.
type Wire interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// MessageHandler is invoked for each inbound text frame.
type MessageHandler func(c *Conn, data []byte)

// ConnConfig holds per-connection transport settings.
type ConnConfig struct {
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBufferSize int
}

// Conn is one tracked connection: transport handle, identity, liveness,
// and subscription set.
type Conn struct {
	id     uuid.UUID
	userID string
	ws     Wire
	cfg    ConnConfig
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	state atomic.Int32
	alive atomic.Bool

	subMu sync.Mutex
	subs  map[string]struct{}

	onClose func(*Conn)
}

// NewConn wraps an upgraded socket. The identity is bound once here and
// never changes.
func NewConn(ws Wire, userID string, cfg ConnConfig, logger *slog.Logger, onClose func(*Conn)) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBufferSize < 1 {
		cfg.SendBufferSize = 256
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	id := uuid.New()
	c := &Conn{
		id:      id,
		userID:  userID,
		ws:      ws,
		cfg:     cfg,
		logger:  logger.With(slog.String("conn_id", id.String()), slog.String("user_id", userID)),
		send:    make(chan []byte, cfg.SendBufferSize),
		done:    make(chan struct{}),
		subs:    make(map[string]struct{}),
		onClose: onClose,
	}
	c.state.Store(int32(StateConnecting))
	c.alive.Store(true)

	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}
	ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID { return c.id }

// UserID returns the authenticated identity bound at upgrade time.
func (c *Conn) UserID() string { return c.userID }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Alive reports whether a pong arrived since the last sweep.
func (c *Conn) Alive() bool { return c.alive.Load() }

// MarkSwept clears the liveness flag ahead of a ping. The next pong sets it
// again, proving round-trip liveness within one sweep interval.
func (c *Conn) MarkSwept() { c.alive.Store(false) }

// Run starts the read and write pumps. handler receives each inbound text
// frame; Run returns once the read pump exits.
func (c *Conn) Run(handler MessageHandler) {
	c.state.Store(int32(StateOpen))

	c.wg.Add(1)
	go c.writePump()

	c.readPump(handler)
	c.Close()
	c.wg.Wait()
}

func (c *Conn) readPump(handler MessageHandler) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		handler(c, data)
	}
}

func (c *Conn) writePump() {
	defer c.wg.Done()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeWire(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeWire(messageType int, data []byte) error {
	type deadlineWriter interface {
		SetWriteDeadline(t time.Time) error
	}
	if dw, ok := c.ws.(deadlineWriter); ok {
		_ = dw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(messageType, data)
}

// Send enqueues pre-encoded bytes for delivery. Connections that are not
// open are skipped with ErrNotOpen; callers treat that as natural churn,
// not a fault.
func (c *Conn) Send(data []byte) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotOpen
	default:
		return ErrSendBufferFull
	}
}

// SendEnvelope encodes and enqueues a single envelope.
func (c *Conn) SendEnvelope(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Ping writes a ping control frame. Control writes are safe alongside the
// write pump.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
}

// Terminate forcibly closes the transport. Cleanup runs through the same
// close path as a peer-initiated disconnect.
func (c *Conn) Terminate() {
	c.logger.Debug("terminating connection", "state", c.State().String())
	c.Close()
}

// Close shuts the connection down once: state transition, transport close,
// and the registered onClose callback.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.done)
		_ = c.ws.Close()
		c.state.Store(int32(StateClosed))
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// Done is closed when the connection has fully shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe adds the connection to a channel. Idempotent: re-subscribing is
// a no-op. Reports whether membership was newly added.
func (c *Conn) Subscribe(channel string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, x := c.subs[channel]; x {
		return false
	}
	c.subs[channel] = struct{}{}
	return true
}

// Unsubscribe removes channel membership. Absent channels are a no-op.
func (c *Conn) Unsubscribe(channel string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, channel)
}

// Subscribed reports channel membership.
func (c *Conn) Subscribed(channel string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	_, ok := c.subs[channel]
	return ok
}

// Subscriptions returns a copy of the subscribed channel set.
func (c *Conn) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

// ClearSubscriptions empties the subscription set.
func (c *Conn) ClearSubscriptions() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	clear(c.subs)
}
