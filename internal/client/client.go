package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

// Client is a reconnecting stream client. Create it with New, start it with
// Run, and consume Messages and Errors concurrently.
type Client struct {
	cfg    Config
	logger *slog.Logger

	messages chan Message
	errs     chan error

	// mu guards the live connection and the subscription set.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	subs      map[string]struct{}

	// writeMu serializes frame writes on the live connection.
	writeMu sync.Mutex

	reconnects atomic.Int64
	dropped    atomic.Int64
}

// New creates a client. Run must be called to connect.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "stream-client")),
		messages: make(chan Message, cfg.BufferSize),
		errs:     make(chan error, 1),
		subs:     make(map[string]struct{}),
	}
}

// Messages returns the inbound envelope channel. Envelopes are dropped with
// a warning when the consumer falls behind.
func (c *Client) Messages() <-chan Message { return c.messages }

// Errors returns a channel of connection errors. At most one error is
// buffered; newer errors replace nothing and are logged instead.
func (c *Client) Errors() <-chan error { return c.errs }

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Stats returns a snapshot of client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:  c.Connected(),
		Reconnects: c.reconnects.Load(),
		Dropped:    c.dropped.Load(),
	}
}

// Subscribe adds channel to the subscription set and, when connected, sends
// the subscribe frame immediately. The set is replayed on every reconnect.
func (c *Client) Subscribe(channel string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.subs[channel] = struct{}{}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Send(protocol.TypeSubscribe, protocol.SubscribePayload{Channel: channel})
}

// Unsubscribe removes channel from the subscription set and, when connected,
// tells the server.
func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.subs, channel)
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Send(protocol.TypeUnsubscribe, protocol.UnsubscribePayload{Channel: channel})
}

// Subscriptions returns the locally held channel set, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Send encodes and writes one envelope. Returns ErrNotConnected while the
// client is between connections.
func (c *Client) Send(t protocol.MessageType, payload any) error {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	return c.write(data)
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Run connects and keeps the connection alive until ctx is cancelled. It
// returns nil on cancellation, ErrUnauthorized when the server rejects the
// token, and ErrRetriesExhausted after MaxAttempts consecutive failed dials.
func (c *Client) Run(ctx context.Context) error {
	defer c.markClosed()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.MaxInterval = c.cfg.MaxDelay
	bo.Multiplier = reconnectMultiplier
	bo.RandomizationFactor = reconnectJitter

	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return ErrUnauthorized
			}
			attempts++
			c.logger.Warn("dial failed",
				"url", c.cfg.URL,
				"attempt", attempts,
				"error", err,
			)
			if c.cfg.MaxAttempts > 0 && attempts >= c.cfg.MaxAttempts {
				terminal := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, err)
				c.reportError(terminal)
				return terminal
			}
			if !c.sleep(ctx, bo) {
				return nil
			}
			continue
		}

		attempts = 0
		bo.Reset()
		c.reconnects.Add(1)
		c.setConn(conn)
		c.logger.Info("connected", "url", c.cfg.URL, "subscriptions", len(c.Subscriptions()))
		c.replaySubscriptions()

		err = c.readLoop(ctx, conn)
		c.clearConn()
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("connection lost", "error", err)
		c.reportError(err)
		if !c.sleep(ctx, bo) {
			return nil
		}
	}
}

// dial performs one handshake attempt.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, ErrUnauthorized
			}
		}
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

// sleep waits out the next backoff delay, returning false on cancellation.
func (c *Client) sleep(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		d = c.cfg.MaxDelay
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// replaySubscriptions re-sends one subscribe frame per held channel.
func (c *Client) replaySubscriptions() {
	for _, ch := range c.Subscriptions() {
		if err := c.Send(protocol.TypeSubscribe, protocol.SubscribePayload{Channel: ch}); err != nil {
			c.logger.Warn("subscription replay failed", "channel", ch, "error", err)
			return
		}
	}
}

// readLoop reads frames until the connection dies or ctx is cancelled.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
	})

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			return err
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}

		select {
		case c.messages <- Message{Envelope: env, ReceivedAt: receivedAt}:
		default:
			c.dropped.Add(1)
			c.logger.Warn("message buffer full, dropping envelope", "type", env.Type)
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
}

func (c *Client) clearConn() {
	c.mu.Lock()
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	c.mu.Unlock()
	close(c.messages)
}

func (c *Client) reportError(err error) {
	select {
	case c.errs <- err:
	default:
		c.logger.Debug("error channel full", "error", err)
	}
}
