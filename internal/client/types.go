package client

import (
	"errors"
	"time"

	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

// Errors
var (
	// ErrNotConnected is returned by Send while no connection is up.
	ErrNotConnected = errors.New("not connected")

	// ErrRetriesExhausted is returned by Run after MaxAttempts consecutive
	// failed dials.
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")

	// ErrUnauthorized is returned by Run when the server rejects the
	// session token. Retrying would not help.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("client closed")
)

// Reconnect pacing. Delays grow by the multiplier each consecutive failure
// and carry a small jitter so a fleet of clients does not redial in step.
const (
	reconnectMultiplier = 1.5
	reconnectJitter     = 0.1
)

// Config holds client settings.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Token is the bearer session token presented at handshake.
	Token string

	// BaseDelay is the first reconnect delay (default 1s).
	BaseDelay time.Duration

	// MaxDelay caps the reconnect delay (default 60s).
	MaxDelay time.Duration

	// MaxAttempts bounds consecutive failed dials before Run gives up
	// with ErrRetriesExhausted. Zero means retry forever.
	MaxAttempts int

	// BufferSize is the inbound message channel capacity (default 256).
	BufferSize int

	// WriteTimeout bounds each outbound write (default 5s).
	WriteTimeout time.Duration

	// HandshakeTimeout bounds each dial (default 10s).
	HandshakeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// Message is a decoded inbound envelope with its local arrival time.
type Message struct {
	Envelope   protocol.Envelope
	ReceivedAt time.Time
}

// Stats holds client counters.
type Stats struct {
	Connected  bool
	Reconnects int64
	Dropped    int64
}
