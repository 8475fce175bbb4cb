package broadcast

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/shivam2014/trading-journal-stream/internal/protocol"
	"github.com/shivam2014/trading-journal-stream/internal/registry"
)

// Options narrow the recipient set of one broadcast call.
type Options struct {
	// Exclude skips a single connection, typically the originator.
	Exclude *registry.Conn

	// Filter must return true for a connection to receive the message.
	// Nil means no filtering.
	Filter func(*registry.Conn) bool
}

// Stats holds fan-out counters.
type Stats struct {
	Broadcasts int64
	Delivered  int64
	Skipped    int64
	SendErrors int64
}

// Broadcaster pushes envelopes to subscribed, open connections.
type Broadcaster struct {
	reg    *registry.Registry
	logger *slog.Logger

	broadcasts atomic.Int64
	delivered  atomic.Int64
	skipped    atomic.Int64
	sendErrors atomic.Int64
}

// New creates a Broadcaster over a registry.
func New(reg *registry.Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		reg:    reg,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

// Broadcast sends env to every open connection passing opts. The envelope is
// encoded once; individual send failures are logged and do not abort the
// remaining fan-out. Returns the number of deliveries enqueued.
func (b *Broadcaster) Broadcast(env protocol.Envelope, opts Options) int {
	data, err := protocol.Encode(env)
	if err != nil {
		b.logger.Error("broadcast encode failed", "type", env.Type, "error", err)
		return 0
	}

	b.broadcasts.Add(1)
	var delivered int

	b.reg.ForEach(func(c *registry.Conn) {
		if c == opts.Exclude {
			b.skipped.Add(1)
			return
		}
		if c.State() != registry.StateOpen {
			b.skipped.Add(1)
			return
		}
		if opts.Filter != nil && !opts.Filter(c) {
			b.skipped.Add(1)
			return
		}

		if err := c.Send(data); err != nil {
			// Natural churn (closing/closed) is expected; a full buffer
			// means the peer is not draining.
			if !errors.Is(err, registry.ErrNotOpen) {
				b.logger.Warn("broadcast send failed",
					"conn_id", c.ID().String(),
					"type", env.Type,
					"error", err,
				)
			}
			b.sendErrors.Add(1)
			return
		}
		delivered++
	})

	b.delivered.Add(int64(delivered))
	return delivered
}

// BroadcastToChannel is Broadcast restricted to subscribers of channel.
func (b *Broadcaster) BroadcastToChannel(channel string, env protocol.Envelope, opts Options) int {
	inner := opts.Filter
	opts.Filter = func(c *registry.Conn) bool {
		if !c.Subscribed(channel) {
			return false
		}
		return inner == nil || inner(c)
	}
	return b.Broadcast(env, opts)
}

// Stats returns current counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Broadcasts: b.broadcasts.Load(),
		Delivered:  b.delivered.Load(),
		Skipped:    b.skipped.Load(),
		SendErrors: b.sendErrors.Load(),
	}
}
