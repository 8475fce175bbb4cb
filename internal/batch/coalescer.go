package batch

import (
	"log/slog"
	"sync"
	"time"
)

// FlushFunc receives one destination's buffered items in arrival order.
type FlushFunc[T any] func(dest string, items []T)

// Stats holds coalescer counters.
type Stats struct {
	Buffered int64
	Flushes  int64
	Pending  int
}

// Coalescer accumulates same-destination items within a fixed window and
// emits them as one flush per destination.
type Coalescer[T any] struct {
	window time.Duration
	flush  FlushFunc[T]
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*bucket[T]
	stopped bool

	buffered int64
	flushes  int64
}

type bucket[T any] struct {
	items []T
	timer *time.Timer
}

// NewCoalescer creates a coalescer with the given window. flush is called
// from timer goroutines and must be safe for concurrent use.
func NewCoalescer[T any](window time.Duration, flush FlushFunc[T], logger *slog.Logger) *Coalescer[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer[T]{
		window:  window,
		flush:   flush,
		logger:  logger.With(slog.String("component", "coalescer")),
		pending: make(map[string]*bucket[T]),
	}
}

// Add buffers an item for dest. The first item since the last flush arms a
// fixed timer; the batch flushes when it fires regardless of later arrivals.
func (c *Coalescer[T]) Add(dest string, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.buffered++

	b, ok := c.pending[dest]
	if !ok {
		b = &bucket[T]{}
		b.timer = time.AfterFunc(c.window, func() { c.flushDest(dest) })
		c.pending[dest] = b
	}
	b.items = append(b.items, item)
}

func (c *Coalescer[T]) flushDest(dest string) {
	c.mu.Lock()
	b, ok := c.pending[dest]
	if !ok || len(b.items) == 0 {
		delete(c.pending, dest)
		c.mu.Unlock()
		return
	}
	items := b.items
	delete(c.pending, dest)
	c.flushes++
	c.mu.Unlock()

	c.flush(dest, items)
}

// Flush forces every pending destination out immediately.
func (c *Coalescer[T]) Flush() {
	c.mu.Lock()
	dests := make([]string, 0, len(c.pending))
	for dest, b := range c.pending {
		b.timer.Stop()
		dests = append(dests, dest)
	}
	c.mu.Unlock()

	for _, dest := range dests {
		c.flushDest(dest)
	}
}

// Stop flushes all pending batches and rejects further adds.
func (c *Coalescer[T]) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.Flush()
	c.logger.Debug("coalescer stopped")
}

// Stats returns current counters.
func (c *Coalescer[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Buffered: c.buffered,
		Flushes:  c.flushes,
		Pending:  len(c.pending),
	}
}
