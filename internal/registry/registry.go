package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds registry settings.
type Config struct {
	PingInterval time.Duration // liveness sweep interval (default 30s)
}

// Stats is a point-in-time snapshot of registry state.
type Stats struct {
	Connections    int
	Subscriptions  int
	SweepsRun      int64
	SweepsReaped   int64
	PingsDelivered int64
}

// Registry tracks all live connections and runs the liveness sweep.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statMu sync.Mutex
	stats  Stats
}

// New creates a Registry.
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Registry{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "registry")),
		conns:  make(map[uuid.UUID]*Conn),
	}
}

// Add begins tracking a connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	r.logger.Debug("connection registered", "conn_id", c.ID().String(), "total", len(r.conns))
}

// Remove stops tracking a connection and clears its subscriptions.
// Idempotent: removing an unknown connection is a no-op.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	_, tracked := r.conns[c.ID()]
	delete(r.conns, c.ID())
	remaining := len(r.conns)
	r.mu.Unlock()

	c.ClearSubscriptions()
	if tracked {
		r.logger.Debug("connection deregistered", "conn_id", c.ID().String(), "total", remaining)
	}
}

// Get looks up a connection by id.
func (r *Registry) Get(id uuid.UUID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ForEach calls fn for every tracked connection. fn runs outside the
// registry lock so it may send, subscribe, or terminate.
func (r *Registry) ForEach(fn func(*Conn)) {
	r.mu.RLock()
	snapshot := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// Start launches the liveness sweep. The sweep is owned by the registry and
// stops with it.
func (r *Registry) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()

	r.logger.Info("liveness sweep started", "interval", r.cfg.PingInterval)
}

// Stop cancels the sweep and closes every tracked connection.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	r.ForEach(func(c *Conn) {
		c.Close()
	})
	r.logger.Info("registry stopped")
}

// Sweep runs one liveness pass: terminate connections that never ponged
// since the previous pass, then ping the survivors.
func (r *Registry) Sweep() {
	var reaped, pinged int64

	r.ForEach(func(c *Conn) {
		if !c.Alive() {
			r.logger.Info("terminating unresponsive connection",
				"conn_id", c.ID().String(),
				"user_id", c.UserID(),
			)
			c.Terminate()
			reaped++
			return
		}
		c.MarkSwept()
		if err := c.Ping(); err != nil {
			r.logger.Debug("ping failed", "conn_id", c.ID().String(), "error", err)
			return
		}
		pinged++
	})

	r.statMu.Lock()
	r.stats.SweepsRun++
	r.stats.SweepsReaped += reaped
	r.stats.PingsDelivered += pinged
	r.statMu.Unlock()
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	r.statMu.Lock()
	s := r.stats
	r.statMu.Unlock()

	r.mu.RLock()
	s.Connections = len(r.conns)
	for _, c := range r.conns {
		s.Subscriptions += len(c.Subscriptions())
	}
	r.mu.RUnlock()
	return s
}
