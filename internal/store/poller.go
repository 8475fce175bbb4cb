package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shivam2014/trading-journal-stream/internal/model"
)

// PublishFunc delivers one changed trade to its owner's channel.
type PublishFunc func(trade model.Trade)

// PollerConfig holds change-detection settings.
type PollerConfig struct {
	Interval time.Duration // poll cadence (default 60s)
	Lookback time.Duration // updated-within horizon (default 5m)
}

// DefaultPollerConfig returns the observed production settings.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 60 * time.Second,
		Lookback: 5 * time.Minute,
	}
}

// ChangePoller detects trades mutated outside the socket path (the web app
// writes through its own API) by polling recently updated rows.
//
// This is a deliberate compromise standing in for change-data-capture from
// the persistence layer. Its contract: every trade updated within the
// lookback horizon is re-broadcast each pass, and duplicate broadcasts are
// not suppressed.
type ChangePoller struct {
	cfg     PollerConfig
	store   TradeStore
	publish PublishFunc
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statMu     sync.Mutex
	polls      int64
	published  int64
	lastErrMsg string
}

// PollerStats reports poller progress.
type PollerStats struct {
	Polls     int64
	Published int64
	LastError string
}

// NewChangePoller creates a ChangePoller.
func NewChangePoller(cfg PollerConfig, store TradeStore, publish PublishFunc, logger *slog.Logger) *ChangePoller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = DefaultPollerConfig().Lookback
	}
	return &ChangePoller{
		cfg:     cfg,
		store:   store,
		publish: publish,
		logger:  logger.With(slog.String("component", "change_poller")),
	}
}

// Start begins the polling loop.
func (p *ChangePoller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	}()

	p.logger.Info("change poller started",
		"interval", p.cfg.Interval,
		"lookback", p.cfg.Lookback,
	)
}

// Stop shuts the poller down.
func (p *ChangePoller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("change poller stopped")
}

// Poll runs one pass: fetch trades updated within the lookback horizon and
// publish each one.
func (p *ChangePoller) Poll(ctx context.Context) {
	since := time.Now().Add(-p.cfg.Lookback)
	trades, err := p.store.FindRecentlyUpdated(ctx, since)

	p.statMu.Lock()
	p.polls++
	if err != nil {
		p.lastErrMsg = err.Error()
	}
	p.statMu.Unlock()

	if err != nil {
		p.logger.Warn("change poll failed", "error", err)
		return
	}

	for _, trade := range trades {
		p.publish(trade)
	}

	p.statMu.Lock()
	p.published += int64(len(trades))
	p.statMu.Unlock()

	if len(trades) > 0 {
		p.logger.Debug("change poll published", "count", len(trades))
	}
}

// Stats returns current counters.
func (p *ChangePoller) Stats() PollerStats {
	p.statMu.Lock()
	defer p.statMu.Unlock()
	return PollerStats{
		Polls:     p.polls,
		Published: p.published,
		LastError: p.lastErrMsg,
	}
}
