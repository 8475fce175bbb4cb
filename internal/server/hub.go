package server

import (
	"log/slog"
	"sync/atomic"

	"github.com/shivam2014/trading-journal-stream/internal/batch"
	"github.com/shivam2014/trading-journal-stream/internal/broadcast"
	"github.com/shivam2014/trading-journal-stream/internal/config"
	"github.com/shivam2014/trading-journal-stream/internal/model"
	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

// Hub is the outbound publishing surface. Producers hand it domain events;
// it batches the chatty ones and broadcasts envelopes to the right channels.
type Hub struct {
	logger *slog.Logger
	bc     *broadcast.Broadcaster

	patterns *batch.Coalescer[model.Pattern]
	prices   *batch.Coalescer[model.PriceUpdate]

	published atomic.Int64
}

// HubStats holds hub counters.
type HubStats struct {
	Published int64
	Patterns  batch.Stats
	Prices    batch.Stats
}

// NewHub creates a hub publishing through bc, with batching windows from cfg.
func NewHub(bc *broadcast.Broadcaster, cfg config.BatchConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger: logger.With(slog.String("component", "hub")),
		bc:     bc,
	}
	h.patterns = batch.NewCoalescer(cfg.PatternWindow, h.flushPatterns, logger)
	h.prices = batch.NewCoalescer(cfg.PriceWindow, h.flushPrices, logger)
	return h
}

// PublishPrice buffers a price tick for its symbol. Ticks inside the window
// flush together as one envelope.
func (h *Hub) PublishPrice(u model.PriceUpdate) {
	h.prices.Add(u.Symbol, u)
}

// PublishPatterns buffers detected patterns for their symbol. Detections
// inside the window flush as one combined, deduplicated alert.
func (h *Hub) PublishPatterns(det model.PatternDetection) {
	for _, p := range det.Patterns {
		h.patterns.Add(det.Symbol, p)
	}
}

// PublishCurrencyRates broadcasts the latest exchange rates to every
// connection subscribed to the shared currency channel.
func (h *Hub) PublishCurrencyRates(base string, rates map[string]float64) {
	env, err := protocol.NewEnvelope(protocol.TypeCurrencyUpdate, protocol.CurrencyUpdatePayload{
		Base:  base,
		Rates: rates,
	})
	if err != nil {
		h.logger.Error("encoding currency update failed", "error", err)
		return
	}
	n := h.bc.BroadcastToChannel(broadcast.CurrencyRatesChannel, env, broadcast.Options{})
	h.published.Add(1)
	h.logger.Debug("currency rates published", "base", base, "delivered", n)
}

// PublishTradeChange broadcasts a trade mutation to the owning user's
// channel. Used by out-of-band change detection; socket-originated mutations
// go through the dispatcher instead.
func (h *Hub) PublishTradeChange(action string, trade model.Trade) {
	env, err := protocol.NewEnvelope(protocol.TypeTradeUpdate, protocol.TradeUpdatePayload{
		Action: action,
		Trade:  &trade,
	})
	if err != nil {
		h.logger.Error("encoding trade update failed", "error", err)
		return
	}
	h.bc.BroadcastToChannel(broadcast.UserTradesChannel(trade.UserID), env, broadcast.Options{})
	h.published.Add(1)
}

// PublishNotification sends a notice to every connection the user holds.
func (h *Hub) PublishNotification(userID string, n protocol.NotificationPayload) {
	env, err := protocol.NewEnvelope(protocol.TypeNotification, n)
	if err != nil {
		h.logger.Error("encoding notification failed", "error", err)
		return
	}
	h.bc.BroadcastToChannel(broadcast.UserTradesChannel(userID), env, broadcast.Options{})
	h.published.Add(1)
}

// flushPatterns is the pattern coalescer's flush callback. dest is the symbol.
func (h *Hub) flushPatterns(symbol string, items []model.Pattern) {
	patterns := batch.DedupPatterns(nil, items)
	env, err := protocol.NewEnvelope(protocol.TypePatternDetected, protocol.PatternAlertPayload{
		Symbol:   symbol,
		Patterns: patterns,
	})
	if err != nil {
		h.logger.Error("encoding pattern alert failed", "error", err)
		return
	}
	n := h.bc.BroadcastToChannel(broadcast.PatternChannel(symbol), env, broadcast.Options{})
	h.published.Add(1)
	h.logger.Debug("pattern alert published",
		"symbol", symbol,
		"patterns", len(patterns),
		"delivered", n,
	)
}

// flushPrices is the price coalescer's flush callback. A lone tick goes out
// as a plain price_update; a burst goes out as one market_data batch. Either
// way the envelope reaches both the dedicated price channel and the general
// symbol channel.
func (h *Hub) flushPrices(symbol string, items []model.PriceUpdate) {
	var (
		env protocol.Envelope
		err error
	)
	if len(items) == 1 {
		env, err = protocol.NewEnvelope(protocol.TypePriceUpdate, items[0])
	} else {
		env, err = protocol.NewEnvelope(protocol.TypeMarketData, protocol.MarketDataPayload{
			Symbol:  symbol,
			Updates: items,
		})
	}
	if err != nil {
		h.logger.Error("encoding price update failed", "error", err)
		return
	}
	h.bc.BroadcastToChannel(broadcast.PriceChannel(symbol), env, broadcast.Options{})
	h.bc.BroadcastToChannel(broadcast.SymbolChannel(symbol), env, broadcast.Options{})
	h.published.Add(1)
}

// Flush forces out all buffered batches immediately.
func (h *Hub) Flush() {
	h.patterns.Flush()
	h.prices.Flush()
}

// Stop flushes pending batches and stops accepting new ones.
func (h *Hub) Stop() {
	h.patterns.Stop()
	h.prices.Stop()
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published: h.published.Load(),
		Patterns:  h.patterns.Stats(),
		Prices:    h.prices.Stats(),
	}
}
