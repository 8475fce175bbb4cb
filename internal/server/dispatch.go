package server

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/shivam2014/trading-journal-stream/internal/broadcast"
	"github.com/shivam2014/trading-journal-stream/internal/protocol"
	"github.com/shivam2014/trading-journal-stream/internal/registry"
	"github.com/shivam2014/trading-journal-stream/internal/store"
)

// Dispatcher routes inbound client envelopes. One instance serves every
// connection; all state lives on the connection or in the store.
type Dispatcher struct {
	ctx    context.Context
	logger *slog.Logger
	trades store.TradeStore
	bc     *broadcast.Broadcaster

	snapshotLimit int

	handled atomic.Int64
	dropped atomic.Int64
}

// DispatcherStats holds dispatcher counters.
type DispatcherStats struct {
	Handled int64
	Dropped int64
}

// NewDispatcher creates a dispatcher. ctx bounds the store calls made on
// behalf of inbound messages and should cover the server's lifetime.
func NewDispatcher(ctx context.Context, trades store.TradeStore, bc *broadcast.Broadcaster, snapshotLimit int, logger *slog.Logger) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		ctx:           ctx,
		logger:        logger.With(slog.String("component", "dispatcher")),
		trades:        trades,
		bc:            bc,
		snapshotLimit: snapshotLimit,
	}
}

// Handle processes one inbound frame from c. Malformed and unknown frames
// are logged and dropped; the connection stays open.
func (d *Dispatcher) Handle(c *registry.Conn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		d.dropped.Add(1)
		switch {
		case errors.Is(err, protocol.ErrUnknownType):
			d.logger.Warn("dropping frame with unknown type",
				"conn_id", c.ID(),
				"user_id", c.UserID(),
			)
		default:
			d.logger.Debug("dropping malformed frame",
				"conn_id", c.ID(),
				"error", err,
			)
		}
		return
	}

	d.handled.Add(1)

	switch env.Type {
	case protocol.TypeSubscribe:
		d.handleSubscribe(c, env)
	case protocol.TypeUnsubscribe:
		d.handleUnsubscribe(c, env)
	case protocol.TypePing:
		d.send(c, protocol.TypePong, nil)
	case protocol.TypeTradeSync:
		d.handleTradeSync(c, env)
	default:
		// Valid type a client has no business sending (server-to-client
		// traffic echoed back, auth frames after the handshake, ...).
		d.logger.Debug("ignoring inbound frame",
			"type", env.Type,
			"conn_id", c.ID(),
		)
	}
}

func (d *Dispatcher) handleSubscribe(c *registry.Conn, env protocol.Envelope) {
	var p protocol.SubscribePayload
	if err := protocol.DecodePayload(env, &p); err != nil || p.Channel == "" {
		d.sendError(c, "subscribe requires a channel")
		return
	}

	if !c.Subscribe(p.Channel) {
		// Already subscribed; nothing to replay.
		return
	}
	d.logger.Debug("subscribed", "conn_id", c.ID(), "channel", p.Channel)

	// Subscribing to your own trades channel gets you the current journal
	// state up front, before any live updates arrive on the channel.
	if p.Channel == broadcast.UserTradesChannel(c.UserID()) {
		d.pushSnapshot(c)
	}
}

func (d *Dispatcher) handleUnsubscribe(c *registry.Conn, env protocol.Envelope) {
	var p protocol.UnsubscribePayload
	if err := protocol.DecodePayload(env, &p); err != nil || p.Channel == "" {
		d.sendError(c, "unsubscribe requires a channel")
		return
	}
	c.Unsubscribe(p.Channel)
	d.logger.Debug("unsubscribed", "conn_id", c.ID(), "channel", p.Channel)
}

// pushSnapshot sends the user's recent trades directly to c.
func (d *Dispatcher) pushSnapshot(c *registry.Conn) {
	trades, err := d.trades.FindRecentTrades(d.ctx, c.UserID(), d.snapshotLimit)
	if err != nil {
		d.logger.Error("loading trade snapshot failed",
			"user_id", c.UserID(),
			"error", err,
		)
		d.sendError(c, "could not load trade snapshot")
		return
	}
	d.send(c, protocol.TypeTradesUpdate, protocol.TradesUpdatePayload{Trades: trades})
}

func (d *Dispatcher) handleTradeSync(c *registry.Conn, env protocol.Envelope) {
	var p protocol.TradeSyncPayload
	if err := protocol.DecodePayload(env, &p); err != nil || p.TradeID == "" {
		d.sendError(c, "trade_sync requires a trade id")
		return
	}
	if p.Action != protocol.ActionUpdate && p.Action != protocol.ActionDelete {
		d.sendError(c, "trade_sync action must be update or delete")
		return
	}

	// Ownership gate. A trade that does not exist and a trade owned by
	// someone else fail identically, and neither produces a broadcast.
	if _, err := d.trades.FindTradeByID(d.ctx, p.TradeID, c.UserID()); err != nil {
		if errors.Is(err, store.ErrTradeNotFound) {
			d.sendError(c, "trade not found")
			return
		}
		d.logger.Error("trade lookup failed", "trade_id", p.TradeID, "error", err)
		d.sendError(c, "trade sync failed")
		return
	}

	var update protocol.TradeUpdatePayload
	switch p.Action {
	case protocol.ActionUpdate:
		trade, err := d.trades.UpdateTrade(d.ctx, p.TradeID, p.Data)
		if err != nil {
			d.logger.Error("trade update failed", "trade_id", p.TradeID, "error", err)
			d.sendError(c, "trade sync failed")
			return
		}
		update = protocol.TradeUpdatePayload{Action: protocol.ActionUpdate, Trade: trade}
	case protocol.ActionDelete:
		if _, err := d.trades.DeleteTrade(d.ctx, p.TradeID); err != nil {
			d.logger.Error("trade delete failed", "trade_id", p.TradeID, "error", err)
			d.sendError(c, "trade sync failed")
			return
		}
		update = protocol.TradeUpdatePayload{Action: protocol.ActionDelete, ID: p.TradeID}
	}

	out, err := protocol.NewEnvelope(protocol.TypeTradeUpdate, update)
	if err != nil {
		d.logger.Error("encoding trade update failed", "error", err)
		return
	}
	d.bc.BroadcastToChannel(broadcast.UserTradesChannel(c.UserID()), out, broadcast.Options{})
	d.send(c, protocol.TypeTradeSyncConfirm, protocol.TradeSyncConfirmPayload{
		TradeID: p.TradeID,
		Action:  p.Action,
	})
}

// send delivers a typed envelope directly to c, logging delivery failures.
func (d *Dispatcher) send(c *registry.Conn, t protocol.MessageType, payload any) {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		d.logger.Error("encoding envelope failed", "type", t, "error", err)
		return
	}
	if err := c.SendEnvelope(env); err != nil {
		d.logger.Warn("direct send failed",
			"type", t,
			"conn_id", c.ID(),
			"error", err,
		)
	}
}

func (d *Dispatcher) sendError(c *registry.Conn, msg string) {
	d.send(c, protocol.TypeError, protocol.ErrorPayload{Message: msg})
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Handled: d.handled.Load(),
		Dropped: d.dropped.Load(),
	}
}
