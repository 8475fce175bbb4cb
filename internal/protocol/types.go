package protocol

import (
	"errors"

	json "github.com/goccy/go-json"

	"github.com/shivam2014/trading-journal-stream/internal/model"
)

// Errors
var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// MessageType identifies the kind of payload an envelope carries.
type MessageType string

// Known message types.
const (
	TypeAuth             MessageType = "auth"
	TypeError            MessageType = "error"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
	TypeSubscribe        MessageType = "subscribe"
	TypeUnsubscribe      MessageType = "unsubscribe"
	TypeTradesUpdate     MessageType = "trades_update"
	TypeTradeUpdate      MessageType = "trade_update"
	TypeTradeSync        MessageType = "trade_sync"
	TypeTradeSyncConfirm MessageType = "trade_sync_confirm"
	TypeMarketData       MessageType = "market_data"
	TypePriceUpdate      MessageType = "price_update"
	TypePatternDetected  MessageType = "pattern_detected"
	TypeNotification     MessageType = "notification"
	TypeCurrencyUpdate   MessageType = "currency_update"
)

var knownTypes = map[MessageType]struct{}{
	TypeAuth:             {},
	TypeError:            {},
	TypePing:             {},
	TypePong:             {},
	TypeSubscribe:        {},
	TypeUnsubscribe:      {},
	TypeTradesUpdate:     {},
	TypeTradeUpdate:      {},
	TypeTradeSync:        {},
	TypeTradeSyncConfirm: {},
	TypeMarketData:       {},
	TypePriceUpdate:      {},
	TypePatternDetected:  {},
	TypeNotification:     {},
	TypeCurrencyUpdate:   {},
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the wire wrapper for every message. It is constructed at the
// moment an event crosses the wire and is immutable afterwards.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // ms since epoch
}

// -----------------------------------------------------------------------------
// Typed Payloads
// -----------------------------------------------------------------------------

// SubscribePayload asks the hub to add the connection to a channel.
type SubscribePayload struct {
	Channel string `json:"channel"`
}

// UnsubscribePayload asks the hub to drop the connection from a channel.
type UnsubscribePayload struct {
	Channel string `json:"channel"`
}

// TradeSyncPayload requests a trade mutation over the socket.
type TradeSyncPayload struct {
	TradeID string            `json:"tradeId"`
	Action  string            `json:"action"` // "update" or "delete"
	Data    *model.TradePatch `json:"data,omitempty"`
}

// Trade sync actions.
const (
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// TradeSyncConfirmPayload acknowledges a successful trade_sync to its origin.
type TradeSyncConfirmPayload struct {
	TradeID string `json:"tradeId"`
	Action  string `json:"action"`
}

// ErrorPayload carries a failure description to the originating connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TradesUpdatePayload is the snapshot pushed on subscribing to the caller's
// own trades channel.
type TradesUpdatePayload struct {
	Trades []model.Trade `json:"trades"`
}

// TradeUpdatePayload is broadcast to the owner's channel after a mutation.
type TradeUpdatePayload struct {
	Action string       `json:"action"`
	Trade  *model.Trade `json:"trade,omitempty"`
	ID     string       `json:"id,omitempty"` // set for deletes
}

// PatternAlertPayload is the coalesced pattern notification for one symbol.
type PatternAlertPayload struct {
	Symbol   string          `json:"symbol"`
	Patterns []model.Pattern `json:"patterns"`
}

// MarketDataPayload carries a burst of coalesced price updates for one symbol,
// oldest first.
type MarketDataPayload struct {
	Symbol  string              `json:"symbol"`
	Updates []model.PriceUpdate `json:"updates"`
}

// CurrencyUpdatePayload carries the latest exchange rates.
type CurrencyUpdatePayload struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// NotificationPayload is a free-form user-facing notice.
type NotificationPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level,omitempty"` // "info", "warning", "error"
}
