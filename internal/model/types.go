package model

import "time"

// -----------------------------------------------------------------------------
// Identity Types
// -----------------------------------------------------------------------------

// User is the authenticated owner of a connection and its trades.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// -----------------------------------------------------------------------------
// Journal Types
// -----------------------------------------------------------------------------

// Trade is a single journal entry. Only the fields the stream layer needs
// are modelled; the journal's full schema lives with the persistence layer.
type Trade struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"` // "buy" or "sell"
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entryPrice"`
	ExitPrice  float64    `json:"exitPrice,omitempty"`
	PnL        float64    `json:"pnl"`
	Currency   string     `json:"currency,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	GroupID    string     `json:"groupId,omitempty"`
	OpenedAt   time.Time  `json:"openedAt"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// TradePatch is a partial update applied by a trade_sync request.
// Nil fields are left unchanged; unknown wire keys are discarded during decode.
type TradePatch struct {
	Symbol     *string  `json:"symbol,omitempty"`
	Side       *string  `json:"side,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
	EntryPrice *float64 `json:"entryPrice,omitempty"`
	ExitPrice  *float64 `json:"exitPrice,omitempty"`
	PnL        *float64 `json:"pnl,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	GroupID    *string  `json:"groupId,omitempty"`
}

// -----------------------------------------------------------------------------
// Market Event Types
// -----------------------------------------------------------------------------

// PriceUpdate is a live quote emitted by the price feed.
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Timestamp     int64   `json:"timestamp"` // ms since epoch
}

// Pattern is a single chart-pattern detection for a symbol.
type Pattern struct {
	Name        string  `json:"name"`
	PatternType string  `json:"patternType"` // e.g. "bullish_engulfing"
	Confidence  float64 `json:"confidence"`  // 0.0 - 1.0
	StartIndex  int     `json:"startIndex"`
	EndIndex    int     `json:"endIndex"`
	Timestamp   int64   `json:"timestamp"` // detection time, ms since epoch
}

// PatternDetection groups the patterns detected for one symbol in one pass.
type PatternDetection struct {
	Symbol   string    `json:"symbol"`
	Patterns []Pattern `json:"patterns"`
}
