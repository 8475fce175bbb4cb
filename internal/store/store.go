package store

import (
	"context"
	"errors"
	"time"

	"github.com/shivam2014/trading-journal-stream/internal/model"
)

// Errors
var (
	// ErrTradeNotFound covers both absent trades and trades owned by a
	// different user; callers cannot distinguish the two.
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeStore provides the trade operations the stream layer needs.
type TradeStore interface {
	// FindTradeByID returns the trade only when it exists and belongs to
	// ownerID; otherwise ErrTradeNotFound.
	FindTradeByID(ctx context.Context, id, ownerID string) (*model.Trade, error)

	// UpdateTrade applies a partial update and returns the updated row.
	UpdateTrade(ctx context.Context, id string, patch *model.TradePatch) (*model.Trade, error)

	// DeleteTrade removes the trade and returns its last state.
	DeleteTrade(ctx context.Context, id string) (*model.Trade, error)

	// FindRecentTrades returns the user's most recently opened trades,
	// newest first.
	FindRecentTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error)

	// FindRecentlyUpdated returns every trade updated at or after since,
	// across all users.
	FindRecentlyUpdated(ctx context.Context, since time.Time) ([]model.Trade, error)
}
