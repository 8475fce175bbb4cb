package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shivam2014/trading-journal-stream/internal/auth"
	"github.com/shivam2014/trading-journal-stream/internal/model"
)

const tradeColumns = `id, user_id, symbol, side, quantity, entry_price,
	COALESCE(exit_price, 0), COALESCE(pnl, 0), COALESCE(currency, ''),
	COALESCE(notes, ''), COALESCE(group_id, ''), opened_at, closed_at, updated_at`

// PGUserStore resolves users from the journal database.
type PGUserStore struct {
	db *pgxpool.Pool
}

// NewPGUserStore creates a PGUserStore.
func NewPGUserStore(db *pgxpool.Pool) *PGUserStore {
	return &PGUserStore{db: db}
}

var _ auth.IdentityStore = (*PGUserStore)(nil)

// FindUserByID returns the user or auth.ErrUserNotFound.
func (s *PGUserStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, email, COALESCE(name, ''), created_at FROM users WHERE id = $1`, id)

	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &u, nil
}

// PGTradeStore implements TradeStore against the journal database.
type PGTradeStore struct {
	db *pgxpool.Pool
}

// NewPGTradeStore creates a PGTradeStore.
func NewPGTradeStore(db *pgxpool.Pool) *PGTradeStore {
	return &PGTradeStore{db: db}
}

var _ TradeStore = (*PGTradeStore)(nil)

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	err := row.Scan(
		&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice,
		&t.ExitPrice, &t.PnL, &t.Currency, &t.Notes, &t.GroupID,
		&t.OpenedAt, &t.ClosedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTradeByID returns the trade only when ownerID matches.
func (s *PGTradeStore) FindTradeByID(ctx context.Context, id, ownerID string) (*model.Trade, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1 AND user_id = $2`, id, ownerID)

	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("find trade %s: %w", id, err)
	}
	return trade, nil
}

// UpdateTrade applies non-nil patch fields and returns the updated row.
func (s *PGTradeStore) UpdateTrade(ctx context.Context, id string, patch *model.TradePatch) (*model.Trade, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch != nil {
		if patch.Symbol != nil {
			add("symbol", *patch.Symbol)
		}
		if patch.Side != nil {
			add("side", *patch.Side)
		}
		if patch.Quantity != nil {
			add("quantity", *patch.Quantity)
		}
		if patch.EntryPrice != nil {
			add("entry_price", *patch.EntryPrice)
		}
		if patch.ExitPrice != nil {
			add("exit_price", *patch.ExitPrice)
		}
		if patch.PnL != nil {
			add("pnl", *patch.PnL)
		}
		if patch.Notes != nil {
			add("notes", *patch.Notes)
		}
		if patch.GroupID != nil {
			add("group_id", *patch.GroupID)
		}
	}

	query := `UPDATE trades SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + tradeColumns
	trade, err := scanTrade(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("update trade %s: %w", id, err)
	}
	return trade, nil
}

// DeleteTrade removes the trade and returns its last state.
func (s *PGTradeStore) DeleteTrade(ctx context.Context, id string) (*model.Trade, error) {
	row := s.db.QueryRow(ctx,
		`DELETE FROM trades WHERE id = $1 RETURNING `+tradeColumns, id)

	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("delete trade %s: %w", id, err)
	}
	return trade, nil
}

// FindRecentTrades returns the user's most recently opened trades.
func (s *PGTradeStore) FindRecentTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE user_id = $1
		 ORDER BY opened_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades for %s: %w", userID, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindRecentlyUpdated returns trades updated at or after since, oldest first
// so broadcast order follows update order.
func (s *PGTradeStore) FindRecentlyUpdated(ctx context.Context, since time.Time) ([]model.Trade, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE updated_at >= $1
		 ORDER BY updated_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("recently updated trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
