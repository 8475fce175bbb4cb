package client

import (
	"sync"

	"github.com/shivam2014/trading-journal-stream/internal/batch"
	"github.com/shivam2014/trading-journal-stream/internal/model"
	"github.com/shivam2014/trading-journal-stream/internal/protocol"
)

// PatternAggregate merges pattern alerts per symbol across envelopes.
// Servers coalesce per window; a consumer that stays subscribed across
// windows still wants one deduplicated view per symbol.
type PatternAggregate struct {
	mu       sync.Mutex
	bySymbol map[string][]model.Pattern
}

// NewPatternAggregate creates an empty aggregate.
func NewPatternAggregate() *PatternAggregate {
	return &PatternAggregate{bySymbol: make(map[string][]model.Pattern)}
}

// Apply merges one alert into the aggregate and returns the symbol's merged
// set. A repeated detection (same type and timestamp) keeps the highest
// confidence seen.
func (a *PatternAggregate) Apply(alert protocol.PatternAlertPayload) []model.Pattern {
	a.mu.Lock()
	defer a.mu.Unlock()
	merged := batch.DedupPatterns(a.bySymbol[alert.Symbol], alert.Patterns)
	a.bySymbol[alert.Symbol] = merged
	return append([]model.Pattern(nil), merged...)
}

// Patterns returns the merged set for symbol.
func (a *PatternAggregate) Patterns(symbol string) []model.Pattern {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Pattern(nil), a.bySymbol[symbol]...)
}

// Reset drops the state held for symbol.
func (a *PatternAggregate) Reset(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bySymbol, symbol)
}
