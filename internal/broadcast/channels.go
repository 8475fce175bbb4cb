package broadcast

// Channel naming conventions. Any string is a valid channel; these helpers
// cover the ones the hub itself publishes to.

// CurrencyRatesChannel carries exchange-rate updates.
const CurrencyRatesChannel = "currency-rates"

// UserTradesChannel is the per-user channel for trade snapshots and updates.
func UserTradesChannel(userID string) string {
	return "trades:" + userID
}

// SymbolChannel carries general market data for one ticker.
func SymbolChannel(symbol string) string {
	return "symbol:" + symbol
}

// PriceChannel carries live quotes for one symbol.
func PriceChannel(symbol string) string {
	return "price-updates-" + symbol
}

// PatternChannel carries coalesced pattern detections for one symbol.
func PatternChannel(symbol string) string {
	return "pattern-updates-" + symbol
}
