// Package model defines shared domain types for the trading-journal stream hub.
//
// Conventions:
//   - Monetary values: float64 in the account currency
//   - Timestamps: int64 milliseconds since Unix epoch (wire format),
//     time.Time for database columns
//   - IDs: string for users and trades (external identity), uuid.UUID for
//     connection-scoped identifiers
package model
