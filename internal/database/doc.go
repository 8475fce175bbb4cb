// Package database provides connection pool management for the journal's
// PostgreSQL database.
//
// The stream hub is a read-mostly consumer: it looks up users for
// authentication, reads and mutates trades on behalf of trade_sync requests,
// and polls for recently updated rows. A single pgx pool serves all of it.
package database
