// Package store is the stream hub's view of the journal's persistence layer.
//
// The hub does not own the schema; it reads users for authentication, reads
// and mutates trades on behalf of trade_sync requests, and polls for rows
// updated by the web application so their owners' channels see them.
package store
