// Package client implements a reconnecting WebSocket client for the stream
// endpoint.
//
// The client owns the connection lifecycle: it dials with the session token,
// re-dials with exponential backoff when the connection drops, and replays
// its channel subscriptions after every reconnect. The local subscription
// set is the source of truth; Subscribe and Unsubscribe work whether or not
// a connection is currently up.
package client
