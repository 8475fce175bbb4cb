// Package registry tracks live WebSocket connections for the stream hub.
//
// Each connection carries an authenticated identity (immutable after the
// upgrade), a liveness flag driven by ping/pong, and its subscribed channel
// set. The registry owns the liveness sweep: every interval a connection
// that failed to pong since the previous sweep is forcibly terminated, and
// every surviving connection is pinged again.
//
// Removal is idempotent and clears the connection's subscriptions, so stale
// channel membership never leaks into later broadcasts.
package registry
