// Package broadcast implements channel-routed fan-out over the connection
// registry.
//
// Channels are plain strings; membership lives on each connection's
// subscription set, so routing is a single pass over the registry with a
// predicate. Fan-out is synchronous best-effort: a recipient whose send
// fails is logged and skipped, never retried, and never aborts delivery to
// the rest of the set.
package broadcast
