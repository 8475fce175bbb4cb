// Package batch buffers rapid-fire events and flushes them as one combined
// message per destination.
//
// The window is fixed, not sliding: it is armed by the first buffered event
// after a flush, and later arrivals within the window never postpone it.
// Destinations are independent; events for one channel never merge into
// another's batch.
//
// The package also implements the pattern-list dedup policy used on the
// client side: duplicates share a (patternType, timestamp) key, and when
// duplicates differ only in confidence the highest-confidence instance wins.
package batch
