// Package server hosts the WebSocket endpoint and the message plumbing
// behind it.
//
// Components:
//   - Server: HTTP listener, JWT gate on the upgrade path, connection
//     lifecycle (accept, register, pump, deregister)
//   - Dispatcher: routes inbound client envelopes (subscribe, unsubscribe,
//     ping, trade_sync)
//   - Hub: the outbound publishing API used by producers (price feed,
//     pattern detector, currency refresher, change poller)
//
// Authentication happens once, before the protocol upgrade. A request that
// fails the JWT check is answered with a plain HTTP 401 and never reaches
// the WebSocket handshake.
package server
