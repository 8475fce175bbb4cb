// Package protocol implements the wire envelope exchanged between the stream
// hub and its clients.
//
// Every frame is a JSON envelope:
//
//	{ "type": "<message type>", "payload": <json>, "timestamp": <epoch ms> }
//
// The type field is validated against the known enum on receipt. Unknown
// types and malformed JSON are classified (ErrUnknownType, ErrMalformed) so
// the dispatcher can log and drop without closing the connection.
package protocol
