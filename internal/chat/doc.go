// Package chat implements the real-time session and message-routing engine
// behind the GoChat server.
//
// A Core owns every piece of shared state: the connection registry, room
// membership, bounded room history, the private chat index, typing flags and
// read receipts. Each exported Core operation runs as one critical section,
// including the fanout it produces, so observers never see a half-applied
// transaction. Delivery goes through a Deliverer supplied by the transport,
// which must never block.
package chat
