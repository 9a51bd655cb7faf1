// Package server defines the wire envelope exchanged with clients and utility
// helpers shared by client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Inbound event types accepted from clients.
const (
	EventUserJoin           = "user_join"
	EventSendMessage        = "send_message"
	EventSendPrivateMessage = "send_private_message"
	EventMarkRead           = "mark_read"
	EventTypingStart        = "typing_start"
	EventTypingStop         = "typing_stop"
	EventJoinRoom           = "join_room"
	EventLoadPrivateHistory = "load_private_history"
)

// Envelope is the JSON frame format in both directions:
// {"type": "...", "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// inboundEvent is a decoded frame waiting for the hub's dispatch loop. A
// client's departure travels the same queue, marked by disconnect, so it is
// handled only after every frame read before it.
type inboundEvent struct {
	client     *Client
	disconnect bool
	Envelope
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
