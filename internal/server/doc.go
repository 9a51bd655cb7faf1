// Package server implements the HTTP and WebSocket transport for GoChat.
//
// The Hub owns the live connections and runs the only loop that applies
// client events to the chat engine in internal/chat. The remaining files
// cover configuration, per-connection clients, routing, HTTP handlers and
// metrics.
package server
