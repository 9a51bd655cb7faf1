// Package testhelpers provides common utilities for testing the GoChat server
// end to end: a running server, WebSocket dialing and event assertions.
package testhelpers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/server"
)

// DefaultTimeout bounds every wait for an expected event.
const DefaultTimeout = 2 * time.Second

// TestServer is a running GoChat server backed by httptest.
type TestServer struct {
	*httptest.Server
	Hub    *server.Hub
	Config server.Config
}

// WSURL returns the WebSocket endpoint URL.
func (s *TestServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// Options customizes StartServer.
type Options struct {
	Customize func(cfg *server.Config)
	Verifier  auth.Verifier
}

// Origin is allowed by the default configuration.
const Origin = "http://localhost:8080"

// StartServer runs a hub and its routes behind an httptest server. Everything
// is torn down when the test ends.
func StartServer(t *testing.T, opts Options) *TestServer {
	t.Helper()

	log := Logger()
	cfg := server.NewConfig()
	if opts.Customize != nil {
		opts.Customize(cfg)
	}

	hub := server.NewHub(*cfg, opts.Verifier, log, server.NewMetrics())
	go hub.Run()
	ts := httptest.NewServer(server.SetupRoutes(hub, log))

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(DefaultTimeout)
	})

	return &TestServer{Server: ts, Hub: hub, Config: *cfg}
}

// Logger returns the logger used by test servers.
func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelWarn)
}

// Dial opens a WebSocket to the server presenting origin.
func Dial(s *TestServer, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(s.WSURL(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Connect dials with an allowed origin and fails the test on error.
func Connect(t *testing.T, s *TestServer) *websocket.Conn {
	t.Helper()
	conn, _, err := Dial(s, Origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Event is a decoded outbound frame.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Payload, v), "payload of %s", e.Type)
}

// Send writes one event frame.
func Send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(server.Envelope{Type: eventType, Payload: raw}))
}

// Read returns the next event frame.
func Read(conn *websocket.Conn, timeout time.Duration) (Event, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Event{}, err
	}
	var ev Event
	_, data, err := conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	err = json.Unmarshal(data, &ev)
	return ev, err
}

// Expect reads frames until one of eventType arrives, skipping others.
func Expect(t *testing.T, conn *websocket.Conn, eventType string) Event {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for {
		remaining := time.Until(deadline)
		require.Positive(t, remaining, "timed out waiting for %s", eventType)
		ev, err := Read(conn, remaining)
		require.NoError(t, err, "waiting for %s", eventType)
		if ev.Type == eventType {
			return ev
		}
	}
}

// ExpectNone asserts that no frame of eventType arrives within timeout. A
// timed out read leaves the connection unusable, so this must be the last
// read on conn.
func ExpectNone(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		ev, err := Read(conn, remaining)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		require.NoError(t, err)
		require.NotEqual(t, eventType, ev.Type, "unexpected %s: %s", ev.Type, ev.Payload)
	}
}

// Join sends user_join and waits for the joiner's history window, which is
// the last event of the join sequence.
func Join(t *testing.T, conn *websocket.Conn, userID, username string) {
	t.Helper()
	Send(t, conn, server.EventUserJoin, map[string]string{"userId": userID, "username": username})
	Expect(t, conn, "message_history")
}

// MakeRequest executes an HTTP request with a 5 second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// DecodeJSON decodes a response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
