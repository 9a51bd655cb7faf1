// Package server coordinates client registration, event dispatch, and
// connection cleanup for the GoChat WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/chat"
)

// Hub owns the live WebSocket clients and feeds their events to the chat
// engine. Run is the only goroutine that mutates chat state, so inbound
// events are applied one at a time in arrival order.
//
// Hub is also the engine's Deliverer: each outbound event is encoded once per
// fanout and the same frame is queued on every target's send channel without
// blocking.
type Hub struct {
	clients  map[chat.ConnID]*Client
	register chan *Client
	inbound  chan inboundEvent
	mutex    sync.RWMutex

	failedMu sync.Mutex
	failed   []*Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	core    *chat.Core
	cfg     Config
	log     *slog.Logger
	metrics *Metrics
}

// NewHub creates a Hub and the chat engine it drives. verifier may be nil.
func NewHub(cfg Config, verifier auth.Verifier, log *slog.Logger, metrics *Metrics) *Hub {
	cfg = sanitizeConfig(cfg)
	if metrics == nil {
		metrics = NewMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:  make(map[chat.ConnID]*Client),
		register: make(chan *Client),
		inbound:  make(chan inboundEvent, cfg.SendBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
	}
	h.core = chat.New(cfg.Chat, h, verifier, log)
	return h
}

// Core returns the chat engine driven by the hub.
func (h *Hub) Core() *chat.Core {
	return h.core
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Deliver implements chat.Deliverer. It never blocks: a client whose queue
// is full is marked failed and dropped after the current event is handled.
func (h *Hub) Deliver(conns []chat.ConnID, ev chat.Event) {
	payload, err := h.encode(ev)
	if err != nil {
		h.log.Error("Failed to encode outbound event", "type", ev.Type, "error", err)
		return
	}

	for _, conn := range conns {
		h.mutex.RLock()
		client, exists := h.clients[conn]
		h.mutex.RUnlock()
		if !exists {
			h.metrics.DroppedDeliveries.Inc()
			continue
		}

		if !h.safeSend(client, payload) {
			h.metrics.DroppedDeliveries.Inc()
			h.markFailed(client)
			continue
		}
		h.metrics.Deliveries.WithLabelValues(string(ev.Type)).Inc()
	}
}

// encode renders ev as a wire frame. The frame is shared by every target, so
// clients must treat what they read from send as immutable.
func (h *Hub) encode(ev chat.Event) ([]byte, error) {
	h.metrics.EncodedEvents.Inc()
	return json.Marshal(ev)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	// The read lock keeps the send channel open for the duration of the send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

func (h *Hub) markFailed(client *Client) {
	h.failedMu.Lock()
	h.failed = append(h.failed, client)
	h.failedMu.Unlock()
}

func (h *Hub) takeFailed() []*Client {
	h.failedMu.Lock()
	defer h.failedMu.Unlock()
	failed := h.failed
	h.failed = nil
	return failed
}

// Run starts the hub's main event loop, handling client registration,
// inbound events and disconnects. It should be called in a separate
// goroutine and returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case ev := <-h.inbound:
			if ev.disconnect {
				h.unregister(ev.client)
			} else {
				h.dispatch(ev)
			}
			h.removeFailedClients()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.Connections.Set(float64(clientCount))
	h.log.Info("Client registered", "conn", client.id, "addr", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// unregister drops a client whose read pump ended and fans out its departure.
func (h *Hub) unregister(client *Client) {
	if !h.detach(client) {
		return
	}
	h.core.Disconnect(client.id)
	h.log.Info("Client unregistered", "conn", client.id, "addr", client.addr, "clients", h.ClientCount())
}

// detach removes client from the live set and closes its send channel. It
// reports false when the client was already gone.
func (h *Hub) detach(client *Client) bool {
	h.mutex.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Closing after releasing the lock lets the write pump send a close frame.
	close(client.send)
	h.metrics.Connections.Set(float64(clientCount))
	return true
}

// removeFailedClients drops clients whose send buffer overflowed. Their
// departure is itself fanned out, which may fail further clients, so the
// loop runs until no failures remain.
func (h *Hub) removeFailedClients() {
	for failed := h.takeFailed(); len(failed) > 0; failed = h.takeFailed() {
		for _, client := range failed {
			if !h.detach(client) {
				continue
			}
			h.metrics.SlowClients.Inc()
			h.log.Warn("Client removed due to full send buffer", "conn", client.id, "addr", client.addr)
			h.core.Disconnect(client.id)
		}
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	// Closing the send queues ends the write pumps; closing the sockets ends
	// the read pumps. Chat state is discarded, so no departures are fanned out.
	for _, client := range clients {
		h.detach(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
