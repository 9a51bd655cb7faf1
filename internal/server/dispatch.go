package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/gochat/internal/chat"
)

// Outcome labels recorded for inbound events.
const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "not_found"
	outcomeUnknown  = "unknown"
	outcomeError    = "error"
)

// decode unmarshals an event payload. A malformed payload is a validation
// failure like a missing field.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: malformed payload: %v", chat.ErrValidation, err)
	}
	return v, nil
}

// handle decodes the payload into T and applies fn to it.
func handle[T any](raw json.RawMessage, fn func(T) error) error {
	req, err := decode[T](raw)
	if err != nil {
		return err
	}
	return fn(req)
}

// dispatch applies one inbound event to the chat engine. Failures never
// reach the sender; they are logged and counted.
func (h *Hub) dispatch(ev inboundEvent) {
	client := ev.client

	// Frames read before a client was dropped are ignored.
	h.mutex.RLock()
	current, live := h.clients[client.id]
	h.mutex.RUnlock()
	if !live || current != client {
		return
	}

	conn := client.id
	var err error
	switch ev.Type {
	case EventUserJoin:
		err = handle(ev.Payload, func(req chat.JoinRequest) error {
			_, err := h.core.Join(h.ctx, conn, req)
			return err
		})
	case EventSendMessage:
		err = handle(ev.Payload, func(req chat.RoomMessageRequest) error {
			_, err := h.core.SendRoomMessage(conn, req)
			return err
		})
	case EventSendPrivateMessage:
		err = handle(ev.Payload, func(req chat.PrivateMessageRequest) error {
			_, err := h.core.SendPrivateMessage(conn, req)
			return err
		})
	case EventMarkRead:
		err = handle(ev.Payload, func(req chat.MarkReadRequest) error {
			_, err := h.core.MarkRead(conn, req)
			return err
		})
	case EventTypingStart:
		err = handle(ev.Payload, func(req chat.TypingRequest) error {
			return h.core.SetTyping(conn, req, true)
		})
	case EventTypingStop:
		err = handle(ev.Payload, func(req chat.TypingRequest) error {
			return h.core.SetTyping(conn, req, false)
		})
	case EventJoinRoom:
		err = handle(ev.Payload, func(req chat.SwitchRoomRequest) error {
			return h.core.SwitchRoom(conn, req)
		})
	case EventLoadPrivateHistory:
		err = handle(ev.Payload, func(req chat.PrivateHistoryRequest) error {
			return h.core.LoadPrivateHistory(conn, req)
		})
	default:
		h.metrics.InboundEvents.WithLabelValues(outcomeUnknown, outcomeUnknown).Inc()
		client.log.Debug("Ignoring unknown event type", "type", ev.Type)
		return
	}

	outcome := outcomeOf(err)
	h.metrics.InboundEvents.WithLabelValues(ev.Type, outcome).Inc()
	switch {
	case err == nil:
	case chat.IsClientError(err):
		client.log.Debug("Event rejected", "type", ev.Type, "outcome", outcome, "error", err)
	default:
		client.log.Error("Event handling failed", "type", ev.Type, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, chat.ErrValidation):
		return outcomeInvalid
	case errors.Is(err, chat.ErrNotFound):
		return outcomeNotFound
	default:
		return outcomeError
	}
}
