package chat

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// MarkRead records that conn has read messages of a room or of a private
// thread ("private:<peer identity>") and returns the messages whose read
// state changed.
//
// Room reads require membership of the room. Each changed message's sender, when live, gets a message_read addressed to
// its own connection only. A room read is additionally broadcast to the rest
// of the room. Unknown ids, already read ids and the reader's own messages
// are skipped; marking the same messages twice emits nothing the second time.
func (c *Core) MarkRead(conn ConnID, req MarkReadRequest) ([]Message, error) {
	scope := strings.TrimSpace(req.ScopeID)
	if scope == "" {
		return nil, fmt.Errorf("%w: scope is required", ErrValidation)
	}
	ids := lo.Uniq(lo.Compact(req.MessageIDs))
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: message ids are required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reader, ok := c.registry.Lookup(conn)
	if !ok {
		return nil, fmt.Errorf("%w: connection %s has not joined", ErrNotFound, conn)
	}

	if peer, private := strings.CutPrefix(scope, PrivateScopePrefix); private {
		if peer == "" {
			return nil, fmt.Errorf("%w: private scope without peer", ErrValidation)
		}
		changed := c.private.MarkRead(NewThreadKey(reader.Identity, Identity(peer)), ids, reader.Identity)
		c.notifySenders(reader, scope, changed)
		return changed, nil
	}

	if !c.rooms.Exists(scope) {
		return nil, fmt.Errorf("%w: room %q", ErrNotFound, scope)
	}
	if !c.rooms.IsMember(conn, scope) {
		return nil, fmt.Errorf("%w: connection %s is not a member of %q", ErrNotFound, conn, scope)
	}
	changed := c.messages.MarkRead(scope, ids, reader.Identity)
	c.notifySenders(reader, scope, changed)
	if len(changed) > 0 {
		c.fanout(RoomExcept(scope, conn), Event{Type: EventMessageRead, Payload: c.receipt(reader, scope, changed)})
	}

	c.log.Debug("Messages marked read", "conn", conn, "scope", scope, "requested", len(ids), "changed", len(changed))
	return changed, nil
}

// notifySenders tells each live sender that one of their messages was read.
func (c *Core) notifySenders(reader Presence, scope string, changed []Message) {
	for _, m := range changed {
		sender, ok := c.liveSender(m)
		if !ok {
			continue
		}
		c.fanout(Connections(sender), Event{Type: EventMessageRead, Payload: c.receipt(reader, scope, []Message{m})})
	}
}

// liveSender prefers the connection that sent m and falls back to any live
// connection of the same identity.
func (c *Core) liveSender(m Message) (ConnID, bool) {
	if p, ok := c.registry.Lookup(m.SenderID); ok && p.Identity == m.SenderIdentity {
		return p.ConnID, true
	}
	p, ok := c.registry.LookupByIdentity(m.SenderIdentity)
	return p.ConnID, ok
}

func (c *Core) receipt(reader Presence, scope string, msgs []Message) ReadReceipt {
	return ReadReceipt{
		MessageIDs: lo.Map(msgs, func(m Message, _ int) string {
			return m.ID
		}),
		ReaderID:       reader.ConnID,
		ReaderIdentity: reader.Identity,
		ReaderName:     reader.DisplayName,
		ScopeID:        scope,
		Timestamp:      c.now(),
	}
}
