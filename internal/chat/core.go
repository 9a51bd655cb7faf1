package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/oklog/ulid/v2"
)

// Core owns all shared chat state and applies inbound events to it.
//
// Every exported method runs under a single mutex for its whole duration,
// mutation and fanout included. A multi-step transaction such as leaving one
// room and joining another is therefore never partially observable, and the
// events produced for a connection reach its Deliverer in handling order.
type Core struct {
	mu sync.Mutex

	cfg      Config
	log      *slog.Logger
	out      Deliverer
	verifier auth.Verifier

	registry *Registry
	rooms    *RoomManager
	messages *MessageStore
	private  *PrivateIndex
	typing   *TypingState

	now   func() time.Time
	newID func() string
}

// New builds a Core seeded with the configured rooms. verifier may be nil,
// in which case every join is unauthenticated.
func New(cfg Config, out Deliverer, verifier auth.Verifier, log *slog.Logger) *Core {
	cfg = sanitizeConfig(cfg)
	return &Core{
		cfg:      cfg,
		log:      log,
		out:      out,
		verifier: verifier,
		registry: NewRegistry(),
		rooms:    NewRoomManager(cfg.Rooms),
		messages: NewMessageStore(cfg.HistoryCap),
		private:  NewPrivateIndex(cfg.HistoryCap),
		typing:   NewTypingState(),
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
}

// Config returns the sanitized configuration in use.
func (c *Core) Config() Config {
	return c.cfg
}

// Join registers presence for conn, moves it into the default room and
// emits, in order, user_joined to everyone else, users_online to everyone,
// then available_rooms and message_history to conn.
//
// A token rejected by the verifier does not fail the join: the connection
// continues unauthenticated with the identity it declared.
func (c *Core) Join(ctx context.Context, conn ConnID, req JoinRequest) (Presence, error) {
	info := IdentityInfo{
		DisplayName: req.DisplayName,
		Identity:    req.Identity,
		Email:       req.Email,
		Avatar:      req.Avatar,
	}
	if req.Token != "" && c.verifier != nil {
		verified, err := c.verifier.Verify(ctx, req.Token)
		if err != nil {
			c.log.Warn("Identity verification rejected, continuing unauthenticated",
				"conn", conn, "error", fmt.Errorf("%w: %v", ErrAuthentication, err))
		} else {
			info = applyVerified(info, verified)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.registry.Register(conn, info, c.now())
	if err != nil {
		return Presence{}, err
	}
	previous, _ := c.rooms.Join(conn, c.cfg.DefaultRoom)
	if previous != "" && previous != c.cfg.DefaultRoom {
		c.stopTyping(conn, previous)
	}

	c.fanout(EveryoneExcept(conn), Event{Type: EventUserJoined, Payload: UserNotice{
		ID:        p.ConnID,
		Identity:  p.Identity,
		Username:  p.DisplayName,
		Avatar:    p.Avatar,
		Timestamp: p.JoinedAt,
	}})
	c.fanout(Everyone(), Event{Type: EventUsersOnline, Payload: c.registry.Online()})
	c.fanout(Connections(conn), Event{Type: EventAvailableRooms, Payload: c.rooms.Rooms()})
	c.sendHistory(conn, c.cfg.DefaultRoom)

	c.log.Info("User joined", "conn", conn, "user", p.Identity, "name", p.DisplayName,
		"authenticated", p.Authenticated, "online", c.registry.Len())
	return p, nil
}

func applyVerified(info IdentityInfo, v auth.Identity) IdentityInfo {
	info.Identity = Identity(v.Subject)
	info.Authenticated = true
	if v.Name != "" {
		info.DisplayName = v.Name
	}
	if v.Email != "" {
		info.Email = v.Email
	}
	if v.Avatar != "" {
		info.Avatar = v.Avatar
	}
	return info
}

// SendRoomMessage stores a message in a room the sender belongs to and
// delivers it to every member, sender included. Any typing flag of the
// sender in that room is stopped first, so peers see user_stop_typing no
// later than the message.
func (c *Core) SendRoomMessage(conn ConnID, req RoomMessageRequest) (Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: message content is empty", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.registry.Lookup(conn)
	if !ok {
		return Message{}, fmt.Errorf("%w: connection %s has not joined", ErrNotFound, conn)
	}
	room, err := c.resolveRoom(conn, req.RoomID)
	if err != nil {
		return Message{}, err
	}

	c.stopTyping(conn, room)

	m := &Message{
		ID:             c.newID(),
		Content:        content,
		SenderID:       conn,
		SenderIdentity: sender.Identity,
		SenderName:     sender.DisplayName,
		SenderAvatar:   sender.Avatar,
		Timestamp:      c.now(),
		Scope:          ScopeRoom,
		RoomID:         room,
	}
	c.messages.Append(room, m)
	snapshot := m.snapshot()
	c.fanout(Room(room), Event{Type: EventRoomMessage, Payload: snapshot})

	c.log.Debug("Room message stored", "conn", conn, "room", room, "id", m.ID)
	return snapshot, nil
}

// SendPrivateMessage stores a message in the thread between the sender and
// the recipient identity, then echoes it to the sender and delivers it to one
// live connection of the recipient. A recipient addressed by identity with no
// live connection gets the message stored only, and nothing is delivered.
func (c *Core) SendPrivateMessage(conn ConnID, req PrivateMessageRequest) (Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: message content is empty", ErrValidation)
	}
	if req.RecipientID == "" && req.RecipientIdentity == "" {
		return Message{}, fmt.Errorf("%w: recipient is required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.registry.Lookup(conn)
	if !ok {
		return Message{}, fmt.Errorf("%w: connection %s has not joined", ErrNotFound, conn)
	}

	var (
		recipient   Presence
		live        bool
		recipientID = req.RecipientIdentity
	)
	if req.RecipientID != "" {
		recipient, live = c.registry.Lookup(req.RecipientID)
		if !live {
			return Message{}, fmt.Errorf("%w: recipient connection %s", ErrNotFound, req.RecipientID)
		}
		recipientID = recipient.Identity
	} else {
		recipient, live = c.registry.LookupByIdentity(recipientID)
	}

	m := &Message{
		ID:                c.newID(),
		Content:           content,
		SenderID:          conn,
		SenderIdentity:    sender.Identity,
		SenderName:        sender.DisplayName,
		SenderAvatar:      sender.Avatar,
		Timestamp:         c.now(),
		Scope:             ScopePrivate,
		RecipientIdentity: recipientID,
	}
	if live {
		m.RecipientID = recipient.ConnID
		m.RecipientName = recipient.DisplayName
	}
	key := NewThreadKey(sender.Identity, recipientID)
	c.private.Append(key, m)
	snapshot := m.snapshot()

	if !live {
		c.log.Info("Private message stored for offline recipient", "conn", conn, "thread", key.String(), "id", m.ID)
		return snapshot, nil
	}
	c.fanout(Connections(conn, recipient.ConnID), Event{Type: EventPrivateMessage, Payload: snapshot})

	c.log.Debug("Private message delivered", "conn", conn, "recipient", recipient.ConnID, "thread", key.String(), "id", m.ID)
	return snapshot, nil
}

// SetTyping moves conn's typing flag in a room and tells the rest of the
// room about the transition. Repeating the current state emits nothing.
func (c *Core) SetTyping(conn ConnID, req TypingRequest, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.registry.Lookup(conn)
	if !ok {
		return fmt.Errorf("%w: connection %s has not joined", ErrNotFound, conn)
	}
	room, err := c.resolveRoom(conn, req.RoomID)
	if err != nil {
		return err
	}

	if !active {
		c.stopTyping(conn, room)
		return nil
	}
	if c.typing.Set(conn, room, true) {
		c.fanout(RoomExcept(room, conn), Event{Type: EventUserTyping, Payload: TypingNotice{
			UserID:   conn,
			Identity: p.Identity,
			Username: p.DisplayName,
			Avatar:   p.Avatar,
			RoomID:   room,
		}})
	}
	return nil
}

// SwitchRoom leaves the current room and joins room, creating it when
// unknown, then resends the room's history to conn. Switching to the current
// room only resends history. A newly created room is announced to everyone.
func (c *Core) SwitchRoom(conn ConnID, req SwitchRoomRequest) error {
	room := strings.TrimSpace(req.Room)
	if room == "" {
		return fmt.Errorf("%w: room name is required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registry.Lookup(conn); !ok {
		return fmt.Errorf("%w: connection %s has not joined", ErrNotFound, conn)
	}

	previous, created := c.rooms.Join(conn, room)
	if previous != "" && previous != room {
		c.stopTyping(conn, previous)
	}
	if created {
		c.fanout(Everyone(), Event{Type: EventAvailableRooms, Payload: c.rooms.Rooms()})
	}
	c.sendHistory(conn, room)

	c.log.Info("User switched room", "conn", conn, "from", previous, "to", room, "created", created)
	return nil
}

// LoadPrivateHistory sends conn the window of the thread it shares with a
// peer identity.
func (c *Core) LoadPrivateHistory(conn ConnID, req PrivateHistoryRequest) error {
	if req.Identity == "" {
		return fmt.Errorf("%w: peer identity is required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.registry.Lookup(conn)
	if !ok {
		return fmt.Errorf("%w: connection %s has not joined", ErrNotFound, conn)
	}
	key := NewThreadKey(p.Identity, req.Identity)
	c.fanout(Connections(conn), Event{Type: EventPrivateHistory, Payload: HistoryWindow{
		Peer:     key.Peer(p.Identity),
		Messages: c.private.HistoryOf(key, c.cfg.HistoryWindow),
	}})
	return nil
}

// Disconnect removes conn's presence, membership and typing flags. Peers
// typing-watching conn get user_stop_typing; everyone gets user_left and a
// fresh users_online snapshot. Stored messages keep their sender snapshot.
func (c *Core) Disconnect(conn ConnID) (Presence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.registry.Remove(conn)
	c.rooms.Leave(conn)
	for _, room := range c.typing.Clear(conn) {
		c.fanout(Room(room), Event{Type: EventUserStoppedTyping, Payload: TypingNotice{UserID: conn, RoomID: room}})
	}
	if !ok {
		return Presence{}, false
	}

	now := c.now()
	c.fanout(Everyone(), Event{Type: EventUserLeft, Payload: UserNotice{
		ID:        p.ConnID,
		Identity:  p.Identity,
		Username:  p.DisplayName,
		Avatar:    p.Avatar,
		Timestamp: now,
	}})
	c.fanout(Everyone(), Event{Type: EventUsersOnline, Payload: c.registry.Online()})

	c.log.Info("User left", "conn", conn, "user", p.Identity, "online", c.registry.Len())
	return p, true
}

// OnlineUsers returns the current presence snapshot.
func (c *Core) OnlineUsers() []Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Online()
}

// Rooms lists known rooms in creation order.
func (c *Core) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.Rooms()
}

// History returns the newest limit messages of a room, oldest first. A
// non-positive limit uses the configured history window.
func (c *Core) History(room string, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rooms.Exists(room) {
		return nil, fmt.Errorf("%w: room %q", ErrNotFound, room)
	}
	if limit <= 0 {
		limit = c.cfg.HistoryWindow
	}
	return c.messages.HistoryOf(room, limit), nil
}

// PrivateHistory returns the newest limit messages shared by two identities.
func (c *Core) PrivateHistory(a, b Identity, limit int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = c.cfg.HistoryWindow
	}
	return c.private.HistoryOf(NewThreadKey(a, b), limit)
}

// TypingIn lists who is typing in a room. Names are resolved now, so a user
// who re-joined under a new name is shown under that name.
func (c *Core) TypingIn(room string) ([]Presence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rooms.Exists(room) {
		return nil, fmt.Errorf("%w: room %q", ErrNotFound, room)
	}
	var out []Presence
	for _, conn := range c.typing.Typing(room) {
		if p, ok := c.registry.Lookup(conn); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Stats returns counters describing the current state.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		UsersOnline:    c.registry.Len(),
		Rooms:          c.rooms.Rooms(),
		RoomMessages:   c.messages.Len(),
		PrivateThreads: c.private.Len(),
	}
}

// resolveRoom picks the explicit room or the connection's current one and
// checks that conn is a member of it.
func (c *Core) resolveRoom(conn ConnID, requested string) (string, error) {
	room := strings.TrimSpace(requested)
	if room == "" {
		current, ok := c.rooms.CurrentRoom(conn)
		if !ok {
			return "", fmt.Errorf("%w: connection %s is in no room", ErrNotFound, conn)
		}
		return current, nil
	}
	if !c.rooms.Exists(room) {
		return "", fmt.Errorf("%w: room %q", ErrNotFound, room)
	}
	if !c.rooms.IsMember(conn, room) {
		return "", fmt.Errorf("%w: connection %s is not a member of %q", ErrNotFound, conn, room)
	}
	return room, nil
}

func (c *Core) stopTyping(conn ConnID, room string) {
	if c.typing.Set(conn, room, false) {
		c.fanout(RoomExcept(room, conn), Event{Type: EventUserStoppedTyping, Payload: TypingNotice{UserID: conn, RoomID: room}})
	}
}

func (c *Core) sendHistory(conn ConnID, room string) {
	c.fanout(Connections(conn), Event{Type: EventMessageHistory, Payload: HistoryWindow{
		RoomID:   room,
		Messages: c.messages.HistoryOf(room, c.cfg.HistoryWindow),
	}})
}

// IsClientError reports whether err is one of the non-fatal outcomes of
// handling an event.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthentication)
}
