package chat

import (
	"encoding/json"
	"slices"
	"time"
)

// ConnID identifies one live transport session. It changes on every reconnect.
type ConnID string

// Identity is the persistent user identifier that survives reconnects.
type Identity string

// Scope tells whether a message belongs to a room or a private thread.
type Scope string

const (
	ScopeRoom    Scope = "room"
	ScopePrivate Scope = "private"
)

// PrivateScopePrefix prefixes the peer identity in a private thread designator
// used by mark-read requests, e.g. "private:user_42".
const PrivateScopePrefix = "private:"

// Presence is the live record of one online user's session.
type Presence struct {
	ConnID        ConnID    `json:"id"`
	Identity      Identity  `json:"userId"`
	DisplayName   string    `json:"username"`
	Avatar        string    `json:"avatar,omitempty"`
	Email         string    `json:"email,omitempty"`
	Authenticated bool      `json:"authenticated"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// Message is a stored chat message. Content and sender fields never change
// after creation; only Read and ReadBy do.
type Message struct {
	ID                string     `json:"id"`
	Content           string     `json:"content"`
	SenderID          ConnID     `json:"senderId"`
	SenderIdentity    Identity   `json:"senderUserId"`
	SenderName        string     `json:"senderName"`
	SenderAvatar      string     `json:"senderAvatar,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
	Scope             Scope      `json:"type"`
	RoomID            string     `json:"roomId,omitempty"`
	RecipientID       ConnID     `json:"recipientId,omitempty"`
	RecipientIdentity Identity   `json:"recipientUserId,omitempty"`
	RecipientName     string     `json:"recipientName,omitempty"`
	Read              bool       `json:"read"`
	ReadBy            []Identity `json:"readBy"`
}

func (m *Message) snapshot() Message {
	cp := *m
	cp.ReadBy = slices.Clone(m.ReadBy)
	if cp.ReadBy == nil {
		cp.ReadBy = []Identity{}
	}
	return cp
}

// JoinRequest is the payload of a user_join event.
type JoinRequest struct {
	DisplayName string   `json:"username"`
	Identity    Identity `json:"userId"`
	Email       string   `json:"email,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Token       string   `json:"token,omitempty"`
}

// RoomMessageRequest is the payload of a send_message event. An empty RoomID
// targets the sender's current room.
type RoomMessageRequest struct {
	Content string `json:"content"`
	RoomID  string `json:"roomId,omitempty"`
}

// PrivateMessageRequest addresses a peer either by live connection or by
// persistent identity. The identity form also reaches offline peers, whose
// copy is stored for their next connect.
type PrivateMessageRequest struct {
	Content           string   `json:"content"`
	RecipientID       ConnID   `json:"recipientId,omitempty"`
	RecipientIdentity Identity `json:"recipientUserId,omitempty"`
}

// MarkReadRequest names a room or a private thread designator and the
// message ids the reader has seen.
type MarkReadRequest struct {
	ScopeID    string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

// TypingRequest is the payload of typing_start and typing_stop.
type TypingRequest struct {
	RoomID string `json:"roomId,omitempty"`
}

// SwitchRoomRequest is the payload of join_room.
type SwitchRoomRequest struct {
	Room string `json:"room"`
}

// PrivateHistoryRequest asks for the thread shared with a peer identity.
type PrivateHistoryRequest struct {
	Identity Identity `json:"userId"`
}

// Stats summarizes the core state for status reporting.
type Stats struct {
	UsersOnline    int      `json:"usersOnline"`
	Rooms          []string `json:"availableRooms"`
	RoomMessages   int      `json:"totalMessages"`
	PrivateThreads int      `json:"totalPrivateChats"`
}

// UnmarshalJSON accepts either {"roomId": "..."} or a bare room name string.
func (r *TypingRequest) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.RoomID = name
		return nil
	}
	type plain TypingRequest
	return json.Unmarshal(data, (*plain)(r))
}

// UnmarshalJSON accepts either {"room": "..."} or a bare room name string.
func (r *SwitchRoomRequest) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Room = name
		return nil
	}
	type plain SwitchRoomRequest
	return json.Unmarshal(data, (*plain)(r))
}
