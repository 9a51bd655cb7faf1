package chat

import "time"

// EventType names an outbound event on the wire.
type EventType string

const (
	EventUserJoined        EventType = "user_joined"
	EventUserLeft          EventType = "user_left"
	EventUsersOnline       EventType = "users_online"
	EventAvailableRooms    EventType = "available_rooms"
	EventRoomMessage       EventType = "receive_message"
	EventPrivateMessage    EventType = "private_message"
	EventMessageHistory    EventType = "message_history"
	EventPrivateHistory    EventType = "private_history"
	EventMessageRead       EventType = "message_read"
	EventUserTyping        EventType = "user_typing"
	EventUserStoppedTyping EventType = "user_stop_typing"
)

// Event is one outbound notification addressed to a set of connections.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// UserNotice announces a user joining or leaving.
type UserNotice struct {
	ID        ConnID    `json:"id"`
	Identity  Identity  `json:"userId"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryWindow carries the most recent messages of a room or thread.
type HistoryWindow struct {
	RoomID   string    `json:"roomId,omitempty"`
	Peer     Identity  `json:"userId,omitempty"`
	Messages []Message `json:"messages"`
}

// ReadReceipt reports that a reader has seen messages.
type ReadReceipt struct {
	MessageIDs     []string  `json:"messageIds"`
	ReaderID       ConnID    `json:"userId"`
	ReaderIdentity Identity  `json:"readerUserId"`
	ReaderName     string    `json:"username"`
	ScopeID        string    `json:"roomId"`
	Timestamp      time.Time `json:"timestamp"`
}

// TypingNotice reports a typing transition. Username and Avatar are only set
// on user_typing.
type TypingNotice struct {
	UserID   ConnID   `json:"userId"`
	Identity Identity `json:"persistentId,omitempty"`
	Username string   `json:"username,omitempty"`
	Avatar   string   `json:"avatar,omitempty"`
	RoomID   string   `json:"roomId"`
}
