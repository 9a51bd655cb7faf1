package chat

import (
	"slices"

	"github.com/samber/lo"
)

// TypingState holds the per-room set of connections currently typing.
// Transitions are event driven only; nothing expires on a timer.
type TypingState struct {
	rooms map[string][]ConnID
}

// NewTypingState creates an empty typing tracker.
func NewTypingState() *TypingState {
	return &TypingState{rooms: make(map[string][]ConnID)}
}

// Set moves (room, conn) to Typing or NotTyping and reports whether the
// state changed.
func (t *TypingState) Set(conn ConnID, room string, active bool) bool {
	typing := lo.Contains(t.rooms[room], conn)
	switch {
	case active && !typing:
		t.rooms[room] = append(t.rooms[room], conn)
		return true
	case !active && typing:
		t.rooms[room] = lo.Without(t.rooms[room], conn)
		if len(t.rooms[room]) == 0 {
			delete(t.rooms, room)
		}
		return true
	}
	return false
}

// Clear stops every typing flag of conn and returns the affected rooms.
func (t *TypingState) Clear(conn ConnID) []string {
	var rooms []string
	for room, conns := range t.rooms {
		if lo.Contains(conns, conn) {
			rooms = append(rooms, room)
		}
	}
	slices.Sort(rooms)
	for _, room := range rooms {
		t.Set(conn, room, false)
	}
	return rooms
}

// Typing lists the connections typing in room, in start order.
func (t *TypingState) Typing(room string) []ConnID {
	return append([]ConnID(nil), t.rooms[room]...)
}
