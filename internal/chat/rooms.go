package chat

import (
	"slices"

	"github.com/samber/lo"
)

// RoomManager tracks the single active room of each connection and the
// member set of each room. Like subscription bookkeeping elsewhere in the
// server, every operation updates both maps together.
type RoomManager struct {
	order   []string
	members map[string]map[ConnID]struct{}
	current map[ConnID]string
}

// NewRoomManager creates a manager seeded with rooms in the given order.
func NewRoomManager(seed []string) *RoomManager {
	m := &RoomManager{
		members: make(map[string]map[ConnID]struct{}, len(seed)),
		current: make(map[ConnID]string),
	}
	for _, name := range seed {
		m.Create(name)
	}
	return m
}

// Create adds an empty room and reports whether it did not exist before.
func (m *RoomManager) Create(name string) bool {
	if _, ok := m.members[name]; ok {
		return false
	}
	m.members[name] = make(map[ConnID]struct{})
	m.order = append(m.order, name)
	return true
}

// Exists reports whether a room is known.
func (m *RoomManager) Exists(name string) bool {
	_, ok := m.members[name]
	return ok
}

// Join moves conn into room, creating the room when unknown. The previous
// room (empty if none) and whether the room was created are returned. Joining
// the current room leaves membership untouched.
func (m *RoomManager) Join(conn ConnID, room string) (previous string, created bool) {
	created = m.Create(room)
	previous = m.current[conn]
	if previous == room {
		return previous, created
	}
	if previous != "" {
		delete(m.members[previous], conn)
	}
	m.members[room][conn] = struct{}{}
	m.current[conn] = room
	return previous, created
}

// Leave removes conn from its room and returns that room.
func (m *RoomManager) Leave(conn ConnID) (string, bool) {
	room, ok := m.current[conn]
	if !ok {
		return "", false
	}
	delete(m.members[room], conn)
	delete(m.current, conn)
	return room, true
}

// CurrentRoom returns the room conn is in.
func (m *RoomManager) CurrentRoom(conn ConnID) (string, bool) {
	room, ok := m.current[conn]
	return room, ok
}

// IsMember reports whether conn is currently in room.
func (m *RoomManager) IsMember(conn ConnID, room string) bool {
	return m.current[conn] == room && room != ""
}

// MembersOf returns the sorted member set of a room.
func (m *RoomManager) MembersOf(room string) []ConnID {
	members := lo.Keys(m.members[room])
	slices.Sort(members)
	return members
}

// Rooms lists known room names in creation order.
func (m *RoomManager) Rooms() []string {
	return slices.Clone(m.order)
}
