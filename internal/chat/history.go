package chat

import "github.com/samber/lo"

// messageLog is a bounded FIFO of messages in append order.
type messageLog struct {
	capacity int
	entries  []*Message
}

func newMessageLog(capacity int) *messageLog {
	return &messageLog{capacity: capacity}
}

// append stores m and returns the evicted oldest entry when over capacity.
func (l *messageLog) append(m *Message) *Message {
	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, m)
		return nil
	}
	evicted := l.entries[0]
	copy(l.entries, l.entries[1:])
	l.entries[len(l.entries)-1] = m
	return evicted
}

// window returns the newest limit messages, oldest first.
func (l *messageLog) window(limit int) []Message {
	start := 0
	if limit >= 0 && len(l.entries) > limit {
		start = len(l.entries) - limit
	}
	out := make([]Message, 0, len(l.entries)-start)
	for _, m := range l.entries[start:] {
		out = append(out, m.snapshot())
	}
	return out
}

// markRead flags the listed messages as read by reader and returns the ones
// whose state changed. Unknown ids, the reader's own messages and messages
// the reader already read are skipped.
func (l *messageLog) markRead(ids []string, reader Identity) []Message {
	var changed []Message
	for _, m := range l.entries {
		if !lo.Contains(ids, m.ID) || m.SenderIdentity == reader || lo.Contains(m.ReadBy, reader) {
			continue
		}
		m.Read = true
		m.ReadBy = append(m.ReadBy, reader)
		changed = append(changed, m.snapshot())
	}
	return changed
}

func (l *messageLog) len() int {
	return len(l.entries)
}

// MessageStore keeps the bounded history of every room. Append order is the
// only ordering; the owning Core serializes appends.
type MessageStore struct {
	capacity int
	rooms    map[string]*messageLog
}

// NewMessageStore creates a store keeping at most capacity messages per room.
func NewMessageStore(capacity int) *MessageStore {
	return &MessageStore{capacity: capacity, rooms: make(map[string]*messageLog)}
}

// Append stores m at the end of room's history and evicts the oldest entry
// when the cap is exceeded. The evicted message, if any, is returned.
func (s *MessageStore) Append(room string, m *Message) *Message {
	log, ok := s.rooms[room]
	if !ok {
		log = newMessageLog(s.capacity)
		s.rooms[room] = log
	}
	return log.append(m)
}

// HistoryOf returns the newest limit messages of room, oldest first. A
// negative limit returns the whole history.
func (s *MessageStore) HistoryOf(room string, limit int) []Message {
	log, ok := s.rooms[room]
	if !ok {
		return []Message{}
	}
	return log.window(limit)
}

// MarkRead applies a read by reader to the listed messages of room.
func (s *MessageStore) MarkRead(room string, ids []string, reader Identity) []Message {
	log, ok := s.rooms[room]
	if !ok {
		return nil
	}
	return log.markRead(ids, reader)
}

// Len counts stored messages across all rooms.
func (s *MessageStore) Len() int {
	return lo.SumBy(lo.Values(s.rooms), func(l *messageLog) int { return l.len() })
}
