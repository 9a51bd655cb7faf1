package chat

import "fmt"

// ThreadKey identifies a private thread by the unordered pair of persistent
// identities taking part in it.
type ThreadKey struct {
	Low  Identity
	High Identity
}

// NewThreadKey returns the canonical key for a and b; the argument order
// does not matter.
func NewThreadKey(a, b Identity) ThreadKey {
	if b < a {
		a, b = b, a
	}
	return ThreadKey{Low: a, High: b}
}

// Peer returns the identity opposite to self in the thread.
func (k ThreadKey) Peer(self Identity) Identity {
	if k.Low == self {
		return k.High
	}
	return k.Low
}

func (k ThreadKey) String() string {
	return fmt.Sprintf("%s%s|%s", PrivateScopePrefix, k.Low, k.High)
}

// PrivateIndex stores private threads keyed by identity pair, so a thread
// outlives the connections that wrote to it.
type PrivateIndex struct {
	capacity int
	threads  map[ThreadKey]*messageLog
}

// NewPrivateIndex creates an index keeping at most capacity messages per thread.
func NewPrivateIndex(capacity int) *PrivateIndex {
	return &PrivateIndex{capacity: capacity, threads: make(map[ThreadKey]*messageLog)}
}

// Append stores m at the end of the thread and evicts the oldest entry past the cap.
func (p *PrivateIndex) Append(key ThreadKey, m *Message) *Message {
	log, ok := p.threads[key]
	if !ok {
		log = newMessageLog(p.capacity)
		p.threads[key] = log
	}
	return log.append(m)
}

// HistoryOf returns the newest limit messages of the thread, oldest first.
func (p *PrivateIndex) HistoryOf(key ThreadKey, limit int) []Message {
	log, ok := p.threads[key]
	if !ok {
		return []Message{}
	}
	return log.window(limit)
}

// MarkRead applies a read by reader to the listed messages of the thread.
func (p *PrivateIndex) MarkRead(key ThreadKey, ids []string, reader Identity) []Message {
	log, ok := p.threads[key]
	if !ok {
		return nil
	}
	return log.markRead(ids, reader)
}

// Len reports the number of threads.
func (p *PrivateIndex) Len() int {
	return len(p.threads)
}
