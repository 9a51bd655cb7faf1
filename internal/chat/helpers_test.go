package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// recorder is a Deliverer keeping every event per connection.
type recorder struct {
	mu     sync.Mutex
	events map[ConnID][]Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[ConnID][]Event)}
}

func (r *recorder) Deliver(conns []ConnID, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range conns {
		r.events[conn] = append(r.events[conn], ev)
	}
}

func (r *recorder) of(conn ConnID) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[conn]...)
}

func (r *recorder) types(conn ConnID) []EventType {
	return lo.Map(r.of(conn), func(ev Event, _ int) EventType { return ev.Type })
}

func (r *recorder) ofType(conn ConnID, t EventType) []Event {
	return lo.Filter(r.of(conn), func(ev Event, _ int) bool { return ev.Type == t })
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[ConnID][]Event)
}

func newTestCore(t *testing.T, cfg Config) (*Core, *recorder) {
	t.Helper()
	rec := newRecorder()
	core := New(cfg, rec, nil, logs.GetLoggerFromLevel(slog.LevelDebug))

	var seq int
	core.newID = func() string {
		seq++
		return fmt.Sprintf("msg-%04d", seq)
	}
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var tick int
	core.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return core, rec
}

func join(t *testing.T, core *Core, conn ConnID, id Identity, name string) Presence {
	t.Helper()
	p, err := core.Join(context.Background(), conn, JoinRequest{DisplayName: name, Identity: id})
	require.NoError(t, err)
	return p
}
