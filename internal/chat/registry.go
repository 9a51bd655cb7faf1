package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// IdentityInfo is what a connection declares (or has verified) about its user.
type IdentityInfo struct {
	DisplayName   string   `validate:"required"`
	Identity      Identity `validate:"required"`
	Email         string
	Avatar        string
	Authenticated bool
}

/*
Registry maps live connections to presence records.

Two indices are kept side by side:
 1. byConn resolves an ephemeral connection id to its record;
 2. byIdentity resolves a persistent identity to the live connections that
    carry it, most recent last.

Only identity lookups stay meaningful across a reconnect. The registry never
notifies anyone; callers own fanout. It is not safe for concurrent use, the
owning Core serializes access.
*/
type Registry struct {
	byConn     map[ConnID]*Presence
	byIdentity map[Identity][]ConnID
	order      []ConnID
	validate   *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:     make(map[ConnID]*Presence),
		byIdentity: make(map[Identity][]ConnID),
		validate:   validator.New(),
	}
}

// Register stores the presence for conn, replacing any stale record for the
// same connection. Missing required fields are rejected with ErrValidation;
// no defaults are substituted.
func (r *Registry) Register(conn ConnID, info IdentityInfo, now time.Time) (Presence, error) {
	if strings.TrimSpace(string(conn)) == "" {
		return Presence{}, fmt.Errorf("%w: connection id is required", ErrValidation)
	}
	info.DisplayName = strings.TrimSpace(info.DisplayName)
	info.Identity = Identity(strings.TrimSpace(string(info.Identity)))
	info.Email = strings.TrimSpace(info.Email)
	if err := r.validate.Struct(info); err != nil {
		return Presence{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if stale, ok := r.byConn[conn]; ok {
		r.unindexIdentity(stale.Identity, conn)
	} else {
		r.order = append(r.order, conn)
	}

	p := &Presence{
		ConnID:        conn,
		Identity:      info.Identity,
		DisplayName:   info.DisplayName,
		Avatar:        info.Avatar,
		Email:         info.Email,
		Authenticated: info.Authenticated,
		JoinedAt:      now,
	}
	r.byConn[conn] = p
	r.byIdentity[p.Identity] = append(r.byIdentity[p.Identity], conn)
	return *p, nil
}

// Lookup returns the live record for a connection.
func (r *Registry) Lookup(conn ConnID) (Presence, bool) {
	p, ok := r.byConn[conn]
	if !ok {
		return Presence{}, false
	}
	return *p, true
}

// LookupByIdentity returns the most recently registered live connection
// carrying the identity.
func (r *Registry) LookupByIdentity(id Identity) (Presence, bool) {
	conns := r.byIdentity[id]
	if len(conns) == 0 {
		return Presence{}, false
	}
	return r.Lookup(conns[len(conns)-1])
}

// Remove evicts a connection and returns its record for downstream cleanup.
func (r *Registry) Remove(conn ConnID) (Presence, bool) {
	p, ok := r.byConn[conn]
	if !ok {
		return Presence{}, false
	}
	delete(r.byConn, conn)
	r.unindexIdentity(p.Identity, conn)
	r.order = lo.Without(r.order, conn)
	return *p, true
}

// Online returns every live presence in registration order.
func (r *Registry) Online() []Presence {
	return lo.Map(r.order, func(c ConnID, _ int) Presence {
		return *r.byConn[c]
	})
}

// Connections returns every live connection id in registration order.
func (r *Registry) Connections() []ConnID {
	return append([]ConnID(nil), r.order...)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	return len(r.byConn)
}

func (r *Registry) unindexIdentity(id Identity, conn ConnID) {
	remaining := lo.Without(r.byIdentity[id], conn)
	if len(remaining) == 0 {
		delete(r.byIdentity, id)
		return
	}
	r.byIdentity[id] = remaining
}
