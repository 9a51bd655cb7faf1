package chat

import "github.com/samber/lo"

// Deliverer hands an event to a set of connections, each listed once.
// Implementations must not block: delivery to a slow or gone peer is
// fire-and-forget.
type Deliverer interface {
	Deliver(conns []ConnID, ev Event)
}

// Target selects the connections an event is delivered to. It is evaluated
// inside the critical section of the operation emitting the event.
type Target func(c *Core) []ConnID

// Everyone targets every live connection.
func Everyone() Target {
	return func(c *Core) []ConnID {
		return c.registry.Connections()
	}
}

// EveryoneExcept targets every live connection but one.
func EveryoneExcept(conn ConnID) Target {
	return func(c *Core) []ConnID {
		return lo.Without(c.registry.Connections(), conn)
	}
}

// Room targets the members of a room, sender included.
func Room(room string) Target {
	return func(c *Core) []ConnID {
		return c.rooms.MembersOf(room)
	}
}

// RoomExcept targets the members of a room but one.
func RoomExcept(room string, conn ConnID) Target {
	return func(c *Core) []ConnID {
		return lo.Without(c.rooms.MembersOf(room), conn)
	}
}

// Connections targets an explicit list of connections, each at most once.
func Connections(conns ...ConnID) Target {
	return func(*Core) []ConnID {
		return lo.Uniq(lo.Compact(conns))
	}
}

// fanout delivers ev to every connection selected by to and returns the
// number of deliveries.
func (c *Core) fanout(to Target, ev Event) int {
	targets := to(c)
	if len(targets) > 0 {
		c.out.Deliver(targets, ev)
	}
	return len(targets)
}
