// Package runtime owns the live side of the discussion system: the
// connection registry and the event router. It carries no domain rules
// beyond membership bookkeeping and event delivery.
package runtime

import (
	"sync"

	"github.com/google/uuid"

	"reviewroom/contract"
	"reviewroom/domain"
)

type connSet map[domain.ConnID]struct{}
type roomSet map[domain.DiscussionID]struct{}

// Registry tracks live connections, their outbound sinks, and room
// membership in both directions so join, leave, and broadcast-target
// lookup all stay O(1) in the number of affected entries.
//
// The router is the only writer during dispatch, but REST handlers and
// the telemetry worker read concurrently, hence the RWMutex.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnID]contract.EventSink // conn -> outbound sink
	roomMembers map[domain.DiscussionID]connSet      // room -> conns
	connRooms   map[domain.ConnID]roomSet            // conn -> rooms
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnID]contract.EventSink),
		roomMembers: make(map[domain.DiscussionID]connSet),
		connRooms:   make(map[domain.ConnID]roomSet),
	}
}

// Connect allocates an identifier for a new connection and registers its
// sink with an empty room-membership set.
func (r *Registry) Connect(sink contract.EventSink) domain.ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := domain.ConnID(uuid.NewString())
	r.sessions[connID] = sink
	r.connRooms[connID] = make(roomSet)
	return connID
}

// Disconnect removes the connection from every room it was subscribed to,
// then deletes its record. Calling it twice is a no-op on the second call,
// as is a disconnect for an id that was never registered.
func (r *Registry) Disconnect(connID domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for discussion := range r.connRooms[connID] {
		r.removeFromRoom(connID, discussion)
	}
	delete(r.connRooms, connID)
	delete(r.sessions, connID)
}

// Join adds the connection to the room's subscriber set, creating the
// room on first join. Joining twice has no additional effect. The caller
// is responsible for the participant check; the registry performs no
// authorization. A join for an unregistered connection is ignored.
func (r *Registry) Join(connID domain.ConnID, discussion domain.DiscussionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.connRooms[connID]
	if !ok {
		return
	}
	rooms[discussion] = struct{}{}

	if _, ok := r.roomMembers[discussion]; !ok {
		r.roomMembers[discussion] = make(connSet)
	}
	r.roomMembers[discussion][connID] = struct{}{}
}

// Leave removes the connection from the room's subscriber set; no-op if
// it is not a member. Empty rooms are pruned to keep the map from
// accumulating dead entries over time.
func (r *Registry) Leave(connID domain.ConnID, discussion domain.DiscussionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, discussion)
	}
	r.removeFromRoom(connID, discussion)
}

// removeFromRoom expects r.mu held for writing.
func (r *Registry) removeFromRoom(connID domain.ConnID, discussion domain.DiscussionID) {
	members, ok := r.roomMembers[discussion]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.roomMembers, discussion)
	}
}

func (r *Registry) Joined(connID domain.ConnID, discussion domain.DiscussionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.connRooms[connID][discussion]
	return ok
}

// Sink resolves a connection to its outbound sink. The second return is
// false once the connection has disconnected, which is what guarantees a
// removed connection receives no further broadcasts: delivery always goes
// through this lookup at broadcast time.
func (r *Registry) Sink(connID domain.ConnID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sessions[connID]
	return sink, ok
}

// SinksForRoom retrieves the outbound sinks of every connection currently
// subscribed to the room. Returns nil if the room doesn't exist or has no
// members.
func (r *Registry) SinksForRoom(discussion domain.DiscussionID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(discussion, "")
}

// SinksForOthers is SinksForRoom minus the sender, used for typing
// indicators so a client never sees its own typing signal echoed back.
func (r *Registry) SinksForOthers(sender domain.ConnID, discussion domain.DiscussionID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(discussion, sender)
}

// collect expects r.mu held at least for reading.
func (r *Registry) collect(discussion domain.DiscussionID, exclude domain.ConnID) []contract.EventSink {
	members, ok := r.roomMembers[discussion]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for connID := range members {
		if connID == exclude {
			continue
		}
		if sink, exists := r.sessions[connID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// ConnCount and RoomCount feed the telemetry gauges.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers)
}
