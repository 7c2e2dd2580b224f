package chat

import (
	"sync"

	"github.com/fenggwsx/roomcast/internal/protocol"
)

// Conn is a live connection as seen by the chat core.
// Deliver must not block; delivery to a closed connection is a no-op.
type Conn interface {
	ID() string
	Deliver(event protocol.Outbound)
}

// Member is a connection's current room membership.
type Member struct {
	RoomID   string
	Nickname string
}

type membership struct {
	conn Conn
	Member
}

// Registry tracks which connections are joined to which room and under
// which nickname. A connection belongs to at most one room at a time.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Conn // roomID -> connID -> Conn
	members map[string]membership      // connID -> membership
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]Conn),
		members: make(map[string]membership),
	}
}

// Register adds conn to roomID under nickname. Registering again replaces the
// nickname; registering into another room silently vacates the previous one,
// whose id is returned.
func (r *Registry) Register(conn Conn, roomID, nickname string) (vacated string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if prev, ok := r.members[id]; ok && prev.RoomID != roomID {
		r.removeLocked(prev.RoomID, id)
		vacated = prev.RoomID
	}

	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]Conn)
		r.rooms[roomID] = set
	}
	set[id] = conn
	r.members[id] = membership{conn: conn, Member: Member{RoomID: roomID, Nickname: nickname}}
	return vacated
}

// Unregister removes conn from roomID. It reports the removed membership,
// or false when conn was not a member of that room.
func (r *Registry) Unregister(conn Conn, roomID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	m, ok := r.members[id]
	if !ok || m.RoomID != roomID {
		return Member{}, false
	}
	delete(r.members, id)
	r.removeLocked(roomID, id)
	return m.Member, true
}

// MembersOf returns a snapshot of the connections joined to roomID.
func (r *Registry) MembersOf(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[roomID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Lookup returns the current membership of conn.
func (r *Registry) Lookup(conn Conn) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[conn.ID()]
	return m.Member, ok
}

// Rooms returns the number of rooms with at least one member.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Connections returns the number of joined connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Registry) removeLocked(roomID, connID string) {
	set, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.rooms, roomID)
	}
}
