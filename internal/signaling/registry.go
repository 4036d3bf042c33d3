package signaling

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/randutil"
)

// ErrRoomNotFound is returned when a join targets a room that was never
// created. Joining an unknown room is an error, not auto-creation, so a typo
// can never silently spawn an empty room.
var ErrRoomNotFound = errors.New("room not found")

const roomIDRunes = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultRoomIDLength matches the 6-character alphanumeric ids handed out by
// the create-room endpoint.
const DefaultRoomIDLength = 6

// Room groups the participants of one call. Members holds connection ids
// only; the connections themselves are owned by the hub.
type Room struct {
	ID        string
	Members   map[string]struct{}
	CreatedAt time.Time
}

// Registry is the in-memory room membership table. It is not safe for
// concurrent use: the hub goroutine owns it and serializes every mutation,
// which is what keeps join/leave read-modify-write sequences atomic.
type Registry struct {
	rooms    map[string]*Room
	idLength int
	now      func() time.Time
}

// NewRegistry creates an empty registry generating ids of the given length.
func NewRegistry(idLength int) *Registry {
	if idLength <= 0 {
		idLength = DefaultRoomIDLength
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		idLength: idLength,
		now:      time.Now,
	}
}

// CreateRoom allocates a fresh room with a random id, regenerating on the
// (unlikely) collision with a live room.
func (r *Registry) CreateRoom() (string, error) {
	for {
		id, err := randutil.GenerateCryptoRandomString(r.idLength, roomIDRunes)
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if _, ok := r.rooms[id]; ok {
			continue
		}
		r.rooms[id] = &Room{
			ID:        id,
			Members:   make(map[string]struct{}),
			CreatedAt: r.now(),
		}
		return id, nil
	}
}

// Join records connID as a member of roomID. The room must already exist.
func (r *Registry) Join(roomID, connID string) error {
	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.Members[connID] = struct{}{}
	return nil
}

// Leave removes connID from every room it belongs to and deletes rooms whose
// membership becomes empty. Calling it for an unknown connection is a no-op,
// so it is safe to call more than once.
func (r *Registry) Leave(connID string) {
	for id, room := range r.rooms {
		if _, ok := room.Members[connID]; !ok {
			continue
		}
		delete(room.Members, connID)
		if len(room.Members) == 0 {
			delete(r.rooms, id)
		}
	}
}

// RoomsOf returns the ids of every room connID is a member of.
func (r *Registry) RoomsOf(connID string) []string {
	var ids []string
	for id, room := range r.rooms {
		if _, ok := room.Members[connID]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// MembersOf returns the member set of roomID, or nil if the room does not
// exist.
func (r *Registry) MembersOf(roomID string) []string {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(room.Members))
	for id := range room.Members {
		members = append(members, id)
	}
	return members
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

// Exists reports whether roomID is currently live.
func (r *Registry) Exists(roomID string) bool {
	_, ok := r.rooms[roomID]
	return ok
}

// SharesRoom reports whether the two connections are members of at least one
// common room. Used by the hub's same-room relay hardening.
func (r *Registry) SharesRoom(a, b string) bool {
	for _, room := range r.rooms {
		_, hasA := room.Members[a]
		_, hasB := room.Members[b]
		if hasA && hasB {
			return true
		}
	}
	return false
}

// SweepEmpty deletes rooms that were pre-allocated via CreateRoom but never
// joined within ttl, and returns their ids. Rooms with members are never
// touched; they are deleted by Leave when the last member goes.
func (r *Registry) SweepEmpty(ttl time.Duration) []string {
	var removed []string
	cutoff := r.now().Add(-ttl)
	for id, room := range r.rooms {
		if len(room.Members) == 0 && room.CreatedAt.Before(cutoff) {
			delete(r.rooms, id)
			removed = append(removed, id)
		}
	}
	return removed
}
