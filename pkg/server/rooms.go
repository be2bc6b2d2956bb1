package server

import (
	"errors"
	"sort"
	"time"

	"github.com/NicolasHaas/gohall/pkg/game"
)

var (
	ErrRoomExists    = errors.New("server: room already exists")
	ErrRoomNotFound  = errors.New("server: room does not exist")
	ErrAlreadyInRoom = errors.New("server: already in a room")
	ErrNotInRoom     = errors.New("server: not in any room")
)

// Room is a named group of sessions sharing a chat scope and a game round.
// Members are indexed by session ID; the room never owns the sessions.
type Room struct {
	Name      string
	CreatedAt time.Time
	Round     game.Round
	members   map[uint64]*Session
}

// Members returns the room's sessions ordered by session ID.
func (r *Room) Members() []*Session {
	result := make([]*Session, 0, len(r.members))
	for _, s := range r.members {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Size returns how many sessions are in the room.
func (r *Room) Size() int {
	return len(r.members)
}

// RoomRegistry maps room names to rooms and usernames to the room they are in.
// A room exists exactly while it has at least one member.
type RoomRegistry struct {
	rooms      map[string]*Room  // room name -> room
	playerRoom map[string]string // username -> room name
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
	}
}

// Build creates a room with sess as its first member.
func (rr *RoomRegistry) Build(name string, sess *Session, now time.Time) (*Room, error) {
	if _, in := rr.playerRoom[sess.Username]; in {
		return nil, ErrAlreadyInRoom
	}
	if _, exists := rr.rooms[name]; exists {
		return nil, ErrRoomExists
	}
	room := &Room{
		Name:      name,
		CreatedAt: now,
		members:   map[uint64]*Session{sess.ID: sess},
	}
	rr.rooms[name] = room
	rr.playerRoom[sess.Username] = name
	return room, nil
}

// Join adds sess to an existing room. The caller must have left any other room.
func (rr *RoomRegistry) Join(name string, sess *Session) (*Room, error) {
	room, ok := rr.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, in := rr.playerRoom[sess.Username]; in {
		return nil, ErrAlreadyInRoom
	}
	room.members[sess.ID] = sess
	rr.playerRoom[sess.Username] = name
	return room, nil
}

// Leave removes sess from its room and deletes the room once it is empty.
func (rr *RoomRegistry) Leave(sess *Session) (room *Room, deleted bool, err error) {
	name, in := rr.playerRoom[sess.Username]
	if !in {
		return nil, false, ErrNotInRoom
	}
	delete(rr.playerRoom, sess.Username)
	room = rr.rooms[name]
	delete(room.members, sess.ID)
	if len(room.members) == 0 {
		delete(rr.rooms, name)
		return room, true, nil
	}
	return room, false, nil
}

// Get returns a room by name, or nil.
func (rr *RoomRegistry) Get(name string) *Room {
	return rr.rooms[name]
}

// RoomOf returns the room a user is in, or nil.
func (rr *RoomRegistry) RoomOf(username string) *Room {
	name, ok := rr.playerRoom[username]
	if !ok {
		return nil
	}
	return rr.rooms[name]
}

// List returns all rooms ordered by name.
func (rr *RoomRegistry) List() []*Room {
	result := make([]*Room, 0, len(rr.rooms))
	for _, r := range rr.rooms {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Count returns the number of rooms.
func (rr *RoomRegistry) Count() int {
	return len(rr.rooms)
}
