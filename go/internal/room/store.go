package room

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store maps room identifiers to live rooms. Rooms are created lazily on
// first use and reclaimed once their last member leaves; cross-room
// operations share no lock, so rooms proceed fully in parallel.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewStore returns an empty room store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for id, creating it with default playback
// state (paused at position 0) if it does not exist yet.
func (s *Store) GetOrCreate(id string) *Room {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r
	}
	r = newRoom(id)
	s.rooms[id] = r
	log.Debug().Str("room_id", id).Msg("room created")
	return r
}

// Get returns the room for id if it exists.
func (s *Store) Get(id string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Reclaim removes the room if it has no members left. A join racing the
// reclaim wins: the room is kept whenever membership is non-empty at the
// time the store lock is held.
func (s *Store) Reclaim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok || r.MemberCount() > 0 {
		return false
	}
	delete(s.rooms, id)
	log.Info().Str("room_id", id).Msg("empty room reclaimed")
	return true
}

// Stats returns the number of live rooms and total members across them.
func (s *Store) Stats() (rooms, members int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms = len(s.rooms)
	for _, r := range s.rooms {
		members += r.MemberCount()
	}
	return rooms, members
}
