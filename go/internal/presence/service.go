// Package presence tracks which identities are currently composing a
// message in each room. The aggregator is purely reactive: entries never
// expire server-side, the client sends an explicit isTyping=false after
// its inactivity window.
package presence

import (
	"github.com/rs/zerolog/log"

	"github.com/heartbeatfm/heartbeat-server/go/internal/room"
)

// Broadcaster pushes a typing delta to every member of a room.
type Broadcaster interface {
	BroadcastTyping(roomID, user string, typing bool)
}

// Service is the per-room typing presence aggregator.
type Service struct {
	store       *room.Store
	broadcaster Broadcaster
}

// NewService creates a typing presence aggregator on top of the room store.
func NewService(store *room.Store, b Broadcaster) *Service {
	return &Service{store: store, broadcaster: b}
}

// SetTyping inserts or removes user from the room's typing set and
// broadcasts the delta. Refreshing an already-typing user (or clearing an
// absent one) changes nothing and is not broadcast, which bounds broadcast
// volume under the client's keystroke-driven refreshes.
func (s *Service) SetTyping(roomID, user string, typing bool) {
	r := s.store.GetOrCreate(roomID)
	if !r.SetTyping(user, typing) {
		return
	}
	log.Debug().
		Str("room_id", roomID).
		Str("user", user).
		Bool("typing", typing).
		Msg("typing state changed")
	s.broadcaster.BroadcastTyping(roomID, user, typing)
}

// Clear removes user from the typing set without requiring the client to
// have sent isTyping=false, used when a connection drops mid-compose.
func (s *Service) Clear(roomID, user string) {
	r, ok := s.store.Get(roomID)
	if !ok {
		return
	}
	if r.SetTyping(user, false) {
		s.broadcaster.BroadcastTyping(roomID, user, false)
	}
}

// TypingUsers returns the room's current typing set, sorted.
func (s *Service) TypingUsers(roomID string) []string {
	r, ok := s.store.Get(roomID)
	if !ok {
		return nil
	}
	return r.TypingUsers()
}
