package room

import (
	"sort"
	"sync"
	"time"
)

// PlaybackState is the authoritative transport state for one room.
//
// The (AnchorPosition, AnchorTime) pair is the sole source of truth for the
// current position: while playing it is AnchorPosition plus the elapsed time
// since AnchorTime, while paused it is exactly AnchorPosition. No field ever
// ticks on its own, so state reads cannot drift between updates.
type PlaybackState struct {
	TrackID        string
	Playing        bool
	AnchorPosition float64
	AnchorTime     time.Time
}

// Room holds all per-room state: playback, membership and the typing set.
// Its mutex is the serialization point for the room; every mutation and
// every snapshot read goes through it, so state is never observed torn.
type Room struct {
	id string

	mu       sync.Mutex
	playback PlaybackState
	members  map[string]bool
	typing   map[string]bool
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[string]bool),
		typing:  make(map[string]bool),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Apply runs fn on the playback state under the room mutex and returns a
// copy of the resulting state. fn must not block.
func (r *Room) Apply(fn func(s *PlaybackState)) PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.playback)
	return r.playback
}

// Playback returns a consistent copy of the current playback state.
func (r *Room) Playback() PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playback
}

// AddMember registers a client identity. Re-joining is a no-op; the return
// value reports whether membership actually changed.
func (r *Room) AddMember(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[clientID] {
		return false
	}
	r.members[clientID] = true
	return true
}

// RemoveMember drops a client identity. Removing an absent client is a
// no-op. Returns whether the client was a member and how many remain.
func (r *Room) RemoveMember(clientID string) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.members[clientID] {
		return false, len(r.members)
	}
	delete(r.members, clientID)
	delete(r.typing, clientID)
	return true, len(r.members)
}

// MemberCount returns the current membership size.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// SetTyping inserts or removes user from the typing set. Returns whether
// the set's membership changed; a refresh of an already-typing user or a
// clear of an absent one reports false so callers can skip the broadcast.
func (r *Room) SetTyping(user string, typing bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if typing {
		if r.typing[user] {
			return false
		}
		r.typing[user] = true
		return true
	}
	if !r.typing[user] {
		return false
	}
	delete(r.typing, user)
	return true
}

// TypingUsers returns the typing set as a sorted slice.
func (r *Room) TypingUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.typing))
	for u := range r.typing {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
