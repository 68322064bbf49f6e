package playback

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/heartbeatfm/heartbeat-server/go/internal/clock"
	"github.com/heartbeatfm/heartbeat-server/go/internal/room"
)

// EventType identifies which transport command produced a broadcast.
type EventType string

const (
	EventPlay  EventType = "play"
	EventPause EventType = "pause"
	EventSeek  EventType = "seek"
)

// Snapshot is a full description of a room's playback state with the
// current position already computed from the anchor pair.
type Snapshot struct {
	RoomID   string
	TrackID  string
	Playing  bool
	Position float64
}

// Broadcaster pushes a transport event to every member of a room. The
// handoff must be fire-and-forget: a slow receiver must never delay the
// synchronizer. exclude, when non-empty, names the requesting client so
// the gateway can suppress the echo back to it.
type Broadcaster interface {
	BroadcastPlayback(roomID string, exclude string, event EventType, snap Snapshot)
}

// Service is the authoritative playback synchronizer. All mutations of a
// room's state run under that room's mutex, so concurrent commands from
// different clients are processed serially per room and "last writer wins"
// is defined by arrival order at the service.
type Service struct {
	store       *room.Store
	clock       clock.Clock
	broadcaster Broadcaster
	autoCreate  bool
}

// NewService creates a playback synchronizer. autoCreate controls whether
// commands targeting an unknown room create it on the fly (the default
// deployment policy) or fail with ErrRoomNotFound.
func NewService(store *room.Store, clk clock.Clock, b Broadcaster, autoCreate bool) *Service {
	return &Service{
		store:       store,
		clock:       clk,
		broadcaster: b,
		autoCreate:  autoCreate,
	}
}

// Join registers clientID in the room and returns the current state
// snapshot. Join never mutates playback state; re-joining is a membership
// no-op and still returns a fresh snapshot.
func (s *Service) Join(roomID, clientID string) (Snapshot, error) {
	r, err := s.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	r.AddMember(clientID)

	snap := s.snapshot(r, r.Playback())
	log.Debug().
		Str("room_id", roomID).
		Str("client_id", clientID).
		Bool("playing", snap.Playing).
		Float64("position", snap.Position).
		Msg("client joined room")
	return snap, nil
}

// Play starts playback of trackID at the requested position. The anchor is
// re-based to now, so every member extrapolates from the same instant.
func (s *Service) Play(roomID, clientID, trackID string, position float64) (Snapshot, error) {
	if !validPosition(position) {
		return Snapshot{}, ErrInvalidPosition
	}
	r, err := s.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	state := r.Apply(func(st *room.PlaybackState) {
		st.TrackID = trackID
		st.Playing = true
		st.AnchorPosition = clampPosition(position)
		st.AnchorTime = s.clock.Now()
	})

	snap := s.snapshot(r, state)
	s.broadcaster.BroadcastPlayback(roomID, clientID, EventPlay, snap)
	log.Info().
		Str("room_id", roomID).
		Str("track_id", trackID).
		Float64("position", snap.Position).
		Msg("playback started")
	return snap, nil
}

// Pause stops playback. With a nil position the anchor freezes at the
// computed current position, so a bare "pause" never rewinds the room.
func (s *Service) Pause(roomID, clientID string, position *float64) (Snapshot, error) {
	if position != nil && !validPosition(*position) {
		return Snapshot{}, ErrInvalidPosition
	}
	r, err := s.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	state := r.Apply(func(st *room.PlaybackState) {
		if position != nil {
			st.AnchorPosition = clampPosition(*position)
		} else {
			st.AnchorPosition = s.position(*st)
		}
		st.Playing = false
		st.AnchorTime = s.clock.Now()
	})

	snap := s.snapshot(r, state)
	s.broadcaster.BroadcastPlayback(roomID, clientID, EventPause, snap)
	log.Info().
		Str("room_id", roomID).
		Float64("position", snap.Position).
		Msg("playback paused")
	return snap, nil
}

// Seek moves the anchor to position without touching the play/pause flag.
// Negative positions clamp to 0; positions past the end of the track are
// accepted as-is since the server has no track length knowledge.
func (s *Service) Seek(roomID, clientID string, position float64) (Snapshot, error) {
	if !validPosition(position) {
		return Snapshot{}, ErrInvalidPosition
	}
	r, err := s.room(roomID)
	if err != nil {
		return Snapshot{}, err
	}

	state := r.Apply(func(st *room.PlaybackState) {
		st.AnchorPosition = clampPosition(position)
		st.AnchorTime = s.clock.Now()
	})

	snap := s.snapshot(r, state)
	s.broadcaster.BroadcastPlayback(roomID, clientID, EventSeek, snap)
	log.Info().
		Str("room_id", roomID).
		Float64("position", snap.Position).
		Msg("seek applied")
	return snap, nil
}

// Leave drops clientID from the room's membership and reclaims the room
// once it is empty; the next join then starts from a fresh paused state.
// Leaving an unknown room or leaving twice is a no-op.
func (s *Service) Leave(roomID, clientID string) {
	r, ok := s.store.Get(roomID)
	if !ok {
		return
	}
	removed, remaining := r.RemoveMember(clientID)
	if !removed {
		return
	}
	log.Debug().
		Str("room_id", roomID).
		Str("client_id", clientID).
		Int("remaining", remaining).
		Msg("client left room")
	if remaining == 0 {
		s.store.Reclaim(roomID)
	}
}

func (s *Service) room(roomID string) (*room.Room, error) {
	if s.autoCreate {
		return s.store.GetOrCreate(roomID), nil
	}
	r, ok := s.store.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// position extrapolates the current position from the anchor pair.
func (s *Service) position(st room.PlaybackState) float64 {
	pos := st.AnchorPosition
	if st.Playing {
		pos += s.clock.SecondsSince(st.AnchorTime)
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

func (s *Service) snapshot(r *room.Room, st room.PlaybackState) Snapshot {
	return Snapshot{
		RoomID:   r.ID(),
		TrackID:  st.TrackID,
		Playing:  st.Playing,
		Position: s.position(st),
	}
}

func validPosition(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0)
}

func clampPosition(p float64) float64 {
	if p < 0 {
		return 0
	}
	return p
}
