package playback

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartbeatfm/heartbeat-server/go/internal/clock"
	"github.com/heartbeatfm/heartbeat-server/go/internal/room"
)

type broadcastCall struct {
	roomID  string
	exclude string
	event   EventType
	snap    Snapshot
}

type mockBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (m *mockBroadcaster) BroadcastPlayback(roomID, exclude string, event EventType, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{roomID: roomID, exclude: exclude, event: event, snap: snap})
}

func (m *mockBroadcaster) getCalls() []broadcastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestService(t *testing.T) (*Service, *room.Store, *clockwork.FakeClock, *mockBroadcaster) {
	t.Helper()
	fake := clockwork.NewFakeClock()
	store := room.NewStore()
	b := &mockBroadcaster{}
	return NewService(store, clock.Wrap(fake), b, true), store, fake, b
}

func TestJoinNeverMutatesState(t *testing.T) {
	svc, _, _, b := newTestService(t)

	for _, client := range []string{"c1", "c2", "c3", "c1"} {
		snap, err := svc.Join("r1", client)
		require.NoError(t, err)
		assert.False(t, snap.Playing)
		assert.Equal(t, 0.0, snap.Position)
		assert.Empty(t, snap.TrackID)
	}

	assert.Empty(t, b.getCalls(), "join must not broadcast")
}

func TestPlayThenLateJoin(t *testing.T) {
	// Scenario: c1 starts playback at position 0, c2 joins 5 seconds later
	// and must see a playing snapshot at roughly position 5.
	svc, _, fake, b := newTestService(t)

	_, err := svc.Play("r1", "c1", "t1", 0)
	require.NoError(t, err)

	fake.Advance(5 * time.Second)

	snap, err := svc.Join("r1", "c2")
	require.NoError(t, err)
	assert.True(t, snap.Playing)
	assert.Equal(t, "t1", snap.TrackID)
	assert.InDelta(t, 5.0, snap.Position, 0.01)

	calls := b.getCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, EventPlay, calls[0].event)
	assert.Equal(t, "c1", calls[0].exclude, "requester echo is suppressed")
}

func TestPauseWithoutPositionFreezesComputedPosition(t *testing.T) {
	// Scenario: play at 10, pause 3 seconds later with no explicit
	// position; the anchor must land at roughly 13, paused.
	svc, store, fake, _ := newTestService(t)

	_, err := svc.Play("r1", "c1", "t1", 10)
	require.NoError(t, err)

	fake.Advance(3 * time.Second)

	snap, err := svc.Pause("r1", "c1", nil)
	require.NoError(t, err)
	assert.False(t, snap.Playing)
	assert.InDelta(t, 13.0, snap.Position, 0.01)

	r, ok := store.Get("r1")
	require.True(t, ok)
	st := r.Playback()
	assert.False(t, st.Playing)
	assert.InDelta(t, 13.0, st.AnchorPosition, 0.01)

	// position no longer advances while paused
	fake.Advance(time.Minute)
	joined, err := svc.Join("r1", "c2")
	require.NoError(t, err)
	assert.InDelta(t, 13.0, joined.Position, 0.01)
}

func TestPauseWithExplicitPosition(t *testing.T) {
	svc, _, fake, _ := newTestService(t)

	_, err := svc.Play("r1", "c1", "t1", 10)
	require.NoError(t, err)
	fake.Advance(3 * time.Second)

	pos := 11.5
	snap, err := svc.Pause("r1", "c1", &pos)
	require.NoError(t, err)
	assert.False(t, snap.Playing)
	assert.Equal(t, 11.5, snap.Position)
}

func TestSeekClampsNegativeAndKeepsPlayState(t *testing.T) {
	tests := []struct {
		name    string
		playing bool
	}{
		{name: "while playing", playing: true},
		{name: "while paused", playing: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _, _ := newTestService(t)

			if tt.playing {
				_, err := svc.Play("r1", "c1", "t1", 30)
				require.NoError(t, err)
			} else {
				_, err := svc.Join("r1", "c1")
				require.NoError(t, err)
			}

			snap, err := svc.Seek("r1", "c1", -5)
			require.NoError(t, err)
			assert.Equal(t, 0.0, snap.Position)
			assert.Equal(t, tt.playing, snap.Playing, "seek must not touch the play flag")

			r, _ := store.Get("r1")
			assert.Equal(t, 0.0, r.Playback().AnchorPosition)
		})
	}
}

func TestSeekBeyondTrackLengthAccepted(t *testing.T) {
	// The server has no track length knowledge; bounding is the client's job.
	svc, _, _, _ := newTestService(t)

	snap, err := svc.Seek("r1", "c1", 1e6)
	require.NoError(t, err)
	assert.Equal(t, 1e6, snap.Position)
}

func TestArrivalOrderDefinesLastWriter(t *testing.T) {
	// Scenario: the same two commands yield opposite final states
	// depending purely on arrival order at the synchronizer.
	t.Run("play then pause", func(t *testing.T) {
		svc, store, _, _ := newTestService(t)
		_, err := svc.Play("r1", "c1", "t1", 0)
		require.NoError(t, err)
		_, err = svc.Pause("r1", "c2", nil)
		require.NoError(t, err)

		r, _ := store.Get("r1")
		assert.False(t, r.Playback().Playing)
	})

	t.Run("pause then play", func(t *testing.T) {
		svc, store, _, _ := newTestService(t)
		_, err := svc.Pause("r1", "c2", nil)
		require.NoError(t, err)
		_, err = svc.Play("r1", "c1", "t1", 0)
		require.NoError(t, err)

		r, _ := store.Get("r1")
		assert.True(t, r.Playback().Playing)
	})
}

func TestDeterministicFoldOverCommands(t *testing.T) {
	// A serialized command sequence with known clock advances must land on
	// the exact position the anchor formula predicts.
	svc, _, fake, _ := newTestService(t)

	_, err := svc.Play("r1", "c1", "t1", 2) // anchor 2 at T0
	require.NoError(t, err)
	fake.Advance(4 * time.Second) // position 6

	_, err = svc.Seek("r1", "c2", 20) // anchor 20 at T0+4
	require.NoError(t, err)
	fake.Advance(3 * time.Second) // position 23

	_, err = svc.Pause("r1", "c1", nil) // anchor freezes at 23
	require.NoError(t, err)
	fake.Advance(10 * time.Second) // paused, still 23

	_, err = svc.Play("r1", "c2", "t2", 23) // resume from 23
	require.NoError(t, err)
	fake.Advance(2 * time.Second) // position 25

	snap, err := svc.Join("r1", "c3")
	require.NoError(t, err)
	assert.True(t, snap.Playing)
	assert.Equal(t, "t2", snap.TrackID)
	assert.InDelta(t, 25.0, snap.Position, 0.01)
}

func TestInvalidPositionRejected(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)

	tests := []struct {
		name string
		call func(*Service) error
	}{
		{name: "play NaN", call: func(s *Service) error { _, err := s.Play("r1", "c1", "t1", nan); return err }},
		{name: "play Inf", call: func(s *Service) error { _, err := s.Play("r1", "c1", "t1", inf); return err }},
		{name: "seek NaN", call: func(s *Service) error { _, err := s.Seek("r1", "c1", nan); return err }},
		{name: "pause NaN", call: func(s *Service) error { _, err := s.Pause("r1", "c1", &nan); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _, b := newTestService(t)
			_, err := svc.Join("r1", "c1")
			require.NoError(t, err)

			err = tt.call(svc)
			assert.ErrorIs(t, err, ErrInvalidPosition)

			// state untouched, nothing broadcast
			r, _ := store.Get("r1")
			assert.Equal(t, room.PlaybackState{}, r.Playback())
			assert.Empty(t, b.getCalls())
		})
	}
}

func TestLeaveIdempotentAndReclaims(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	_, err := svc.Join("r1", "c1")
	require.NoError(t, err)
	_, err = svc.Join("r1", "c2")
	require.NoError(t, err)
	_, err = svc.Play("r1", "c1", "t1", 0)
	require.NoError(t, err)

	svc.Leave("r1", "c1")
	svc.Leave("r1", "c1") // second leave is a no-op

	_, ok := store.Get("r1")
	assert.True(t, ok, "room kept while members remain")

	svc.Leave("r1", "c2")
	_, ok = store.Get("r1")
	assert.False(t, ok, "empty room reclaimed")

	// next join starts from a fresh paused state
	snap, err := svc.Join("r1", "c3")
	require.NoError(t, err)
	assert.False(t, snap.Playing)
	assert.Equal(t, 0.0, snap.Position)
}

func TestLeaveUnknownRoomIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.Leave("ghost", "c1")
}

func TestAutoCreateDisabled(t *testing.T) {
	fake := clockwork.NewFakeClock()
	store := room.NewStore()
	b := &mockBroadcaster{}
	svc := NewService(store, clock.Wrap(fake), b, false)

	_, err := svc.Join("r1", "c1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = svc.Play("r1", "c1", "t1", 0)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = svc.Pause("r1", "c1", nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = svc.Seek("r1", "c1", 3)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.Empty(t, b.getCalls())
}

func TestCrossRoomIsolation(t *testing.T) {
	svc, _, _, b := newTestService(t)

	_, err := svc.Play("r1", "c1", "t1", 0)
	require.NoError(t, err)
	snap, err := svc.Join("r2", "c2")
	require.NoError(t, err)

	assert.False(t, snap.Playing, "r2 unaffected by r1 playback")
	for _, call := range b.getCalls() {
		assert.Equal(t, "r1", call.roomID)
	}
}
