package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	user string

	mu       sync.Mutex
	room     string
	received [][]byte
	closed   bool
	sendErr  error
}

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) User() string { return f.user }

func (f *fakeConn) Room() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room
}

func (f *fakeConn) setRoom(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.room = roomID
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) frames(t *testing.T) []Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := make([]Frame, 0, len(f.received))
	for _, data := range f.received {
		var frame Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		frames = append(frames, frame)
	}
	return frames
}

type recordingHandler struct {
	mu          sync.Mutex
	disconnects []string
}

func (h *recordingHandler) HandleMessage(conn ClientConn, data []byte) {}

func (h *recordingHandler) HandleDisconnect(conn ClientConn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, conn.ID())
}

func (h *recordingHandler) getDisconnects() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects
}

func mustFrame(t *testing.T, eventType string, payload any) Frame {
	t.Helper()
	frame, err := NewFrame(eventType, payload)
	require.NoError(t, err)
	return frame
}

func TestHandleBroadcast(t *testing.T) {
	tests := []struct {
		name         string
		exclude      string
		wantReceived map[string]int
	}{
		{
			name:         "all room members receive the frame",
			exclude:      "",
			wantReceived: map[string]int{"c1": 1, "c2": 1, "c3": 0},
		},
		{
			name:         "excluded sender is skipped",
			exclude:      "c1",
			wantReceived: map[string]int{"c1": 0, "c2": 1, "c3": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewConnectionManager(DefaultConnectionConfig())
			c1 := &fakeConn{id: "c1", user: "alice"}
			c2 := &fakeConn{id: "c2", user: "bob"}
			c3 := &fakeConn{id: "c3", user: "carol"} // different room
			for _, c := range []*fakeConn{c1, c2, c3} {
				cm.register(c)
			}
			cm.JoinRoom(c1, "r1")
			cm.JoinRoom(c2, "r1")
			cm.JoinRoom(c3, "r2")

			frame := mustFrame(t, EventSeek, PositionPayload{Position: 12})
			cm.handleBroadcast(BroadcastMessage{RoomID: "r1", Exclude: tt.exclude, Frame: frame})

			for conn, want := range map[*fakeConn]int{c1: tt.wantReceived["c1"], c2: tt.wantReceived["c2"], c3: tt.wantReceived["c3"]} {
				assert.Len(t, conn.frames(t), want, "connection %s", conn.ID())
			}
		})
	}
}

func TestHandleBroadcastEvictsSlowConnection(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	handler := &recordingHandler{}
	cm.SetHandler(handler)

	healthy := &fakeConn{id: "c1", user: "alice"}
	slow := &fakeConn{id: "c2", user: "bob", sendErr: assert.AnError}
	cm.register(healthy)
	cm.register(slow)
	cm.JoinRoom(healthy, "r1")
	cm.JoinRoom(slow, "r1")

	cm.handleBroadcast(BroadcastMessage{RoomID: "r1", Frame: mustFrame(t, EventPause, PositionPayload{})})

	assert.True(t, slow.closed)
	assert.Equal(t, []string{"c2"}, handler.getDisconnects())

	total, rooms := cm.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, map[string]int{"r1": 1}, rooms)

	// healthy member still received the frame
	assert.Len(t, healthy.frames(t), 1)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	handler := &recordingHandler{}
	cm.SetHandler(handler)

	conn := &fakeConn{id: "c1", user: "alice"}
	cm.register(conn)
	cm.JoinRoom(conn, "r1")

	cm.unregister(conn)
	cm.unregister(conn)

	assert.Equal(t, []string{"c1"}, handler.getDisconnects(), "disconnect delivered once")
	total, rooms := cm.Stats()
	assert.Equal(t, 0, total)
	assert.Empty(t, rooms)
}

func TestJoinRoomMovesConnectionBetweenPools(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := &fakeConn{id: "c1", user: "alice"}
	cm.register(conn)

	cm.JoinRoom(conn, "r1")
	assert.Equal(t, "r1", conn.Room())

	cm.JoinRoom(conn, "r2")
	assert.Equal(t, "r2", conn.Room())

	_, rooms := cm.Stats()
	assert.Equal(t, map[string]int{"r2": 1}, rooms, "old pool dropped once empty")
}

func TestBroadcastToRoomQueues(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	frame := mustFrame(t, EventPlay, PlayBroadcastPayload{TrackID: "t1", Position: 3})
	cm.BroadcastToRoom("r1", "c9", frame)

	select {
	case msg := <-cm.broadcastCh:
		assert.Equal(t, "r1", msg.RoomID)
		assert.Equal(t, "c9", msg.Exclude)
		assert.Equal(t, EventPlay, msg.Frame.Type)
	default:
		t.Fatal("expected a queued broadcast")
	}
}

func TestSendFrameEvictsOnFullQueue(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	handler := &recordingHandler{}
	cm.SetHandler(handler)

	conn := &fakeConn{id: "c1", user: "alice", sendErr: assert.AnError}
	cm.register(conn)
	cm.JoinRoom(conn, "r1")

	cm.SendFrame(conn, mustFrame(t, EventState, StatePayload{}))

	assert.True(t, conn.closed)
	assert.Equal(t, []string{"c1"}, handler.getDisconnects())
}
