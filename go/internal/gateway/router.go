package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/heartbeatfm/heartbeat-server/go/internal/chat"
	"github.com/heartbeatfm/heartbeat-server/go/internal/playback"
	"github.com/heartbeatfm/heartbeat-server/go/internal/presence"
)

// Router decodes client frames, rejects malformed requests at the gateway
// boundary, and dispatches the rest to the room services. A rejected frame
// produces no state change and no broadcast; the issuing client reconciles
// against the next snapshot it receives.
type Router struct {
	playback *playback.Service
	presence *presence.Service
	chat     *chat.Service
	manager  *ConnectionManager
}

// NewRouter creates an event router over the room services.
func NewRouter(pb *playback.Service, pr *presence.Service, ch *chat.Service, cm *ConnectionManager) *Router {
	return &Router{
		playback: pb,
		presence: pr,
		chat:     ch,
		manager:  cm,
	}
}

// HandleMessage processes one inbound frame from a connection.
func (r *Router) HandleMessage(conn ClientConn, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().
			Str("connection_id", conn.ID()).
			Err(err).
			Msg("malformed frame")
		return
	}

	switch frame.Type {
	case EventJoin:
		r.handleJoin(conn, frame.Data)
	case EventPlay:
		r.handlePlay(conn, frame.Data)
	case EventPause:
		r.handlePause(conn, frame.Data)
	case EventSeek:
		r.handleSeek(conn, frame.Data)
	case EventTyping:
		r.handleTyping(conn, frame.Data)
	case EventChat:
		r.handleChat(conn, frame.Data)
	default:
		log.Warn().
			Str("connection_id", conn.ID()).
			Str("event", frame.Type).
			Msg("unknown event type")
	}
}

// HandleDisconnect releases everything the connection held: its typing
// entry and its room membership. A dropped connection that reconnects must
// re-join to receive a fresh snapshot.
func (r *Router) HandleDisconnect(conn ClientConn, roomID string) {
	if roomID == "" {
		return
	}
	r.presence.Clear(roomID, conn.User())
	r.playback.Leave(roomID, conn.ID())
}

func (r *Router) handleJoin(conn ClientConn, data []byte) {
	roomID, ok := decodeJoin(data)
	if !ok || roomID == "" {
		log.Warn().Str("connection_id", conn.ID()).Msg("join without room id")
		return
	}

	snap, err := r.playback.Join(roomID, conn.ID())
	if err != nil {
		log.Warn().
			Str("connection_id", conn.ID()).
			Str("room_id", roomID).
			Err(err).
			Msg("join rejected")
		return
	}

	if prev := conn.Room(); prev != "" && prev != roomID {
		r.presence.Clear(prev, conn.User())
		r.playback.Leave(prev, conn.ID())
	}
	r.manager.JoinRoom(conn, roomID)

	frame, err := NewFrame(EventState, StatePayload{
		TrackID:  snap.TrackID,
		Playing:  snap.Playing,
		Position: snap.Position,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build state frame")
		return
	}
	r.manager.SendFrame(conn, frame)
}

// decodeJoin accepts both payload shapes the client has used: a bare room
// string and a {roomId} object.
func decodeJoin(data []byte) (string, bool) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err == nil {
		return roomID, true
	}
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	return payload.RoomID, true
}

func (r *Router) handlePlay(conn ClientConn, data []byte) {
	var payload PlayPayload
	if !decodePayload(conn, EventPlay, data, &payload) || payload.RoomID == "" {
		return
	}
	if _, err := r.playback.Play(payload.RoomID, conn.ID(), payload.TrackID, payload.Position); err != nil {
		log.Debug().
			Str("connection_id", conn.ID()).
			Str("room_id", payload.RoomID).
			Err(err).
			Msg("play rejected")
	}
}

func (r *Router) handlePause(conn ClientConn, data []byte) {
	var payload PausePayload
	if !decodePayload(conn, EventPause, data, &payload) || payload.RoomID == "" {
		return
	}
	if _, err := r.playback.Pause(payload.RoomID, conn.ID(), payload.Position); err != nil {
		log.Debug().
			Str("connection_id", conn.ID()).
			Str("room_id", payload.RoomID).
			Err(err).
			Msg("pause rejected")
	}
}

func (r *Router) handleSeek(conn ClientConn, data []byte) {
	var payload SeekPayload
	if !decodePayload(conn, EventSeek, data, &payload) || payload.RoomID == "" {
		return
	}
	if _, err := r.playback.Seek(payload.RoomID, conn.ID(), payload.Position); err != nil {
		log.Debug().
			Str("connection_id", conn.ID()).
			Str("room_id", payload.RoomID).
			Err(err).
			Msg("seek rejected")
	}
}

func (r *Router) handleTyping(conn ClientConn, data []byte) {
	var payload TypingPayload
	if !decodePayload(conn, EventTyping, data, &payload) || payload.RoomID == "" {
		return
	}
	user := payload.User
	if user == "" {
		user = conn.User()
	}
	r.presence.SetTyping(payload.RoomID, user, payload.IsTyping)
}

func (r *Router) handleChat(conn ClientConn, data []byte) {
	var payload ChatPayload
	if !decodePayload(conn, EventChat, data, &payload) || payload.RoomID == "" {
		return
	}
	user := payload.User
	if user == "" {
		user = conn.User()
	}
	if _, err := r.chat.Send(payload.RoomID, user, payload.Message); err != nil {
		log.Debug().
			Str("connection_id", conn.ID()).
			Str("room_id", payload.RoomID).
			Err(err).
			Msg("chat rejected")
	}
}

func decodePayload(conn ClientConn, event string, data []byte, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn().
			Str("connection_id", conn.ID()).
			Str("event", event).
			Err(err).
			Msg("malformed payload")
		return false
	}
	return true
}
