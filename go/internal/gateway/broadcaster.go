package gateway

import (
	"github.com/rs/zerolog/log"

	"github.com/heartbeatfm/heartbeat-server/go/internal/chat"
	"github.com/heartbeatfm/heartbeat-server/go/internal/playback"
)

// eventBroadcaster adapts the connection manager (and the optional NATS
// bridge) to the Broadcaster interfaces the room services expose. Frames
// are handed off fire-and-forget; delivery never blocks a service.
type eventBroadcaster struct {
	manager *ConnectionManager
	bridge  *Bridge
}

func (b *eventBroadcaster) BroadcastPlayback(roomID, exclude string, event playback.EventType, snap playback.Snapshot) {
	var (
		frame Frame
		err   error
	)
	switch event {
	case playback.EventPlay:
		frame, err = NewFrame(EventPlay, PlayBroadcastPayload{TrackID: snap.TrackID, Position: snap.Position})
	case playback.EventPause:
		frame, err = NewFrame(EventPause, PositionPayload{Position: snap.Position})
	case playback.EventSeek:
		frame, err = NewFrame(EventSeek, PositionPayload{Position: snap.Position})
	default:
		log.Error().Str("event", string(event)).Msg("unknown playback event")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to build playback frame")
		return
	}
	b.dispatch(roomID, exclude, frame)
}

func (b *eventBroadcaster) BroadcastTyping(roomID, user string, typing bool) {
	frame, err := NewFrame(EventTyping, TypingBroadcastPayload{User: user, IsTyping: typing})
	if err != nil {
		log.Error().Err(err).Msg("failed to build typing frame")
		return
	}
	b.dispatch(roomID, "", frame)
}

func (b *eventBroadcaster) BroadcastChat(roomID string, msg chat.Message) {
	frame, err := NewFrame(EventChat, ChatBroadcastPayload{
		User:     msg.User,
		Message:  msg.Message,
		ServerTs: msg.ServerTs,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build chat frame")
		return
	}
	b.dispatch(roomID, "", frame)
}

func (b *eventBroadcaster) dispatch(roomID, exclude string, frame Frame) {
	b.manager.BroadcastToRoom(roomID, exclude, frame)
	if b.bridge != nil {
		b.bridge.Publish(roomID, frame)
	}
}
