package gateway

import (
	"encoding/json"
)

// Frame is the wire envelope for every event crossing a websocket, in
// both directions: a type tag plus an event-specific payload.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client-to-server event types.
const (
	EventJoin   = "join"
	EventPlay   = "play"
	EventPause  = "pause"
	EventSeek   = "seek"
	EventTyping = "typing"
	EventChat   = "chat"
)

// EventState is the full snapshot sent to a client right after it joins;
// existing members receive the incremental play/pause/seek events instead.
const EventState = "state"

// JoinPayload names the room to join.
type JoinPayload struct {
	RoomID string `json:"roomId"`
}

// PlayPayload starts playback of a track at a position.
type PlayPayload struct {
	RoomID   string  `json:"roomId"`
	TrackID  string  `json:"trackId"`
	Position float64 `json:"position"`
}

// PausePayload stops playback. A missing position means "pause where the
// room currently is".
type PausePayload struct {
	RoomID   string   `json:"roomId"`
	Position *float64 `json:"position,omitempty"`
}

// SeekPayload moves the playback position without changing play state.
type SeekPayload struct {
	RoomID   string  `json:"roomId"`
	Position float64 `json:"position"`
}

// TypingPayload reports a user's composing state.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// ChatPayload carries a chat message to relay.
type ChatPayload struct {
	RoomID  string `json:"roomId"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// StatePayload is the full playback snapshot for a newly joined client.
type StatePayload struct {
	TrackID  string  `json:"trackId"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
}

// PlayBroadcastPayload is the incremental play event for room members.
type PlayBroadcastPayload struct {
	TrackID  string  `json:"trackId"`
	Position float64 `json:"position"`
}

// PositionPayload is the incremental pause/seek event for room members.
type PositionPayload struct {
	Position float64 `json:"position"`
}

// TypingBroadcastPayload is the presence delta for room members.
type TypingBroadcastPayload struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// ChatBroadcastPayload is the relayed chat message with the
// server-assigned timestamp in epoch milliseconds.
type ChatBroadcastPayload struct {
	User     string `json:"user"`
	Message  string `json:"message"`
	ServerTs int64  `json:"serverTs"`
}

// NewFrame wraps a payload in a typed envelope.
func NewFrame(eventType string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: eventType, Data: data}, nil
}

func (f Frame) encode() ([]byte, error) {
	return json.Marshal(f)
}
