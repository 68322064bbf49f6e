// Package chat relays room chat messages. It is the only state-free
// operation in the core: messages are stamped with server time and fanned
// out, nothing is stored.
package chat

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/heartbeatfm/heartbeat-server/go/internal/clock"
)

// ErrEmptyMessage is returned for messages that are empty after trimming.
var ErrEmptyMessage = errors.New("empty message")

// Message is a relayed chat message with the server-assigned timestamp
// in epoch milliseconds.
type Message struct {
	User     string
	Message  string
	ServerTs int64
}

// Broadcaster pushes a chat message to every member of a room, including
// the sender, who renders its own message from the broadcast.
type Broadcaster interface {
	BroadcastChat(roomID string, msg Message)
}

// Service relays chat messages with a server timestamp.
type Service struct {
	clock       clock.Clock
	broadcaster Broadcaster
}

// NewService creates a chat relay.
func NewService(clk clock.Clock, b Broadcaster) *Service {
	return &Service{clock: clk, broadcaster: b}
}

// Send validates, stamps and relays a message to the room.
func (s *Service) Send(roomID, user, text string) (Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, ErrEmptyMessage
	}

	msg := Message{
		User:     user,
		Message:  trimmed,
		ServerTs: s.clock.Now().UnixMilli(),
	}
	s.broadcaster.BroadcastChat(roomID, msg)
	log.Debug().
		Str("room_id", roomID).
		Str("user", user).
		Msg("chat message relayed")
	return msg, nil
}
