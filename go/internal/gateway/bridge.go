package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// BridgeConfig holds configuration for the NATS room-event bridge.
type BridgeConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string // e.g. "room.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultBridgeConfig returns the default bridge configuration. The bridge
// is disabled by default; a single instance needs no fan-out beyond its own
// connection pools.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Enabled:       false,
		URL:           nats.DefaultURL,
		SubjectPrefix: "room.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// bridgeEnvelope wraps a frame with its room and originating instance so
// peers can suppress their own publications.
type bridgeEnvelope struct {
	Instance string `json:"instance"`
	RoomID   string `json:"roomId"`
	Frame    Frame  `json:"frame"`
}

// Bridge republishes every room broadcast on NATS and re-broadcasts frames
// published by peer gateway instances, so several instances can serve the
// same room. State remains instance-local; peers relay frames, they do not
// reconcile state.
type Bridge struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	manager    *ConnectionManager
	config     BridgeConfig
	instanceID string
}

// NewBridge connects to NATS and prepares the bridge.
func NewBridge(cm *ConnectionManager, config BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Bridge{
		nc:         nc,
		manager:    cm,
		config:     config,
		instanceID: uuid.New().String()[:8],
	}, nil
}

// Start subscribes to the room event subjects of all peer instances.
func (b *Bridge) Start() error {
	sub, err := b.nc.Subscribe(b.config.SubjectPrefix+".>", func(m *nats.Msg) {
		b.rebroadcast(m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s.>: %w", b.config.SubjectPrefix, err)
	}
	b.sub = sub
	log.Info().
		Str("instance", b.instanceID).
		Str("subject", b.config.SubjectPrefix+".>").
		Msg("room event bridge started")
	return nil
}

// Stop drains the subscription and closes the NATS connection.
func (b *Bridge) Stop() {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain bridge subscription")
		}
	}
	b.nc.Close()
	log.Info().Str("instance", b.instanceID).Msg("room event bridge stopped")
}

// Publish sends a room frame to peer instances. Fire-and-forget: a publish
// failure is logged and never affects local delivery.
func (b *Bridge) Publish(roomID string, frame Frame) {
	env := bridgeEnvelope{
		Instance: b.instanceID,
		RoomID:   roomID,
		Frame:    frame,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode bridge envelope")
		return
	}
	subject := b.config.SubjectPrefix + "." + subjectToken(roomID)
	if err := b.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish room frame")
	}
}

// rebroadcast delivers a peer's frame to the local connection pools.
// Frames published by this instance are dropped to avoid echo loops.
func (b *Bridge) rebroadcast(data []byte) bool {
	var env bridgeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("malformed bridge envelope")
		return false
	}
	if env.Instance == b.instanceID || env.RoomID == "" {
		return false
	}
	b.manager.BroadcastToRoom(env.RoomID, "", env.Frame)
	return true
}

// subjectToken maps a room identifier onto a single NATS subject token.
// The envelope carries the authoritative room ID; the subject only needs
// to be a valid token.
func subjectToken(roomID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '-'
		}
		return r
	}, roomID)
}
