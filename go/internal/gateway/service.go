package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/heartbeatfm/heartbeat-server/go/internal/chat"
	"github.com/heartbeatfm/heartbeat-server/go/internal/clock"
	"github.com/heartbeatfm/heartbeat-server/go/internal/playback"
	"github.com/heartbeatfm/heartbeat-server/go/internal/presence"
	"github.com/heartbeatfm/heartbeat-server/go/internal/room"
)

// Service is the session gateway: it terminates websocket connections,
// maps each to a room membership, routes client intents to the room
// services and fans their broadcasts back out.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	router            *Router
	bridge            *Bridge
	store             *room.Store
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	BridgeConfig     BridgeConfig
	AutoCreateRooms  bool
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		BridgeConfig:     DefaultBridgeConfig(),
		AutoCreateRooms:  true,
	}
}

// NewService wires the gateway: connection manager, room services, router
// and the optional NATS bridge.
func NewService(config Config, store *room.Store, clk clock.Clock) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	broadcaster := &eventBroadcaster{manager: connectionManager}

	playbackService := playback.NewService(store, clk, broadcaster, config.AutoCreateRooms)
	presenceService := presence.NewService(store, broadcaster)
	chatService := chat.NewService(clk, broadcaster)

	router := NewRouter(playbackService, presenceService, chatService, connectionManager)
	connectionManager.SetHandler(router)

	var bridge *Bridge
	if config.BridgeConfig.Enabled {
		var err error
		bridge, err = NewBridge(connectionManager, config.BridgeConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create room event bridge: %w", err)
		}
		broadcaster.bridge = bridge
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		router:            router,
		bridge:            bridge,
		store:             store,
	}, nil
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	if s.bridge != nil {
		if err := s.bridge.Start(); err != nil {
			return fmt.Errorf("failed to start room event bridge: %w", err)
		}
	}

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway.
func (s *Service) Stop() error {
	if s.bridge != nil {
		s.bridge.Stop()
	}
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// Stats returns statistics about rooms and connections.
func (s *Service) Stats() map[string]any {
	rooms, members := s.store.Stats()
	total, roomConns := s.connectionManager.Stats()
	return map[string]any{
		"rooms":             rooms,
		"members":           members,
		"total_connections": total,
		"room_connections":  roomConns,
	}
}
