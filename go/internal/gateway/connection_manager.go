package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientConn is one client's connection as seen by the room core. The
// concrete implementation is the gorilla-backed Connection below; tests
// substitute in-memory fakes.
type ClientConn interface {
	ID() string
	User() string
	Room() string
	Send(data []byte) error
	Close() error

	setRoom(roomID string)
}

// MessageHandler receives inbound frames and disconnect notifications
// from the connection manager. roomID is the room the connection belonged
// to when it dropped, already detached from the pools by then.
type MessageHandler interface {
	HandleMessage(conn ClientConn, data []byte)
	HandleDisconnect(conn ClientConn, roomID string)
}

// ConnectionManager owns the per-room connection pools and decouples
// broadcast fan-out from state mutation: producers hand frames to a
// buffered channel and the manager's run loop delivers them to each
// member's send queue. A slow or dead connection is evicted rather than
// allowed to delay the room.
type ConnectionManager struct {
	mu        sync.RWMutex
	conns     map[ClientConn]bool
	roomConns map[string]map[ClientConn]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan BroadcastMessage
}

// ConnectionConfig holds websocket connection tuning.
type ConnectionConfig struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendQueueSize    int
	RateLimitPerConn float64 // inbound frames per second, 0 disables
	CheckOrigin      func(r *http.Request) bool
}

// BroadcastMessage is a frame queued for delivery to a room. Exclude, when
// non-empty, names a connection ID to skip (echo suppression for the
// client that issued the command).
type BroadcastMessage struct {
	RoomID  string
	Exclude string
	Frame   Frame
}

// DefaultConnectionConfig returns the default websocket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   4096,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendQueueSize:    256,
		RateLimitPerConn: 20,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		conns:     make(map[ClientConn]bool),
		roomConns: make(map[string]map[ClientConn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetHandler installs the inbound message handler. Must be called before
// the first connection is accepted.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start runs the broadcast fan-out loop until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket connection and
// starts its read/write pumps. The connection belongs to no room until a
// join frame arrives.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		id:          uuid.New().String(),
		user:        userID,
		ws:          ws,
		send:        make(chan []byte, cm.config.SendQueueSize),
		manager:     cm,
		connectedAt: time.Now(),
	}
	if cm.config.RateLimitPerConn > 0 {
		burst := int(cm.config.RateLimitPerConn) * 2
		if burst < 1 {
			burst = 1
		}
		conn.limiter = rate.NewLimiter(rate.Limit(cm.config.RateLimitPerConn), burst)
	}

	cm.register(conn)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.id).
		Str("user", userID).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) register(conn ClientConn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[conn] = true
}

// unregister removes a connection from the manager and notifies the
// handler exactly once, even when both pumps race into it.
func (cm *ConnectionManager) unregister(conn ClientConn) {
	cm.mu.Lock()
	if !cm.conns[conn] {
		cm.mu.Unlock()
		return
	}
	delete(cm.conns, conn)
	roomID := conn.Room()
	cm.removeFromRoomLocked(conn)
	cm.mu.Unlock()

	if cm.handler != nil {
		cm.handler.HandleDisconnect(conn, roomID)
	}

	log.Info().
		Str("connection_id", conn.ID()).
		Str("user", conn.User()).
		Msg("connection unregistered")
}

// JoinRoom binds conn to roomID, moving it out of any previous room pool.
func (cm *ConnectionManager) JoinRoom(conn ClientConn, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.removeFromRoomLocked(conn)
	if cm.roomConns[roomID] == nil {
		cm.roomConns[roomID] = make(map[ClientConn]bool)
	}
	cm.roomConns[roomID][conn] = true
	conn.setRoom(roomID)

	log.Debug().
		Str("connection_id", conn.ID()).
		Str("room_id", roomID).
		Int("room_connections", len(cm.roomConns[roomID])).
		Msg("connection joined room pool")
}

// LeaveRoom detaches conn from its current room pool, if any.
func (cm *ConnectionManager) LeaveRoom(conn ClientConn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeFromRoomLocked(conn)
}

func (cm *ConnectionManager) removeFromRoomLocked(conn ClientConn) {
	roomID := conn.Room()
	if roomID == "" {
		return
	}
	if pool, ok := cm.roomConns[roomID]; ok {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConns, roomID)
		}
	}
	conn.setRoom("")
}

// BroadcastToRoom queues a frame for every connection in the room. The
// handoff never blocks the caller; when the queue is saturated the frame
// is dropped and logged rather than stalling state mutation.
func (cm *ConnectionManager) BroadcastToRoom(roomID, exclude string, frame Frame) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Exclude: exclude, Frame: frame}:
	default:
		log.Warn().Str("room_id", roomID).Str("event", frame.Type).Msg("broadcast channel full, dropping frame")
	}
}

// SendFrame delivers a frame to a single connection, bypassing the room
// fan-out. Used for the state snapshot sent to a freshly joined client.
func (cm *ConnectionManager) SendFrame(conn ClientConn, frame Frame) {
	data, err := frame.encode()
	if err != nil {
		log.Error().Err(err).Str("event", frame.Type).Msg("failed to encode frame")
		return
	}
	if err := conn.Send(data); err != nil {
		log.Warn().
			Str("connection_id", conn.ID()).
			Str("event", frame.Type).
			Msg("send queue full, closing connection")
		cm.unregister(conn)
		conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	pool, exists := cm.roomConns[message.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]ClientConn, 0, len(pool))
	for conn := range pool {
		if message.Exclude != "" && conn.ID() == message.Exclude {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := message.Frame.encode()
	if err != nil {
		log.Error().Err(err).Str("event", message.Frame.Type).Msg("failed to encode frame for broadcast")
		return
	}

	for _, conn := range targets {
		if err := conn.Send(data); err != nil {
			// Connection is slow or dead, evict it rather than stall the room.
			log.Warn().
				Str("connection_id", conn.ID()).
				Str("user", conn.User()).
				Msg("connection send buffer full, closing connection")
			cm.unregister(conn)
			conn.Close()
		}
	}

	log.Debug().
		Str("event", message.Frame.Type).
		Str("room_id", message.RoomID).
		Int("connections", len(targets)).
		Msg("frame broadcasted")
}

// Stats returns connection counts overall and per room.
func (cm *ConnectionManager) Stats() (total int, rooms map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	rooms = make(map[string]int, len(cm.roomConns))
	for roomID, pool := range cm.roomConns {
		rooms[roomID] = len(pool)
	}
	return len(cm.conns), rooms
}
