package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Connection is a gorilla/websocket-backed client connection. Outbound
// frames go through a buffered send queue drained by writePump; inbound
// frames are rate limited and handed to the manager's message handler.
type Connection struct {
	id      string
	user    string
	ws      *websocket.Conn
	send    chan []byte
	manager *ConnectionManager
	limiter *rate.Limiter

	mu   sync.Mutex
	room string

	connectedAt time.Time
}

func (c *Connection) ID() string   { return c.id }
func (c *Connection) User() string { return c.user }

func (c *Connection) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Connection) setRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = roomID
}

// Send queues data for delivery. It never blocks; a full queue returns an
// error so the manager can evict the slow consumer.
func (c *Connection) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (c *Connection) Close() error {
	return c.ws.Close()
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.manager.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected websocket close")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))

		if c.limiter != nil && !c.limiter.Allow() {
			log.Warn().
				Str("connection_id", c.id).
				Str("user", c.user).
				Msg("rate limit exceeded, dropping frame")
			continue
		}

		if c.manager.handler != nil {
			c.manager.handler.HandleMessage(c, data)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
