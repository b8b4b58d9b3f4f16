package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"staychat/backend/internal/config"
	"staychat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	id       string
	identity models.Identity

	Conn *websocket.Conn
	Hub  *ManagerService

	mu     sync.RWMutex
	send   chan models.Envelope
	closed bool

	log zerolog.Logger
}

// NewWebSocketClient wraps an upgraded connection for identity.
func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, identity models.Identity) *WebSocketClient {
	id := uuid.NewString()
	return &WebSocketClient{
		id:       id,
		identity: identity,
		Conn:     conn,
		Hub:      hub,
		send:     make(chan models.Envelope, config.SendBufferSize),
		log:      hub.log.With().Str("client", id).Str("identity", identity.String()).Logger(),
	}
}

func (c *WebSocketClient) ID() string                { return c.id }
func (c *WebSocketClient) Identity() models.Identity { return c.identity }

// Send queues env unless the buffer is full or the client is closed.
func (c *WebSocketClient) Send(env models.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which makes writePump close the connection.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump decodes envelopes and hands them to the hub one at a time.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.log.Debug().Err(err).Msg("malformed frame skipped")
			continue
		}
		c.Hub.Dispatch(c, env)
	}
}

// writePump writes queued envelopes, one frame each, and pings the peer.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				c.log.Debug().Err(err).Str("event", env.Event).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
