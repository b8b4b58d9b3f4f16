package handler

import (
	"net/http"

	"staychat/backend/internal/auth"
	"staychat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket authenticates the handshake and upgrades the connection.
// Browsers cannot set headers on a websocket handshake, so the token may also
// come in the "token" query parameter.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	id, err := h.JWT.Identify(token)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn().Err(err).Str("identity", id.String()).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, id)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}

// Healthz reports whether the store and its caches answer.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
