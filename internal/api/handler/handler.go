// Package handler exposes the chat REST endpoints and the websocket upgrade.
package handler

import (
	"net/http"
	"net/url"
	"strings"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/auth"
	"staychat/backend/internal/chathub"
	"staychat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options configures a Handler.
type Options struct {
	UploadDir      string
	AllowedOrigins []string
	// SharedPresence is set when the store reads presence from the Redis
	// mirror. Stored online flags are then trusted alongside local connections.
	SharedPresence bool
	Logger         zerolog.Logger
}

// Handler holds the collaborators of the HTTP surface.
type Handler struct {
	Hub   *chathub.ManagerService
	Store storage.Storage
	JWT   *auth.JWTManager

	uploadDir      string
	origins        map[string]bool
	sharedPresence bool
	upgrader       websocket.Upgrader
	log            zerolog.Logger
}

func NewHandler(hub *chathub.ManagerService, store storage.Storage, jwt *auth.JWTManager, opts Options) *Handler {
	h := &Handler{
		Hub:            hub,
		Store:          store,
		JWT:            jwt,
		uploadDir:      opts.UploadDir,
		origins:        make(map[string]bool, len(opts.AllowedOrigins)),
		sharedPresence: opts.SharedPresence,
		log:            opts.Logger.With().Str("component", "http").Logger(),
	}
	for _, o := range opts.AllowedOrigins {
		h.origins[strings.TrimRight(o, "/")] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts same-host requests, non-browser clients without an
// Origin header, and the configured origins. "*" allows any origin.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins["*"] || h.origins[strings.TrimRight(origin, "/")] {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// respondError writes the JSON error body for err. Server errors are logged
// and their detail is not exposed.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Name(err), "message": msg})
}
