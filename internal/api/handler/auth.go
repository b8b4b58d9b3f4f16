package handler

import (
	"staychat/backend/internal/apperr"
	"staychat/backend/internal/auth"
	"staychat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireAuth resolves the bearer token to an identity and stores it in the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.JWT.Identify(auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole rejects authenticated callers with another role.
func (h *Handler) RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := identityFrom(c); id.Role != role {
			h.respondError(c, apperr.Unauthorized("only %s accounts may do this", role))
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(models.Identity)
	return id
}

// IdentityKey keys rate limiters by caller identity, falling back to the client IP.
func IdentityKey(c *gin.Context) string {
	if id := identityFrom(c); id.ID != "" {
		return id.String()
	}
	return c.ClientIP()
}
