package handler

import (
	"staychat/backend/internal/models"
	"staychat/backend/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the chat API on r. uploads may be nil.
func (h *Handler) RegisterRoutes(r gin.IRouter, uploads *ratelimit.LimiterStore) {
	r.GET("/healthz", h.Healthz)
	r.GET("/ws", h.ServeWebSocket)
	r.Static("/uploads", h.uploadDir)

	chat := r.Group("/chat", h.RequireAuth())
	chat.POST("/start", h.RequireRole(models.RoleRequester), h.StartChat)
	chat.GET("/my-rooms", h.MyRooms)

	upload := []gin.HandlerFunc{}
	if uploads != nil {
		upload = append(upload, uploads.Middleware(IdentityKey))
	}
	chat.POST("/upload-image", append(upload, h.UploadImage)...)

	chat.GET("/:roomId", h.GetMessages)
	chat.PUT("/:roomId/read", h.MarkRead)
	chat.DELETE("/:roomId", h.ClearRoom)
}
