package handler

import (
	"context"
	"net/http"
	"strings"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/config"
	"staychat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type startChatRequest struct {
	StayID    string `json:"stayId"`
	ListingID string `json:"listingId"`
}

// StartChat finds or creates the caller's room for a listing.
func (h *Handler) StartChat(c *gin.Context) {
	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Invalid("malformed body: %v", err))
		return
	}
	listingID := strings.TrimSpace(req.StayID)
	if listingID == "" {
		listingID = strings.TrimSpace(req.ListingID)
	}
	if listingID == "" {
		h.respondError(c, apperr.Invalid("stayId is required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.StoreTimeout)
	defer cancel()

	room, err := h.Store.FindOrCreateRoom(ctx, listingID, identityFrom(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// MyRooms lists the caller's rooms with live presence of the other party.
func (h *Handler) MyRooms(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.StoreTimeout)
	defer cancel()

	rooms, err := h.Store.ListRoomsForIdentity(ctx, identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.Other.ID)
	}
	// Without the Redis mirror a stored online flag may outlive a crashed
	// process, so local connections decide alone.
	online := h.Hub.Presence.Snapshot(ids)
	for i := range rooms {
		other := &rooms[i].Other
		other.IsOnline = online[other.ID] || (h.sharedPresence && other.IsOnline)
	}
	c.JSON(http.StatusOK, rooms)
}

// GetMessages returns a room's history to its participants.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.StoreTimeout)
	defer cancel()

	room, err := h.participantRoom(ctx, c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	msgs, err := h.Store.ListMessages(ctx, room.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// MarkRead marks the room read for the caller and notifies the senders.
func (h *Handler) MarkRead(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.StoreTimeout)
	defer cancel()

	flipped, err := h.Hub.Delivery.MarkRoomSeen(ctx, identityFrom(c), c.Param("roomId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "seen": len(flipped)})
}

// ClearRoom deletes the room's messages.
func (h *Handler) ClearRoom(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.StoreTimeout)
	defer cancel()

	if err := h.Store.ClearRoom(ctx, c.Param("roomId"), identityFrom(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat cleared"})
}

func (h *Handler) participantRoom(ctx context.Context, c *gin.Context) (*models.Room, error) {
	id := identityFrom(c)
	room, err := h.Store.GetRoom(ctx, c.Param("roomId"))
	if err != nil {
		return nil, err
	}
	if !room.HasIdentity(id) {
		return nil, apperr.Unauthorized("%s is not a participant of room %s", id, room.ID)
	}
	return room, nil
}
