package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is the conversation between one requester and one provider about one listing.
// (ListingID, RequesterID) is unique; ProviderID follows the listing's current provider.
type Room struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	ListingID   string    `gorm:"not null;uniqueIndex:idx_room_listing_requester" json:"listingId"`
	RequesterID string    `gorm:"not null;uniqueIndex:idx_room_listing_requester;index" json:"requesterId"`
	ProviderID  string    `gorm:"not null;index" json:"providerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `gorm:"index" json:"updatedAt"`
}

// BeforeCreate assigns a UUID when the room has no id yet.
func (r *Room) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// HasIdentity reports whether id is the requester or the provider of the room.
// Requester and provider ids come from separate id spaces, so the role must match too.
func (r *Room) HasIdentity(id Identity) bool {
	if id.ID == "" {
		return false
	}
	switch id.Role {
	case RoleRequester:
		return r.RequesterID == id.ID
	case RoleProvider:
		return r.ProviderID == id.ID
	default:
		return false
	}
}

// Counterpart returns the participant on the other side from id.
// ok is false when id does not belong to the room.
func (r *Room) Counterpart(id Identity) (Identity, bool) {
	if !r.HasIdentity(id) {
		return Identity{}, false
	}
	if id.Role == RoleRequester {
		return Identity{ID: r.ProviderID, Role: RoleProvider}, true
	}
	return Identity{ID: r.RequesterID, Role: RoleRequester}, true
}

// Listing is the read model of a property listing; only the fields chat needs.
type Listing struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Title      string `json:"title"`
	ProviderID string `gorm:"index" json:"providerId"`
}

// RoomSummary is a room as shown in a participant's room list.
type RoomSummary struct {
	Room
	ListingTitle  string      `json:"listingTitle"`
	Other         Participant `json:"other"`
	LastMessage   string      `json:"lastMessage"`
	LastImageURL  string      `json:"lastImageUrl,omitempty"`
	LastMessageAt *time.Time  `json:"lastMessageAt,omitempty"`
	UnreadCount   int         `json:"unreadCount"`
}
