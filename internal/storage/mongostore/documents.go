package mongostore

import (
	"time"

	"staychat/backend/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type roomDoc struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	ListingID   bson.ObjectID `bson:"listing_id"`
	RequesterID bson.ObjectID `bson:"requester_id"`
	ProviderID  bson.ObjectID `bson:"provider_id"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

func (d roomDoc) model() models.Room {
	return models.Room{
		ID:          d.ID.Hex(),
		ListingID:   d.ListingID.Hex(),
		RequesterID: d.RequesterID.Hex(),
		ProviderID:  d.ProviderID.Hex(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type messageDoc struct {
	ID         bson.ObjectID        `bson:"_id,omitempty"`
	RoomID     bson.ObjectID        `bson:"room_id"`
	SenderID   bson.ObjectID        `bson:"sender_id"`
	SenderRole models.Role          `bson:"sender_role"`
	Text       string               `bson:"text,omitempty"`
	ImageURL   string               `bson:"image_url,omitempty"`
	Status     models.MessageStatus `bson:"status"`
	CreatedAt  time.Time            `bson:"created_at"`
}

func (d messageDoc) model() models.Message {
	return models.Message{
		ID:         d.ID.Hex(),
		RoomID:     d.RoomID.Hex(),
		SenderID:   d.SenderID.Hex(),
		SenderRole: d.SenderRole,
		Text:       d.Text,
		ImageURL:   d.ImageURL,
		Status:     d.Status,
		CreatedAt:  d.CreatedAt,
	}
}

func messageModels(docs []messageDoc) []models.Message {
	out := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out
}

type listingDoc struct {
	ID         bson.ObjectID `bson:"_id"`
	Title      string        `bson:"title"`
	ProviderID bson.ObjectID `bson:"provider_id,omitempty"`
}

type profileDoc struct {
	ID         bson.ObjectID `bson:"_id"`
	Name       string        `bson:"name"`
	ProfilePic string        `bson:"profile_pic,omitempty"`
	IsOnline   bool          `bson:"is_online"`
	LastSeen   *time.Time    `bson:"last_seen"`
}

// lastMessageAgg is one row of the last-message-per-room pipeline.
type lastMessageAgg struct {
	RoomID    bson.ObjectID `bson:"_id"`
	Text      string        `bson:"text"`
	ImageURL  string        `bson:"image_url"`
	CreatedAt time.Time     `bson:"created_at"`
}

type unreadAgg struct {
	RoomID bson.ObjectID `bson:"_id"`
	Count  int           `bson:"count"`
}
