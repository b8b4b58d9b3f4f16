package models

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// MessageStatus is the delivery state of a message. It only moves forward.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.rank() > s.rank()
}

// Message is a persisted chat message.
// The embedded ULID id sorts by creation time, which breaks createdAt ties.
type Message struct {
	ID         string        `gorm:"primaryKey;type:char(26)" json:"id"`
	RoomID     string        `gorm:"type:uuid;not null;index:idx_room_msg,priority:1" json:"roomId"`
	SenderID   string        `gorm:"not null;index" json:"senderId"`
	SenderRole Role          `gorm:"type:text;not null" json:"senderRole"`
	Text       string        `gorm:"type:text" json:"text,omitempty"`
	ImageURL   string        `gorm:"type:text" json:"imageUrl,omitempty"`
	Status     MessageStatus `gorm:"type:text;not null;default:sent;index" json:"status"`
	CreatedAt  time.Time     `gorm:"index:idx_room_msg,priority:2" json:"createdAt"`
}

// BeforeCreate assigns a ULID when the message has no id yet.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	return
}

// NewMessage is the input of Storage.AppendMessage.
type NewMessage struct {
	RoomID     string
	SenderID   string
	SenderRole Role
	Text       string
	ImageURL   string
	Status     MessageStatus
}

// Normalize trims the payload and defaults the status.
func (n NewMessage) Normalize() NewMessage {
	n.Text = strings.TrimSpace(n.Text)
	n.ImageURL = strings.TrimSpace(n.ImageURL)
	if n.Status == "" {
		n.Status = StatusSent
	}
	return n
}

// Empty reports whether the message carries neither text nor an image.
func (n NewMessage) Empty() bool {
	return strings.TrimSpace(n.Text) == "" && strings.TrimSpace(n.ImageURL) == ""
}
