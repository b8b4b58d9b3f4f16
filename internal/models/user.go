package models

import (
	"fmt"
	"strings"
	"time"
)

// Role tags which side of a conversation an identity is on.
type Role string

const (
	// RoleRequester is the tenant side that starts a chat about a listing.
	RoleRequester Role = "requester"
	// RoleProvider is the owner side that lists the property.
	RoleProvider Role = "provider"
	// RoleAdmin can authenticate but owns no rooms.
	RoleAdmin Role = "admin"
)

// ParseRole accepts the canonical role names and the legacy token names
// "user" and "owner" issued by the account service.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requester", "user":
		return RoleRequester, nil
	case "provider", "owner":
		return RoleProvider, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleProvider || r == RoleAdmin
}

// Identity is the authenticated principal behind a request or connection.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (i Identity) String() string {
	return string(i.Role) + ":" + i.ID
}

// Profile holds the directory fields the chat core reads and the presence
// fields it writes. It is embedded in both account tables.
type Profile struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Name       string     `json:"name"`
	ProfilePic string     `json:"profilePic,omitempty"`
	IsOnline   bool       `gorm:"not null;default:false" json:"isOnline"`
	LastSeen   *time.Time `json:"lastSeen"`
}

// UserAccount is the requester directory row. Rows are owned by the account
// service; the chat core only updates presence columns.
type UserAccount struct {
	Profile
}

func (UserAccount) TableName() string { return "users" }

// OwnerAccount is the provider directory row.
type OwnerAccount struct {
	Profile
}

func (OwnerAccount) TableName() string { return "owners" }

// Participant is the display info of the other party attached to a room summary.
type Participant struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Name       string     `json:"name"`
	ProfilePic string     `json:"profilePic,omitempty"`
	IsOnline   bool       `json:"isOnline"`
	LastSeen   *time.Time `json:"lastSeen"`
}
