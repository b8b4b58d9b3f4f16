package storage

import (
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"
)

// LastMessage is the per-room aggregate used to enrich room summaries.
type LastMessage struct {
	RoomID    string
	Text      string
	ImageURL  string
	CreatedAt time.Time
}

// CounterpartRole returns the role on the other side of a room from role.
// ok is false for roles that own no rooms.
func CounterpartRole(role models.Role) (models.Role, bool) {
	switch role {
	case models.RoleRequester:
		return models.RoleProvider, true
	case models.RoleProvider:
		return models.RoleRequester, true
	default:
		return "", false
	}
}

// CounterpartIDs collects the distinct ids of the other party across rooms.
func CounterpartIDs(viewer models.Identity, rooms []models.Room) []string {
	seen := make(map[string]bool, len(rooms))
	ids := make([]string, 0, len(rooms))
	for i := range rooms {
		other, ok := rooms[i].Counterpart(viewer)
		if !ok || seen[other.ID] {
			continue
		}
		seen[other.ID] = true
		ids = append(ids, other.ID)
	}
	return ids
}

// Summarize joins rooms with the bulk aggregates. Rooms keep their input order.
func Summarize(
	viewer models.Identity,
	rooms []models.Room,
	titles map[string]string,
	last map[string]LastMessage,
	unread map[string]int,
	profiles map[string]models.Participant,
) []models.RoomSummary {
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		sum := models.RoomSummary{
			Room:         room,
			ListingTitle: titles[room.ListingID],
			UnreadCount:  unread[room.ID],
		}
		if other, ok := room.Counterpart(viewer); ok {
			p, found := profiles[other.ID]
			if !found {
				p = models.Participant{ID: other.ID}
			}
			p.Role = other.Role
			sum.Other = p
		}
		if lm, ok := last[room.ID]; ok {
			at := lm.CreatedAt
			sum.LastMessage = lm.Text
			sum.LastImageURL = lm.ImageURL
			sum.LastMessageAt = &at
		}
		out = append(out, sum)
	}
	return out
}

// PrepareMessage validates an append request and applies defaults.
func PrepareMessage(n models.NewMessage) (models.NewMessage, error) {
	n = n.Normalize()
	if n.RoomID == "" {
		return n, apperr.Invalid("room id is required")
	}
	if n.SenderID == "" {
		return n, apperr.Invalid("sender id is required")
	}
	if n.Empty() {
		return n, apperr.Invalid("message needs text or an image")
	}
	return n, nil
}
