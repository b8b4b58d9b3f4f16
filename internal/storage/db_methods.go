package storage

import (
	"context"
	"sort"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListMessages returns the room history, oldest first.
func (s *Service) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, apperr.Invalid("malformed room id %q", roomID)
	}
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.Server("list messages", err)
	}
	return msgs, nil
}

// AppendMessage persists a message and bumps the room's updatedAt.
func (s *Service) AppendMessage(ctx context.Context, n models.NewMessage) (*models.Message, error) {
	n, err := PrepareMessage(n)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(n.RoomID); err != nil {
		return nil, apperr.Invalid("malformed room id %q", n.RoomID)
	}

	msg := models.Message{
		RoomID:     n.RoomID,
		SenderID:   n.SenderID,
		SenderRole: n.SenderRole,
		Text:       n.Text,
		ImageURL:   n.ImageURL,
		Status:     n.Status,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Room{}).Where("id = ?", n.RoomID).Update("updated_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, apperr.Server("append message", err)
	}
	return &msg, nil
}

// MarkSeen flips the reader's unseen incoming messages and returns them.
func (s *Service) MarkSeen(ctx context.Context, roomID, readerID string) ([]models.Message, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, apperr.Invalid("malformed room id %q", roomID)
	}
	var flipped []models.Message
	err := s.DB.WithContext(ctx).
		Model(&flipped).
		Clauses(clause.Returning{}).
		Where("room_id = ? AND sender_id <> ? AND status <> ?", roomID, readerID, models.StatusSeen).
		Update("status", models.StatusSeen).Error
	if err != nil {
		return nil, apperr.Server("mark seen", err)
	}
	sort.Slice(flipped, func(i, j int) bool {
		if flipped[i].CreatedAt.Equal(flipped[j].CreatedAt) {
			return flipped[i].ID < flipped[j].ID
		}
		return flipped[i].CreatedAt.Before(flipped[j].CreatedAt)
	})
	return flipped, nil
}

// MarkMessageSeen flips one message to seen unless the reader sent it.
func (s *Service) MarkMessageSeen(ctx context.Context, roomID, messageID, readerID string) (*models.Message, bool, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, false, apperr.Invalid("malformed room id %q", roomID)
	}
	var msg models.Message
	if err := s.DB.WithContext(ctx).First(&msg, "id = ? AND room_id = ?", messageID, roomID).Error; err != nil {
		return nil, false, notFoundOr(err, "get message", "message %s not found", messageID)
	}
	if msg.SenderID == readerID || !msg.Status.Advances(models.StatusSeen) {
		return &msg, false, nil
	}

	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status <> ?", messageID, models.StatusSeen).
		Update("status", models.StatusSeen)
	if res.Error != nil {
		return nil, false, apperr.Server("mark message seen", res.Error)
	}
	msg.Status = models.StatusSeen
	return &msg, res.RowsAffected > 0, nil
}

// gormDirectory is a users or owners table.
type gormDirectory struct {
	db    *gorm.DB
	role  models.Role
	table string
}

func (d *gormDirectory) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	err := d.db.WithContext(ctx).Table(d.table).Where("id = ?", id).
		Updates(map[string]any{"is_online": online, "last_seen": lastSeen}).Error
	if err != nil {
		return apperr.Server("set presence", err)
	}
	return nil
}

func (d *gormDirectory) Touch(context.Context, []string) error { return nil }

func (d *gormDirectory) Profiles(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	out := make(map[string]models.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Profile
	if err := d.db.WithContext(ctx).Table(d.table).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperr.Server("load profiles", err)
	}
	for _, p := range rows {
		out[p.ID] = models.Participant{
			ID:         p.ID,
			Role:       d.role,
			Name:       p.Name,
			ProfilePic: p.ProfilePic,
			IsOnline:   p.IsOnline,
			LastSeen:   p.LastSeen,
		}
	}
	return out, nil
}
