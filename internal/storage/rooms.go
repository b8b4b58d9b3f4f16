package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// FindOrCreateRoom upserts the room for (listing, requester) and refreshes its provider.
func (s *Service) FindOrCreateRoom(ctx context.Context, listingID, requesterID string) (*models.Room, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" || requesterID == "" {
		return nil, apperr.Invalid("listing id and requester id are required")
	}

	var listing models.Listing
	if err := s.DB.WithContext(ctx).First(&listing, "id = ?", listingID).Error; err != nil {
		return nil, notFoundOr(err, "find listing", "listing %s not found", listingID)
	}
	if listing.ProviderID == "" {
		return nil, apperr.Invalid("listing %s has no provider", listingID)
	}

	room, err := s.upsertRoom(ctx, listingID, requesterID, listing.ProviderID)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the insert race against a concurrent start; the row exists now.
		room, err = s.upsertRoom(ctx, listingID, requesterID, listing.ProviderID)
	}
	if err != nil {
		return nil, apperr.Server("upsert room", err)
	}
	return room, nil
}

func (s *Service) upsertRoom(ctx context.Context, listingID, requesterID, providerID string) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).
		Where(models.Room{ListingID: listingID, RequesterID: requesterID}).
		Assign(models.Room{ProviderID: providerID}).
		FirstOrCreate(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom loads a room by id.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, apperr.Invalid("malformed room id %q", roomID)
	}
	var room models.Room
	if err := s.DB.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, notFoundOr(err, "get room", "room %s not found", roomID)
	}
	return &room, nil
}

type lastMessageRow struct {
	RoomID    string
	Text      string
	ImageURL  string
	CreatedAt time.Time
}

type unreadRow struct {
	RoomID string
	Count  int
}

// ListRoomsForIdentity returns the identity's rooms, most recently active first.
// After the room query it issues one query each for listings, last messages and
// unread counts, plus one directory lookup.
func (s *Service) ListRoomsForIdentity(ctx context.Context, id models.Identity) ([]models.RoomSummary, error) {
	otherRole, ok := CounterpartRole(id.Role)
	if !ok {
		return []models.RoomSummary{}, nil
	}

	column := "requester_id"
	if id.Role == models.RoleProvider {
		column = "provider_id"
	}

	db := s.DB.WithContext(ctx)
	var rooms []models.Room
	if err := db.Where(column+" = ?", id.ID).Order("updated_at DESC").Find(&rooms).Error; err != nil {
		return nil, apperr.Server("list rooms", err)
	}
	if len(rooms) == 0 {
		return []models.RoomSummary{}, nil
	}

	roomIDs := make([]string, 0, len(rooms))
	listingIDs := make([]string, 0, len(rooms))
	for _, r := range rooms {
		roomIDs = append(roomIDs, r.ID)
		listingIDs = append(listingIDs, r.ListingID)
	}

	var listings []models.Listing
	if err := db.Select("id", "title").Where("id = ANY(?)", pq.Array(listingIDs)).Find(&listings).Error; err != nil {
		return nil, apperr.Server("load listings", err)
	}
	titles := make(map[string]string, len(listings))
	for _, l := range listings {
		titles[l.ID] = l.Title
	}

	var lastRows []lastMessageRow
	err := db.Raw(`SELECT DISTINCT ON (room_id) room_id, text, image_url, created_at
		FROM messages
		WHERE room_id = ANY(?::uuid[])
		ORDER BY room_id, created_at DESC, id DESC`, pq.Array(roomIDs)).
		Scan(&lastRows).Error
	if err != nil {
		return nil, apperr.Server("aggregate last messages", err)
	}
	last := make(map[string]LastMessage, len(lastRows))
	for _, r := range lastRows {
		last[r.RoomID] = LastMessage(r)
	}

	var unreadRows []unreadRow
	err = db.Raw(`SELECT room_id, COUNT(*) AS count
		FROM messages
		WHERE room_id = ANY(?::uuid[]) AND sender_id <> ? AND status <> ?
		GROUP BY room_id`, pq.Array(roomIDs), id.ID, models.StatusSeen).
		Scan(&unreadRows).Error
	if err != nil {
		return nil, apperr.Server("aggregate unread counts", err)
	}
	unread := make(map[string]int, len(unreadRows))
	for _, r := range unreadRows {
		unread[r.RoomID] = r.Count
	}

	dir, err := s.Directory(otherRole)
	if err != nil {
		return nil, err
	}
	profiles, err := dir.Profiles(ctx, CounterpartIDs(id, rooms))
	if err != nil {
		return nil, apperr.Server("load participants", err)
	}

	return Summarize(id, rooms, titles, last, unread, profiles), nil
}

// ClearRoom deletes every message of the room. The room itself is kept.
func (s *Service) ClearRoom(ctx context.Context, roomID string, requester models.Identity) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasIdentity(requester) {
		return apperr.Unauthorized("%s is not a participant of room %s", requester, roomID)
	}
	if err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.Message{}).Error; err != nil {
		return apperr.Server("clear room", err)
	}
	return nil
}

// SyncProvider re-points every room of a listing at the listing's current provider.
// Used by the admin CLI after a listing changes hands.
func (s *Service) SyncProvider(ctx context.Context, listingID string) (int64, error) {
	var listing models.Listing
	if err := s.DB.WithContext(ctx).First(&listing, "id = ?", listingID).Error; err != nil {
		return 0, notFoundOr(err, "find listing", "listing %s not found", listingID)
	}
	res := s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("listing_id = ? AND provider_id <> ?", listingID, listing.ProviderID).
		Update("provider_id", listing.ProviderID)
	if res.Error != nil {
		return 0, apperr.Server("sync provider", res.Error)
	}
	return res.RowsAffected, nil
}
