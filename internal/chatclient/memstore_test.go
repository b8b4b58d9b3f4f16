package chatclient_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// memStore is an in-memory storage.Storage for end-to-end tests.
type memStore struct {
	mu       sync.Mutex
	listings map[string]models.Listing
	rooms    map[string]*models.Room
	messages map[string][]models.Message
	profiles map[string]models.Participant
}

var _ storage.Storage = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		listings: map[string]models.Listing{},
		rooms:    map[string]*models.Room{},
		messages: map[string][]models.Message{},
		profiles: map[string]models.Participant{},
	}
}

func (s *memStore) FindOrCreateRoom(ctx context.Context, listingID, requesterID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[listingID]
	if !ok {
		return nil, apperr.NotFound("listing %s", listingID)
	}
	for _, r := range s.rooms {
		if r.ListingID == listingID && r.RequesterID == requesterID {
			r.ProviderID = listing.ProviderID
			cp := *r
			return &cp, nil
		}
	}
	now := time.Now().UTC()
	r := &models.Room{ID: uuid.NewString(), ListingID: listingID, RequesterID: requesterID, ProviderID: listing.ProviderID, CreatedAt: now, UpdatedAt: now}
	s.rooms[r.ID] = r
	cp := *r
	return &cp, nil
}

func (s *memStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, apperr.NotFound("room %s", roomID)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListRoomsForIdentity(ctx context.Context, id models.Identity) ([]models.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rooms []models.Room
	for _, r := range s.rooms {
		if r.HasIdentity(id) {
			rooms = append(rooms, *r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt) })

	titles := map[string]string{}
	last := map[string]storage.LastMessage{}
	unread := map[string]int{}
	for _, r := range rooms {
		titles[r.ListingID] = s.listings[r.ListingID].Title
		msgs := s.messages[r.ID]
		if n := len(msgs); n > 0 {
			m := msgs[n-1]
			last[r.ID] = storage.LastMessage{RoomID: r.ID, Text: m.Text, ImageURL: m.ImageURL, CreatedAt: m.CreatedAt}
		}
		for _, m := range msgs {
			if m.SenderID != id.ID && m.Status != models.StatusSeen {
				unread[r.ID]++
			}
		}
	}
	return storage.Summarize(id, rooms, titles, last, unread, s.profiles), nil
}

func (s *memStore) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[roomID]...), nil
}

func (s *memStore) AppendMessage(ctx context.Context, n models.NewMessage) (*models.Message, error) {
	n, err := storage.PrepareMessage(n)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[n.RoomID]
	if !ok {
		return nil, apperr.NotFound("room %s", n.RoomID)
	}
	msg := models.Message{
		ID:         ulid.Make().String(),
		RoomID:     n.RoomID,
		SenderID:   n.SenderID,
		SenderRole: n.SenderRole,
		Text:       n.Text,
		ImageURL:   n.ImageURL,
		Status:     n.Status,
		CreatedAt:  time.Now().UTC(),
	}
	s.messages[n.RoomID] = append(s.messages[n.RoomID], msg)
	r.UpdatedAt = msg.CreatedAt
	return &msg, nil
}

func (s *memStore) MarkSeen(ctx context.Context, roomID, readerID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []models.Message
	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && msgs[i].Status != models.StatusSeen {
			msgs[i].Status = models.StatusSeen
			flipped = append(flipped, msgs[i])
		}
	}
	return flipped, nil
}

func (s *memStore) MarkMessageSeen(ctx context.Context, roomID, messageID, readerID string) (*models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].SenderID == readerID || msgs[i].Status == models.StatusSeen {
			m := msgs[i]
			return &m, false, nil
		}
		msgs[i].Status = models.StatusSeen
		m := msgs[i]
		return &m, true, nil
	}
	return nil, false, apperr.NotFound("message %s", messageID)
}

func (s *memStore) ClearRoom(ctx context.Context, roomID string, requester models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return apperr.NotFound("room %s", roomID)
	}
	if !r.HasIdentity(requester) {
		return apperr.Unauthorized("not a participant")
	}
	delete(s.messages, roomID)
	return nil
}

func (s *memStore) Directory(role models.Role) (storage.Directory, error) {
	return memDirectory{s}, nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

type memDirectory struct{ s *memStore }

func (d memDirectory) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	p := d.s.profiles[id]
	p.ID = id
	p.IsOnline = online
	p.LastSeen = lastSeen
	d.s.profiles[id] = p
	return nil
}

func (d memDirectory) Touch(context.Context, []string) error { return nil }

func (d memDirectory) Profiles(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	out := make(map[string]models.Participant, len(ids))
	for _, id := range ids {
		if p, ok := d.s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
