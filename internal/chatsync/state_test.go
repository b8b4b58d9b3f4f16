package chatsync_test

import (
	"fmt"
	"testing"
	"time"

	"staychat/backend/internal/chatsync"
	"staychat/backend/internal/config"
	"staychat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func summary(id, otherID string, updated time.Time) models.RoomSummary {
	return models.RoomSummary{
		Room:  models.Room{ID: id, ListingID: "l-" + id, RequesterID: "u1", ProviderID: otherID, UpdatedAt: updated},
		Other: models.Participant{ID: otherID, Role: models.RoleProvider},
	}
}

func message(id, roomID, sender string, at time.Time) models.Message {
	return models.Message{ID: id, RoomID: roomID, SenderID: sender, Text: "text " + id, Status: models.StatusDelivered, CreatedAt: at}
}

func envelope(t *testing.T, event string, data any) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(event, data)
	require.NoError(t, err)
	return env
}

func newState() *chatsync.State {
	s := chatsync.New("u1")
	s.SetRooms([]models.RoomSummary{
		summary("r1", "p1", base),
		summary("r2", "p2", base.Add(time.Minute)),
	})
	return s
}

func TestState_SetRoomsOrdersByActivity(t *testing.T) {
	s := newState()
	assert.Equal(t, []string{"r2", "r1"}, s.RoomIDs())
}

func TestState_DualDeliveryRendersOnce(t *testing.T) {
	s := newState()
	msg := message("m1", "r1", "p1", base.Add(time.Hour))

	// Room channel copy, then the direct copy of the same message.
	_, err := s.Apply(envelope(t, models.EventReceiveMessage, msg))
	require.NoError(t, err)
	_, err = s.Apply(envelope(t, models.EventReceiveMessage, msg))
	require.NoError(t, err)

	assert.Len(t, s.Messages("r1"), 1)
	assert.Equal(t, 1, s.Unread("r1"))
}

func TestState_UnreadRules(t *testing.T) {
	s := newState()
	s.Open("r2")

	s.Receive(message("m1", "r1", "p1", base.Add(time.Hour)))
	s.Receive(message("m2", "r1", "u1", base.Add(2*time.Hour)))
	effects := s.Receive(message("m3", "r2", "p2", base.Add(3*time.Hour)))

	assert.Equal(t, 1, s.Unread("r1"), "own messages never count")
	assert.Equal(t, 0, s.Unread("r2"), "active room stays read")
	assert.Equal(t, 1, s.TotalUnread())
	assert.Equal(t, []chatsync.Effect{{Kind: chatsync.EffectSeenMessage, RoomID: "r2", MessageID: "m3"}}, effects)
}

func TestState_ReceiveMovesRoomToTop(t *testing.T) {
	s := newState()
	at := base.Add(time.Hour)

	s.Receive(models.Message{ID: "m1", RoomID: "r1", SenderID: "p1", ImageURL: "/uploads/a.png", CreatedAt: at})

	rooms := s.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "r1", rooms[0].ID)
	assert.Equal(t, "/uploads/a.png", rooms[0].LastImageURL)
	require.NotNil(t, rooms[0].LastMessageAt)
	assert.True(t, rooms[0].LastMessageAt.Equal(at))
	assert.Equal(t, "r2", rooms[1].ID)
}

func TestState_UnknownRoomRequestsRefetch(t *testing.T) {
	s := newState()

	effects := s.Receive(message("m1", "r9", "p9", base))

	assert.Equal(t, []chatsync.Effect{{Kind: chatsync.EffectRefetch}}, effects)
	assert.Len(t, s.Messages("r9"), 1)

	s.SetRooms(append(s.Rooms(), summary("r9", "p9", base.Add(time.Hour))))
	assert.Equal(t, "r9", s.RoomIDs()[0])
}

func TestState_OpenClearsUnreadAndMarksSeen(t *testing.T) {
	s := newState()
	s.Receive(message("m1", "r1", "p1", base.Add(time.Hour)))
	s.Receive(message("m2", "r1", "p1", base.Add(2*time.Hour)))
	require.Equal(t, 2, s.Unread("r1"))

	effects := s.Open("r1")

	assert.Equal(t, []chatsync.Effect{{Kind: chatsync.EffectMarkSeen, RoomID: "r1"}}, effects)
	assert.Equal(t, 0, s.Unread("r1"))
	assert.Equal(t, "r1", s.ActiveRoom())
}

func TestState_SeenOnlyMovesForward(t *testing.T) {
	s := newState()
	msg := message("m1", "r1", "u1", base)
	s.SetMessages("r1", []models.Message{msg})

	seen := msg
	seen.Status = models.StatusSeen
	_, err := s.Apply(envelope(t, models.EventMessageSeen, seen))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeen, s.Messages("r1")[0].Status)

	stale := msg
	stale.Status = models.StatusDelivered
	assert.False(t, s.Seen(stale))
	assert.Equal(t, models.StatusSeen, s.Messages("r1")[0].Status)

	assert.False(t, s.Seen(models.Message{ID: "missing", RoomID: "r1", Status: models.StatusSeen}))
}

func TestState_TypingTrackedForActiveRoomOnly(t *testing.T) {
	s := newState()
	s.Open("r1")

	s.Typing(models.TypingSignal{RoomID: "r2", UserID: "p2", DisplayName: "Bob"}, true)
	s.Typing(models.TypingSignal{RoomID: "r1", UserID: "u1", DisplayName: "Me"}, true)
	_, err := s.Apply(envelope(t, models.EventTyping, models.TypingSignal{RoomID: "r1", UserID: "p1", DisplayName: "Alice"}))
	require.NoError(t, err)

	assert.Equal(t, []chatsync.Typist{{UserID: "p1", DisplayName: "Alice"}}, s.Typists())

	_, err = s.Apply(envelope(t, models.EventStopTyping, models.TypingSignal{RoomID: "r1", UserID: "p1", DisplayName: "Alice"}))
	require.NoError(t, err)
	assert.Empty(t, s.Typists())

	s.Typing(models.TypingSignal{RoomID: "r1", UserID: "p1", DisplayName: "Alice"}, true)
	s.Open("r2")
	assert.Empty(t, s.Typists(), "switching rooms resets typing")
}

func TestState_PresenceLastWriteWins(t *testing.T) {
	s := newState()
	seenAt := base.Add(time.Hour)

	_, err := s.Apply(envelope(t, models.EventUserStatus, models.PresenceUpdate{UserID: "p1", Role: models.RoleProvider, IsOnline: true}))
	require.NoError(t, err)
	_, err = s.Apply(envelope(t, models.EventUserStatus, models.PresenceUpdate{UserID: "p1", Role: models.RoleProvider, IsOnline: false, LastSeen: &seenAt}))
	require.NoError(t, err)

	p, ok := s.PresenceOf("p1")
	require.True(t, ok)
	assert.False(t, p.IsOnline)
	require.NotNil(t, p.LastSeen)
	assert.True(t, p.LastSeen.Equal(seenAt))

	for _, r := range s.Rooms() {
		if r.ID == "r1" {
			assert.False(t, r.Other.IsOnline)
		}
	}

	// A later snapshot keeps the live status.
	snap := summary("r1", "p1", base)
	snap.Other.IsOnline = true
	s.SetRooms([]models.RoomSummary{snap})
	assert.False(t, s.Rooms()[0].Other.IsOnline)
}

func TestState_ApplyRejectsBadPayload(t *testing.T) {
	s := newState()
	_, err := s.Apply(models.Envelope{Event: models.EventReceiveMessage, Data: []byte(`"nope"`)})
	assert.Error(t, err)

	effects, err := s.Apply(models.Envelope{Event: "somethingElse"})
	assert.NoError(t, err)
	assert.Nil(t, effects)
}

func TestState_EvictedDuplicateStillSuppressedByHistory(t *testing.T) {
	s := newState()
	first := message("m0", "r1", "p1", base)
	s.Receive(first)

	for i := 1; i <= config.RecentMessageWindow; i++ {
		s.Receive(message(fmt.Sprintf("x%d", i), "r2", "p2", base))
	}

	// m0 fell out of the window but is still in the stored history.
	assert.Nil(t, s.Receive(first))
	assert.Len(t, s.Messages("r1"), 1)
	assert.Equal(t, 1, s.Unread("r1"))
}
