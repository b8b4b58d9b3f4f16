package chathub_test

import (
	"encoding/json"
	"testing"
	"time"

	"staychat/backend/internal/chathub"
	"staychat/backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typingSetup(ttl time.Duration) (*chathub.TypingRelay, *MockClient, *MockClient) {
	router := chathub.NewRouter(zerolog.Nop())
	alice := newMockClient("alice", models.Identity{ID: "u1", Role: models.RoleRequester})
	bob := newMockClient("bob", models.Identity{ID: "p1", Role: models.RoleProvider})
	room := chathub.RoomChannel("r1")
	router.Join(room, alice)
	router.Join(room, bob)
	return chathub.NewTypingRelay(router, ttl, zerolog.Nop()), alice, bob
}

func TestTyping_RelayExcludesOrigin(t *testing.T) {
	relay, alice, bob := typingSetup(time.Second)

	relay.Start(alice, models.TypingSignal{RoomID: "r1", DisplayName: "Alice"})

	env := nextEvent(t, bob, models.EventTyping)
	var sig models.TypingSignal
	require.NoError(t, json.Unmarshal(env.Data, &sig))
	assert.Equal(t, "Alice", sig.DisplayName)
	assert.Equal(t, "u1", sig.UserID)
	noEvent(t, alice, models.EventTyping, 20*time.Millisecond)

	relay.Stop(alice, models.TypingSignal{RoomID: "r1", DisplayName: "Alice"})
	nextEvent(t, bob, models.EventStopTyping)
	assert.False(t, relay.Active("r1", alice))
}

func TestTyping_ExpiresWithoutRenewal(t *testing.T) {
	relay, alice, bob := typingSetup(50 * time.Millisecond)

	relay.Start(alice, models.TypingSignal{RoomID: "r1", DisplayName: "Alice"})
	nextEvent(t, bob, models.EventTyping)
	assert.True(t, relay.Active("r1", alice))

	env := nextEvent(t, bob, models.EventStopTyping)
	var sig models.TypingSignal
	require.NoError(t, json.Unmarshal(env.Data, &sig))
	assert.Equal(t, "u1", sig.UserID)
	assert.False(t, relay.Active("r1", alice))
}

func TestTyping_ClearOnDisconnect(t *testing.T) {
	relay, alice, bob := typingSetup(time.Minute)

	relay.Start(alice, models.TypingSignal{RoomID: "r1", DisplayName: "Alice"})
	nextEvent(t, bob, models.EventTyping)

	relay.Clear(alice)
	nextEvent(t, bob, models.EventStopTyping)
	assert.False(t, relay.Active("r1", alice))
}

func TestTyping_IgnoredOutsideJoinedRoom(t *testing.T) {
	relay, alice, bob := typingSetup(time.Second)

	relay.Start(alice, models.TypingSignal{RoomID: "other-room"})
	assert.False(t, relay.Active("other-room", alice))
	noEvent(t, bob, models.EventTyping, 20*time.Millisecond)
}

func TestTyping_StopWithoutOpenSignalIsSilent(t *testing.T) {
	relay, alice, bob := typingSetup(time.Second)

	relay.Stop(alice, models.TypingSignal{RoomID: "r1"})
	noEvent(t, bob, models.EventStopTyping, 20*time.Millisecond)

	relay.Start(alice, models.TypingSignal{RoomID: "r1", DisplayName: "Alice"})
	nextEvent(t, bob, models.EventTyping)
	relay.Stop(alice, models.TypingSignal{RoomID: "r1"})
	env := nextEvent(t, bob, models.EventStopTyping)
	var sig models.TypingSignal
	require.NoError(t, json.Unmarshal(env.Data, &sig))
	assert.Equal(t, "Alice", sig.DisplayName)

	relay.Stop(alice, models.TypingSignal{RoomID: "r1"})
	noEvent(t, bob, models.EventStopTyping, 20*time.Millisecond)
}
