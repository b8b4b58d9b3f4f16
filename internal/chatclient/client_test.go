package chatclient_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"staychat/backend/internal/api/handler"
	"staychat/backend/internal/apperr"
	"staychat/backend/internal/auth"
	"staychat/backend/internal/chatclient"
	"staychat/backend/internal/chathub"
	"staychat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	requester = models.Identity{ID: "u1", Role: models.RoleRequester}
	provider  = models.Identity{ID: "p1", Role: models.RoleProvider}
)

const (
	waitFor = 3 * time.Second
	tick    = 20 * time.Millisecond
)

type server struct {
	store *memStore
	jwt   *auth.JWTManager
	srv   *httptest.Server
}

func newServer(t *testing.T) *server {
	return newServerWith(t, chathub.Options{})
}

func newServerWith(t *testing.T, opts chathub.Options) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	store.listings["l1"] = models.Listing{ID: "l1", Title: "Sea view flat", ProviderID: "p1"}

	opts.Logger = zerolog.Nop()
	hub := chathub.NewManagerService(store, opts)
	go hub.Run()

	jwt := auth.NewJWTManager("test-secret", time.Hour)
	h := handler.NewHandler(hub, store, jwt, handler.Options{UploadDir: t.TempDir(), Logger: zerolog.Nop()})
	r := gin.New()
	h.RegisterRoutes(r, nil)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	return &server{store: store, jwt: jwt, srv: srv}
}

func (s *server) client(t *testing.T, id models.Identity) *chatclient.Client {
	t.Helper()
	return s.clientWith(t, chatclient.Config{Self: id})
}

// clientWith fills in the server address, token and logger of cfg.
func (s *server) clientWith(t *testing.T, cfg chatclient.Config) *chatclient.Client {
	t.Helper()
	token, _, err := s.jwt.GenerateToken(cfg.Self)
	require.NoError(t, err)
	cfg.BaseURL, cfg.Token, cfg.Logger = s.srv.URL, token, zerolog.Nop()
	c, err := chatclient.New(cfg)
	require.NoError(t, err)
	return c
}

func (s *server) connect(t *testing.T, id models.Identity) *chatclient.Client {
	t.Helper()
	return s.connectWith(t, chatclient.Config{Self: id})
}

func (s *server) connectWith(t *testing.T, cfg chatclient.Config) *chatclient.Client {
	t.Helper()
	c := s.clientWith(t, cfg)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := chatclient.New(chatclient.Config{BaseURL: "http://localhost", Self: requester})
	assert.Error(t, err)
	_, err = chatclient.New(chatclient.Config{Token: "t", Self: requester})
	assert.Error(t, err)
}

func TestClient_ConnectRejectsBadToken(t *testing.T) {
	s := newServer(t)
	c, err := chatclient.New(chatclient.Config{BaseURL: s.srv.URL, Token: "garbage", Self: requester, Logger: zerolog.Nop()})
	require.NoError(t, err)

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestClient_RESTErrorsKeepTheirKind(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	_, err := s.client(t, provider).StartChat(ctx, "l1")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "providers cannot start chats")

	_, err = s.client(t, requester).StartChat(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.client(t, requester).Messages(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// A requester opens a chat, the provider learns about it from the first
// message, reads it, and the requester sees the read receipt.
func TestClient_ConversationFlow(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	owner := s.connect(t, provider)
	tenant := s.connect(t, requester)

	room, err := tenant.StartChat(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "u1", room.RequesterID)
	assert.Equal(t, "p1", room.ProviderID)

	again, err := tenant.StartChat(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)

	require.NoError(t, tenant.Sync(ctx))
	require.NoError(t, tenant.Send(room.ID, "Is this available?", ""))

	// The provider had no rooms: the direct copy triggers a refetch.
	require.Eventually(t, func() bool {
		return len(owner.State.RoomIDs()) == 1 && len(owner.State.Messages(room.ID)) == 1
	}, waitFor, tick)
	assert.Equal(t, 1, owner.State.Unread(room.ID))
	assert.Equal(t, "Sea view flat", owner.State.Rooms()[0].ListingTitle)

	msg := owner.State.Messages(room.ID)[0]
	assert.Equal(t, "Is this available?", msg.Text)
	assert.Equal(t, models.StatusDelivered, msg.Status)

	require.Eventually(t, func() bool { return len(tenant.State.Messages(room.ID)) == 1 }, waitFor, tick)
	assert.Equal(t, 0, tenant.State.Unread(room.ID), "own messages are never unread")

	// Opening the room marks it read and the sender gets messageSeen.
	require.NoError(t, owner.Open(ctx, room.ID))
	assert.Equal(t, 0, owner.State.Unread(room.ID))
	require.Eventually(t, func() bool {
		msgs := tenant.State.Messages(room.ID)
		return len(msgs) == 1 && msgs[0].Status == models.StatusSeen
	}, waitFor, tick)

	n, err := owner.MarkRead(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "marking read twice changes nothing")

	// While the room is open, live messages are acknowledged one by one.
	require.NoError(t, tenant.Send(room.ID, "Hello?", ""))
	require.Eventually(t, func() bool {
		msgs := tenant.State.Messages(room.ID)
		return len(msgs) == 2 && msgs[1].Status == models.StatusSeen
	}, waitFor, tick)
	assert.Equal(t, 0, owner.State.Unread(room.ID))
}

func TestClient_TypingReachesOpenRoom(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	owner := s.connect(t, provider)
	tenant := s.connect(t, requester)
	room, err := tenant.StartChat(ctx, "l1")
	require.NoError(t, err)
	require.NoError(t, owner.Sync(ctx))
	require.NoError(t, owner.Open(ctx, room.ID))
	require.NoError(t, tenant.Open(ctx, room.ID))

	typing := tenant.NewTypingNotifier(room.ID, "Tenant")
	require.NoError(t, typing.Keystroke())
	require.Eventually(t, func() bool {
		ts := owner.State.Typists()
		return len(ts) == 1 && ts[0].UserID == "u1" && ts[0].DisplayName == "Tenant"
	}, waitFor, tick)

	require.NoError(t, typing.Stop())
	require.Eventually(t, func() bool { return len(owner.State.Typists()) == 0 }, waitFor, tick)
}

func TestClient_TypingSurvivesServerTTL(t *testing.T) {
	s := newServerWith(t, chathub.Options{TypingTTL: 300 * time.Millisecond})
	ctx := context.Background()

	owner := s.connect(t, provider)
	tenant := s.connectWith(t, chatclient.Config{Self: requester, TypingRenew: 100 * time.Millisecond})
	room, err := tenant.StartChat(ctx, "l1")
	require.NoError(t, err)
	require.NoError(t, owner.Sync(ctx))
	require.NoError(t, owner.Open(ctx, room.ID))
	require.NoError(t, tenant.Open(ctx, room.ID))

	typing := tenant.NewTypingNotifier(room.ID, "Tenant")
	require.NoError(t, typing.Keystroke())
	require.Eventually(t, func() bool { return len(owner.State.Typists()) == 1 }, waitFor, tick)

	// Keep typing for four times the server TTL.
	for i := 0; i < 24; i++ {
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, typing.Keystroke())
		assert.Len(t, owner.State.Typists(), 1, "still typing after %d keystrokes", i+1)
	}

	require.NoError(t, typing.Stop())
	require.Eventually(t, func() bool { return len(owner.State.Typists()) == 0 }, waitFor, tick)
}

func TestClient_PresenceAcrossReconnect(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	owner := s.connect(t, provider)
	tenant := s.connect(t, requester)
	_, err := tenant.StartChat(ctx, "l1")
	require.NoError(t, err)
	require.NoError(t, owner.Sync(ctx))

	require.NoError(t, tenant.Close())
	require.Eventually(t, func() bool {
		p, ok := owner.State.PresenceOf("u1")
		return ok && !p.IsOnline && p.LastSeen != nil
	}, waitFor, tick)
	assert.False(t, owner.State.Rooms()[0].Other.IsOnline)

	s.connect(t, requester)
	require.Eventually(t, func() bool {
		p, ok := owner.State.PresenceOf("u1")
		return ok && p.IsOnline && p.LastSeen == nil
	}, waitFor, tick)
	assert.True(t, owner.State.Rooms()[0].Other.IsOnline)
}

func TestClient_ClearKeepsRoom(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	tenant := s.connect(t, requester)
	room, err := tenant.StartChat(ctx, "l1")
	require.NoError(t, err)
	require.NoError(t, tenant.Sync(ctx))
	require.NoError(t, tenant.Send(room.ID, "first", ""))
	require.Eventually(t, func() bool { return len(tenant.State.Messages(room.ID)) == 1 }, waitFor, tick)

	require.NoError(t, tenant.ClearRoom(ctx, room.ID))

	msgs, err := tenant.Messages(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, tenant.State.Messages(room.ID))

	rooms, err := tenant.MyRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)
}

func TestClient_UploadImage(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	tenant := s.client(t, requester)

	url, err := tenant.UploadImage(ctx, "photo.png", bytes.NewReader([]byte("\x89PNG\r\n\x1a\nfake")))
	require.NoError(t, err)
	assert.Regexp(t, `^/uploads/chat-[0-9a-z]{26}\.png$`, url)

	_, err = tenant.UploadImage(ctx, "notes.txt", bytes.NewReader([]byte("hi")))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
