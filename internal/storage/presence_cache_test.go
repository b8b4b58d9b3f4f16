package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"staychat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDirectory struct {
	rows map[string]models.Participant
}

func (m *memDirectory) SetPresence(_ context.Context, id string, online bool, lastSeen *time.Time) error {
	p := m.rows[id]
	p.ID, p.IsOnline, p.LastSeen = id, online, lastSeen
	m.rows[id] = p
	return nil
}

func (m *memDirectory) Touch(context.Context, []string) error { return nil }

func (m *memDirectory) Profiles(_ context.Context, ids []string) (map[string]models.Participant, error) {
	out := map[string]models.Participant{}
	for _, id := range ids {
		if p, ok := m.rows[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestWithRedisPresence_NilClient(t *testing.T) {
	dir := &memDirectory{rows: map[string]models.Participant{}}
	assert.Same(t, Directory(dir), WithRedisPresence(dir, nil, models.RoleRequester))
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPresence_OverlaysLiveFlag(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	// A stale row left online by a crashed server.
	inner := &memDirectory{rows: map[string]models.Participant{
		"stale": {ID: "stale", IsOnline: true},
	}}
	dir := WithRedisPresence(inner, rdb, models.RoleRequester)
	t.Cleanup(func() { rdb.Del(ctx, presenceKey(models.RoleRequester, "live"), presenceKey(models.RoleRequester, "stale")) })

	require.NoError(t, dir.SetPresence(ctx, "live", true, nil))
	require.NoError(t, dir.Touch(ctx, []string{"live"}))

	ttl, err := rdb.TTL(ctx, presenceKey(models.RoleRequester, "live")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	profiles, err := dir.Profiles(ctx, []string{"live", "stale"})
	require.NoError(t, err)
	assert.True(t, profiles["live"].IsOnline)
	assert.False(t, profiles["stale"].IsOnline)

	now := time.Now()
	require.NoError(t, dir.SetPresence(ctx, "live", false, &now))
	profiles, err = dir.Profiles(ctx, []string{"live"})
	require.NoError(t, err)
	assert.False(t, profiles["live"].IsOnline)
	assert.NotNil(t, profiles["live"].LastSeen)
}
