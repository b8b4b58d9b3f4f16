package storage

import (
	"context"
	"fmt"
	"time"

	"staychat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// PresenceTTL bounds how long an online flag survives without a Touch, so a
// crashed server does not leave identities online forever.
const PresenceTTL = 90 * time.Second

// RedisPresence decorates a Directory: the durable row keeps isOnline/lastSeen,
// and a Redis key with a TTL is the live source for isOnline in Profiles.
type RedisPresence struct {
	next Directory
	rdb  *redis.Client
	role models.Role
}

// WithRedisPresence wraps dir when rdb is non-nil.
func WithRedisPresence(dir Directory, rdb *redis.Client, role models.Role) Directory {
	if rdb == nil {
		return dir
	}
	return &RedisPresence{next: dir, rdb: rdb, role: role}
}

func presenceKey(role models.Role, id string) string {
	return fmt.Sprintf("presence:%s:%s", role, id)
}

// SetPresence writes the durable row, then the live key.
func (p *RedisPresence) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	if err := p.next.SetPresence(ctx, id, online, lastSeen); err != nil {
		return err
	}
	key := presenceKey(p.role, id)
	if online {
		return p.rdb.Set(ctx, key, "1", PresenceTTL).Err()
	}
	return p.rdb.Del(ctx, key).Err()
}

// Touch extends the TTL of every live key.
func (p *RedisPresence) Touch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, id := range ids {
		pipe.Set(ctx, presenceKey(p.role, id), "1", PresenceTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Profiles reads the durable rows and overrides isOnline from Redis.
func (p *RedisPresence) Profiles(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	profiles, err := p.next.Profiles(ctx, ids)
	if err != nil || len(ids) == 0 {
		return profiles, err
	}

	pipe := p.rdb.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Exists(ctx, presenceKey(p.role, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis down: the durable flag is the best we have.
		return profiles, nil
	}
	for id, cmd := range cmds {
		prof, ok := profiles[id]
		if !ok {
			continue
		}
		prof.IsOnline = cmd.Val() > 0
		profiles[id] = prof
	}
	return profiles, nil
}
