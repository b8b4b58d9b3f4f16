// Package bootstrap opens the external dependencies selected by the
// configuration. It is shared by the server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"staychat/backend/internal/auth"
	"staychat/backend/internal/config"
	"staychat/backend/internal/storage"
	"staychat/backend/internal/storage/mongostore"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TokenTTL is the lifetime of tokens issued by this process.
const TokenTTL = 24 * time.Hour

// ProviderSyncer is implemented by stores that can re-point a listing's rooms
// at its current provider.
type ProviderSyncer interface {
	SyncProvider(ctx context.Context, listingID string) (int64, error)
}

// OpenStore connects Redis (when configured) and the selected backend and
// prepares its schema.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Storage, error) {
	rdb, err := OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, rdb)
		if err != nil {
			closeRedis(rdb)
			return nil, err
		}
		if err := store.CreateIndexes(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create mongo indexes: %w", err)
		}
		log.Info().Str("database", cfg.MongoDatabase).Bool("redis", rdb != nil).Msg("mongo store ready")
		return store, nil

	default:
		level := gormlogger.Warn
		if !cfg.IsDevelopment() {
			level = gormlogger.Error
		}
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN()), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(level),
		})
		if err != nil {
			closeRedis(rdb)
			return nil, fmt.Errorf("failed to connect PostgreSQL: %w", err)
		}
		store := storage.NewStorageService(db, rdb)
		if err := store.AutoMigrate(cfg.IsDevelopment()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Bool("redis", rdb != nil).Msg("postgres store ready")
		return store, nil
	}
}

// OpenRedis returns nil when url is empty.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect Redis: %w", err)
	}
	return rdb, nil
}

// JWTManager builds the token manager from JWT_KEYS or JWT_SECRET.
func JWTManager(cfg *config.Config) (*auth.JWTManager, error) {
	if cfg.JWTKeys == "" {
		return auth.NewJWTManager(cfg.JWTSecret, TokenTTL), nil
	}
	keys, err := cfg.ParseJWTKeys()
	if err != nil {
		return nil, err
	}
	if _, ok := keys[cfg.JWTActiveKid]; !ok {
		return nil, fmt.Errorf("JWT_ACTIVE_KID %q not found in JWT_KEYS", cfg.JWTActiveKid)
	}
	return auth.NewJWTManagerFromKeys(keys, cfg.JWTActiveKid, TokenTTL), nil
}

func closeRedis(rdb *redis.Client) {
	if rdb != nil {
		_ = rdb.Close()
	}
}
