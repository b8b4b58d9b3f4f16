// Package mongostore implements storage.Storage on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Store is the document-database backend.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	redis  *redis.Client

	rooms    *mongo.Collection
	messages *mongo.Collection
	listings *mongo.Collection

	users  storage.Directory
	owners storage.Directory
}

var _ storage.Storage = (*Store)(nil)

// Connect dials MongoDB, verifies the connection and returns a Store on database.
// rdb may be nil.
func Connect(ctx context.Context, uri, database string, rdb *redis.Client) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return New(client, database, rdb), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string, rdb *redis.Client) *Store {
	db := client.Database(database)
	s := &Store{
		client:   client,
		db:       db,
		redis:    rdb,
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
		listings: db.Collection("listings"),
	}
	s.users = storage.WithRedisPresence(&directory{coll: db.Collection("users"), role: models.RoleRequester}, rdb, models.RoleRequester)
	s.owners = storage.WithRedisPresence(&directory{coll: db.Collection("owners"), role: models.RoleProvider}, rdb, models.RoleProvider)
	return s
}

// CreateIndexes creates the room uniqueness and message ordering indexes.
func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "requester_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create room indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "status", Value: 1}, {Key: "sender_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

// Directory resolves the account directory for a role.
func (s *Store) Directory(role models.Role) (storage.Directory, error) {
	switch role {
	case models.RoleRequester:
		return s.users, nil
	case models.RoleProvider:
		return s.owners, nil
	default:
		return nil, apperr.Invalid("no directory for role %q", role)
	}
}

// Ping checks MongoDB and, when configured, Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return err
	}
	if s.redis != nil {
		return s.redis.Ping(ctx).Err()
	}
	return nil
}

// Close disconnects from MongoDB and Redis.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := []error{s.client.Disconnect(ctx)}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

func parseID(kind, hex string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, apperr.Invalid("malformed %s id %q", kind, hex)
	}
	return oid, nil
}

func parseIDs(kind string, hexes []string) ([]bson.ObjectID, error) {
	out := make([]bson.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		oid, err := parseID(kind, h)
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}

func notFoundOr(err error, op, format string, args ...any) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Server(op, err)
}
