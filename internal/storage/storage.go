// Package storage is the persistence port of the chat core: rooms, messages and
// the requester/provider directories. Service implements it on PostgreSQL via gorm;
// the mongostore subpackage implements it on MongoDB.
package storage

import (
	"context"
	"errors"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the room/message store consumed by the hub and the REST handlers.
type Storage interface {
	// FindOrCreateRoom returns the room for (listing, requester), creating it on
	// first contact and re-syncing the provider with the listing's current owner.
	FindOrCreateRoom(ctx context.Context, listingID, requesterID string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// ListRoomsForIdentity returns the identity's rooms enriched with the other
	// party, listing title, last message and unread count.
	ListRoomsForIdentity(ctx context.Context, id models.Identity) ([]models.RoomSummary, error)

	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	// MarkSeen flips every message in the room not sent by readerID to seen and
	// returns the messages that changed.
	MarkSeen(ctx context.Context, roomID, readerID string) ([]models.Message, error)
	// MarkMessageSeen flips one message. changed is false when the message was
	// already seen or was sent by the reader.
	MarkMessageSeen(ctx context.Context, roomID, messageID, readerID string) (msg *models.Message, changed bool, err error)
	ClearRoom(ctx context.Context, roomID string, requester models.Identity) error

	// Directory resolves the account directory for a role.
	Directory(role models.Role) (Directory, error)

	Ping(ctx context.Context) error
	Close() error
}

// Directory is the user/owner account store as seen by the chat core.
type Directory interface {
	SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error
	// Touch keeps live presence entries from expiring.
	Touch(ctx context.Context, ids []string) error
	Profiles(ctx context.Context, ids []string) (map[string]models.Participant, error)
}

// Service implements Storage on PostgreSQL, with an optional Redis presence mirror.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client

	users  Directory
	owners Directory
}

// NewStorageService Constructor. rdb may be nil.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	s := &Service{DB: db, Redis: rdb}
	s.users = WithRedisPresence(&gormDirectory{db: db, role: models.RoleRequester, table: models.UserAccount{}.TableName()}, rdb, models.RoleRequester)
	s.owners = WithRedisPresence(&gormDirectory{db: db, role: models.RoleProvider, table: models.OwnerAccount{}.TableName()}, rdb, models.RoleProvider)
	return s
}

// AutoMigrate creates the chat tables. The directory and listing tables belong to
// the account and listing services; they are migrated only in development.
func (s *Service) AutoMigrate(withExternal bool) error {
	if err := s.DB.AutoMigrate(&models.Room{}, &models.Message{}); err != nil {
		return err
	}
	if withExternal {
		return s.DB.AutoMigrate(&models.Listing{}, &models.UserAccount{}, &models.OwnerAccount{})
	}
	return nil
}

// Directory resolves the account directory for a role.
func (s *Service) Directory(role models.Role) (Directory, error) {
	switch role {
	case models.RoleRequester:
		return s.users, nil
	case models.RoleProvider:
		return s.owners, nil
	default:
		return nil, apperr.Invalid("no directory for role %q", role)
	}
}

// Ping checks the database and, when configured, Redis.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if s.Redis != nil {
		return s.Redis.Ping(ctx).Err()
	}
	return nil
}

// Close releases the database pool and the Redis client.
func (s *Service) Close() error {
	var errs []error
	if sqlDB, err := s.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}

func notFoundOr(err error, op, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Server(op, err)
}
