package chathub_test

import (
	"context"
	"time"

	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) FindOrCreateRoom(ctx context.Context, listingID, requesterID string) (*models.Room, error) {
	args := m.Called(ctx, listingID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockStorage) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockStorage) ListRoomsForIdentity(ctx context.Context, id models.Identity) ([]models.RoomSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoomSummary), args.Error(1)
}

func (m *MockStorage) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) AppendMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkSeen(ctx context.Context, roomID, readerID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkMessageSeen(ctx context.Context, roomID, messageID, readerID string) (*models.Message, bool, error) {
	args := m.Called(ctx, roomID, messageID, readerID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Message), args.Bool(1), args.Error(2)
}

func (m *MockStorage) ClearRoom(ctx context.Context, roomID string, requester models.Identity) error {
	args := m.Called(ctx, roomID, requester)
	return args.Error(0)
}

func (m *MockStorage) Directory(role models.Role) (storage.Directory, error) {
	args := m.Called(role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(storage.Directory), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDirectory is a testify mock of storage.Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	args := m.Called(ctx, id, online, lastSeen)
	return args.Error(0)
}

func (m *MockDirectory) Touch(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDirectory) Profiles(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.Participant), args.Error(1)
}

// newPresenceStore returns a storage mock whose directories accept every presence write.
func newPresenceStore() (*MockStorage, *MockDirectory) {
	store := new(MockStorage)
	dir := new(MockDirectory)
	dir.On("SetPresence", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dir.On("Touch", mock.Anything, mock.Anything).Return(nil)
	store.On("Directory", models.RoleRequester).Return(dir, nil)
	store.On("Directory", models.RoleProvider).Return(dir, nil)
	return store, dir
}
