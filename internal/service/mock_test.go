package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/storage"
	"addrdir/backend/internal/storage/memory"
)

// MockDirectory 模拟地址目录存储
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindByCanonicalKey(ctx context.Context, key string) (*domain.AddressRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AddressRecord), args.Error(1)
}

func (m *MockDirectory) FindByID(ctx context.Context, id string) (*domain.AddressRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AddressRecord), args.Error(1)
}

func (m *MockDirectory) FindManyByCanonicalKeys(ctx context.Context, keys []string) ([]*domain.AddressRecord, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AddressRecord), args.Error(1)
}

func (m *MockDirectory) ListByUser(ctx context.Context, userID string) ([]*domain.AddressRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AddressRecord), args.Error(1)
}

func (m *MockDirectory) InsertUnique(ctx context.Context, record *domain.AddressRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDirectory) UpdateForwarding(ctx context.Context, id string, update storage.ForwardingUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockDirectory) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockUsers 模拟用户存储
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUsers) SetDefaultAddress(ctx context.Context, userID, address string) error {
	args := m.Called(ctx, userID, address)
	return args.Error(0)
}

// MockTracker 模拟转发计数器
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) GetUsage(ctx context.Context, addressID string) (domain.QuotaUsage, error) {
	args := m.Called(ctx, addressID)
	return args.Get(0).(domain.QuotaUsage), args.Error(1)
}

func newTestConfig() *config.Config {
	return &config.Config{
		Forwarding: config.ForwardingConfig{
			MaxForwardsPerDay: 2000,
			Window:            24 * time.Hour,
		},
	}
}

// newTestStore 创建内存存储并写入测试用户
func newTestStore(t *testing.T, userIDs ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, id := range userIDs {
		require.NoError(t, store.SaveUser(&domain.User{ID: id}))
	}
	return store
}

func ptr[T any](v T) *T {
	return &v
}
