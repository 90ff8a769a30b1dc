package storage

import (
	"context"
	"errors"

	"addrdir/backend/internal/domain"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey 规范查找键冲突（唯一索引）
	ErrDuplicateKey = errors.New("duplicate canonical key")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
)

// ForwardingUpdate 转发地址的字段更新，nil 字段表示不修改。
//
// Targets、ForwardQuota、Disabled 为完整的新值；Autoreply 是补丁，
// 实现必须在持有行锁（或存储锁）时读取当前值再调用 Apply 合并。
type ForwardingUpdate struct {
	Targets      *[]domain.Target
	ForwardQuota *int
	Autoreply    *domain.AutoreplyPatch
	Disabled     *bool
}

// DirectoryRepository 定义地址目录数据存取操作。
//
// 实现必须在 CanonicalKey 上保证唯一性，冲突时 InsertUnique 返回 ErrDuplicateKey。
type DirectoryRepository interface {
	FindByCanonicalKey(ctx context.Context, key string) (*domain.AddressRecord, error)
	FindByID(ctx context.Context, id string) (*domain.AddressRecord, error)
	FindManyByCanonicalKeys(ctx context.Context, keys []string) ([]*domain.AddressRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.AddressRecord, error)
	InsertUnique(ctx context.Context, record *domain.AddressRecord) error
	UpdateForwarding(ctx context.Context, id string, update ForwardingUpdate) error
	Delete(ctx context.Context, id string) error
}

// UserRepository 定义地址所属用户的读取与主地址更新。
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	SetDefaultAddress(ctx context.Context, userID, address string) error
}

// QuotaTracker 定义转发计数器的只读访问。
//
// 计数器由收信方在每次转发时原子递增，并在首次创建时设置 24 小时过期。
type QuotaTracker interface {
	GetUsage(ctx context.Context, addressID string) (domain.QuotaUsage, error)
}

// Store 定义完整的存储接口。
type Store interface {
	DirectoryRepository
	UserRepository

	// 工具方法
	Close() error
	Health(ctx context.Context) error
}
