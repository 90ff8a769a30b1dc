package memory

import (
	"context"
	"errors"
	"sync"

	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/storage"
)

// Store 使用内存保存地址目录与用户数据，主要用于开发验证与测试。
type Store struct {
	mu        sync.RWMutex
	addresses map[string]*domain.AddressRecord // addressID -> record
	byKey     map[string]string                // canonicalKey -> addressID
	users     map[string]*domain.User          // userID -> user
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		addresses: make(map[string]*domain.AddressRecord),
		byKey:     make(map[string]string),
		users:     make(map[string]*domain.User),
	}
}

// ========== Directory Repository ==========

// FindByCanonicalKey 根据规范查找键获取地址。
func (s *Store) FindByCanonicalKey(_ context.Context, key string) (*domain.AddressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(s.addresses[id]), nil
}

// FindByID 根据 ID 获取地址。
func (s *Store) FindByID(_ context.Context, id string) (*domain.AddressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.addresses[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(record), nil
}

// FindManyByCanonicalKeys 批量查找，不存在的键直接忽略。
func (s *Store) FindManyByCanonicalKeys(_ context.Context, keys []string) ([]*domain.AddressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.AddressRecord, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if id, ok := s.byKey[key]; ok {
			records = append(records, cloneRecord(s.addresses[id]))
		}
	}
	return records, nil
}

// ListByUser 返回指定用户的全部地址。
func (s *Store) ListByUser(_ context.Context, userID string) ([]*domain.AddressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.AddressRecord
	for _, record := range s.addresses {
		if record.OwnedBy(userID) {
			records = append(records, cloneRecord(record))
		}
	}
	sortRecords(records)
	return records, nil
}

// InsertUnique 插入新地址，查找键冲突时返回 storage.ErrDuplicateKey。
func (s *Store) InsertUnique(_ context.Context, record *domain.AddressRecord) error {
	if record.ID == "" {
		return errors.New("address ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[record.CanonicalKey]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.addresses[record.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.addresses[record.ID] = cloneRecord(record)
	s.byKey[record.CanonicalKey] = record.ID
	return nil
}

// UpdateForwarding 更新转发地址的字段。
func (s *Store) UpdateForwarding(_ context.Context, id string, update storage.ForwardingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.addresses[id]
	if !ok {
		return storage.ErrNotFound
	}
	fb, ok := record.Forwarding()
	if !ok {
		return storage.ErrNotFound
	}

	// 自动回复在锁内与当前值合并，失败时不修改任何字段
	autoreply := fb.Autoreply
	if update.Autoreply != nil {
		merged, err := update.Autoreply.Apply(fb.Autoreply)
		if err != nil {
			return err
		}
		autoreply = cloneAutoreply(merged)
	}

	if update.Targets != nil {
		fb.Targets = append([]domain.Target(nil), (*update.Targets)...)
	}
	if update.ForwardQuota != nil {
		fb.ForwardQuota = *update.ForwardQuota
	}
	fb.Autoreply = autoreply
	if update.Disabled != nil {
		fb.Disabled = *update.Disabled
	}
	return nil
}

// Delete 删除地址。
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.addresses[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byKey, record.CanonicalKey)
	delete(s.addresses, id)
	return nil
}

// ========== User Repository ==========

// SaveUser 保存用户（用户生命周期由外部系统维护，这里只用于开发和测试）。
func (s *Store) SaveUser(user *domain.User) error {
	if user.ID == "" {
		return errors.New("user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	s.users[user.ID] = &u
	return nil
}

// GetUser 根据 ID 获取用户。
func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// SetDefaultAddress 更新用户主地址。
func (s *Store) SetDefaultAddress(_ context.Context, userID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.DefaultAddress = address
	return nil
}

// ========== 工具方法 ==========

// Close 关闭存储连接
func (s *Store) Close() error {
	// 内存存储不需要关闭连接
	return nil
}

// Health 健康检查
func (s *Store) Health(context.Context) error {
	// 内存存储总是健康的
	return nil
}
