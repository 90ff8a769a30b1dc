package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/monitoring"
	"addrdir/backend/internal/storage"
)

// AddressService 用户地址的创建、主地址切换、删除与地址解析。
//
// 服务本身不持有可变共享状态，并发安全由存储层保证。
type AddressService struct {
	directory   storage.DirectoryRepository
	users       storage.UserRepository
	maxForwards int
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	now         func() time.Time
}

// NewAddressService 创建地址业务服务。
func NewAddressService(directory storage.DirectoryRepository, users storage.UserRepository, cfg *config.Config, log *zap.Logger) *AddressService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AddressService{
		directory:   directory,
		users:       users,
		maxForwards: cfg.Forwarding.MaxForwardsPerDay,
		logger:      log,
		now:         time.Now,
	}
}

// SetMetrics 注入监控指标（可选）。
func (s *AddressService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// CreateUserAddressInput 定义创建用户地址的输入。
type CreateUserAddressInput struct {
	UserID        string
	Address       string
	MakeDefault   bool // 创建后设为主地址
	AllowWildcard bool // 允许 "*@domain" 或 "user@*"
}

// CreateUserAddress 为用户创建一个新地址。
//
// 插入成功后，如果要求设为主地址或用户还没有主地址，则更新用户的主地址。
// 这一步失败不会回滚已插入的地址，只记录警告。
func (s *AddressService) CreateUserAddress(ctx context.Context, input CreateUserAddressInput) (*domain.AddressRecord, error) {
	key, address, err := domain.ValidateAddress(input.Address, input.AllowWildcard)
	if err != nil {
		return nil, err
	}

	wildcard := strings.Contains(address, domain.Wildcard)
	if input.MakeDefault && wildcard {
		return nil, domain.ErrWildcardNotAllowedAsDefault
	}

	user, err := s.getUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	// 预检只是提示，并发冲突以存储层唯一索引为准
	if err := checkAvailable(ctx, s.directory, key); err != nil {
		return nil, err
	}

	record := &domain.AddressRecord{
		ID:           uuid.NewString(),
		Address:      address,
		CanonicalKey: key,
		CreatedAt:    s.now().UTC(),
		Binding:      domain.UserBinding{UserID: user.ID},
	}

	err = s.directory.InsertUnique(ctx, record)
	s.metrics.RecordDirectoryOperation("create_user_address", err)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAddressExists, address)
		}
		return nil, unavailable("insert address", err)
	}

	s.logger.Info("user address created",
		zap.String("user_id", user.ID),
		zap.String("address_id", record.ID),
		zap.String("address", address))

	// 通配地址从不自动成为主地址
	if input.MakeDefault || (user.DefaultAddress == "" && !wildcard) {
		if err := s.users.SetDefaultAddress(ctx, user.ID, address); err != nil {
			s.logger.Warn("failed to update main address of user",
				zap.String("user_id", user.ID),
				zap.String("address", address),
				zap.Error(err))
		}
	}

	return record, nil
}

// PromoteToDefault 将用户的某个地址设为主地址。
//
// 已经是主地址时直接成功。
func (s *AddressService) PromoteToDefault(ctx context.Context, userID, addressID string) error {
	record, err := s.userRecord(ctx, userID, addressID)
	if err != nil {
		return err
	}

	if record.HasWildcard() {
		return domain.ErrWildcardNotAllowedAsDefault
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if isDefault(user, record) {
		return nil
	}

	err = s.users.SetDefaultAddress(ctx, userID, record.Address)
	s.metrics.RecordDirectoryOperation("promote_default", err)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrOwnerNotFound, userID)
		}
		return unavailable("update main address", err)
	}

	s.logger.Info("main address changed",
		zap.String("user_id", userID),
		zap.String("previous", user.DefaultAddress),
		zap.String("address", record.Address))

	return nil
}

// DeleteUserAddress 删除用户的一个地址，主地址不能删除。
func (s *AddressService) DeleteUserAddress(ctx context.Context, userID, addressID string) error {
	record, err := s.userRecord(ctx, userID, addressID)
	if err != nil {
		return err
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if isDefault(user, record) {
		return domain.ErrCannotDeleteDefault
	}

	err = s.directory.Delete(ctx, record.ID)
	s.metrics.RecordDirectoryOperation("delete_user_address", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrAddressNotFound
		}
		return unavailable("delete address", err)
	}

	s.logger.Info("user address deleted",
		zap.String("user_id", userID),
		zap.String("address_id", record.ID),
		zap.String("address", record.Address))

	return nil
}

// ListUserAddresses 返回用户的全部地址，并标记主地址。
func (s *AddressService) ListUserAddresses(ctx context.Context, userID string) ([]domain.UserAddressEntry, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	records, err := s.directory.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable("list addresses", err)
	}

	entries := make([]domain.UserAddressEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, domain.UserAddressEntry{
			ID:        record.ID,
			Address:   record.Address,
			Main:      isDefault(user, record),
			CreatedAt: record.CreatedAt,
		})
	}
	return entries, nil
}

// Resolve 解析地址 ID 或原始地址字符串。
//
// 只做精确匹配，不回退到通配地址；通配匹配由收信方完成。
func (s *AddressService) Resolve(ctx context.Context, identifier string) (domain.ResolutionResult, error) {
	start := s.now()
	result, err := s.resolve(ctx, identifier)
	s.metrics.RecordResolve(resolveOutcome(result, err), s.now().Sub(start))
	return result, err
}

func (s *AddressService) resolve(ctx context.Context, identifier string) (domain.ResolutionResult, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		record *domain.AddressRecord
		err    error
	)
	if _, parseErr := uuid.Parse(identifier); parseErr == nil {
		record, err = s.directory.FindByID(ctx, identifier)
	} else {
		key, _, cerr := domain.Canonicalize(identifier)
		if cerr != nil {
			return nil, cerr
		}
		record, err = s.directory.FindByCanonicalKey(ctx, key)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, unavailable("resolve address", err)
	}

	switch b := record.Binding.(type) {
	case domain.UserBinding:
		return domain.UserAddress{
			AddressID: record.ID,
			Address:   record.Address,
			UserID:    b.UserID,
			CreatedAt: record.CreatedAt,
		}, nil
	case *domain.ForwardBinding:
		return domain.ForwardedAddress{
			AddressID: record.ID,
			Address:   record.Address,
			Targets:   append([]domain.Target(nil), b.Targets...),
			Quota:     b.EffectiveQuota(s.maxForwards),
			Disabled:  b.Disabled,
			Autoreply: b.Autoreply.ActiveAt(s.now()),
			CreatedAt: record.CreatedAt,
		}, nil
	}

	return nil, fmt.Errorf("%w: address %s has no binding", domain.ErrStoreUnavailable, record.ID)
}

// userRecord 读取地址并确认归属于指定用户。
func (s *AddressService) userRecord(ctx context.Context, userID, addressID string) (*domain.AddressRecord, error) {
	record, err := s.directory.FindByID(ctx, addressID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, unavailable("load address", err)
	}
	if !record.OwnedBy(userID) {
		return nil, domain.ErrAddressNotFound
	}
	return record, nil
}

func (s *AddressService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOwnerNotFound, userID)
		}
		return nil, unavailable("load user", err)
	}
	return user, nil
}

// isDefault 判断地址是否为用户当前主地址。
//
// 外部系统写入的主地址可能是同一地址的另一种写法，因此按查找键比较。
func isDefault(user *domain.User, record *domain.AddressRecord) bool {
	if user.DefaultAddress == "" {
		return false
	}
	return user.DefaultAddress == record.Address || domain.SameAddress(user.DefaultAddress, record.Address)
}

func resolveOutcome(result domain.ResolutionResult, err error) string {
	switch {
	case errors.Is(err, domain.ErrAddressNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidAddress):
		return "invalid"
	case err != nil:
		return "error"
	}
	if _, ok := result.(domain.UserAddress); ok {
		return "user"
	}
	return "forwarded"
}
