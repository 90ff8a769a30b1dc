package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/monitoring"
	"addrdir/backend/internal/storage"
)

// ForwardingService 转发地址的配置管理。
type ForwardingService struct {
	directory   storage.DirectoryRepository
	tracker     storage.QuotaTracker
	maxForwards int
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	now         func() time.Time
}

// NewForwardingService 创建转发业务服务。
//
// tracker 可以为 nil，此时配额状态总是显示未使用。
func NewForwardingService(directory storage.DirectoryRepository, tracker storage.QuotaTracker, cfg *config.Config, log *zap.Logger) *ForwardingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ForwardingService{
		directory:   directory,
		tracker:     tracker,
		maxForwards: cfg.Forwarding.MaxForwardsPerDay,
		logger:      log,
		now:         time.Now,
	}
}

// SetMetrics 注入监控指标（可选）。
func (s *ForwardingService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// CreateForwardedAddressInput 定义创建转发地址的输入。
type CreateForwardedAddressInput struct {
	Address       string
	Targets       []string
	ForwardQuota  int // 0 表示使用平台默认值
	AllowWildcard bool
	Autoreply     *domain.AutoreplyPatch // nil 表示不启用自动回复
}

// UpdateForwardedAddressInput 定义转发地址的部分更新，nil 字段表示不修改。
type UpdateForwardedAddressInput struct {
	Targets      *[]string // 整体替换目标列表
	ForwardQuota *int
	Autoreply    *domain.AutoreplyPatch // 逐字段合并
	Disabled     *bool
}

// CreateForwardedAddress 创建一个转发地址。
func (s *ForwardingService) CreateForwardedAddress(ctx context.Context, input CreateForwardedAddressInput) (*domain.AddressRecord, error) {
	key, address, err := domain.ValidateAddress(input.Address, input.AllowWildcard)
	if err != nil {
		return nil, err
	}

	if input.ForwardQuota < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuota, input.ForwardQuota)
	}

	autoreply, err := input.Autoreply.Apply(domain.Autoreply{})
	if err != nil {
		return nil, err
	}

	targets, mailKeys, err := classifyTargets(input.Targets, key)
	if err != nil {
		return nil, err
	}

	if err := checkAvailable(ctx, s.directory, key); err != nil {
		return nil, err
	}

	if err := s.resolveTargets(ctx, targets, mailKeys); err != nil {
		return nil, err
	}

	record := &domain.AddressRecord{
		ID:           uuid.NewString(),
		Address:      address,
		CanonicalKey: key,
		CreatedAt:    s.now().UTC(),
		Binding: &domain.ForwardBinding{
			Targets:      targets,
			ForwardQuota: input.ForwardQuota,
			Autoreply:    autoreply,
		},
	}

	err = s.directory.InsertUnique(ctx, record)
	s.metrics.RecordDirectoryOperation("create_forwarded_address", err)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAddressExists, address)
		}
		return nil, unavailable("insert address", err)
	}

	s.logger.Info("forwarded address created",
		zap.String("address_id", record.ID),
		zap.String("address", address),
		zap.Int("targets", len(targets)))

	return record, nil
}

// UpdateForwardedAddress 更新转发地址。
//
// 目标列表整体替换；配额、禁用标记与自动回复按字段合并。
func (s *ForwardingService) UpdateForwardedAddress(ctx context.Context, addressID string, input UpdateForwardedAddressInput) error {
	record, fb, err := s.forwardedRecord(ctx, addressID)
	if err != nil {
		return err
	}

	var update storage.ForwardingUpdate

	if input.ForwardQuota != nil {
		if *input.ForwardQuota < 0 {
			return fmt.Errorf("%w: %d", domain.ErrInvalidQuota, *input.ForwardQuota)
		}
		update.ForwardQuota = input.ForwardQuota
	}

	if !input.Autoreply.Empty() {
		// 先按已读取的值校验，存储层在锁内基于最新值重新合并
		if _, err := input.Autoreply.Apply(fb.Autoreply); err != nil {
			return err
		}
		update.Autoreply = input.Autoreply
	}

	if input.Targets != nil {
		targets, mailKeys, err := classifyTargets(*input.Targets, record.CanonicalKey)
		if err != nil {
			return err
		}
		if err := s.resolveTargets(ctx, targets, mailKeys); err != nil {
			return err
		}
		update.Targets = &targets
	}

	update.Disabled = input.Disabled

	if update == (storage.ForwardingUpdate{}) {
		return nil
	}

	err = s.directory.UpdateForwarding(ctx, record.ID, update)
	s.metrics.RecordDirectoryOperation("update_forwarded_address", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrAddressNotFound
		}
		if errors.Is(err, domain.ErrInvalidAutoreply) {
			return err
		}
		return unavailable("update address", err)
	}

	s.logger.Info("forwarded address updated",
		zap.String("address_id", record.ID),
		zap.String("address", record.Address),
		zap.Bool("targets_replaced", update.Targets != nil))

	return nil
}

// DeleteForwardedAddress 删除转发地址。
func (s *ForwardingService) DeleteForwardedAddress(ctx context.Context, addressID string) error {
	record, _, err := s.forwardedRecord(ctx, addressID)
	if err != nil {
		return err
	}

	err = s.directory.Delete(ctx, record.ID)
	s.metrics.RecordDirectoryOperation("delete_forwarded_address", err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrAddressNotFound
		}
		return unavailable("delete address", err)
	}

	s.logger.Info("forwarded address deleted",
		zap.String("address_id", record.ID),
		zap.String("address", record.Address))

	return nil
}

// GetForwardingStatus 返回转发地址的配额状态。
//
// 计数器不可用时不返回错误，按未使用显示。
func (s *ForwardingService) GetForwardingStatus(ctx context.Context, addressID string) (domain.ForwardingStatus, error) {
	record, fb, err := s.forwardedRecord(ctx, addressID)
	if err != nil {
		return domain.ForwardingStatus{}, err
	}
	return s.status(ctx, record.ID, fb), nil
}

// GetForwardedAddress 返回转发地址的完整配置与配额状态。
func (s *ForwardingService) GetForwardedAddress(ctx context.Context, addressID string) (*domain.ForwardedAddressDetail, error) {
	record, fb, err := s.forwardedRecord(ctx, addressID)
	if err != nil {
		return nil, err
	}

	return &domain.ForwardedAddressDetail{
		ID:           record.ID,
		Address:      record.Address,
		Targets:      fb.Targets,
		ForwardQuota: fb.EffectiveQuota(s.maxForwards),
		Autoreply:    fb.Autoreply,
		Disabled:     fb.Disabled,
		CreatedAt:    record.CreatedAt,
		Limits:       s.status(ctx, record.ID, fb),
	}, nil
}

func (s *ForwardingService) status(ctx context.Context, addressID string, fb *domain.ForwardBinding) domain.ForwardingStatus {
	status := domain.ForwardingStatus{Allowed: fb.EffectiveQuota(s.maxForwards)}
	if s.tracker == nil {
		return status
	}

	usage, err := s.tracker.GetUsage(ctx, addressID)
	if err != nil {
		s.metrics.RecordQuotaTrackerError()
		s.logger.Warn("failed to read forward counter",
			zap.String("address_id", addressID),
			zap.Error(err))
		return status
	}

	status.Used = usage.Count
	if usage.TTL > 0 {
		status.Bounded = true
		status.TTLSeconds = int64(math.Ceil(usage.TTL.Seconds()))
	}
	return status
}

// forwardedRecord 读取转发地址，用户地址视为不存在。
func (s *ForwardingService) forwardedRecord(ctx context.Context, addressID string) (*domain.AddressRecord, *domain.ForwardBinding, error) {
	record, err := s.directory.FindByID(ctx, addressID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, domain.ErrAddressNotFound
		}
		return nil, nil, unavailable("load address", err)
	}

	fb, ok := record.Forwarding()
	if !ok {
		return nil, nil, domain.ErrAddressNotFound
	}
	return record, fb, nil
}

// classifyTargets 解析全部目标。
//
// 返回的映射只在本次调用内有效：目标 ID 到 mail 目标的规范查找键。
func classifyTargets(raw []string, ownKey string) ([]domain.Target, map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one target is required", domain.ErrInvalidTarget)
	}

	targets := make([]domain.Target, 0, len(raw))
	mailKeys := make(map[string]string)
	for _, value := range raw {
		target, key, err := domain.ClassifyTarget(value, ownKey)
		if err != nil {
			return nil, nil, err
		}
		if key != "" {
			mailKeys[target.ID] = key
		}
		targets = append(targets, target)
	}
	return targets, mailKeys, nil
}

// resolveTargets 用一次批量查询把指向本地用户地址的 mail 目标绑定到用户。
func (s *ForwardingService) resolveTargets(ctx context.Context, targets []domain.Target, mailKeys map[string]string) error {
	if len(mailKeys) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(mailKeys))
	keys := make([]string, 0, len(mailKeys))
	for _, key := range mailKeys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	records, err := s.directory.FindManyByCanonicalKeys(ctx, keys)
	if err != nil {
		return unavailable("resolve targets", err)
	}

	owners := make(map[string]string, len(records))
	for _, record := range records {
		if ub, ok := record.User(); ok {
			owners[record.CanonicalKey] = ub.UserID
		}
	}

	for i := range targets {
		if key, ok := mailKeys[targets[i].ID]; ok {
			targets[i].ResolvedUserID = owners[key]
		}
	}
	return nil
}
