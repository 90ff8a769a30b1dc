package service

import (
	"context"
	"errors"
	"fmt"

	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/storage"
)

// unavailable 将意外的存储错误包装为 ErrStoreUnavailable，保留原始错误链。
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

// checkAvailable 确认规范查找键尚未被任何条目占用。
func checkAvailable(ctx context.Context, directory storage.DirectoryRepository, key string) error {
	existing, err := directory.FindByCanonicalKey(ctx, key)
	if err == nil && existing != nil {
		return fmt.Errorf("%w: %s", domain.ErrAddressExists, existing.Address)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return unavailable("check address", err)
	}
	return nil
}
