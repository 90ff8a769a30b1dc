package memory

import (
	"context"
	"sync"
	"time"

	"addrdir/backend/internal/domain"
)

// QuotaTracker 内存版转发计数器（开发模式下替代 Redis）。
type QuotaTracker struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*counterEntry
	now     func() time.Time
}

// counterEntry 计数条目
type counterEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewQuotaTracker 创建内存计数器，window 为计数窗口（通常 24 小时）。
func NewQuotaTracker(window time.Duration) *QuotaTracker {
	return &QuotaTracker{
		window:  window,
		entries: make(map[string]*counterEntry),
		now:     time.Now,
	}
}

// RecordForward 记录一次转发，首次创建计数器时设置过期时间，之后不再延长。
func (q *QuotaTracker) RecordForward(addressID string) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	entry, ok := q.entries[addressID]
	if !ok || !now.Before(entry.ExpiresAt) {
		entry = &counterEntry{ExpiresAt: now.Add(q.window)}
		q.entries[addressID] = entry
	}
	entry.Count++
	return entry.Count
}

// GetUsage 获取当前计数与剩余时间。
func (q *QuotaTracker) GetUsage(_ context.Context, addressID string) (domain.QuotaUsage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	entry, ok := q.entries[addressID]
	if !ok || !now.Before(entry.ExpiresAt) {
		delete(q.entries, addressID)
		return domain.QuotaUsage{}, nil
	}
	return domain.QuotaUsage{
		Count: entry.Count,
		TTL:   entry.ExpiresAt.Sub(now),
	}, nil
}
