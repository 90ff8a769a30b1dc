package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("没有记录时为零", func(t *testing.T) {
		tracker := NewQuotaTracker(24 * time.Hour)

		usage, err := tracker.GetUsage(ctx, "fwd-1")

		require.NoError(t, err)
		assert.Equal(t, int64(0), usage.Count)
		assert.Equal(t, time.Duration(0), usage.TTL)
	})

	t.Run("过期时间只在首次创建时设置", func(t *testing.T) {
		now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		tracker := NewQuotaTracker(24 * time.Hour)
		tracker.now = func() time.Time { return now }

		assert.Equal(t, int64(1), tracker.RecordForward("fwd-1"))

		now = now.Add(6 * time.Hour)
		assert.Equal(t, int64(2), tracker.RecordForward("fwd-1"))

		usage, err := tracker.GetUsage(ctx, "fwd-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), usage.Count)
		assert.Equal(t, 18*time.Hour, usage.TTL)
	})

	t.Run("窗口结束后重新计数", func(t *testing.T) {
		now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		tracker := NewQuotaTracker(time.Hour)
		tracker.now = func() time.Time { return now }

		tracker.RecordForward("fwd-1")
		tracker.RecordForward("fwd-1")

		now = now.Add(time.Hour)
		usage, err := tracker.GetUsage(ctx, "fwd-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), usage.Count)

		assert.Equal(t, int64(1), tracker.RecordForward("fwd-1"))
		usage, _ = tracker.GetUsage(ctx, "fwd-1")
		assert.Equal(t, time.Hour, usage.TTL)
	})
}
