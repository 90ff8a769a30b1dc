package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/storage"
)

func userRecord(id, address, key, userID string) *domain.AddressRecord {
	return &domain.AddressRecord{
		ID:           id,
		Address:      address,
		CanonicalKey: key,
		CreatedAt:    time.Now().UTC(),
		Binding:      domain.UserBinding{UserID: userID},
	}
}

func forwardRecord(id, address, key string) *domain.AddressRecord {
	return &domain.AddressRecord{
		ID:           id,
		Address:      address,
		CanonicalKey: key,
		CreatedAt:    time.Now().UTC(),
		Binding: &domain.ForwardBinding{
			Targets: []domain.Target{{ID: "t1", Kind: domain.TargetMail, Value: "a@other.com"}},
		},
	}
}

func TestMemoryStore_DirectoryOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.InsertUnique(ctx, userRecord("addr-1", "john.doe@example.com", "johndoe@example.com", "user-1")))
	require.NoError(t, store.InsertUnique(ctx, forwardRecord("addr-2", "sales@example.com", "sales@example.com")))

	// 按查找键与 ID 查询
	found, err := store.FindByCanonicalKey(ctx, "johndoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "addr-1", found.ID)

	found, err = store.FindByID(ctx, "addr-2")
	require.NoError(t, err)
	_, ok := found.Forwarding()
	assert.True(t, ok)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 唯一性
	err = store.InsertUnique(ctx, userRecord("addr-3", "johndoe@example.com", "johndoe@example.com", "user-2"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	err = store.InsertUnique(ctx, userRecord("addr-1", "other@example.com", "other@example.com", "user-2"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// 批量查询忽略不存在与重复的键
	records, err := store.FindManyByCanonicalKeys(ctx, []string{"johndoe@example.com", "nobody@example.com", "johndoe@example.com", "sales@example.com"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// 按用户列出
	records, err = store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "addr-1", records[0].ID)

	// 删除后查找键可以重新使用
	require.NoError(t, store.Delete(ctx, "addr-1"))
	assert.ErrorIs(t, store.Delete(ctx, "addr-1"), storage.ErrNotFound)
	_, err = store.FindByCanonicalKey(ctx, "johndoe@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, store.InsertUnique(ctx, userRecord("addr-4", "johndoe@example.com", "johndoe@example.com", "user-2")))
}

func TestMemoryStore_UpdateForwarding(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.InsertUnique(ctx, forwardRecord("fwd-1", "desk@example.com", "desk@example.com")))
	require.NoError(t, store.InsertUnique(ctx, userRecord("usr-1", "me@example.com", "me@example.com", "user-1")))

	t.Run("只更新给定字段", func(t *testing.T) {
		quota := 10
		disabled := true
		err := store.UpdateForwarding(ctx, "fwd-1", storage.ForwardingUpdate{
			ForwardQuota: &quota,
			Disabled:     &disabled,
		})
		require.NoError(t, err)

		record, _ := store.FindByID(ctx, "fwd-1")
		fb, _ := record.Forwarding()
		assert.Equal(t, 10, fb.ForwardQuota)
		assert.True(t, fb.Disabled)
		assert.Len(t, fb.Targets, 1)
	})

	t.Run("替换目标列表与自动回复", func(t *testing.T) {
		targets := []domain.Target{
			{ID: "t2", Kind: domain.TargetHTTP, Value: "https://hooks.example.net"},
			{ID: "t3", Kind: domain.TargetRelay, Value: "smtp://relay.example.net"},
		}
		enabled, subject := true, "Away"
		err := store.UpdateForwarding(ctx, "fwd-1", storage.ForwardingUpdate{
			Targets:   &targets,
			Autoreply: &domain.AutoreplyPatch{Enabled: &enabled, Subject: &subject},
		})
		require.NoError(t, err)

		record, _ := store.FindByID(ctx, "fwd-1")
		fb, _ := record.Forwarding()
		assert.Equal(t, targets, fb.Targets)
		assert.Equal(t, "Away", fb.Autoreply.Subject)
	})

	t.Run("自动回复补丁基于当前值合并", func(t *testing.T) {
		text, html := "hello", "<p>hello</p>"
		require.NoError(t, store.UpdateForwarding(ctx, "fwd-1", storage.ForwardingUpdate{
			Autoreply: &domain.AutoreplyPatch{Text: &text, HTML: &html},
		}))

		empty := ""
		require.NoError(t, store.UpdateForwarding(ctx, "fwd-1", storage.ForwardingUpdate{
			Autoreply: &domain.AutoreplyPatch{Text: &empty},
		}))
		subject := "Back soon"
		require.NoError(t, store.UpdateForwarding(ctx, "fwd-1", storage.ForwardingUpdate{
			Autoreply: &domain.AutoreplyPatch{Subject: &subject},
		}))

		record, _ := store.FindByID(ctx, "fwd-1")
		fb, _ := record.Forwarding()
		assert.Equal(t, "Back soon", fb.Autoreply.Subject)
		assert.Empty(t, fb.Autoreply.Text)
		assert.Empty(t, fb.Autoreply.HTML)
		assert.True(t, fb.Autoreply.Enabled)
	})

	t.Run("无效的自动回复不修改任何字段", func(t *testing.T) {
		quota := 99
		long := strings.Repeat("x", domain.MaxAutoreplySubjectLength+1)
		err := store.UpdateForwarding(ctx, "fwd-1", storage.ForwardingUpdate{
			ForwardQuota: &quota,
			Autoreply:    &domain.AutoreplyPatch{Subject: &long},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAutoreply)

		record, _ := store.FindByID(ctx, "fwd-1")
		fb, _ := record.Forwarding()
		assert.Equal(t, 10, fb.ForwardQuota)
	})

	t.Run("用户地址与不存在的地址返回未找到", func(t *testing.T) {
		quota := 1
		assert.ErrorIs(t, store.UpdateForwarding(ctx, "usr-1", storage.ForwardingUpdate{ForwardQuota: &quota}), storage.ErrNotFound)
		assert.ErrorIs(t, store.UpdateForwarding(ctx, "missing", storage.ForwardingUpdate{ForwardQuota: &quota}), storage.ErrNotFound)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	original := forwardRecord("fwd-1", "desk@example.com", "desk@example.com")
	require.NoError(t, store.InsertUnique(ctx, original))

	// 修改调用方持有的对象不影响存储
	original.Address = "changed@example.com"
	fb, _ := original.Forwarding()
	fb.Targets[0].Value = "changed@other.com"

	record, err := store.FindByID(ctx, "fwd-1")
	require.NoError(t, err)
	assert.Equal(t, "desk@example.com", record.Address)

	stored, _ := record.Forwarding()
	assert.Equal(t, "a@other.com", stored.Targets[0].Value)

	stored.Targets[0].Value = "mutated@other.com"
	again, _ := store.FindByID(ctx, "fwd-1")
	againFB, _ := again.Forwarding()
	assert.Equal(t, "a@other.com", againFB.Targets[0].Value)
}

func TestMemoryStore_UserOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.SaveUser(&domain.User{ID: "user-1"}))
	assert.Error(t, store.SaveUser(&domain.User{}))

	require.NoError(t, store.SetDefaultAddress(ctx, "user-1", "main@example.com"))
	user, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "main@example.com", user.DefaultAddress)

	_, err = store.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	assert.ErrorIs(t, store.SetDefaultAddress(ctx, "ghost", "x@example.com"), storage.ErrUserNotFound)

	assert.NoError(t, store.Health(ctx))
	assert.NoError(t, store.Close())
}

func TestMemoryStore_ConcurrentInsertSameKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record := userRecord(fmt.Sprintf("addr-%d", i), "race@example.com", "race@example.com", "user-1")
			if err := store.InsertUnique(ctx, record); err == nil {
				inserted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	// 并发插入同一查找键只有一个成功
	assert.Equal(t, int32(1), inserted.Load())
}

func BenchmarkMemoryStore_FindByCanonicalKey(b *testing.B) {
	ctx := context.Background()
	store := NewStore()
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("user%d@example.com", i)
		_ = store.InsertUnique(ctx, userRecord(fmt.Sprintf("addr-%d", i), key, key, "user-1"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.FindByCanonicalKey(ctx, fmt.Sprintf("user%d@example.com", i%1000))
	}
}
