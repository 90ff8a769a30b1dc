package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTarget(t *testing.T) {
	t.Run("按协议与格式分类", func(t *testing.T) {
		tests := []struct {
			raw  string
			kind TargetKind
		}{
			{"smtp://relay.example.com:25", TargetRelay},
			{"SMTPS://relay.example.com:465", TargetRelay},
			{"http://hooks.example.com/in", TargetHTTP},
			{"HTTPS://hooks.example.com/in?token=abc", TargetHTTP},
			{"someone@example.com", TargetMail},
		}

		for _, tt := range tests {
			target, _, err := ClassifyTarget(tt.raw, "")
			require.NoError(t, err, tt.raw)
			assert.Equal(t, tt.kind, target.Kind, tt.raw)
			assert.Equal(t, tt.raw, target.Value)
			assert.NotEmpty(t, target.ID)
		}
	})

	t.Run("mail 目标返回规范查找键并保留原始写法", func(t *testing.T) {
		target, key, err := ClassifyTarget("  Jane.Doe@Example.com ", "")

		require.NoError(t, err)
		assert.Equal(t, "janedoe@example.com", key)
		assert.Equal(t, "Jane.Doe@Example.com", target.Value)
		assert.Empty(t, target.ResolvedUserID)
	})

	t.Run("URI 目标不返回查找键", func(t *testing.T) {
		_, key, err := ClassifyTarget("https://user@hooks.example.com/in", "")

		require.NoError(t, err)
		assert.Empty(t, key)
	})

	t.Run("mail 目标允许子地址", func(t *testing.T) {
		target, key, err := ClassifyTarget("friend+news@example.org", "")

		require.NoError(t, err)
		assert.Equal(t, TargetMail, target.Kind)
		assert.Equal(t, "friend+news@example.org", key)
	})

	t.Run("每个目标的 ID 唯一", func(t *testing.T) {
		a, _, err := ClassifyTarget("a@example.com", "")
		require.NoError(t, err)
		b, _, err := ClassifyTarget("a@example.com", "")
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("转发到自身失败", func(t *testing.T) {
		for _, raw := range []string{"user@example.com", "use.r@example.com", "USER@Example.COM"} {
			_, _, err := ClassifyTarget(raw, "user@example.com")
			assert.ErrorIs(t, err, ErrSelfForward, raw)
		}
	})

	t.Run("无效目标", func(t *testing.T) {
		for _, raw := range []string{
			"",
			"ftp://files.example.com",
			"plain-text",
			"smtp://",
			"https://",
			"*@example.com",
			"mailto:a@example.com",
			"a@b@example.com",
		} {
			_, _, err := ClassifyTarget(raw, "")
			assert.ErrorIs(t, err, ErrInvalidTarget, raw)
		}
	})
}
