package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"addrdir/backend/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "addrdir.db")
	db := []string{"--type", "sqlite", "--dsn", dsn}

	t.Run("建表", func(t *testing.T) {
		out, err := run(t, append(db, "migrate")...)
		require.NoError(t, err)
		assert.Contains(t, out, "数据库表结构已是最新")
	})

	t.Run("导入用户", func(t *testing.T) {
		out, err := run(t, append(db, "user", "add", "user-1", "--main", "main@example.com")...)
		require.NoError(t, err)
		assert.Contains(t, out, "user-1")
	})

	t.Run("解析不存在的地址失败", func(t *testing.T) {
		_, err := run(t, append(db, "resolve", "nobody@example.com")...)
		assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	})

	t.Run("参数数量错误", func(t *testing.T) {
		_, err := run(t, append(db, "user", "add")...)
		assert.Error(t, err)
	})
}

func TestCommands_RequireDatabase(t *testing.T) {
	t.Setenv("ADDRDIR_DATABASE_TYPE", "")
	t.Setenv("ADDRDIR_DATABASE_DSN", "")

	_, err := run(t, "migrate")
	assert.Error(t, err)
}
