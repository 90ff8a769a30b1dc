package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ADDRDIR_SERVER_HOST",
	"ADDRDIR_SERVER_PORT",
	"ADDRDIR_SMTP_BIND_ADDR",
	"ADDRDIR_SMTP_MAX_RATE",
	"ADDRDIR_SMTP_MAX_CONNS",
	"ADDRDIR_LOG_LEVEL",
	"ADDRDIR_LOG_DEVELOPMENT",
	"ADDRDIR_DATABASE_TYPE",
	"ADDRDIR_DATABASE_DRIVER",
	"ADDRDIR_DATABASE_DSN",
	"ADDRDIR_REDIS_ADDRESS",
	"ADDRDIR_FORWARDING_MAX_FORWARDS_PER_DAY",
	"ADDRDIR_FORWARDING_WINDOW",
	"ADDRDIR_CORS_ALLOWED_ORIGINS",
}

// clearEnv 清空相关环境变量（测试结束后自动恢复）
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "", cfg.SMTP.BindAddr)
		assert.Equal(t, 50, cfg.SMTP.MaxRate)
		assert.Equal(t, 100, cfg.SMTP.MaxConns)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Equal(t, "", cfg.Database.Type)
		assert.Equal(t, "pgx", cfg.Database.Driver)
		assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
		assert.Equal(t, "", cfg.Redis.Address)
		assert.Equal(t, 2000, cfg.Forwarding.MaxForwardsPerDay)
		assert.Equal(t, 24*time.Hour, cfg.Forwarding.Window)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADDRDIR_SERVER_HOST", "127.0.0.1")
		t.Setenv("ADDRDIR_SERVER_PORT", "9090")
		t.Setenv("ADDRDIR_SMTP_BIND_ADDR", ":2525")
		t.Setenv("ADDRDIR_LOG_LEVEL", "debug")
		t.Setenv("ADDRDIR_LOG_DEVELOPMENT", "true")
		t.Setenv("ADDRDIR_DATABASE_TYPE", "Postgres")
		t.Setenv("ADDRDIR_DATABASE_DRIVER", "pq")
		t.Setenv("ADDRDIR_DATABASE_DSN", "postgres://u:p@localhost/addrdir")
		t.Setenv("ADDRDIR_REDIS_ADDRESS", "localhost:6379")
		t.Setenv("ADDRDIR_FORWARDING_MAX_FORWARDS_PER_DAY", "150")
		t.Setenv("ADDRDIR_FORWARDING_WINDOW", "12h")
		t.Setenv("ADDRDIR_CORS_ALLOWED_ORIGINS", "http://localhost:3000, http://localhost:5173")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
		assert.Equal(t, "postgres", cfg.Database.Type)
		assert.Equal(t, "pq", cfg.Database.Driver)
		assert.Equal(t, "localhost:6379", cfg.Redis.Address)
		assert.Equal(t, 150, cfg.Forwarding.MaxForwardsPerDay)
		assert.Equal(t, 12*time.Hour, cfg.Forwarding.Window)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("不支持的数据库类型失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADDRDIR_DATABASE_TYPE", "mongodb")
		t.Setenv("ADDRDIR_DATABASE_DSN", "mongodb://localhost")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "unsupported database.type")
	})

	t.Run("设置数据库类型但缺少DSN失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADDRDIR_DATABASE_TYPE", "mysql")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "database.dsn is required")
	})

	t.Run("无效的计数窗口失败", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADDRDIR_FORWARDING_WINDOW", "one-day")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid forwarding.window")
	})

	t.Run("默认转发上限必须为正数", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ADDRDIR_FORWARDING_MAX_FORWARDS_PER_DAY", "0")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseList(" a, b ,,c "))
	assert.Empty(t, parseList(""))
}
