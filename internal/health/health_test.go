package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHealthChecker(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	serve := func(h http.HandlerFunc) int {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec.Code
	}

	t.Run("依赖正常时就绪", func(t *testing.T) {
		hc := NewHealthChecker(ok, ok, zap.NewNop())

		assert.Equal(t, http.StatusOK, serve(hc.LiveHandler()))
		assert.Equal(t, http.StatusOK, serve(hc.ReadyHandler()))
	})

	t.Run("未配置 Redis 时只检查目录存储", func(t *testing.T) {
		hc := NewHealthChecker(ok, nil, zap.NewNop())

		assert.Equal(t, http.StatusOK, serve(hc.ReadyHandler()))
	})

	t.Run("Redis 不可用时未就绪但仍存活", func(t *testing.T) {
		hc := NewHealthChecker(ok, down, zap.NewNop())

		assert.Equal(t, http.StatusOK, serve(hc.LiveHandler()))
		assert.Equal(t, http.StatusServiceUnavailable, serve(hc.ReadyHandler()))
	})

	t.Run("目录存储不可用时未就绪", func(t *testing.T) {
		hc := NewHealthChecker(down, nil, zap.NewNop())

		assert.Equal(t, http.StatusServiceUnavailable, serve(hc.ReadyHandler()))
	})
}
