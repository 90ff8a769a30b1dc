package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// 单次检查超时与存活检查的 goroutine 上限
const (
	checkTimeout      = 2 * time.Second
	maxGoroutineCount = 10000
)

// Pinger 可探测连通性的依赖（目录存储、Redis 计数器）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 将普通函数适配为 Pinger
type PingFunc func(ctx context.Context) error

// Ping 调用函数本身
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker 健康检查器
//
// /live 只检查进程自身；/ready 检查目录存储和（如果配置了）Redis 计数器。
// 计数器不可用时转发配额显示会降级，因此 Redis 不计入存活检查。
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，counter 可以为 nil
func NewHealthChecker(directory Pinger, counter Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutineCount))
	hc.health.AddReadinessCheck("directory", hc.check("directory", directory))
	if counter != nil {
		hc.health.AddReadinessCheck("redis", hc.check("redis", counter))
	}

	return hc
}

func (hc *HealthChecker) check(name string, p Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	}
}

// LiveHandler 存活检查处理器
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪检查处理器
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}
