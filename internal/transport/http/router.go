package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/health"
	"addrdir/backend/internal/middleware"
	"addrdir/backend/internal/monitoring"
	"addrdir/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config            *config.Config
	AddressService    *service.AddressService
	ForwardingService *service.ForwardingService
	Health            *health.HealthChecker // 可选
	Metrics           *monitoring.Metrics   // 可选，为 nil 时不挂载 /metrics
	Logger            *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.RecoveryHandler(log, deps.Metrics))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	addressHandler := NewAddressHandler(deps.AddressService)
	forwardingHandler := NewForwardingHandler(deps.ForwardingService)

	// 健康检查
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		users := v1.Group("/users/:user/addresses")
		{
			users.POST("", addressHandler.CreateUserAddress)
			users.GET("", addressHandler.ListUserAddresses)
			users.PUT("/:id", addressHandler.UpdateUserAddress)
			users.DELETE("/:id", addressHandler.DeleteUserAddress)
		}

		addresses := v1.Group("/addresses")
		{
			addresses.GET("/resolve/:address", addressHandler.Resolve)

			forwarded := addresses.Group("/forwarded")
			forwarded.POST("", forwardingHandler.CreateForwardedAddress)
			forwarded.GET("/:id", forwardingHandler.GetForwardedAddress)
			forwarded.GET("/:id/limits", forwardingHandler.GetForwardingStatus)
			forwarded.PUT("/:id", forwardingHandler.UpdateForwardedAddress)
			forwarded.DELETE("/:id", forwardingHandler.DeleteForwardedAddress)
		}
	}

	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}
