package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"addrdir/backend/internal/config"
	"addrdir/backend/internal/health"
	"addrdir/backend/internal/logger"
	"addrdir/backend/internal/monitoring"
	"addrdir/backend/internal/service"
	"addrdir/backend/internal/smtp"
	"addrdir/backend/internal/storage"
	"addrdir/backend/internal/storage/memory"
	"addrdir/backend/internal/storage/postgres"
	"addrdir/backend/internal/storage/redis"
	httptransport "addrdir/backend/internal/transport/http"
)

// main 启动地址目录 HTTP API 与（可选的）SMTP 收件人验证服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log := logger.Must(cfg.Log)
	defer func() { _ = log.Sync() }()

	log.Info("starting address directory server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	// 初始化转发计数器
	var (
		tracker storage.QuotaTracker
		counter health.Pinger
	)
	if cfg.Redis.Address != "" {
		redisClient, err := redis.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		tracker = redis.NewQuotaTracker(redisClient)
		counter = redisClient
	} else {
		tracker = memory.NewQuotaTracker(cfg.Forwarding.Window)
		log.Info("using in-memory forward counters (development mode)")
	}

	metrics := monitoring.NewMetrics(nil)
	healthChecker := health.NewHealthChecker(health.PingFunc(store.Health), counter, log)

	// 初始化服务层
	addressService := service.NewAddressService(store, store, cfg, log)
	addressService.SetMetrics(metrics)
	forwardingService := service.NewForwardingService(store, tracker, cfg, log)
	forwardingService.SetMetrics(metrics)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:            cfg,
		AddressService:    addressService,
		ForwardingService: forwardingService,
		Health:            healthChecker,
		Metrics:           metrics,
		Logger:            log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var smtpServer *gosmtp.Server
	if cfg.SMTP.BindAddr != "" {
		limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConns, cfg.SMTP.MaxRate)
		smtpServer = gosmtp.NewServer(smtp.NewBackend(addressService, limiter, log.Named("smtp"), metrics))
		smtpServer.Addr = cfg.SMTP.BindAddr
		smtpServer.Domain = cfg.SMTP.Domain
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = 64 * 1024
		smtpServer.MaxRecipients = 50
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP recipient verifier",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		if err := store.Close(); err != nil {
			log.Warn("storage close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择目录存储
//
// 未配置数据库时使用内存存储，此时用户数据需由外部写入，仅用于开发验证。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	store, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage",
		zap.String("type", cfg.Database.Type),
		zap.String("driver", cfg.Database.Driver),
	)
	return store, nil
}
