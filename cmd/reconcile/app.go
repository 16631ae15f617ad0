package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"eduroots/backend/config"
	"eduroots/backend/internal/repository"
	"eduroots/backend/internal/service"
	"eduroots/backend/pkg/database"
	applogger "eduroots/backend/pkg/logger"
	"eduroots/backend/pkg/metrics"
	"eduroots/backend/pkg/redis"
)

// app 单次命令运行所需的依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	sqlDB  *sql.DB
	rdb    *redis.Client
	svc    *service.Service
}

// signalContext 收到 SIGINT/SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}

// openApp 加载配置并装配 Service；Redis 不可用时运行锁降级为进程内无锁
func openApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 不可用，对账运行锁已禁用", zap.Error(err))
		rdb = nil
	}

	repo := repository.NewRepository(db)
	return &app{
		cfg:    cfg,
		logger: logger,
		sqlDB:  sqlDB,
		rdb:    rdb,
		svc:    service.NewService(cfg, repo, rdb, metrics.Nop(), logger),
	}, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	_ = a.logger.Sync()
}

// withApp 装配依赖并在信号感知的上下文中执行 fn
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return fn(ctx, a)
}
