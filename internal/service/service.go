package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"eduroots/backend/config"
	"eduroots/backend/internal/repository"
	"eduroots/backend/pkg/metrics"
	"eduroots/backend/pkg/redis"
)

// RunLocker 跨进程运行锁（对账任务互斥）
type RunLocker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (func(context.Context), error)
}

// Service 所有 Service 的聚合入口
type Service struct {
	Attendance AttendanceService
	Grade      GradeService
	Course     CourseService
	Stats      StatsService
	Reconcile  ReconcileService
}

// NewService 创建 Service 聚合
// rdb 为 nil 时对账任务不加分布式锁，仅依赖单进程运行
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	rdb *redis.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	var locker RunLocker
	if rdb != nil {
		locker = rdb
	}
	if m == nil {
		m = metrics.Nop()
	}
	c := newCascade(repo, cfg.Cascade, m, logger)
	return &Service{
		Attendance: NewAttendanceService(repo, c, logger),
		Grade:      NewGradeService(repo, c, logger),
		Course:     NewCourseService(repo, logger),
		Stats:      NewStatsService(repo, c, locker, cfg.Reconcile, logger),
		Reconcile:  NewReconcileService(repo, c, locker, cfg.Reconcile, m, logger),
	}
}
