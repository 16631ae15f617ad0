package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eduroots/backend/internal/model"
	pkgerrors "eduroots/backend/pkg/errors"
)

// ──────────────────────── 学生统计 ────────────────────────

// StudentStatsRepository 学生统计数据访问接口
type StudentStatsRepository interface {
	GetByStudent(ctx context.Context, studentID string) (*model.StudentStats, error)
	Create(ctx context.Context, stats *model.StudentStats) (bool, error)
	Update(ctx context.Context, stats *model.StudentStats) error
	DeleteAll(ctx context.Context) error
}

type studentStatsRepo struct {
	db *gorm.DB
}

// NewStudentStatsRepo 创建 StudentStatsRepository 实例
func NewStudentStatsRepo(db *gorm.DB) StudentStatsRepository {
	return &studentStatsRepo{db: db}
}

func (r *studentStatsRepo) GetByStudent(ctx context.Context, studentID string) (*model.StudentStats, error) {
	var stats model.StudentStats
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Create 插入统计行；并发下他人已插入时不报错，返回 false 由调用方重读后走更新分支
func (r *studentStatsRepo) Create(ctx context.Context, stats *model.StudentStats) (bool, error) {
	if stats.Version == 0 {
		stats.Version = 1
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "student_id"}}, DoNothing: true}).
		Create(stats)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update 乐观锁更新
func (r *studentStatsRepo) Update(ctx context.Context, stats *model.StudentStats) error {
	oldVersion := stats.Version
	result := r.db.WithContext(ctx).
		Model(&model.StudentStats{}).
		Where("student_id = ? AND version = ?", stats.StudentID, oldVersion).
		Updates(map[string]interface{}{
			"total_sessions":   stats.TotalSessions,
			"absences_count":   stats.AbsencesCount,
			"attendance_rate":  stats.AttendanceRate,
			"absences_rate":    stats.AbsencesRate,
			"behavior_average": stats.BehaviorAverage,
			"grades":           stats.Grades,
			"last_activity":    stats.LastActivity,
			"last_update":      stats.LastUpdate,
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	stats.Version = oldVersion + 1
	return nil
}

// DeleteAll 清空学生统计（全量重建前调用）
func (r *studentStatsRepo) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.StudentStats{}).Error
}

// ──────────────────────── 全局统计 ────────────────────────

// GlobalStatsRepository 全局统计数据访问接口（单行）
type GlobalStatsRepository interface {
	Get(ctx context.Context) (*model.GlobalStats, error)
	Upsert(ctx context.Context, stats *model.GlobalStats) error
}

type globalStatsRepo struct {
	db *gorm.DB
}

// NewGlobalStatsRepo 创建 GlobalStatsRepository 实例
func NewGlobalStatsRepo(db *gorm.DB) GlobalStatsRepository {
	return &globalStatsRepo{db: db}
}

func (r *globalStatsRepo) Get(ctx context.Context) (*model.GlobalStats, error) {
	var stats model.GlobalStats
	err := r.db.WithContext(ctx).Where("singleton = ?", true).First(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Upsert 以 singleton 为键插入或覆盖
func (r *globalStatsRepo) Upsert(ctx context.Context, stats *model.GlobalStats) error {
	stats.Singleton = true
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "singleton"}},
			DoUpdates: clause.AssignmentColumns([]string{"average_attendance_rate", "sheet_count", "last_update"}),
		}).
		Create(stats).Error
}
