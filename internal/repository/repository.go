package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	AttendanceSheet AttendanceSheetRepository
	GradeSheet      GradeSheetRepository
	Session         SessionRepository
	Student         StudentRepository
	StudentStats    StudentStatsRepository
	GlobalStats     GlobalStatsRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:              db,
		AttendanceSheet: NewAttendanceSheetRepo(db),
		GradeSheet:      NewGradeSheetRepo(db),
		Session:         NewSessionRepo(db),
		Student:         NewStudentRepo(db),
		StudentStats:    NewStudentStatsRepo(db),
		GlobalStats:     NewGlobalStatsRepo(db),
	}
}

// Transaction 在同一事务中执行 fn，fn 收到的 Repository 所有操作共享该事务
// fn 返回错误时整体回滚
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		// 未绑定数据库（单元测试中的内存实现）时直接执行
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
