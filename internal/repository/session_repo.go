package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"eduroots/backend/internal/model"
)

// SessionRepository 课次数据访问接口
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*model.Session, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	ListByDay(ctx context.Context, dayOfWeek int, teacherID, room string) ([]model.Session, error)
	ListContainingStudents(ctx context.Context, studentIDs []string) ([]model.Session, error)
	UpdateAttendanceStats(ctx context.Context, id string, averageAttendance float64) error
	UpdateGradeStats(ctx context.Context, id string, averageGrade float64) error
}

type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo 创建 SessionRepository 实例
func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByIDs 批量查询存在的课次，不存在的 ID 不会出现在结果中
func (r *sessionRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("session_id IN ?", ids).
		Order("session_id ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("session_id ASC").
		Find(&sessions).Error
	return sessions, err
}

// ListByDay 同一星期内由同一教师授课或占用同一教室的有效课次
func (r *sessionRepo) ListByDay(ctx context.Context, dayOfWeek int, teacherID, room string) ([]model.Session, error) {
	db := r.db.WithContext(ctx).Where("is_active = ? AND day_of_week = ?", true, dayOfWeek)
	switch {
	case teacherID != "" && room != "":
		db = db.Where("(teacher_id = ? OR room = ?)", teacherID, room)
	case teacherID != "":
		db = db.Where("teacher_id = ?", teacherID)
	case room != "":
		db = db.Where("room = ?", room)
	}

	var sessions []model.Session
	err := db.Order("start_time ASC, session_id ASC").Find(&sessions).Error
	return sessions, err
}

// ListContainingStudents 与给定学生集合至少有一名共同学生的有效课次（按 ID 升序）
func (r *sessionRepo) ListContainingStudents(ctx context.Context, studentIDs []string) ([]model.Session, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("student_ids && ?::uuid[]", model.StringArray(studentIDs)).
		Order("session_id ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepo) UpdateAttendanceStats(ctx context.Context, id string, averageAttendance float64) error {
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ?", id).
		Updates(map[string]interface{}{
			"average_attendance": averageAttendance,
			"stats_updated_at":   time.Now(),
		}).Error
}

func (r *sessionRepo) UpdateGradeStats(ctx context.Context, id string, averageGrade float64) error {
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ?", id).
		Updates(map[string]interface{}{
			"average_grade":    averageGrade,
			"stats_updated_at": time.Now(),
		}).Error
}
