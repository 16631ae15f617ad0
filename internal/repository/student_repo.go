package repository

import (
	"context"

	"gorm.io/gorm"

	"eduroots/backend/internal/model"
)

// StudentRepository 学生数据访问接口（只读）
type StudentRepository interface {
	ListActive(ctx context.Context) ([]model.Student, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Student, error)
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) ListActive(ctx context.Context) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("lastname ASC, firstname ASC, student_id ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("student_id IN ?", ids).
		Order("student_id ASC").
		Find(&students).Error
	return students, err
}
