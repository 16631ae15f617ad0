package repository

import (
	"context"

	"gorm.io/gorm"

	"eduroots/backend/internal/model"
	pkgerrors "eduroots/backend/pkg/errors"
)

// GradeSheetRepository 成绩单数据访问接口
type GradeSheetRepository interface {
	Create(ctx context.Context, sheet *model.GradeSheet) error
	GetByID(ctx context.Context, id string) (*model.GradeSheet, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.GradeSheet, error)
	ListAfter(ctx context.Context, afterID string, limit int) ([]model.GradeSheet, error)
	Update(ctx context.Context, sheet *model.GradeSheet) error
	HardDelete(ctx context.Context, id string) error
	ListRecordsByStudent(ctx context.Context, studentID string) ([]model.StudentGradeEntry, error)
}

type gradeSheetRepo struct {
	db *gorm.DB
}

// NewGradeSheetRepo 创建 GradeSheetRepository 实例
func NewGradeSheetRepo(db *gorm.DB) GradeSheetRepository {
	return &gradeSheetRepo{db: db}
}

func (r *gradeSheetRepo) Create(ctx context.Context, sheet *model.GradeSheet) error {
	return r.db.WithContext(ctx).Create(sheet).Error
}

func (r *gradeSheetRepo) GetByID(ctx context.Context, id string) (*model.GradeSheet, error) {
	var sheet model.GradeSheet
	err := r.db.WithContext(ctx).
		Preload("Records").
		Where("grade_sheet_id = ?", id).
		First(&sheet).Error
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// ListBySession 返回课次下的有效成绩单（不含明细）
func (r *gradeSheetRepo) ListBySession(ctx context.Context, sessionID string) ([]model.GradeSheet, error) {
	var sheets []model.GradeSheet
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Order("date ASC, grade_sheet_id ASC").
		Find(&sheets).Error
	return sheets, err
}

// ListAfter 按 ID 升序分批读取成绩单（keyset 分页）
func (r *gradeSheetRepo) ListAfter(ctx context.Context, afterID string, limit int) ([]model.GradeSheet, error) {
	db := r.db.WithContext(ctx)
	if afterID != "" {
		db = db.Where("grade_sheet_id > ?", afterID)
	}

	var sheets []model.GradeSheet
	err := db.Order("grade_sheet_id ASC").Limit(limit).Find(&sheets).Error
	return sheets, err
}

// Update 乐观锁更新成绩单统计并整体替换明细
func (r *gradeSheetRepo) Update(ctx context.Context, sheet *model.GradeSheet) error {
	oldVersion := sheet.Version
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.GradeSheet{}).
			Where("grade_sheet_id = ? AND version = ?", sheet.GradeSheetID, oldVersion).
			Updates(map[string]interface{}{
				"type":           sheet.Type,
				"is_draft":       sheet.IsDraft,
				"average_grade":  sheet.AverageGrade,
				"highest_grade":  sheet.HighestGrade,
				"lowest_grade":   sheet.LowestGrade,
				"absent_count":   sheet.AbsentCount,
				"total_students": sheet.TotalStudents,
				"updated_by":     sheet.UpdatedBy,
				"version":        oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}

		if err := tx.Where("grade_sheet_id = ?", sheet.GradeSheetID).Delete(&model.GradeRecord{}).Error; err != nil {
			return err
		}
		if len(sheet.Records) > 0 {
			for i := range sheet.Records {
				sheet.Records[i].GradeSheetID = sheet.GradeSheetID
				sheet.Records[i].RecordID = ""
			}
			if err := tx.Create(&sheet.Records).Error; err != nil {
				return err
			}
		}
		sheet.Version = oldVersion + 1
		return nil
	})
}

// HardDelete 物理删除成绩单（明细经外键级联删除），仅供管理员去重使用
func (r *gradeSheetRepo) HardDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Unscoped().
		Where("grade_sheet_id = ?", id).
		Delete(&model.GradeSheet{}).Error
}

// ListRecordsByStudent 返回学生在有效成绩单中的全部成绩及所属科目
func (r *gradeSheetRepo) ListRecordsByStudent(ctx context.Context, studentID string) ([]model.StudentGradeEntry, error) {
	var entries []model.StudentGradeEntry
	err := r.db.WithContext(ctx).
		Table("grade_records AS gr").
		Select("cs.subject AS subject, gr.value AS value, gr.is_absent AS is_absent, gs.is_draft AS is_draft").
		Joins("JOIN grade_sheets gs ON gs.grade_sheet_id = gr.grade_sheet_id AND gs.is_active AND gs.deleted_at IS NULL").
		Joins("JOIN course_sessions cs ON cs.session_id = gs.session_id").
		Where("gr.student_id = ?", studentID).
		Order("gs.date ASC, gr.record_id ASC").
		Scan(&entries).Error
	return entries, err
}
