package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"eduroots/backend/internal/model"
	pkgerrors "eduroots/backend/pkg/errors"
)

// AttendanceSheetFilter 考勤表列表筛选条件
type AttendanceSheetFilter struct {
	CourseID        string
	SessionID       string
	From            *time.Time
	To              *time.Time
	IncludeInactive bool
	Page            int
	PageSize        int
}

// AttendanceSheetRepository 考勤表数据访问接口
type AttendanceSheetRepository interface {
	Create(ctx context.Context, sheet *model.AttendanceSheet) error
	GetByID(ctx context.Context, id string) (*model.AttendanceSheet, error)
	FindActiveByCourseAndDay(ctx context.Context, courseID string, day time.Time) (*model.AttendanceSheet, error)
	List(ctx context.Context, filter AttendanceSheetFilter) ([]model.AttendanceSheet, int64, error)
	ListAfter(ctx context.Context, afterID string, limit int, withRecords bool) ([]model.AttendanceSheet, error)
	ListPresenceRates(ctx context.Context, sessionID string) ([]float64, error)
	ListBehaviorByStudent(ctx context.Context, studentID string) ([]model.StudentBehaviorEntry, error)
	UpdateWithRecords(ctx context.Context, sheet *model.AttendanceSheet) error
	SoftDelete(ctx context.Context, id string, version int, deletedBy string) error
	Restore(ctx context.Context, id string, version int) error
	UpdateSessionRef(ctx context.Context, id, oldSessionID, newSessionID string) (bool, error)
}

type attendanceSheetRepo struct {
	db *gorm.DB
}

// NewAttendanceSheetRepo 创建 AttendanceSheetRepository 实例
func NewAttendanceSheetRepo(db *gorm.DB) AttendanceSheetRepository {
	return &attendanceSheetRepo{db: db}
}

// Create 插入考勤表及其明细（GORM 关联自动写入 Records）
func (r *attendanceSheetRepo) Create(ctx context.Context, sheet *model.AttendanceSheet) error {
	return r.db.WithContext(ctx).Create(sheet).Error
}

// GetByID 按 ID 查询考勤表，包含已软删除的表单与全部明细
func (r *attendanceSheetRepo) GetByID(ctx context.Context, id string) (*model.AttendanceSheet, error) {
	var sheet model.AttendanceSheet
	err := r.db.WithContext(ctx).Unscoped().
		Preload("Records").
		Where("sheet_id = ?", id).
		First(&sheet).Error
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

func (r *attendanceSheetRepo) FindActiveByCourseAndDay(ctx context.Context, courseID string, day time.Time) (*model.AttendanceSheet, error) {
	var sheet model.AttendanceSheet
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND date = ? AND is_active = ?", courseID, model.DateOnly(day), true).
		First(&sheet).Error
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

func (r *attendanceSheetRepo) List(ctx context.Context, filter AttendanceSheetFilter) ([]model.AttendanceSheet, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.AttendanceSheet{})
	if !filter.IncludeInactive {
		db = db.Where("is_active = ?", true)
	}
	if filter.CourseID != "" {
		db = db.Where("course_id = ?", filter.CourseID)
	}
	if filter.SessionID != "" {
		db = db.Where("session_id = ?", filter.SessionID)
	}
	if filter.From != nil {
		db = db.Where("date >= ?", model.DateOnly(*filter.From))
	}
	if filter.To != nil {
		db = db.Where("date <= ?", model.DateOnly(*filter.To))
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		db = db.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var sheets []model.AttendanceSheet
	err := db.Order("date DESC, sheet_id ASC").Find(&sheets).Error
	return sheets, total, err
}

// ListAfter 按 ID 升序分批读取有效考勤表（keyset 分页，afterID 为空表示从头开始）
func (r *attendanceSheetRepo) ListAfter(ctx context.Context, afterID string, limit int, withRecords bool) ([]model.AttendanceSheet, error) {
	db := r.db.WithContext(ctx).Where("is_active = ?", true)
	if afterID != "" {
		db = db.Where("sheet_id > ?", afterID)
	}
	if withRecords {
		db = db.Preload("Records")
	}

	var sheets []model.AttendanceSheet
	err := db.Order("sheet_id ASC").Limit(limit).Find(&sheets).Error
	return sheets, err
}

// ListPresenceRates 返回有效考勤表的出勤率，sessionID 为空时返回全部
func (r *attendanceSheetRepo) ListPresenceRates(ctx context.Context, sessionID string) ([]float64, error) {
	db := r.db.WithContext(ctx).Model(&model.AttendanceSheet{}).Where("is_active = ?", true)
	if sessionID != "" {
		db = db.Where("session_id = ?", sessionID)
	}

	var rates []float64
	err := db.Order("sheet_id ASC").Pluck("presence_rate", &rates).Error
	return rates, err
}

// ListBehaviorByStudent 返回学生在有效考勤表上的行为评分，按日期升序
func (r *attendanceSheetRepo) ListBehaviorByStudent(ctx context.Context, studentID string) ([]model.StudentBehaviorEntry, error) {
	var entries []model.StudentBehaviorEntry
	err := r.db.WithContext(ctx).
		Table("attendance_records AS ar").
		Select("s.date AS date, ar.behavior_rating AS rating").
		Joins("JOIN attendance_sheets s ON s.sheet_id = ar.sheet_id AND s.is_active AND s.deleted_at IS NULL").
		Where("ar.student_id = ? AND ar.behavior_rating IS NOT NULL", studentID).
		Order("s.date ASC, s.sheet_id ASC").
		Scan(&entries).Error
	return entries, err
}

// UpdateWithRecords 乐观锁更新表单统计并整体替换明细
func (r *attendanceSheetRepo) UpdateWithRecords(ctx context.Context, sheet *model.AttendanceSheet) error {
	oldVersion := sheet.Version
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.AttendanceSheet{}).
			Where("sheet_id = ? AND version = ?", sheet.SheetID, oldVersion).
			Updates(map[string]interface{}{
				"presence_rate":  sheet.PresenceRate,
				"total_students": sheet.TotalStudents,
				"last_update":    sheet.LastUpdate,
				"updated_by":     sheet.UpdatedBy,
				"version":        oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}

		if err := tx.Where("sheet_id = ?", sheet.SheetID).Delete(&model.AttendanceRecord{}).Error; err != nil {
			return err
		}
		if len(sheet.Records) > 0 {
			for i := range sheet.Records {
				sheet.Records[i].SheetID = sheet.SheetID
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

// SoftDelete 软删除：置为无效并记录删除时间
func (r *attendanceSheetRepo) SoftDelete(ctx context.Context, id string, version int, deletedBy string) error {
	updates := map[string]interface{}{
		"is_active":  false,
		"deleted_at": gorm.Expr("NOW()"),
		"version":    version + 1,
	}
	if deletedBy != "" {
		updates["deleted_by"] = deletedBy
	}
	result := r.db.WithContext(ctx).Unscoped().
		Model(&model.AttendanceSheet{}).
		Where("sheet_id = ? AND version = ? AND is_active = ?", id, version, true).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

// Restore 恢复已软删除的考勤表
func (r *attendanceSheetRepo) Restore(ctx context.Context, id string, version int) error {
	result := r.db.WithContext(ctx).Unscoped().
		Model(&model.AttendanceSheet{}).
		Where("sheet_id = ? AND version = ? AND is_active = ?", id, version, false).
		Updates(map[string]interface{}{
			"is_active":  true,
			"deleted_at": nil,
			"deleted_by": nil,
			"version":    version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

// UpdateSessionRef 条件更新会话引用：仅当当前值仍为 oldSessionID 时生效
// 返回是否实际更新，重复执行为空操作
func (r *attendanceSheetRepo) UpdateSessionRef(ctx context.Context, id, oldSessionID, newSessionID string) (bool, error) {
	db := r.db.WithContext(ctx).Model(&model.AttendanceSheet{}).Where("sheet_id = ?", id)
	if oldSessionID == "" {
		db = db.Where("session_id IS NULL")
	} else {
		db = db.Where("session_id = ?", oldSessionID)
	}
	result := db.Updates(map[string]interface{}{
		"session_id": newSessionID,
		"version":    gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
