package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/repository"
	"eduroots/backend/internal/rollup"
	pkgerrors "eduroots/backend/pkg/errors"
)

var (
	ErrSheetNotFound      = errors.New("考勤表不存在")
	ErrSheetInactive      = errors.New("考勤表已删除，请先恢复")
	ErrSheetAlreadyActive = errors.New("考勤表未被删除")
	// ErrSheetAlreadyExists 同一课程同一日历日已有有效考勤表（校验错误，不产生任何写入）
	ErrSheetAlreadyExists = pkgerrors.NewValidation("date", "该课程当日已存在考勤表")
)

// AttendanceService 考勤业务接口
// 每次写操作在表单提交后依次刷新 课次 → 学生 → 全局 统计
type AttendanceService interface {
	CreateSheet(ctx context.Context, req *dto.CreateAttendanceSheetRequest, callerID string) (*dto.AttendanceWriteResponse, error)
	UpdateSheet(ctx context.Context, id string, req *dto.UpdateAttendanceSheetRequest, callerID string) (*dto.AttendanceWriteResponse, error)
	SoftDeleteSheet(ctx context.Context, id, callerID string) (*dto.CascadeResult, error)
	RestoreSheet(ctx context.Context, id string) (*dto.AttendanceWriteResponse, error)
	GetSheet(ctx context.Context, id string) (*dto.AttendanceSheetResponse, error)
	ListSheets(ctx context.Context, req *dto.AttendanceSheetListRequest) ([]dto.AttendanceSheetResponse, int64, error)
}

type attendanceService struct {
	repo    *repository.Repository
	cascade *cascade
	logger  *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(repo *repository.Repository, c *cascade, logger *zap.Logger) AttendanceService {
	return &attendanceService{repo: repo, cascade: c, logger: logger}
}

// ────────────────────── CreateSheet ──────────────────────

func (s *attendanceService) CreateSheet(ctx context.Context, req *dto.CreateAttendanceSheetRequest, callerID string) (*dto.AttendanceWriteResponse, error) {
	defer s.cascade.observe("create_sheet", time.Now())

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	day, err := parseDay("date", req.Date)
	if err != nil {
		return nil, err
	}
	records, err := buildAttendanceRecords(req.Records)
	if err != nil {
		return nil, err
	}

	stats := rollup.ComputeSheetStats(records)
	sheet := &model.AttendanceSheet{
		CourseID:      req.CourseID,
		Date:          model.DateOnly(day),
		PresenceRate:  stats.PresenceRate,
		TotalStudents: stats.TotalStudents,
		LastUpdate:    s.cascade.now(),
		IsActive:      true,
		Records:       records,
	}
	if req.SessionID != "" {
		sid := req.SessionID
		sheet.SessionID = &sid
	}
	if callerID != "" {
		sheet.CreatedBy = &callerID
		sheet.UpdatedBy = &callerID
	}
	sheet.Version = 1

	// SHEET：表单与明细同一事务写入，失败直接返回，不产生任何部分状态
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		_, err := tx.AttendanceSheet.FindActiveByCourseAndDay(ctx, req.CourseID, sheet.Date)
		if err == nil {
			return ErrSheetAlreadyExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.AttendanceSheet.Create(ctx, sheet)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrSheetAlreadyExists
	}
	if err != nil {
		if !errors.Is(err, ErrSheetAlreadyExists) {
			s.logger.Error("创建考勤表失败", zap.String("course_id", req.CourseID), zap.Error(err))
		}
		return nil, err
	}

	result := &dto.CascadeResult{}
	result.Record(dto.StageSheet, nil)

	present := presenceByStudent(records)
	s.runDownstream(ctx, result, []string{sheet.SessionRef()}, sheet.StudentIDs(), func(ctx context.Context, studentID string) error {
		return s.cascade.upsertAttendanceStudent(ctx, studentID, func(st *model.StudentStats) {
			rollup.ComputeStudentAggregate(rollup.FromStats(st), present[studentID]).ApplyTo(st)
			touchActivity(st, sheet.Date)
		})
	})

	s.logger.Info("考勤表已创建",
		zap.String("sheet_id", sheet.SheetID),
		zap.String("course_id", sheet.CourseID),
		zap.Float64("presence_rate", sheet.PresenceRate),
		zap.Bool("cascade_failed", result.Failed()),
	)
	return &dto.AttendanceWriteResponse{Sheet: toAttendanceSheetResponse(sheet), Cascade: *result}, nil
}

// ────────────────────── UpdateSheet ──────────────────────

func (s *attendanceService) UpdateSheet(ctx context.Context, id string, req *dto.UpdateAttendanceSheetRequest, callerID string) (*dto.AttendanceWriteResponse, error) {
	defer s.cascade.observe("update_sheet", time.Now())

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	records, err := buildAttendanceRecords(req.Records)
	if err != nil {
		return nil, err
	}

	old, err := s.loadSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.IsActive {
		return nil, ErrSheetInactive
	}

	diff := rollup.DiffPresence(old.Records, records)
	stats := rollup.ComputeSheetStats(records)

	updated := *old
	updated.Records = records
	updated.PresenceRate = stats.PresenceRate
	updated.TotalStudents = stats.TotalStudents
	updated.LastUpdate = s.cascade.now()
	if callerID != "" {
		updated.UpdatedBy = &callerID
	}
	if err := s.repo.AttendanceSheet.UpdateWithRecords(ctx, &updated); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新考勤表失败", zap.String("sheet_id", id), zap.Error(err))
		}
		return nil, err
	}

	result := &dto.CascadeResult{}
	result.Record(dto.StageSheet, nil)

	// 只有状态变化的学生需要调整，其余学生统计保持不变
	mutations := make(map[string]func(*model.StudentStats), len(diff.Flipped)+len(diff.Added)+len(diff.Removed))
	var ids []string
	for _, ch := range diff.Flipped {
		ch := ch
		ids = append(ids, ch.StudentID)
		mutations[ch.StudentID] = func(st *model.StudentStats) {
			rollup.ApplyPresenceFlip(rollup.FromStats(st), ch.Present).ApplyTo(st)
		}
	}
	for _, ch := range diff.Added {
		ch := ch
		ids = append(ids, ch.StudentID)
		mutations[ch.StudentID] = func(st *model.StudentStats) {
			rollup.ComputeStudentAggregate(rollup.FromStats(st), ch.Present).ApplyTo(st)
			touchActivity(st, updated.Date)
		}
	}
	for _, ch := range diff.Removed {
		ch := ch
		ids = append(ids, ch.StudentID)
		mutations[ch.StudentID] = func(st *model.StudentStats) {
			rollup.RemoveSession(rollup.FromStats(st), ch.Present).ApplyTo(st)
		}
	}

	// 出勤未变但评分变化的学生只刷新行为均分
	for _, id := range rollup.DiffBehavior(old.Records, records) {
		if _, ok := mutations[id]; !ok {
			ids = append(ids, id)
			mutations[id] = nil
		}
	}

	s.runDownstream(ctx, result, []string{updated.SessionRef()}, ids, func(ctx context.Context, studentID string) error {
		return s.cascade.upsertAttendanceStudent(ctx, studentID, mutations[studentID])
	})

	s.logger.Info("考勤表已更新",
		zap.String("sheet_id", id),
		zap.Int("flipped", len(diff.Flipped)),
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
	)
	return &dto.AttendanceWriteResponse{Sheet: toAttendanceSheetResponse(&updated), Cascade: *result}, nil
}

// ────────────────────── SoftDelete / Restore ──────────────────────

func (s *attendanceService) SoftDeleteSheet(ctx context.Context, id, callerID string) (*dto.CascadeResult, error) {
	defer s.cascade.observe("delete_sheet", time.Now())

	sheet, err := s.loadSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sheet.IsActive {
		return nil, ErrSheetInactive
	}
	if err := s.repo.AttendanceSheet.SoftDelete(ctx, id, sheet.Version, callerID); err != nil {
		return nil, err
	}

	result := &dto.CascadeResult{}
	result.Record(dto.StageSheet, nil)

	present := presenceByStudent(sheet.Records)
	s.runDownstream(ctx, result, []string{sheet.SessionRef()}, sheet.StudentIDs(), func(ctx context.Context, studentID string) error {
		return s.cascade.upsertAttendanceStudent(ctx, studentID, func(st *model.StudentStats) {
			rollup.RemoveSession(rollup.FromStats(st), present[studentID]).ApplyTo(st)
		})
	})

	s.logger.Info("考勤表已删除", zap.String("sheet_id", id), zap.String("deleted_by", callerID))
	return result, nil
}

func (s *attendanceService) RestoreSheet(ctx context.Context, id string) (*dto.AttendanceWriteResponse, error) {
	defer s.cascade.observe("restore_sheet", time.Now())

	sheet, err := s.loadSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if sheet.IsActive {
		return nil, ErrSheetAlreadyActive
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.AttendanceSheet.FindActiveByCourseAndDay(ctx, sheet.CourseID, sheet.Date); err == nil {
			return ErrSheetAlreadyExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.AttendanceSheet.Restore(ctx, id, sheet.Version)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrSheetAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	sheet.IsActive = true
	sheet.DeletedAt = gorm.DeletedAt{}
	sheet.DeletedBy = nil
	sheet.Version++

	result := &dto.CascadeResult{}
	result.Record(dto.StageSheet, nil)

	present := presenceByStudent(sheet.Records)
	s.runDownstream(ctx, result, []string{sheet.SessionRef()}, sheet.StudentIDs(), func(ctx context.Context, studentID string) error {
		return s.cascade.upsertAttendanceStudent(ctx, studentID, func(st *model.StudentStats) {
			rollup.ComputeStudentAggregate(rollup.FromStats(st), present[studentID]).ApplyTo(st)
			touchActivity(st, sheet.Date)
		})
	})

	s.logger.Info("考勤表已恢复", zap.String("sheet_id", id))
	return &dto.AttendanceWriteResponse{Sheet: toAttendanceSheetResponse(sheet), Cascade: *result}, nil
}

// ────────────────────── 查询 ──────────────────────

func (s *attendanceService) GetSheet(ctx context.Context, id string) (*dto.AttendanceSheetResponse, error) {
	sheet, err := s.loadSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toAttendanceSheetResponse(sheet)
	return &resp, nil
}

func (s *attendanceService) ListSheets(ctx context.Context, req *dto.AttendanceSheetListRequest) ([]dto.AttendanceSheetResponse, int64, error) {
	if err := validateStruct(req); err != nil {
		return nil, 0, err
	}
	filter := repository.AttendanceSheetFilter{
		CourseID:        req.CourseID,
		SessionID:       req.SessionID,
		IncludeInactive: req.IncludeInactive,
		Page:            req.Page,
		PageSize:        req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if req.From != "" {
		from, err := parseDay("from", req.From)
		if err != nil {
			return nil, 0, err
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := parseDay("to", req.To)
		if err != nil {
			return nil, 0, err
		}
		filter.To = &to
	}

	sheets, total, err := s.repo.AttendanceSheet.List(ctx, filter)
	if err != nil {
		s.logger.Error("查询考勤表列表失败", zap.Error(err))
		return nil, 0, err
	}
	list := make([]dto.AttendanceSheetResponse, 0, len(sheets))
	for i := range sheets {
		list = append(list, toAttendanceSheetResponse(&sheets[i]))
	}
	return list, total, nil
}

// ────────────────────── 内部方法 ──────────────────────

func (s *attendanceService) loadSheet(ctx context.Context, id string) (*model.AttendanceSheet, error) {
	sheet, err := s.repo.AttendanceSheet.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSheetNotFound
		}
		return nil, err
	}
	return sheet, nil
}

// runDownstream 依次执行 SESSION → STUDENTS → GLOBAL 阶段
// 每个阶段的失败只记录在 result 中，后续阶段照常执行
func (s *attendanceService) runDownstream(
	ctx context.Context,
	result *dto.CascadeResult,
	sessionIDs []string,
	studentIDs []string,
	studentFn func(ctx context.Context, studentID string) error,
) {
	// SESSION
	refreshed := 0
	var sessionErr error
	for _, sid := range sessionIDs {
		ok, err := s.cascade.sessionExists(ctx, sid)
		if err != nil {
			sessionErr = err
			continue
		}
		if !ok {
			continue
		}
		if err := s.cascade.refreshSession(ctx, sid); err != nil {
			sessionErr = err
			continue
		}
		refreshed++
	}
	if refreshed == 0 && sessionErr == nil {
		result.Skip(dto.StageSession)
	} else {
		s.cascade.record(result, dto.StageSession, sessionErr)
	}

	// STUDENTS
	if len(studentIDs) == 0 {
		result.Skip(dto.StageStudents)
	} else {
		failures := s.cascade.fanOut(ctx, studentIDs, studentFn)
		result.StudentFailures = failures
		s.cascade.record(result, dto.StageStudents, studentsStageError(failures))
	}

	// GLOBAL
	_, err := s.cascade.refreshGlobal(ctx)
	s.cascade.record(result, dto.StageGlobal, err)
}

// buildAttendanceRecords 转换明细输入，同一学生重复出现视为校验失败
func buildAttendanceRecords(inputs []dto.AttendanceRecordInput) ([]model.AttendanceRecord, error) {
	seen := make(map[string]struct{}, len(inputs))
	records := make([]model.AttendanceRecord, 0, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.StudentID]; dup {
			return nil, pkgerrors.NewValidation("records", "学生重复出现: "+in.StudentID)
		}
		seen[in.StudentID] = struct{}{}
		records = append(records, model.AttendanceRecord{
			StudentID:      in.StudentID,
			IsPresent:      in.IsPresent,
			Comment:        in.Comment,
			BehaviorRating: in.BehaviorRating,
		})
	}
	return records, nil
}

func presenceByStudent(records []model.AttendanceRecord) map[string]bool {
	m := make(map[string]bool, len(records))
	for _, r := range records {
		m[r.StudentID] = r.IsPresent
	}
	return m
}

// touchActivity 最近活动时间只前进不后退
func touchActivity(st *model.StudentStats, day time.Time) {
	if st.LastActivity == nil || day.After(*st.LastActivity) {
		d := day
		st.LastActivity = &d
	}
}

func toAttendanceSheetResponse(sheet *model.AttendanceSheet) dto.AttendanceSheetResponse {
	resp := dto.AttendanceSheetResponse{
		ID:            sheet.SheetID,
		CourseID:      sheet.CourseID,
		SessionID:     sheet.SessionRef(),
		Date:          model.DayKey(sheet.Date),
		PresenceRate:  sheet.PresenceRate,
		TotalStudents: sheet.TotalStudents,
		IsActive:      sheet.IsActive,
		Version:       sheet.Version,
		LastUpdate:    sheet.LastUpdate.Format(time.RFC3339),
	}
	for _, r := range sheet.Records {
		resp.Records = append(resp.Records, dto.AttendanceRecordResponse{
			StudentID:      r.StudentID,
			IsPresent:      r.IsPresent,
			Comment:        r.Comment,
			BehaviorRating: r.BehaviorRating,
		})
	}
	return resp
}
