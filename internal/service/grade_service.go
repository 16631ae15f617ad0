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
	ErrGradeSheetNotFound = errors.New("成绩单不存在")
	ErrSessionNotFound    = errors.New("课次不存在")
)

// GradeService 成绩业务接口
type GradeService interface {
	CreateGradeSheet(ctx context.Context, req *dto.CreateGradeSheetRequest, callerID string) (*dto.GradeWriteResponse, error)
	UpdateGradeSheet(ctx context.Context, id string, req *dto.UpdateGradeSheetRequest, callerID string) (*dto.GradeWriteResponse, error)
}

type gradeService struct {
	repo    *repository.Repository
	cascade *cascade
	logger  *zap.Logger
}

// NewGradeService 创建 GradeService 实例
func NewGradeService(repo *repository.Repository, c *cascade, logger *zap.Logger) GradeService {
	return &gradeService{repo: repo, cascade: c, logger: logger}
}

func (s *gradeService) CreateGradeSheet(ctx context.Context, req *dto.CreateGradeSheetRequest, callerID string) (*dto.GradeWriteResponse, error) {
	defer s.cascade.observe("create_grade_sheet", time.Now())

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	day, err := parseDay("date", req.Date)
	if err != nil {
		return nil, err
	}
	records, err := buildGradeRecords(req.Records)
	if err != nil {
		return nil, err
	}
	if ok, err := s.cascade.sessionExists(ctx, req.SessionID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrSessionNotFound
	}

	gradeType := req.Type
	if gradeType == "" {
		gradeType = model.GradeTypeControl
	}
	sheet := &model.GradeSheet{
		CourseID:  req.CourseID,
		SessionID: req.SessionID,
		Date:      model.DateOnly(day),
		Type:      gradeType,
		IsDraft:   req.IsDraft,
		IsActive:  true,
		Records:   records,
	}
	applyGradeStats(sheet)
	if callerID != "" {
		sheet.CreatedBy = &callerID
		sheet.UpdatedBy = &callerID
	}
	sheet.Version = 1

	if err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return tx.GradeSheet.Create(ctx, sheet)
	}); err != nil {
		s.logger.Error("创建成绩单失败", zap.String("session_id", req.SessionID), zap.Error(err))
		return nil, err
	}

	result := &dto.CascadeResult{}
	result.Record(dto.StageSheet, nil)
	s.runDownstream(ctx, result, sheet.SessionID, gradeStudentIDs(records))

	s.logger.Info("成绩单已创建",
		zap.String("grade_sheet_id", sheet.GradeSheetID),
		zap.Float64("average_grade", sheet.AverageGrade),
		zap.Bool("draft", sheet.IsDraft),
	)
	return &dto.GradeWriteResponse{Sheet: toGradeSheetResponse(sheet), Cascade: *result}, nil
}

func (s *gradeService) UpdateGradeSheet(ctx context.Context, id string, req *dto.UpdateGradeSheetRequest, callerID string) (*dto.GradeWriteResponse, error) {
	defer s.cascade.observe("update_grade_sheet", time.Now())

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	records, err := buildGradeRecords(req.Records)
	if err != nil {
		return nil, err
	}

	old, err := s.repo.GradeSheet.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGradeSheetNotFound
		}
		return nil, err
	}

	// 新旧明细涉及的学生都需要重算成绩
	affected := gradeStudentIDs(append(append([]model.GradeRecord{}, old.Records...), records...))

	updated := *old
	updated.Records = records
	if req.Type != nil {
		updated.Type = *req.Type
	}
	if req.IsDraft != nil {
		updated.IsDraft = *req.IsDraft
	}
	applyGradeStats(&updated)
	if callerID != "" {
		updated.UpdatedBy = &callerID
	}
	if err := s.repo.GradeSheet.Update(ctx, &updated); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新成绩单失败", zap.String("grade_sheet_id", id), zap.Error(err))
		}
		return nil, err
	}

	result := &dto.CascadeResult{}
	result.Record(dto.StageSheet, nil)
	s.runDownstream(ctx, result, updated.SessionID, affected)

	return &dto.GradeWriteResponse{Sheet: toGradeSheetResponse(&updated), Cascade: *result}, nil
}

// runDownstream 成绩级联：课次平均分 → 学生各科平均；成绩不参与全局统计
func (s *gradeService) runDownstream(ctx context.Context, result *dto.CascadeResult, sessionID string, studentIDs []string) {
	s.cascade.record(result, dto.StageSession, s.cascade.refreshGradeSession(ctx, sessionID))

	if len(studentIDs) == 0 {
		result.Skip(dto.StageStudents)
	} else {
		failures := s.cascade.fanOut(ctx, studentIDs, s.cascade.refreshStudentGrades)
		result.StudentFailures = failures
		s.cascade.record(result, dto.StageStudents, studentsStageError(failures))
	}

	result.Skip(dto.StageGlobal)
}

func applyGradeStats(sheet *model.GradeSheet) {
	st := rollup.ComputeGradeSheetStats(sheet.Records)
	sheet.AverageGrade = st.AverageGrade
	sheet.HighestGrade = st.HighestGrade
	sheet.LowestGrade = st.LowestGrade
	sheet.AbsentCount = st.AbsentCount
	sheet.TotalStudents = st.TotalStudents
}

// buildGradeRecords 转换成绩明细；缺考记录不保留分数
func buildGradeRecords(inputs []dto.GradeRecordInput) ([]model.GradeRecord, error) {
	seen := make(map[string]struct{}, len(inputs))
	records := make([]model.GradeRecord, 0, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.StudentID]; dup {
			return nil, pkgerrors.NewValidation("records", "学生重复出现: "+in.StudentID)
		}
		seen[in.StudentID] = struct{}{}
		rec := model.GradeRecord{
			StudentID: in.StudentID,
			Value:     in.Value,
			IsAbsent:  in.IsAbsent,
			Comment:   in.Comment,
		}
		if rec.IsAbsent {
			rec.Value = nil
		}
		records = append(records, rec)
	}
	return records, nil
}

func gradeStudentIDs(records []model.GradeRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var ids []string
	for _, r := range records {
		if _, ok := seen[r.StudentID]; ok {
			continue
		}
		seen[r.StudentID] = struct{}{}
		ids = append(ids, r.StudentID)
	}
	return ids
}

func toGradeSheetResponse(sheet *model.GradeSheet) dto.GradeSheetResponse {
	return dto.GradeSheetResponse{
		ID:            sheet.GradeSheetID,
		CourseID:      sheet.CourseID,
		SessionID:     sheet.SessionID,
		Date:          model.DayKey(sheet.Date),
		Type:          sheet.Type,
		IsDraft:       sheet.IsDraft,
		AverageGrade:  sheet.AverageGrade,
		HighestGrade:  sheet.HighestGrade,
		LowestGrade:   sheet.LowestGrade,
		AbsentCount:   sheet.AbsentCount,
		TotalStudents: sheet.TotalStudents,
		Version:       sheet.Version,
	}
}
