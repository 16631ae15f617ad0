package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/repository"
	pkgerrors "eduroots/backend/pkg/errors"
)

// ErrTimeSlotOverlap 时间段与已有课次冲突
var ErrTimeSlotOverlap = errors.New("时间段与已有课次冲突")

// OverlapError 携带冲突课次的时间段冲突错误
type OverlapError struct {
	Conflict dto.SessionBrief
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: 课次 %s (%s-%s)", ErrTimeSlotOverlap.Error(), e.Conflict.ID, e.Conflict.StartTime, e.Conflict.EndTime)
}

// Is 使 errors.Is(err, ErrTimeSlotOverlap) 成立
func (e *OverlapError) Is(target error) bool { return target == ErrTimeSlotOverlap }

// CourseService 课程与课次业务接口
type CourseService interface {
	// CheckTimeSlotOverlap 无冲突返回 nil；冲突时返回 *OverlapError
	CheckTimeSlotOverlap(ctx context.Context, req *dto.OverlapCheckRequest) error
}

type courseService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewCourseService 创建 CourseService 实例
func NewCourseService(repo *repository.Repository, logger *zap.Logger) CourseService {
	return &courseService{repo: repo, logger: logger}
}

func (s *courseService) CheckTimeSlotOverlap(ctx context.Context, req *dto.OverlapCheckRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	start, err := parseClock("start_time", req.StartTime)
	if err != nil {
		return err
	}
	end, err := parseClock("end_time", req.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return pkgerrors.NewValidation("end_time", "结束时间必须晚于开始时间")
	}

	sessions, err := s.repo.Session.ListByDay(ctx, *req.DayOfWeek, req.TeacherID, strings.TrimSpace(req.Room))
	if err != nil {
		s.logger.Error("查询同日课次失败", zap.Int("day_of_week", *req.DayOfWeek), zap.Error(err))
		return err
	}

	for i := range sessions {
		existing := &sessions[i]
		if existing.SessionID == req.ExcludeSessionID {
			continue
		}
		exStart, err := parseClock("start_time", existing.StartTime)
		if err != nil {
			s.logger.Warn("课次时间格式异常，已跳过", zap.String("session_id", existing.SessionID))
			continue
		}
		exEnd, err := parseClock("end_time", existing.EndTime)
		if err != nil {
			s.logger.Warn("课次时间格式异常，已跳过", zap.String("session_id", existing.SessionID))
			continue
		}
		// 半开区间：首尾相接不算冲突
		if start < exEnd && end > exStart {
			return &OverlapError{Conflict: toSessionBrief(existing)}
		}
	}
	return nil
}

// parseClock 将 HH:MM 转换为当日分钟数
func parseClock(field, value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, pkgerrors.NewValidation(field, "格式必须为 HH:MM")
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, pkgerrors.NewValidation(field, "格式必须为 HH:MM")
	}
	return h*60 + m, nil
}

func toSessionBrief(s *model.Session) dto.SessionBrief {
	return dto.SessionBrief{
		ID:        s.SessionID,
		CourseID:  s.CourseID,
		TeacherID: s.TeacherID,
		Subject:   string(s.Subject),
		DayOfWeek: s.DayOfWeek,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Room:      s.Room,
	}
}
