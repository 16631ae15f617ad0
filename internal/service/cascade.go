package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eduroots/backend/config"
	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/repository"
	"eduroots/backend/internal/rollup"
	pkgerrors "eduroots/backend/pkg/errors"
	"eduroots/backend/pkg/metrics"
)

// cascade 派生统计的逐级刷新：课次 → 学生 → 全局
// 每一级独立提交，后一级失败不回滚前一级
type cascade struct {
	repo    *repository.Repository
	cfg     config.CascadeConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func newCascade(repo *repository.Repository, cfg config.CascadeConfig, m *metrics.Metrics, logger *zap.Logger) *cascade {
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = 1
	}
	if cfg.OptimisticRetries < 0 {
		cfg.OptimisticRetries = 0
	}
	return &cascade{repo: repo, cfg: cfg, metrics: m, logger: logger, now: time.Now}
}

// ──────────────────────────── 课次 ────────────────────────────

// refreshSession 以该课次全部有效考勤表的出勤率均值刷新课次平均出勤
func (c *cascade) refreshSession(ctx context.Context, sessionID string) error {
	rates, err := c.repo.AttendanceSheet.ListPresenceRates(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("读取课次出勤率失败: %w", err)
	}
	return c.repo.Session.UpdateAttendanceStats(ctx, sessionID, rollup.ComputeSessionAverage(rates))
}

// sessionExists 课次不存在（已删除或从未存在）时返回 false
func (c *cascade) sessionExists(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	if _, err := c.repo.Session.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// refreshGradeSession 以非草稿且有人参评的成绩单均分刷新课次平均成绩
func (c *cascade) refreshGradeSession(ctx context.Context, sessionID string) error {
	sheets, err := c.repo.GradeSheet.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("读取课次成绩单失败: %w", err)
	}
	var averages []float64
	for _, s := range sheets {
		if s.IsDraft || !s.IsActive || s.TotalStudents <= s.AbsentCount {
			continue
		}
		averages = append(averages, s.AverageGrade)
	}
	return c.repo.Session.UpdateGradeStats(ctx, sessionID, rollup.Round2(rollup.ComputeSessionAverage(averages)))
}

// ──────────────────────────── 全局 ────────────────────────────

// refreshGlobal 以全部有效考勤表重算全局平均出勤率
func (c *cascade) refreshGlobal(ctx context.Context) (*model.GlobalStats, error) {
	rates, err := c.repo.AttendanceSheet.ListPresenceRates(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("读取全局出勤率失败: %w", err)
	}
	stats := &model.GlobalStats{
		Singleton:             true,
		AverageAttendanceRate: rollup.ComputeGlobalAverage(rates),
		SheetCount:            len(rates),
		LastUpdate:            c.now(),
	}
	if err := c.repo.GlobalStats.Upsert(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ──────────────────────────── 学生 ────────────────────────────

// upsertStudent 读-改-写单个学生统计，版本冲突时重读重试
// 不存在时以零值统计为起点创建
func (c *cascade) upsertStudent(ctx context.Context, studentID string, mutate func(*model.StudentStats)) error {
	for attempt := 0; attempt <= c.cfg.OptimisticRetries; attempt++ {
		stats, err := c.repo.StudentStats.GetByStudent(ctx, studentID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := &model.StudentStats{StudentID: studentID}
			mutate(fresh)
			fresh.LastUpdate = c.now()
			created, err := c.repo.StudentStats.Create(ctx, fresh)
			if err != nil {
				return err
			}
			if created {
				return nil
			}
			// 并发创建：重读后走更新分支
			continue
		case err != nil:
			return err
		}

		mutate(stats)
		stats.LastUpdate = c.now()
		err = c.repo.StudentStats.Update(ctx, stats)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return err
		}
		c.logger.Debug("学生统计版本冲突，重试",
			zap.String("student_id", studentID), zap.Int("attempt", attempt+1))
	}
	return pkgerrors.ErrOptimisticLock
}

// upsertAttendanceStudent 考勤变化后的学生更新：应用出勤增量，并按全部评分重算行为均分
// mutate 为空时只刷新行为均分
func (c *cascade) upsertAttendanceStudent(ctx context.Context, studentID string, mutate func(*model.StudentStats)) error {
	entries, err := c.repo.AttendanceSheet.ListBehaviorByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("读取学生行为评分失败: %w", err)
	}
	behavior := rollup.ComputeBehaviorAverage(entries)
	return c.upsertStudent(ctx, studentID, func(st *model.StudentStats) {
		if mutate != nil {
			mutate(st)
		}
		st.BehaviorAverage = behavior
	})
}

// refreshStudentGrades 以学生全部非草稿成绩重算各科平均
func (c *cascade) refreshStudentGrades(ctx context.Context, studentID string) error {
	entries, err := c.repo.GradeSheet.ListRecordsByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("读取学生成绩失败: %w", err)
	}
	averages := rollup.ComputeGradeAverages(entries)
	return c.upsertStudent(ctx, studentID, func(s *model.StudentStats) {
		s.Grades = newGrades(averages)
	})
}

// fanOut 并发处理多个学生，单个学生失败被收集而不中断其余学生
func (c *cascade) fanOut(ctx context.Context, ids []string, fn func(ctx context.Context, studentID string) error) []dto.StudentFailure {
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(c.cfg.FanoutLimit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			errs[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var failures []dto.StudentFailure
	for i, err := range errs {
		if err == nil {
			continue
		}
		c.metrics.CascadeStageFailures.WithLabelValues(dto.StageStudents).Inc()
		c.logger.Warn("学生统计更新失败", zap.String("student_id", ids[i]), zap.Error(err))
		failures = append(failures, dto.StudentFailure{StudentID: ids[i], Error: err.Error()})
	}
	return failures
}

// record 记录阶段结果并累计失败指标
func (c *cascade) record(result *dto.CascadeResult, stage string, err error) {
	result.Record(stage, err)
	if err != nil && stage != dto.StageStudents {
		c.metrics.CascadeStageFailures.WithLabelValues(stage).Inc()
		c.logger.Warn("级联阶段失败", zap.String("stage", stage), zap.Error(err))
	}
}

// observe 记录一次级联耗时
func (c *cascade) observe(operation string, started time.Time) {
	c.metrics.CascadeDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// studentsStageError 将学生失败汇总为阶段错误
func studentsStageError(failures []dto.StudentFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%d 名学生统计更新失败", len(failures))
}

func newGrades(g model.GradeAverages) datatypes.JSONType[model.GradeAverages] {
	return datatypes.NewJSONType(g)
}
