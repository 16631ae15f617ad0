package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"eduroots/backend/config"
	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/repository"
	"eduroots/backend/internal/rollup"
)

// ErrStatsNotFound 学生尚无统计
var ErrStatsNotFound = errors.New("该学生暂无统计数据")

// StatsService 派生统计查询与全量重建
type StatsService interface {
	GetStudentStats(ctx context.Context, studentID string) (*dto.StudentStatsResponse, error)
	GetGlobalStats(ctx context.Context) (*dto.GlobalStatsResponse, error)
	RecomputeAll(ctx context.Context) (*dto.RecomputeResponse, error)
}

type statsService struct {
	repo    *repository.Repository
	cascade *cascade
	locker  RunLocker
	cfg     config.ReconcileConfig
	logger  *zap.Logger
}

// NewStatsService 创建 StatsService 实例
func NewStatsService(repo *repository.Repository, c *cascade, locker RunLocker, cfg config.ReconcileConfig, logger *zap.Logger) StatsService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &statsService{repo: repo, cascade: c, locker: locker, cfg: cfg, logger: logger}
}

func (s *statsService) GetStudentStats(ctx context.Context, studentID string) (*dto.StudentStatsResponse, error) {
	stats, err := s.repo.StudentStats.GetByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}
	resp := &dto.StudentStatsResponse{
		StudentID:       stats.StudentID,
		TotalSessions:   stats.TotalSessions,
		AbsencesCount:   stats.AbsencesCount,
		AttendanceRate:  stats.AttendanceRate,
		AbsencesRate:    stats.AbsencesRate,
		BehaviorAverage: stats.BehaviorAverage,
		Grades:          stats.Grades.Data(),
		LastUpdate:      stats.LastUpdate.Format(time.RFC3339),
	}
	if stats.LastActivity != nil {
		resp.LastActivity = model.DayKey(*stats.LastActivity)
	}
	return resp, nil
}

// GetGlobalStats 尚未产生任何考勤时返回零值
func (s *statsService) GetGlobalStats(ctx context.Context) (*dto.GlobalStatsResponse, error) {
	stats, err := s.repo.GlobalStats.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.GlobalStatsResponse{}, nil
		}
		return nil, err
	}
	return toGlobalStatsResponse(stats), nil
}

// studentTally 重建时单个学生的出勤汇总：每张有效考勤表上的一条明细计一次课次，与增量级联口径一致
type studentTally struct {
	sessions int
	absences int
	last     time.Time
}

// RecomputeAll 从考勤与成绩明细全量重建学生统计、课次统计与全局统计
func (s *statsService) RecomputeAll(ctx context.Context) (*dto.RecomputeResponse, error) {
	defer s.cascade.observe("recompute_all", time.Now())

	runID, release, err := acquireRun(ctx, s.locker, "stats-recompute", s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	log := s.logger.With(zap.String("run_id", runID))
	log.Info("开始全量重建统计")

	// ── 1. 分批扫描有效考勤表 ──
	tallies := make(map[string]*studentTally)
	sessionSet := make(map[string]struct{})
	sheetCount := 0
	after := ""
	for {
		batch, err := s.repo.AttendanceSheet.ListAfter(ctx, after, s.cfg.BatchSize, true)
		if err != nil {
			log.Error("读取考勤表失败", zap.String("after", after), zap.Error(err))
			return nil, err
		}
		for i := range batch {
			sheet := &batch[i]
			sheetCount++
			if sid := sheet.SessionRef(); sid != "" {
				sessionSet[sid] = struct{}{}
			}
			for _, rec := range sheet.Records {
				t, ok := tallies[rec.StudentID]
				if !ok {
					t = &studentTally{}
					tallies[rec.StudentID] = t
				}
				t.sessions++
				if !rec.IsPresent {
					t.absences++
				}
				if sheet.Date.After(t.last) {
					t.last = sheet.Date
				}
			}
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
		after = batch[len(batch)-1].SheetID
	}

	// 在读学生即使没有考勤也保留一行统计（成绩平均）
	students, err := s.repo.Student.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range students {
		if _, ok := tallies[st.StudentID]; !ok {
			tallies[st.StudentID] = &studentTally{}
		}
	}

	ids := make([]string, 0, len(tallies))
	for id := range tallies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// ── 2. 重建学生统计 ──
	if err := s.repo.StudentStats.DeleteAll(ctx); err != nil {
		log.Error("清空学生统计失败", zap.Error(err))
		return nil, err
	}
	failures := s.cascade.fanOut(ctx, ids, func(ctx context.Context, studentID string) error {
		t := tallies[studentID]
		entries, err := s.repo.GradeSheet.ListRecordsByStudent(ctx, studentID)
		if err != nil {
			return err
		}
		grades := rollup.ComputeGradeAverages(entries)
		return s.cascade.upsertAttendanceStudent(ctx, studentID, func(st *model.StudentStats) {
			rollup.RebuildAttendance(t.sessions, t.absences).ApplyTo(st)
			st.Grades = newGrades(grades)
			st.LastActivity = nil
			if !t.last.IsZero() {
				last := t.last
				st.LastActivity = &last
			}
		})
	})

	// ── 3. 课次与全局 ──
	sessionIDs := make([]string, 0, len(sessionSet))
	for id := range sessionSet {
		sessionIDs = append(sessionIDs, id)
	}
	sort.Strings(sessionIDs)
	for _, sid := range sessionIDs {
		ok, err := s.cascade.sessionExists(ctx, sid)
		if err == nil && ok {
			err = s.cascade.refreshSession(ctx, sid)
		}
		if err != nil {
			log.Warn("课次统计重算失败", zap.String("session_id", sid), zap.Error(err))
		}
	}

	global, err := s.cascade.refreshGlobal(ctx)
	if err != nil {
		log.Error("全局统计重算失败", zap.Error(err))
		return nil, err
	}

	log.Info("全量重建统计完成",
		zap.Int("sheets", sheetCount),
		zap.Int("students", len(ids)),
		zap.Int("failures", len(failures)),
	)
	return &dto.RecomputeResponse{
		Sheets:   sheetCount,
		Students: len(ids),
		Failures: failures,
		Global:   *toGlobalStatsResponse(global),
	}, nil
}

func toGlobalStatsResponse(g *model.GlobalStats) *dto.GlobalStatsResponse {
	return &dto.GlobalStatsResponse{
		AverageAttendanceRate: g.AverageAttendanceRate,
		SheetCount:            g.SheetCount,
		LastUpdate:            g.LastUpdate.Format(time.RFC3339),
	}
}
