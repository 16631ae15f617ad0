package service

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"eduroots/backend/config"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/repository"
	"eduroots/backend/pkg/metrics"
)

// testEnv 基于内存 Repository 的服务测试环境
type testEnv struct {
	sheets   *mockAttendanceSheetRepo
	grades   *mockGradeSheetRepo
	sessions *mockSessionRepo
	students *mockStudentRepo
	stats    *mockStudentStatsRepo
	global   *mockGlobalStatsRepo

	repo    *repository.Repository
	cfg     *config.Config
	metrics *metrics.Metrics
	cascade *cascade
	svc     *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sessions := newMockSessionRepo()
	env := &testEnv{
		sheets:   newMockAttendanceSheetRepo(),
		grades:   newMockGradeSheetRepo(sessions),
		sessions: sessions,
		students: &mockStudentRepo{},
		stats:    newMockStudentStatsRepo(),
		global:   &mockGlobalStatsRepo{},
		metrics:  metrics.Nop(),
	}
	env.repo = &repository.Repository{
		AttendanceSheet: env.sheets,
		GradeSheet:      env.grades,
		Session:         env.sessions,
		Student:         env.students,
		StudentStats:    env.stats,
		GlobalStats:     env.global,
	}

	dir := t.TempDir()
	env.cfg = &config.Config{
		Cascade: config.CascadeConfig{FanoutLimit: 4, OptimisticRetries: 2},
		Reconcile: config.ReconcileConfig{
			ReportsDir:      filepath.Join(dir, "reports"),
			ScriptsDir:      filepath.Join(dir, "scripts"),
			BatchSize:       2,
			HighThreshold:   0.70,
			MediumThreshold: 0.40,
			LockTTL:         time.Minute,
		},
	}
	env.svc = NewService(env.cfg, env.repo, nil, env.metrics, zap.NewNop())
	env.cascade = newCascade(env.repo, env.cfg.Cascade, env.metrics, zap.NewNop())
	return env
}

// addSession 注册一个有效课次
func (e *testEnv) addSession(id, courseID string, students ...string) *model.Session {
	s := &model.Session{
		SessionID:  id,
		CourseID:   courseID,
		TeacherID:  uid(900),
		Subject:    model.SubjectArabic,
		TimeSlot:   model.TimeSlot{DayOfWeek: 6, StartTime: "09:00", EndTime: "11:00", Room: "A1"},
		StudentIDs: model.StringArray(students),
		IsActive:   true,
	}
	e.sessions.put(s)
	return s
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
