package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/reconcile"
	pkgerrors "eduroots/backend/pkg/errors"
)

// putSheet 写入一张历史考勤表，sessionID 为空表示缺少课次引用
func (e *testEnv) putSheet(id, sessionID string, rate float64, students ...int) {
	s := &model.AttendanceSheet{
		SheetID:       id,
		CourseID:      uid(100),
		Date:          day("2024-01-06"),
		PresenceRate:  rate,
		TotalStudents: len(students),
		IsActive:      true,
	}
	if sessionID != "" {
		sid := sessionID
		s.SessionID = &sid
	}
	for _, n := range students {
		s.Records = append(s.Records, model.AttendanceRecord{SheetID: id, StudentID: uid(n), IsPresent: true})
	}
	e.sheets.put(s)
}

func studentRange(from, to int) []string {
	var ids []string
	for i := from; i <= to; i++ {
		ids = append(ids, uid(i))
	}
	return ids
}

// seedOrphans 一张高置信度孤儿、一张缺少引用的中置信度孤儿、一张无候选孤儿与一张有效表
func (e *testEnv) seedOrphans() {
	e.addSession(uid(200), uid(100), uid(30), uid(31), uid(32))
	e.addSession(uid(201), uid(100), append(studentRange(1, 8), uid(11), uid(12))...)

	e.putSheet("sheet-a", uid(300), 80, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	e.putSheet("sheet-b", "", 60, 1, 2, 3, 20, 21)
	e.putSheet("sheet-c", uid(301), 50, 50, 51)
	e.putSheet("sheet-v", uid(200), 100, 30, 31)
}

func TestAuditAttendance_ClassifiesAndEmitsScript(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrphans()

	report, err := env.svc.Reconcile.AuditAttendance(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)

	assert.Equal(t, 4, report.Audit.Total)
	assert.Equal(t, 1, report.Audit.Valid)
	assert.Equal(t, 3, report.Audit.Invalid)
	assert.Equal(t, 3, report.Audit.Sessions.Total)
	assert.Equal(t, 1, report.Audit.Sessions.Found)
	assert.Equal(t, 2, report.Audit.Sessions.Missing)

	assert.Equal(t, dto.MatchCounts{High: 1, Medium: 1, Low: 0, Unresolved: 1}, report.Counts)
	high := report.Matches.High[0]
	assert.Equal(t, "sheet-a", high.OrphanID)
	assert.Equal(t, uid(201), high.SuggestedSessionID)
	assert.Equal(t, 8, high.CommonCount)
	assert.Equal(t, 10, high.TotalCount)
	assert.InDelta(t, 0.8, high.Ratio, 1e-9)

	medium := report.Matches.Medium[0]
	assert.Equal(t, "sheet-b", medium.OrphanID)
	assert.Empty(t, medium.BrokenSessionID)
	assert.InDelta(t, 0.6, medium.Ratio, 1e-9)

	assert.Equal(t, "sheet-c", report.Matches.Unresolved[0].OrphanID)
	assert.Empty(t, report.Matches.Unresolved[0].SuggestedSessionID)

	require.NotEmpty(t, report.ScriptPath)
	assert.True(t, strings.HasPrefix(filepath.Base(report.ScriptPath), "attendance_corrections_"))
	script, err := reconcile.LoadScript(report.ScriptPath)
	require.NoError(t, err)
	require.Len(t, script.Operations, 1, "只有高置信度匹配写入脚本")
	op := script.Operations[0]
	assert.Equal(t, "sheet-a", op.TargetID)
	assert.Equal(t, uid(300), op.OldValue)
	assert.Equal(t, uid(201), op.NewValue)

	require.NotEmpty(t, report.ReportPath)
	_, err = os.Stat(report.ReportPath)
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AuditReferences.WithLabelValues("valid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.AuditReferences.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Matches.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ScriptsEmitted))

	// 审计不修改任何数据
	sheet, _ := env.sheets.GetByID(ctx, "sheet-a")
	assert.Equal(t, uid(300), sheet.SessionRef())
}

func TestApplyScript_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrphans()

	report, err := env.svc.Reconcile.AuditAttendance(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, report.ScriptPath)

	first, err := env.svc.Reconcile.ApplyScript(ctx, report.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Applied)
	assert.Equal(t, 0, first.Skipped)

	sheet, _ := env.sheets.GetByID(ctx, "sheet-a")
	assert.Equal(t, uid(201), sheet.SessionRef())
	session, _ := env.sessions.GetByID(ctx, uid(201))
	assert.InDelta(t, 80, session.AverageAttendance, 1e-9, "修正后重算课次平均出勤")

	second, err := env.svc.Reconcile.ApplyScript(ctx, report.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ScriptOperations.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ScriptOperations.WithLabelValues("skipped")))

	// 再次审计：已修正的表不再是孤儿，没有高置信度结果时不生成脚本
	rerun, err := env.svc.Reconcile.AuditAttendance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rerun.Audit.Invalid)
	assert.Equal(t, 0, rerun.Counts.High)
	assert.Empty(t, rerun.ScriptPath)
}

func TestApplyScript_RejectsBadFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("operations: [: nope"), 0o644))

	_, err := env.svc.Reconcile.ApplyScript(context.Background(), path)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = env.svc.Reconcile.ApplyScript(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCollapseGradeDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSession(uid(200), uid(100), uid(1), uid(2))

	for _, tc := range []struct {
		date    string
		records []dto.GradeRecordInput
	}{
		{"2024-03-01", []dto.GradeRecordInput{{StudentID: uid(1), Value: grade(10)}}},
		{"2024-03-01", []dto.GradeRecordInput{{StudentID: uid(1), Value: grade(20)}, {StudentID: uid(2), Value: grade(16)}}},
		{"2024-03-08", []dto.GradeRecordInput{{StudentID: uid(1), Value: grade(14)}}},
	} {
		_, err := env.svc.Grade.CreateGradeSheet(ctx, &dto.CreateGradeSheetRequest{
			CourseID: uid(100), SessionID: uid(200), Date: tc.date, Records: tc.records,
		}, "")
		require.NoError(t, err)
	}
	require.InDelta(t, 14.67, env.stats.get(uid(1)).Grades.Data().Overall.Average, 1e-9)

	dry, err := env.svc.Reconcile.CollapseGradeDuplicates(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.Result.DryRun)
	assert.Equal(t, 3, dry.Result.Scanned)
	assert.Equal(t, 1, dry.Result.Groups)
	require.Len(t, dry.Result.Removed, 1)
	assert.Equal(t, "grade-0002", dry.Result.Removed[0].ID)
	assert.Equal(t, "grade-0001", dry.Result.Removed[0].SurvivorID)
	assert.Empty(t, env.grades.deleted, "预演不删除任何记录")
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.DuplicatesRemoved))

	applied, err := env.svc.Reconcile.CollapseGradeDuplicates(ctx, false)
	require.NoError(t, err)
	require.Len(t, applied.Result.Removed, 1)
	assert.Empty(t, applied.Result.Failed)
	assert.Equal(t, []string{"grade-0002"}, env.grades.deleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.DuplicatesRemoved))
	assert.NotEmpty(t, applied.ReportPath)

	// 删除后重算受影响的课次与学生
	assert.InDelta(t, 12, env.stats.get(uid(1)).Grades.Data().Overall.Average, 1e-9)
	assert.Equal(t, 0, env.stats.get(uid(2)).Grades.Data().Overall.Count)
	session, _ := env.sessions.GetByID(ctx, uid(200))
	assert.InDelta(t, 12, session.AverageGrade, 1e-9)

	again, err := env.svc.Reconcile.CollapseGradeDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Result.Removed)
}

func TestCompareStudents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.students.students = []model.Student{
		{StudentID: uid(1), Firstname: "Ali", Lastname: "Dupont", Email: "ali@ecole.fr", Gender: model.GenderMale, IsActive: true},
		{StudentID: uid(2), Firstname: "Sara", Lastname: "Martin", IsActive: true},
		{StudentID: uid(3), Firstname: "Zed", Lastname: "Ancien", IsActive: false},
	}

	report, err := env.svc.Reconcile.CompareStudents(ctx, []reconcile.ImportedStudent{
		{Firstname: "ali", Lastname: " DUPONT ", Email: "ali@autre.fr", Gender: "M"},
		{Firstname: "Karim", Lastname: "Nouveau"},
	})
	require.NoError(t, err)

	require.Len(t, report.Comparison.Matched, 1)
	m := report.Comparison.Matched[0]
	assert.Equal(t, uid(1), m.StudentID)
	assert.Equal(t, 12, m.Score)
	assert.Equal(t, []reconcile.Discrepancy{{Field: "email", Imported: "ali@autre.fr", Live: "ali@ecole.fr"}}, m.Discrepancies)

	require.Len(t, report.Comparison.OnlyInImport, 1)
	assert.Equal(t, "Nouveau", report.Comparison.OnlyInImport[0].Lastname)
	require.Len(t, report.Comparison.OnlyInLive, 1, "停用学生不参与比对")
	assert.Equal(t, uid(2), report.Comparison.OnlyInLive[0].StudentID)
	assert.NotEmpty(t, report.ReportPath)

	_, err = env.svc.Reconcile.CompareStudents(ctx, nil)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestReconcileRuns_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	locker := newMockLocker()
	svc := NewReconcileService(env.repo, env.cascade, locker, env.cfg.Reconcile, env.metrics, zap.NewNop())

	release, err := locker.AcquireLock(ctx, "attendance-audit", "other-run", 0)
	require.NoError(t, err)

	_, err = svc.AuditAttendance(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	// 不同类型的运行互不阻塞
	_, err = svc.CollapseGradeDuplicates(ctx, true)
	assert.NoError(t, err)

	release(ctx)
	_, err = svc.AuditAttendance(ctx)
	assert.NoError(t, err)
}

func TestResolveScriptPath(t *testing.T) {
	env := newTestEnv(t)

	path, err := env.svc.Reconcile.ResolveScriptPath("attendance_corrections_2024-01-06T10-00-00.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.cfg.Reconcile.ScriptsDir, "attendance_corrections_2024-01-06T10-00-00.yaml"), path)

	for _, bad := range []string{"", "../secret.yaml", "sub/fix.yaml", "/etc/passwd", "fix.json", ".."} {
		_, err := env.svc.Reconcile.ResolveScriptPath(bad)
		assert.True(t, pkgerrors.IsValidation(err), bad)
	}
}

func TestExportAuditReport(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrphans()

	report, err := env.svc.Reconcile.AuditAttendance(context.Background())
	require.NoError(t, err)

	buf, filename, err := env.svc.Reconcile.ExportAuditReport(report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "attendance_audit_"))
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"汇总", "失效引用", "匹配建议"}, f.GetSheetList())

	invalid, err := f.GetRows("失效引用")
	require.NoError(t, err)
	assert.Len(t, invalid, 4)

	matches, err := f.GetRows("匹配建议")
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, "sheet-a", matches[1][1], "高置信度排在最前")
	assert.Equal(t, "80%", matches[1][6])

	_, _, err = env.svc.Reconcile.ExportAuditReport(nil)
	assert.ErrorIs(t, err, ErrExportNoReport)
}

func TestReconcileRuns_ReportsDoNotOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 两次运行几乎同时结束，报告文件应各自保留
	first, err := env.svc.Reconcile.CollapseGradeDuplicates(ctx, true)
	require.NoError(t, err)
	second, err := env.svc.Reconcile.CollapseGradeDuplicates(ctx, true)
	require.NoError(t, err)

	require.NotEmpty(t, first.ReportPath)
	assert.NotEqual(t, first.ReportPath, second.ReportPath)
	assert.Contains(t, filepath.Base(first.ReportPath), first.RunID[:8])

	entries, err := os.ReadDir(env.cfg.Reconcile.ReportsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
