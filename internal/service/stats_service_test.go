package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
)

func TestGetStats_Empty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	global, err := env.svc.Stats.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, global.SheetCount)
	assert.Zero(t, global.AverageAttendanceRate)

	_, err = env.svc.Stats.GetStudentStats(ctx, uid(1))
	assert.ErrorIs(t, err, ErrStatsNotFound)
}

func TestRecomputeAll_MatchesIncrementalState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSession(uid(200), uid(100), uid(1), uid(2), uid(3))

	for _, tc := range []struct {
		date     string
		presence []bool
	}{
		{"2024-01-05", []bool{true, false, true}},
		{"2024-01-06", []bool{true, true, false}},
		{"2024-01-07", []bool{false, true, true}},
	} {
		_, err := env.svc.Attendance.CreateSheet(ctx, createReq(uid(100), uid(200), tc.date, tc.presence...), "")
		require.NoError(t, err)
	}

	incremental := map[string]*model.StudentStats{}
	for i := 1; i <= 3; i++ {
		incremental[uid(i)] = env.stats.get(uid(i))
	}

	// 模拟统计被破坏
	env.stats.stats[uid(1)].AbsencesCount = 42
	env.students.students = []model.Student{{StudentID: uid(4), IsActive: true}}

	resp, err := env.svc.Stats.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Sheets)
	assert.Equal(t, 4, resp.Students)
	assert.Empty(t, resp.Failures)
	assert.Equal(t, 3, resp.Global.SheetCount)

	for id, want := range incremental {
		got := env.stats.get(id)
		require.NotNil(t, got)
		assert.Equal(t, want.TotalSessions, got.TotalSessions, id)
		assert.Equal(t, want.AbsencesCount, got.AbsencesCount, id)
		assert.InDelta(t, want.AttendanceRate, got.AttendanceRate, 1e-9, id)
		require.NotNil(t, got.LastActivity)
		assert.Equal(t, "2024-01-07", model.DayKey(*got.LastActivity))
	}

	idle := env.stats.get(uid(4))
	require.NotNil(t, idle, "在读学生即使无考勤也应有统计")
	assert.Equal(t, 0, idle.TotalSessions)
	assert.Nil(t, idle.LastActivity)
}

// attendanceSnapshot 学生出勤统计的可比较快照
func attendanceSnapshot(t *testing.T, env *testEnv, studentID string) [3]float64 {
	t.Helper()
	st := env.stats.get(studentID)
	require.NotNil(t, st)
	return [3]float64{float64(st.TotalSessions), float64(st.AbsencesCount), st.BehaviorAverage}
}

func TestRecomputeAll_AgreesWithIncrementalAcrossEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 同一学生同一天两门课程：一次缺勤、一次出勤，各计一次课次
	_, err := env.svc.Attendance.CreateSheet(ctx, createReq(uid(100), "", "2024-01-06", false), "")
	require.NoError(t, err)
	present, err := env.svc.Attendance.CreateSheet(ctx, createReq(uid(101), "", "2024-01-06", true), "")
	require.NoError(t, err)

	incremental := attendanceSnapshot(t, env, uid(1))
	assert.Equal(t, [3]float64{2, 1, 0}, incremental)

	_, err = env.svc.Stats.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, incremental, attendanceSnapshot(t, env, uid(1)), "重建结果应与增量结果一致")

	// 重建后继续增量编辑，再次重建不应产生漂移
	_, err = env.svc.Attendance.SoftDeleteSheet(ctx, present.Sheet.ID, "")
	require.NoError(t, err)
	afterDelete := attendanceSnapshot(t, env, uid(1))
	assert.Equal(t, [3]float64{1, 1, 0}, afterDelete)

	_, err = env.svc.Stats.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, afterDelete, attendanceSnapshot(t, env, uid(1)))

	st, err := env.svc.Stats.GetStudentStats(ctx, uid(1))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-06", st.LastActivity)
}

func ratedReq(courseID, date string, rating *int) *dto.CreateAttendanceSheetRequest {
	return &dto.CreateAttendanceSheetRequest{
		CourseID: courseID,
		Date:     date,
		Records:  []dto.AttendanceRecordInput{{StudentID: uid(1), IsPresent: true, BehaviorRating: rating}},
	}
}

func TestBehaviorAverage_IncrementalAndRecompute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	four, two, five := 4, 2, 5

	first, err := env.svc.Attendance.CreateSheet(ctx, ratedReq(uid(100), "2024-01-05", &four), "")
	require.NoError(t, err)
	second, err := env.svc.Attendance.CreateSheet(ctx, ratedReq(uid(100), "2024-01-06", &two), "")
	require.NoError(t, err)
	// 未评分的考勤不参与行为均分
	_, err = env.svc.Attendance.CreateSheet(ctx, ratedReq(uid(100), "2024-01-07", nil), "")
	require.NoError(t, err)
	assert.Equal(t, 3.0, env.stats.get(uid(1)).BehaviorAverage)

	// 只改评分、出勤不变
	_, err = env.svc.Attendance.UpdateSheet(ctx, second.Sheet.ID, &dto.UpdateAttendanceSheetRequest{
		Records: []dto.AttendanceRecordInput{{StudentID: uid(1), IsPresent: true, BehaviorRating: &five}},
	}, "")
	require.NoError(t, err)
	st := env.stats.get(uid(1))
	assert.Equal(t, 4.5, st.BehaviorAverage)
	assert.Equal(t, 3, st.TotalSessions)

	_, err = env.svc.Attendance.SoftDeleteSheet(ctx, first.Sheet.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5.0, env.stats.get(uid(1)).BehaviorAverage)

	env.stats.stats[uid(1)].BehaviorAverage = 0
	_, err = env.svc.Stats.RecomputeAll(ctx)
	require.NoError(t, err)
	resp, err := env.svc.Stats.GetStudentStats(ctx, uid(1))
	require.NoError(t, err)
	assert.Equal(t, 5.0, resp.BehaviorAverage)
}

func TestBehaviorRating_OutOfRangeRejected(t *testing.T) {
	env := newTestEnv(t)
	six := 6

	_, err := env.svc.Attendance.CreateSheet(context.Background(), ratedReq(uid(100), "2024-01-05", &six), "")
	require.Error(t, err)
	assert.Nil(t, env.stats.get(uid(1)))
}

func TestRecomputeAll_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	locker := newMockLocker()
	svc := NewStatsService(env.repo, env.cascade, locker, env.cfg.Reconcile, env.cascade.logger)

	release, err := locker.AcquireLock(context.Background(), "stats-recompute", "other", 0)
	require.NoError(t, err)

	_, err = svc.RecomputeAll(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	release(context.Background())
	resp, err := svc.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dto.GlobalStatsResponse{LastUpdate: resp.Global.LastUpdate}, resp.Global)
}
