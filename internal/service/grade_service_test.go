package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	pkgerrors "eduroots/backend/pkg/errors"
)

func grade(v float64) *float64 { return &v }

func TestCreateGradeSheet_Cascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSession(uid(200), uid(100), uid(1), uid(2), uid(3))

	resp, err := env.svc.Grade.CreateGradeSheet(ctx, &dto.CreateGradeSheetRequest{
		CourseID:  uid(100),
		SessionID: uid(200),
		Date:      "2024-02-01",
		Records: []dto.GradeRecordInput{
			{StudentID: uid(1), Value: grade(12)},
			{StudentID: uid(2), Value: grade(15)},
			{StudentID: uid(3), Value: grade(9), IsAbsent: true},
		},
	}, uid(999))
	require.NoError(t, err)

	assert.InDelta(t, 13.5, resp.Sheet.AverageGrade, 1e-9)
	assert.InDelta(t, 15, resp.Sheet.HighestGrade, 1e-9)
	assert.InDelta(t, 12, resp.Sheet.LowestGrade, 1e-9)
	assert.Equal(t, 1, resp.Sheet.AbsentCount)
	assert.Equal(t, model.GradeTypeControl, resp.Sheet.Type)
	assert.Equal(t, dto.StageStatusSkipped, stageStatus(t, resp.Cascade, dto.StageGlobal))
	assert.False(t, resp.Cascade.Failed())

	session, _ := env.sessions.GetByID(ctx, uid(200))
	assert.InDelta(t, 13.5, session.AverageGrade, 1e-9)

	st := env.stats.get(uid(2))
	require.NotNil(t, st)
	grades := st.Grades.Data()
	assert.InDelta(t, 15, grades.Arabic.Average, 1e-9)
	assert.Equal(t, 1, grades.Arabic.Count)
	assert.Equal(t, 0, grades.CulturalEducation.Count)

	absent := env.stats.get(uid(3)).Grades.Data()
	assert.Equal(t, 0, absent.Overall.Count, "缺考不计入平均")
}

func TestCreateGradeSheet_DraftExcludedFromAverages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addSession(uid(200), uid(100), uid(1))

	created, err := env.svc.Grade.CreateGradeSheet(ctx, &dto.CreateGradeSheetRequest{
		CourseID: uid(100), SessionID: uid(200), Date: "2024-02-01", IsDraft: true,
		Records: []dto.GradeRecordInput{{StudentID: uid(1), Value: grade(18)}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, env.stats.get(uid(1)).Grades.Data().Overall.Count)

	published := false
	_, err = env.svc.Grade.UpdateGradeSheet(ctx, created.Sheet.ID, &dto.UpdateGradeSheetRequest{
		IsDraft: &published,
		Records: []dto.GradeRecordInput{{StudentID: uid(1), Value: grade(18)}},
	}, "")
	require.NoError(t, err)

	g := env.stats.get(uid(1)).Grades.Data()
	assert.Equal(t, 1, g.Overall.Count)
	assert.InDelta(t, 18, g.Overall.Average, 1e-9)
	session, _ := env.sessions.GetByID(ctx, uid(200))
	assert.InDelta(t, 18, session.AverageGrade, 1e-9)
}

func TestCreateGradeSheet_Rejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Grade.CreateGradeSheet(ctx, &dto.CreateGradeSheetRequest{
		CourseID: uid(100), SessionID: uid(404), Date: "2024-02-01",
	}, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	env.addSession(uid(200), uid(100))
	_, err = env.svc.Grade.CreateGradeSheet(ctx, &dto.CreateGradeSheetRequest{
		CourseID: uid(100), SessionID: uid(200), Date: "2024-02-01",
		Records: []dto.GradeRecordInput{{StudentID: uid(1), Value: grade(21)}},
	}, "")
	assert.True(t, pkgerrors.IsValidation(err), "超过 20 分应被拒绝")

	_, err = env.svc.Grade.UpdateGradeSheet(ctx, "missing", &dto.UpdateGradeSheetRequest{}, "")
	assert.ErrorIs(t, err, ErrGradeSheetNotFound)
}
