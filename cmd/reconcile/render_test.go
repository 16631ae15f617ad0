package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/reconcile"
)

func TestRenderAudit(t *testing.T) {
	report := &dto.AuditRunReport{
		RunID:      "run-1",
		Audit:      &reconcile.AuditReport{Total: 1200, Valid: 1197, Invalid: 3, Sessions: reconcile.ParentSummary{Missing: 2}},
		Thresholds: dto.ThresholdsResponse{High: 0.7, Medium: 0.4},
		Counts:     dto.MatchCounts{High: 1, Unresolved: 1, Medium: 1},
		Matches: reconcile.MatchBuckets{
			High:       []reconcile.SessionMatch{{OrphanID: "sheet-a", BrokenSessionID: "old-1", SuggestedSessionID: "new-1", CommonCount: 8, TotalCount: 10, Ratio: 0.8, Confidence: reconcile.ConfidenceHigh}},
			Medium:     []reconcile.SessionMatch{{OrphanID: "sheet-b", SuggestedSessionID: "new-2", CommonCount: 3, TotalCount: 5, Ratio: 0.6, Confidence: reconcile.ConfidenceMedium}},
			Unresolved: []reconcile.SessionMatch{{OrphanID: "sheet-c", BrokenSessionID: "old-3", TotalCount: 4, Confidence: reconcile.ConfidenceUnresolved}},
		},
		ScriptPath: "scripts/fix.yaml",
	}

	var buf bytes.Buffer
	renderAudit(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "高置信度 ≥ 70%")
	assert.Contains(t, out, "sheet-a")
	assert.Contains(t, out, "8/10")
	assert.Contains(t, out, "80%")
	assert.Contains(t, out, "共 3 条")
	assert.Contains(t, out, "修正脚本: scripts/fix.yaml")
	assert.NotContains(t, out, "运行报告")
}

func TestRenderAudit_NoMatches(t *testing.T) {
	var buf bytes.Buffer
	renderAudit(&buf, &dto.AuditRunReport{RunID: "run-2", Audit: &reconcile.AuditReport{Total: 5, Valid: 5}})

	assert.Contains(t, buf.String(), "run-2")
	assert.NotContains(t, buf.String(), "建议课次")
}

func TestRenderDuplicates(t *testing.T) {
	var buf bytes.Buffer
	renderDuplicates(&buf, &dto.DuplicateRunReport{Result: &reconcile.DuplicateReport{
		Scanned: 4, Groups: 1, DryRun: true,
		Removed: []reconcile.Removal{{ID: "g-2", SurvivorID: "g-1", Key: "s1-2024-03-01"}},
		Failed:  []reconcile.RemovalFailure{{ID: "g-9", Error: "boom"}},
	}})
	out := buf.String()

	assert.Contains(t, out, "预演模式")
	assert.Contains(t, out, "s1-2024-03-01")
	assert.Contains(t, out, "删除失败 g-9: boom")
}

func TestRenderComparison(t *testing.T) {
	var buf bytes.Buffer
	renderComparison(&buf, &dto.StudentComparisonReport{Comparison: reconcile.StudentComparison{
		Matched: []reconcile.StudentMatch{{
			StudentID: "stu-1", Firstname: "Amine", Lastname: "Benali", Score: 12,
			Discrepancies: []reconcile.Discrepancy{{Field: "email", Imported: "a@x.fr", Live: "b@x.fr"}},
		}},
		OnlyInImport: []reconcile.ImportedStudent{{Firstname: "Sara", Lastname: "Haddad"}},
	}})
	out := buf.String()

	assert.Contains(t, out, "已匹配 1 人，仅在导入名单 1 人，仅在数据库 0 人")
	assert.Contains(t, out, "email: a@x.fr ≠ b@x.fr")
	assert.Contains(t, out, "Haddad Sara")
}

func TestRenderApply(t *testing.T) {
	var buf bytes.Buffer
	renderApply(&buf, &dto.ApplyScriptResult{
		Path: "scripts/fix.yaml", Applied: 1, Skipped: 1, Failed: 1,
		Operations: []dto.AppliedOperation{
			{TargetID: "sheet-a", NewValue: "s-1", Applied: true},
			{TargetID: "sheet-b", NewValue: "s-2"},
			{TargetID: "sheet-c", NewValue: "s-3", Error: "记录不存在"},
		},
	})
	out := buf.String()

	assert.Contains(t, out, "已执行")
	assert.Contains(t, out, "已跳过")
	assert.Contains(t, out, "失败: 记录不存在")
	assert.Contains(t, out, "执行 1 / 跳过 1 / 失败 1")
}

func TestRenderRecompute(t *testing.T) {
	var buf bytes.Buffer
	renderRecompute(&buf, &dto.RecomputeResponse{
		Sheets: 1500, Students: 42,
		Global:   dto.GlobalStatsResponse{AverageAttendanceRate: 87.5},
		Failures: []dto.StudentFailure{{StudentID: "stu-9", Error: "timeout"}},
	})

	assert.Contains(t, buf.String(), "已重建 42 名学生（1,500 张考勤表），全局出勤率 87.50%")
	assert.Contains(t, buf.String(), "学生 stu-9 重建失败: timeout")
}

func TestMigrateCommand_RejectsDirection(t *testing.T) {
	cmd := newMigrateCommand()
	cmd.SetArgs([]string{"sideways"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.ErrorIs(t, err, ErrBadMigrateDirection)
}

func TestCommands_ArgValidation(t *testing.T) {
	for _, c := range []*cobra.Command{newCompareCommand(), newApplyCommand()} {
		c.SetArgs(nil)
		c.SetOut(&bytes.Buffer{})
		c.SetErr(&bytes.Buffer{})
		assert.Error(t, c.Execute(), c.Name())
	}
}
