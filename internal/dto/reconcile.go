package dto

import (
	"time"

	"eduroots/backend/internal/reconcile"
)

// ── 数据对账 DTO ──

// ThresholdsResponse 本次运行使用的置信度阈值
type ThresholdsResponse struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// MatchCounts 各置信度数量
type MatchCounts struct {
	High       int `json:"high"`
	Medium     int `json:"medium"`
	Low        int `json:"low"`
	Unresolved int `json:"unresolved"`
}

// AuditRunReport 考勤引用审计运行报告
type AuditRunReport struct {
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Audit      *reconcile.AuditReport `json:"audit"`
	Thresholds ThresholdsResponse     `json:"thresholds"`
	Counts     MatchCounts            `json:"counts"`
	Matches    reconcile.MatchBuckets `json:"matches"`
	ScriptPath string                 `json:"script_path,omitempty"`
	ReportPath string                 `json:"report_path,omitempty"`
	Errors     []string               `json:"errors"`
}

// GradeDuplicatesRequest 成绩单去重请求
type GradeDuplicatesRequest struct {
	DryRun bool `json:"dry_run"`
}

// DuplicateRunReport 成绩单去重运行报告
type DuplicateRunReport struct {
	RunID      string                     `json:"run_id"`
	StartedAt  time.Time                  `json:"started_at"`
	Result     *reconcile.DuplicateReport `json:"result"`
	ReportPath string                     `json:"report_path,omitempty"`
}

// CompareStudentsRequest 学生名单比对请求
type CompareStudentsRequest struct {
	Students []reconcile.ImportedStudent `json:"students" binding:"required,min=1"`
}

// StudentComparisonReport 学生名单比对报告
type StudentComparisonReport struct {
	RunID      string                      `json:"run_id"`
	StartedAt  time.Time                   `json:"started_at"`
	Comparison reconcile.StudentComparison `json:"comparison"`
	ReportPath string                      `json:"report_path,omitempty"`
}

// ApplyScriptRequest 执行修正脚本请求（仅文件名，位于脚本目录下）
type ApplyScriptRequest struct {
	File string `json:"file" binding:"required,max=200"`
}

// AppliedOperation 单条修正操作执行结果
type AppliedOperation struct {
	TargetID string `json:"target_id"`
	NewValue string `json:"new_value"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error,omitempty"`
}

// ApplyScriptResult 修正脚本执行结果
type ApplyScriptResult struct {
	Path       string             `json:"path"`
	Applied    int                `json:"applied"`
	Skipped    int                `json:"skipped"`
	Failed     int                `json:"failed"`
	Operations []AppliedOperation `json:"operations"`
}
