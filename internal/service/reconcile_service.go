package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eduroots/backend/config"
	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/reconcile"
	"eduroots/backend/internal/repository"
	pkgerrors "eduroots/backend/pkg/errors"
	"eduroots/backend/pkg/metrics"
)

// ReconcileService 数据对账运行：审计、去重、名单比对与修正脚本执行
// 除去重与显式 ApplyScript 外，所有运行只产出报告与脚本
type ReconcileService interface {
	AuditAttendance(ctx context.Context) (*dto.AuditRunReport, error)
	CollapseGradeDuplicates(ctx context.Context, dryRun bool) (*dto.DuplicateRunReport, error)
	CompareStudents(ctx context.Context, imported []reconcile.ImportedStudent) (*dto.StudentComparisonReport, error)
	ApplyScript(ctx context.Context, path string) (*dto.ApplyScriptResult, error)
	ResolveScriptPath(name string) (string, error)
	ExportAuditReport(report *dto.AuditRunReport) (*bytes.Buffer, string, error)
}

type reconcileService struct {
	repo    *repository.Repository
	cascade *cascade
	locker  RunLocker
	cfg     config.ReconcileConfig
	metrics *metrics.Metrics
	emitter *reconcile.Emitter
	logger  *zap.Logger
}

// NewReconcileService 创建 ReconcileService 实例
func NewReconcileService(
	repo *repository.Repository,
	c *cascade,
	locker RunLocker,
	cfg config.ReconcileConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) ReconcileService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.HighThreshold <= 0 || cfg.MediumThreshold <= 0 {
		th := reconcile.DefaultThresholds()
		cfg.HighThreshold, cfg.MediumThreshold = th.High, th.Medium
	}
	return &reconcileService{
		repo:    repo,
		cascade: c,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		emitter: reconcile.NewEmitter(cfg.ScriptsDir),
		logger:  logger,
	}
}

// ──────────────────────── 考勤引用审计 ────────────────────────

// sheetChildSource 将有效考勤表适配为审计子记录
type sheetChildSource struct {
	repo repository.AttendanceSheetRepository
}

func (s sheetChildSource) ListAfter(ctx context.Context, afterID string, limit int) ([]reconcile.ChildRef, error) {
	sheets, err := s.repo.ListAfter(ctx, afterID, limit, false)
	if err != nil {
		return nil, err
	}
	refs := make([]reconcile.ChildRef, 0, len(sheets))
	for i := range sheets {
		refs = append(refs, reconcile.ChildRef{
			ID:       sheets[i].SheetID,
			ParentID: sheets[i].SessionRef(),
			Date:     sheets[i].Date,
		})
	}
	return refs, nil
}

// sessionLookup 批量查询课次是否存在（已软删除的课次视为不存在）
type sessionLookup struct {
	repo repository.SessionRepository
}

func (l sessionLookup) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	sessions, err := l.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		found[s.SessionID] = struct{}{}
	}
	return found, nil
}

func (s *reconcileService) thresholds() reconcile.Thresholds {
	return reconcile.Thresholds{High: s.cfg.HighThreshold, Medium: s.cfg.MediumThreshold}
}

// AuditAttendance 审计考勤表的课次引用，为失效引用寻找候选课次，
// 高置信度结果写入修正脚本（不执行）
func (s *reconcileService) AuditAttendance(ctx context.Context) (*dto.AuditRunReport, error) {
	runID, release, err := acquireRun(ctx, s.locker, "attendance-audit", s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	log := s.logger.With(zap.String("run_id", runID))
	th := s.thresholds()
	report := &dto.AuditRunReport{
		RunID:      runID,
		StartedAt:  s.cascade.now(),
		Thresholds: dto.ThresholdsResponse{High: th.High, Medium: th.Medium},
		Errors:     []string{},
	}

	auditor := reconcile.NewAuditor(s.cfg.BatchSize, log)
	audit, err := auditor.Audit(ctx, sheetChildSource{repo: s.repo.AttendanceSheet}, sessionLookup{repo: s.repo.Session})
	if err != nil {
		log.Error("考勤引用审计失败", zap.Error(err))
		return nil, err
	}
	report.Audit = audit
	s.metrics.AuditReferences.WithLabelValues("valid").Add(float64(audit.Valid))
	s.metrics.AuditReferences.WithLabelValues("invalid").Add(float64(audit.Invalid))

	// 单条失效引用处理失败只记入报告，不中断整次运行
	for _, inv := range audit.InvalidDetails {
		sheet, err := s.repo.AttendanceSheet.GetByID(ctx, inv.ChildID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("读取考勤表 %s 失败: %v", inv.ChildID, err))
			continue
		}
		students := sheet.StudentIDs()
		sessions, err := s.repo.Session.ListContainingStudents(ctx, students)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("查询考勤表 %s 的候选课次失败: %v", inv.ChildID, err))
			continue
		}
		m := reconcile.MatchSession(inv.ChildID, inv.BrokenParentID, students, reconcile.CandidatesFromSessions(sessions), th)
		report.Matches.Add(m)
		s.metrics.Matches.WithLabelValues(string(m.Confidence)).Inc()
	}
	report.Counts = dto.MatchCounts{
		High:       len(report.Matches.High),
		Medium:     len(report.Matches.Medium),
		Low:        len(report.Matches.Low),
		Unresolved: len(report.Matches.Unresolved),
	}

	path, err := s.emitter.Emit(report.RunID, reconcile.OperationsFromMatches(report.Matches.High))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("生成修正脚本失败: %v", err))
	} else if path != "" {
		report.ScriptPath = path
		s.metrics.ScriptsEmitted.Inc()
	}

	report.FinishedAt = s.cascade.now()
	if err := s.writeReport("attendance_audit", report.RunID, report, &report.ReportPath); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	log.Info("考勤引用审计完成",
		zap.Int("total", audit.Total),
		zap.Int("invalid", audit.Invalid),
		zap.Int("high", report.Counts.High),
		zap.Int("medium", report.Counts.Medium),
		zap.Int("low", report.Counts.Low),
		zap.Int("unresolved", report.Counts.Unresolved),
		zap.String("script", report.ScriptPath),
	)
	return report, nil
}

// ──────────────────────── 成绩单去重 ────────────────────────

// CollapseGradeDuplicates 按 (课次, 日期) 折叠重复成绩单，保留 ID 顺序中的第一张
func (s *reconcileService) CollapseGradeDuplicates(ctx context.Context, dryRun bool) (*dto.DuplicateRunReport, error) {
	runID, release, err := acquireRun(ctx, s.locker, "grade-duplicates", s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	log := s.logger.With(zap.String("run_id", runID))
	report := &dto.DuplicateRunReport{RunID: runID, StartedAt: s.cascade.now()}

	var records []reconcile.KeyedRecord
	after := ""
	for {
		batch, err := s.repo.GradeSheet.ListAfter(ctx, after, s.cfg.BatchSize)
		if err != nil {
			log.Error("读取成绩单失败", zap.String("after", after), zap.Error(err))
			return nil, err
		}
		for _, sheet := range batch {
			records = append(records, reconcile.KeyedRecord{
				ID:  sheet.GradeSheetID,
				Key: reconcile.NaturalKey(sheet.SessionID, sheet.Date),
			})
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
		after = batch[len(batch)-1].GradeSheetID
	}

	// 删除前记下受影响的课次与学生，删除后重算其成绩统计
	sessions := make(map[string]struct{})
	students := make(map[string]struct{})
	remover := reconcile.RemoverFunc(func(ctx context.Context, id string) error {
		sheet, err := s.repo.GradeSheet.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.GradeSheet.HardDelete(ctx, id); err != nil {
			return err
		}
		sessions[sheet.SessionID] = struct{}{}
		for _, r := range sheet.Records {
			students[r.StudentID] = struct{}{}
		}
		return nil
	})

	report.Result = reconcile.Collapse(ctx, records, remover, dryRun, log)

	if !dryRun {
		s.metrics.DuplicatesRemoved.Add(float64(len(report.Result.Removed)))
		for _, sid := range sortedKeys(sessions) {
			if err := s.cascade.refreshGradeSession(ctx, sid); err != nil {
				log.Warn("课次成绩统计重算失败", zap.String("session_id", sid), zap.Error(err))
			}
		}
		if failures := s.cascade.fanOut(ctx, sortedKeys(students), s.cascade.refreshStudentGrades); len(failures) > 0 {
			log.Warn("部分学生成绩统计重算失败", zap.Int("failures", len(failures)))
		}
	}

	if err := s.writeReport("grade_duplicates", report.RunID, report, &report.ReportPath); err != nil {
		log.Warn("写入去重报告失败", zap.Error(err))
	}
	return report, nil
}

// ──────────────────────── 学生名单比对 ────────────────────────

func (s *reconcileService) CompareStudents(ctx context.Context, imported []reconcile.ImportedStudent) (*dto.StudentComparisonReport, error) {
	if len(imported) == 0 {
		return nil, pkgerrors.NewValidation("students", "导入名单为空")
	}
	live, err := s.repo.Student.ListActive(ctx)
	if err != nil {
		s.logger.Error("读取学生列表失败", zap.Error(err))
		return nil, err
	}

	report := &dto.StudentComparisonReport{
		RunID:      uuid.NewString(),
		StartedAt:  s.cascade.now(),
		Comparison: reconcile.CompareStudents(imported, live),
	}
	if err := s.writeReport("student_comparison", report.RunID, report, &report.ReportPath); err != nil {
		s.logger.Warn("写入名单比对报告失败", zap.Error(err))
	}

	s.logger.Info("学生名单比对完成",
		zap.Int("imported", len(imported)),
		zap.Int("matched", len(report.Comparison.Matched)),
		zap.Int("only_in_import", len(report.Comparison.OnlyInImport)),
		zap.Int("only_in_live", len(report.Comparison.OnlyInLive)),
	)
	return report, nil
}

// ──────────────────────── 修正脚本执行 ────────────────────────

// ApplyScript 执行修正脚本；每条操作都是条件更新，重复执行为空操作
func (s *reconcileService) ApplyScript(ctx context.Context, path string) (*dto.ApplyScriptResult, error) {
	script, err := reconcile.LoadScript(path)
	if err != nil {
		return nil, pkgerrors.NewValidation("file", err.Error())
	}

	runID, release, err := acquireRun(ctx, s.locker, "script-apply", s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release(ctx)
	log := s.logger.With(zap.String("run_id", runID), zap.String("script", path))

	result := &dto.ApplyScriptResult{Path: path, Operations: []dto.AppliedOperation{}}
	touched := make(map[string]struct{})
	for _, op := range script.Operations {
		out := dto.AppliedOperation{TargetID: op.TargetID, NewValue: op.NewValue}
		applied, err := s.repo.AttendanceSheet.UpdateSessionRef(ctx, op.TargetID, op.OldValue, op.NewValue)
		switch {
		case err != nil:
			result.Failed++
			out.Error = err.Error()
			s.metrics.ScriptOperations.WithLabelValues("failed").Inc()
			log.Warn("修正操作执行失败", zap.String("target_id", op.TargetID), zap.Error(err))
		case applied:
			result.Applied++
			out.Applied = true
			touched[op.NewValue] = struct{}{}
			if op.OldValue != "" {
				touched[op.OldValue] = struct{}{}
			}
			s.metrics.ScriptOperations.WithLabelValues("applied").Inc()
		default:
			result.Skipped++
			s.metrics.ScriptOperations.WithLabelValues("skipped").Inc()
		}
		result.Operations = append(result.Operations, out)
	}

	// 引用修正后重算相关课次的平均出勤（失效课次不存在时自动跳过）
	for _, sid := range sortedKeys(touched) {
		ok, err := s.cascade.sessionExists(ctx, sid)
		if err == nil && ok {
			err = s.cascade.refreshSession(ctx, sid)
		}
		if err != nil {
			log.Warn("课次统计重算失败", zap.String("session_id", sid), zap.Error(err))
		}
	}

	log.Info("修正脚本执行完成",
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ResolveScriptPath 将脚本文件名解析为脚本目录下的路径，拒绝任何目录成分
func (s *reconcileService) ResolveScriptPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := filepath.Base(name)
	if name == "" || base != name || base == "." || base == ".." {
		return "", pkgerrors.NewValidation("file", "只能指定脚本目录下的文件名")
	}
	if ext := strings.ToLower(filepath.Ext(base)); ext != ".yaml" && ext != ".yml" {
		return "", pkgerrors.NewValidation("file", "修正脚本必须是 YAML 文件")
	}
	return filepath.Join(s.cfg.ScriptsDir, base), nil
}

// ──────────────────────── 内部方法 ────────────────────────

// writeReport 将运行报告写入 reports_dir/<prefix>_<时间戳>_<运行 ID>.json，路径回填到 pathOut
func (s *reconcileService) writeReport(prefix, runID string, v interface{}, pathOut *string) error {
	if s.cfg.ReportsDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.ReportsDir, 0o755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}
	path := filepath.Join(s.cfg.ReportsDir, reconcile.ArtifactName(prefix, runID, s.cascade.now(), "json"))
	*pathOut = path

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		*pathOut = ""
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		*pathOut = ""
		return fmt.Errorf("写入报告失败: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
