package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// KeyedRecord 参与重复检测的记录
type KeyedRecord struct {
	ID  string
	Key string
}

// NaturalKey 成绩单自然键：sessionID-YYYY-MM-DD
func NaturalKey(sessionID string, date time.Time) string {
	return sessionID + "-" + date.UTC().Format("2006-01-02")
}

// Removal 一条被折叠的重复记录
type Removal struct {
	ID         string `json:"id"`
	SurvivorID string `json:"survivor_id"`
	Key        string `json:"key"`
}

// RemovalFailure 删除失败的记录
type RemovalFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// DuplicateReport 重复折叠结果
type DuplicateReport struct {
	Scanned int              `json:"scanned"`
	Groups  int              `json:"groups"`
	DryRun  bool             `json:"dry_run"`
	Removed []Removal        `json:"removed"`
	Failed  []RemovalFailure `json:"failed"`
}

// Remover 删除单条记录
type Remover interface {
	Remove(ctx context.Context, id string) error
}

// RemoverFunc 函数适配器
type RemoverFunc func(ctx context.Context, id string) error

// Remove 调用 f(ctx, id)
func (f RemoverFunc) Remove(ctx context.Context, id string) error { return f(ctx, id) }

// FindDuplicates 按自然键分组，每组保留遍历顺序中的第一条，其余标记删除
// 不比较任何其他字段
func FindDuplicates(records []KeyedRecord) (removals []Removal, groups int) {
	survivors := make(map[string]string, len(records))
	counted := make(map[string]bool)
	for _, r := range records {
		keep, seen := survivors[r.Key]
		if !seen {
			survivors[r.Key] = r.ID
			continue
		}
		if !counted[r.Key] {
			counted[r.Key] = true
			groups++
		}
		removals = append(removals, Removal{ID: r.ID, SurvivorID: keep, Key: r.Key})
	}
	return removals, groups
}

// Collapse 检测并删除重复记录；dryRun 时只报告不删除
// 单条删除失败记入 Failed 并继续处理其余记录
func Collapse(ctx context.Context, records []KeyedRecord, remover Remover, dryRun bool, logger *zap.Logger) *DuplicateReport {
	removals, groups := FindDuplicates(records)
	report := &DuplicateReport{
		Scanned: len(records),
		Groups:  groups,
		DryRun:  dryRun,
		Removed: []Removal{},
		Failed:  []RemovalFailure{},
	}

	for _, rm := range removals {
		if dryRun {
			report.Removed = append(report.Removed, rm)
			continue
		}
		if err := remover.Remove(ctx, rm.ID); err != nil {
			logger.Error("删除重复记录失败", zap.String("id", rm.ID), zap.Error(err))
			report.Failed = append(report.Failed, RemovalFailure{ID: rm.ID, Error: err.Error()})
			continue
		}
		report.Removed = append(report.Removed, rm)
	}

	logger.Info("重复记录折叠完成",
		zap.Int("scanned", report.Scanned),
		zap.Int("groups", report.Groups),
		zap.Int("removed", len(report.Removed)),
		zap.Bool("dry_run", dryRun),
	)
	return report
}
