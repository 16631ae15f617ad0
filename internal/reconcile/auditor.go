// Package reconcile 数据完整性对账：引用审计、启发式匹配、重复折叠与修正脚本生成
//
// 本包只读取数据或产出报告与脚本，除 Collapse 外不直接修改业务数据；
// 任何写回都需经过单独的 apply 步骤。
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ChildRef 被审计的子记录及其父引用
type ChildRef struct {
	ID       string
	ParentID string // 为空表示缺少引用
	Date     time.Time
}

// ChildSource 按 ID 升序分批提供子记录
type ChildSource interface {
	ListAfter(ctx context.Context, afterID string, limit int) ([]ChildRef, error)
}

// ParentLookup 批量检查父记录是否存在
// 返回值仅包含存在的 ID
type ParentLookup interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// InvalidReference 一条失效引用
type InvalidReference struct {
	ChildID        string    `json:"child_id"`
	BrokenParentID string    `json:"broken_parent_id"`
	Date           time.Time `json:"date"`
}

// ParentSummary 父引用解析汇总
type ParentSummary struct {
	Total      int      `json:"total"`
	Found      int      `json:"found"`
	Missing    int      `json:"missing"`
	MissingIDs []string `json:"missing_ids"`
}

// AuditReport 审计结果
type AuditReport struct {
	Total          int                `json:"total"`
	Valid          int                `json:"valid"`
	Invalid        int                `json:"invalid"`
	InvalidDetails []InvalidReference `json:"invalid_details"`
	Sessions       ParentSummary      `json:"sessions"`
}

// Auditor 引用完整性审计器
type Auditor struct {
	batchSize int
	logger    *zap.Logger
}

// NewAuditor 创建审计器，batchSize 同时作为子记录分页大小与父 ID 批量查询大小
func NewAuditor(batchSize int, logger *zap.Logger) *Auditor {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Auditor{batchSize: batchSize, logger: logger}
}

// Audit 三遍扫描：
//  1. 分批读取全部子记录，收集去重后的父 ID
//  2. 按排序后的批次解析父 ID，每个 ID 至多查询一次
//  3. 逐条分类
//
// 审计只读，重复执行结果一致。
func (a *Auditor) Audit(ctx context.Context, children ChildSource, parents ParentLookup) (*AuditReport, error) {
	// ── 第一遍：收集 ──
	var refs []ChildRef
	distinct := make(map[string]struct{})
	after := ""
	for {
		batch, err := children.ListAfter(ctx, after, a.batchSize)
		if err != nil {
			return nil, fmt.Errorf("读取子记录失败: %w", err)
		}
		for _, c := range batch {
			refs = append(refs, c)
			if c.ParentID != "" {
				distinct[c.ParentID] = struct{}{}
			}
		}
		if len(batch) < a.batchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}

	ids := make([]string, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// ── 第二遍：解析 ──
	found := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += a.batchSize {
		end := start + a.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		existing, err := parents.ExistingIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("解析父记录失败: %w", err)
		}
		for id := range existing {
			found[id] = struct{}{}
		}
	}

	// ── 第三遍：分类 ──
	report := &AuditReport{
		Total:          len(refs),
		InvalidDetails: []InvalidReference{},
		Sessions:       ParentSummary{Total: len(ids), MissingIDs: []string{}},
	}
	for _, c := range refs {
		if _, ok := found[c.ParentID]; ok && c.ParentID != "" {
			report.Valid++
			continue
		}
		report.Invalid++
		report.InvalidDetails = append(report.InvalidDetails, InvalidReference{
			ChildID:        c.ID,
			BrokenParentID: c.ParentID,
			Date:           c.Date,
		})
	}
	for _, id := range ids {
		if _, ok := found[id]; ok {
			report.Sessions.Found++
		} else {
			report.Sessions.MissingIDs = append(report.Sessions.MissingIDs, id)
		}
	}
	report.Sessions.Missing = len(report.Sessions.MissingIDs)

	a.logger.Info("引用审计完成",
		zap.Int("total", report.Total),
		zap.Int("valid", report.Valid),
		zap.Int("invalid", report.Invalid),
		zap.Int("missing_parents", report.Sessions.Missing),
	)
	return report, nil
}
