package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/reconcile"
)

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	return tbl
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// renderAudit 输出审计汇总与各置信度的匹配建议
func renderAudit(w io.Writer, r *dto.AuditRunReport) {
	summary := newTable()
	summary.AppendHeader(table.Row{"项目", "数量"})
	summary.AppendRow(table.Row{"考勤表总数", count(r.Audit.Total)})
	summary.AppendRow(table.Row{"有效引用", count(r.Audit.Valid)})
	summary.AppendRow(table.Row{"失效引用", count(r.Audit.Invalid)})
	summary.AppendRow(table.Row{"缺失课次", count(r.Audit.Sessions.Missing)})
	summary.AppendSeparator()
	summary.AppendRow(table.Row{"高置信度 ≥ " + percent(r.Thresholds.High), count(r.Counts.High)})
	summary.AppendRow(table.Row{"中置信度 ≥ " + percent(r.Thresholds.Medium), count(r.Counts.Medium)})
	summary.AppendRow(table.Row{"低置信度", count(r.Counts.Low)})
	summary.AppendRow(table.Row{"无法匹配", count(r.Counts.Unresolved)})
	fmt.Fprintf(w, "运行 %s\n%s\n", r.RunID, summary.Render())

	all := make([]reconcile.SessionMatch, 0, r.Counts.High+r.Counts.Medium+r.Counts.Low+r.Counts.Unresolved)
	all = append(all, r.Matches.High...)
	all = append(all, r.Matches.Medium...)
	all = append(all, r.Matches.Low...)
	all = append(all, r.Matches.Unresolved...)
	if len(all) > 0 {
		matches := newTable()
		matches.AppendHeader(table.Row{"考勤表", "失效课次", "建议课次", "共同/总数", "比例", "置信度"})
		for _, m := range all {
			broken := m.BrokenSessionID
			if broken == "" {
				broken = "-"
			}
			suggested := m.SuggestedSessionID
			if suggested == "" {
				suggested = "-"
			}
			matches.AppendRow(table.Row{
				m.OrphanID, broken, suggested,
				fmt.Sprintf("%d/%d", m.CommonCount, m.TotalCount),
				percent(m.Ratio), string(m.Confidence),
			})
		}
		matches.AppendFooter(table.Row{fmt.Sprintf("共 %s 条", count(len(all)))})
		fmt.Fprintln(w, matches.Render())
	}

	if r.ScriptPath != "" {
		fmt.Fprintf(w, "修正脚本: %s\n", r.ScriptPath)
	}
	if r.ReportPath != "" {
		fmt.Fprintf(w, "运行报告: %s\n", r.ReportPath)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "错误: %s\n", e)
	}
}

// renderDuplicates 输出重复成绩单折叠结果
func renderDuplicates(w io.Writer, r *dto.DuplicateRunReport) {
	res := r.Result
	mode := "执行"
	if res.DryRun {
		mode = "预演"
	}
	fmt.Fprintf(w, "%s模式：扫描 %s 张成绩单，重复组 %s 个\n", mode, count(res.Scanned), count(res.Groups))

	if len(res.Removed) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"自然键", "保留", "移除"})
		for _, rm := range res.Removed {
			tbl.AppendRow(table.Row{rm.Key, rm.SurvivorID, rm.ID})
		}
		tbl.AppendFooter(table.Row{fmt.Sprintf("共 %s 条", count(len(res.Removed)))})
		fmt.Fprintln(w, tbl.Render())
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "删除失败 %s: %s\n", f.ID, f.Error)
	}
	if r.ReportPath != "" {
		fmt.Fprintf(w, "运行报告: %s\n", r.ReportPath)
	}
}

// renderComparison 输出名单比对结果
func renderComparison(w io.Writer, r *dto.StudentComparisonReport) {
	c := r.Comparison
	fmt.Fprintf(w, "已匹配 %s 人，仅在导入名单 %s 人，仅在数据库 %s 人\n",
		count(len(c.Matched)), count(len(c.OnlyInImport)), count(len(c.OnlyInLive)))

	if len(c.Matched) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"学生", "姓名", "得分", "差异"})
		for _, m := range c.Matched {
			diffs := make([]string, 0, len(m.Discrepancies))
			for _, d := range m.Discrepancies {
				diffs = append(diffs, fmt.Sprintf("%s: %s ≠ %s", d.Field, d.Imported, d.Live))
			}
			tbl.AppendRow(table.Row{m.StudentID, m.Lastname + " " + m.Firstname, m.Score, strings.Join(diffs, "; ")})
		}
		fmt.Fprintln(w, tbl.Render())
	}
	if len(c.OnlyInImport) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"仅在导入名单", "邮箱"})
		for _, s := range c.OnlyInImport {
			tbl.AppendRow(table.Row{s.Lastname + " " + s.Firstname, s.Email})
		}
		fmt.Fprintln(w, tbl.Render())
	}
	if len(c.OnlyInLive) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"仅在数据库", "学生", "邮箱"})
		for _, s := range c.OnlyInLive {
			tbl.AppendRow(table.Row{s.Lastname + " " + s.Firstname, s.StudentID, s.Email})
		}
		fmt.Fprintln(w, tbl.Render())
	}
	if r.ReportPath != "" {
		fmt.Fprintf(w, "运行报告: %s\n", r.ReportPath)
	}
}

// renderApply 输出修正脚本执行结果
func renderApply(w io.Writer, r *dto.ApplyScriptResult) {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"目标", "新值", "结果"})
	for _, op := range r.Operations {
		status := "已跳过"
		switch {
		case op.Error != "":
			status = "失败: " + op.Error
		case op.Applied:
			status = "已执行"
		}
		tbl.AppendRow(table.Row{op.TargetID, op.NewValue, status})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("执行 %s / 跳过 %s / 失败 %s",
		count(r.Applied), count(r.Skipped), count(r.Failed))})
	fmt.Fprintf(w, "%s\n%s\n", r.Path, tbl.Render())
}

// renderRecompute 输出统计重建结果
func renderRecompute(w io.Writer, r *dto.RecomputeResponse) {
	fmt.Fprintf(w, "已重建 %s 名学生（%s 张考勤表），全局出勤率 %.2f%%\n",
		count(r.Students), count(r.Sheets), r.Global.AverageAttendanceRate)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "学生 %s 重建失败: %s\n", f.StudentID, f.Error)
	}
}
