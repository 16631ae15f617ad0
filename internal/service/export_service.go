package service

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/model"
	"eduroots/backend/internal/reconcile"
)

var (
	ErrExportNoReport     = errors.New("没有可导出的审计报告")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportAuditReport 将审计运行报告导出为 Excel：汇总、失效引用、匹配建议三个工作表
func (s *reconcileService) ExportAuditReport(report *dto.AuditRunReport) (*bytes.Buffer, string, error) {
	if report == nil || report.Audit == nil {
		return nil, "", ErrExportNoReport
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// ── 汇总 ──
	summary := "汇总"
	idx, _ := f.NewSheet(summary)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.SetColWidth(summary, "A", "A", 22)
	f.SetColWidth(summary, "B", "B", 48)

	rows := [][2]interface{}{
		{"运行 ID", report.RunID},
		{"开始时间", report.StartedAt.Format("2006-01-02 15:04:05")},
		{"结束时间", report.FinishedAt.Format("2006-01-02 15:04:05")},
		{"考勤表总数", report.Audit.Total},
		{"有效引用", report.Audit.Valid},
		{"失效引用", report.Audit.Invalid},
		{"引用课次数", report.Audit.Sessions.Total},
		{"存在课次数", report.Audit.Sessions.Found},
		{"缺失课次数", report.Audit.Sessions.Missing},
		{"高置信度阈值", report.Thresholds.High},
		{"中置信度阈值", report.Thresholds.Medium},
		{"高置信度", report.Counts.High},
		{"中置信度", report.Counts.Medium},
		{"低置信度", report.Counts.Low},
		{"无候选", report.Counts.Unresolved},
		{"修正脚本", report.ScriptPath},
	}
	f.SetCellValue(summary, "A1", "项目")
	f.SetCellValue(summary, "B1", "值")
	f.SetCellStyle(summary, "A1", "B1", headerStyle)
	for i, r := range rows {
		f.SetCellValue(summary, cell("A", i+2), r[0])
		f.SetCellValue(summary, cell("B", i+2), r[1])
	}

	// ── 失效引用 ──
	invalid := "失效引用"
	f.NewSheet(invalid)
	writeHeader(f, invalid, headerStyle, []string{"考勤表 ID", "失效课次 ID", "日期"}, []float64{40, 40, 14})
	for i, inv := range report.Audit.InvalidDetails {
		row := i + 2
		f.SetCellValue(invalid, cell("A", row), inv.ChildID)
		f.SetCellValue(invalid, cell("B", row), orDash(inv.BrokenParentID))
		f.SetCellValue(invalid, cell("C", row), model.DayKey(inv.Date))
	}

	// ── 匹配建议 ──
	matches := "匹配建议"
	f.NewSheet(matches)
	writeHeader(f, matches, headerStyle,
		[]string{"置信度", "考勤表 ID", "失效课次 ID", "建议课次 ID", "共同学生", "学生总数", "匹配比例"},
		[]float64{12, 40, 40, 40, 10, 10, 10})
	row := 2
	for _, group := range [][]reconcile.SessionMatch{report.Matches.High, report.Matches.Medium, report.Matches.Low, report.Matches.Unresolved} {
		for _, m := range group {
			f.SetCellValue(matches, cell("A", row), confidenceLabel(m.Confidence))
			f.SetCellValue(matches, cell("B", row), m.OrphanID)
			f.SetCellValue(matches, cell("C", row), orDash(m.BrokenSessionID))
			f.SetCellValue(matches, cell("D", row), orDash(m.SuggestedSessionID))
			f.SetCellValue(matches, cell("E", row), m.CommonCount)
			f.SetCellValue(matches, cell("F", row), m.TotalCount)
			f.SetCellValue(matches, cell("G", row), fmt.Sprintf("%.0f%%", m.Ratio*100))
			row++
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := reconcile.ArtifactName("attendance_audit", report.RunID, report.StartedAt, "xlsx")
	return buf, filename, nil
}

// ── 辅助函数 ──

func writeHeader(f *excelize.File, sheet string, style int, titles []string, widths []float64) {
	for i, t := range titles {
		col := colName(i)
		f.SetColWidth(sheet, col, col, widths[i])
		f.SetCellValue(sheet, cell(col, 1), t)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(titles)-1), 1), style)
}

func confidenceLabel(c reconcile.Confidence) string {
	switch c {
	case reconcile.ConfidenceHigh:
		return "高"
	case reconcile.ConfidenceMedium:
		return "中"
	case reconcile.ConfidenceLow:
		return "低"
	}
	return "无候选"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
