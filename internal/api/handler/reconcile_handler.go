package handler

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/reconcile"
	"eduroots/backend/internal/service"
	"eduroots/backend/pkg/response"
)

// ReconcileHandler 数据对账 HTTP 处理器（仅管理员）
type ReconcileHandler struct {
	svc service.ReconcileService
}

// NewReconcileHandler 创建 ReconcileHandler
func NewReconcileHandler(svc service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{svc: svc}
}

// AuditAttendance 执行考勤引用审计，返回运行报告
// POST /api/v1/reconcile/attendance-audit
func (h *ReconcileHandler) AuditAttendance(c *gin.Context) {
	report, err := h.svc.AuditAttendance(c.Request.Context())
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	response.OK(c, report)
}

// ExportAttendanceAudit 执行审计并以 Excel 下载报告
// POST /api/v1/reconcile/attendance-audit/export
func (h *ReconcileHandler) ExportAttendanceAudit(c *gin.Context) {
	report, err := h.svc.AuditAttendance(c.Request.Context())
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	buf, filename, err := h.svc.ExportAuditReport(report)
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// CollapseGradeDuplicates 折叠重复成绩单；请求体可省略，默认真实执行
// POST /api/v1/reconcile/grade-duplicates
func (h *ReconcileHandler) CollapseGradeDuplicates(c *gin.Context) {
	var req dto.GradeDuplicatesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}
	if c.Query("dry_run") == "true" {
		req.DryRun = true
	}

	report, err := h.svc.CollapseGradeDuplicates(c.Request.Context(), req.DryRun)
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	response.OK(c, report)
}

// CompareStudents 比对外部学生名单；支持上传 Excel 文件或 JSON 请求体
// POST /api/v1/reconcile/students/compare
func (h *ReconcileHandler) CompareStudents(c *gin.Context) {
	var imported []reconcile.ImportedStudent

	file, header, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
			response.BadRequest(c, 24002, "仅支持 .xlsx 文件")
			return
		}
		imported, err = service.ParseStudentWorkbook(file)
		if err != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, 24003, "导入文件解析失败", err.Error())
			return
		}
	} else {
		var req dto.CompareStudentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 24002, "请上传 Excel 文件或提供学生名单")
			return
		}
		imported = req.Students
	}

	report, err := h.svc.CompareStudents(c.Request.Context(), imported)
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	response.OK(c, report)
}

// ApplyScript 执行脚本目录下的修正脚本
// POST /api/v1/reconcile/scripts/apply
func (h *ReconcileHandler) ApplyScript(c *gin.Context) {
	var req dto.ApplyScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	path, err := h.svc.ResolveScriptPath(req.File)
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	result, err := h.svc.ApplyScript(c.Request.Context(), path)
	if err != nil {
		handleReconcileError(c, err)
		return
	}

	response.OK(c, result)
}

func handleReconcileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		response.Conflict(c, 24001, "同类任务正在运行，请稍后再试")
	case errors.Is(err, service.ErrExportNoReport):
		response.NotFound(c, 24004, "没有可导出的审计报告")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	case writeValidation(c, err):
	default:
		response.InternalError(c)
	}
}
