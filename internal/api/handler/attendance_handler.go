package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/service"
	pkgerrors "eduroots/backend/pkg/errors"
	"eduroots/backend/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	svc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(svc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

// CreateSheet 提交考勤表并触发统计级联
// POST /api/v1/attendance-sheets
func (h *AttendanceHandler) CreateSheet(c *gin.Context) {
	var req dto.CreateAttendanceSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.CreateSheet(c.Request.Context(), &req, callerID)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.Created(c, resp)
}

// GetSheet 获取考勤表详情（含明细）
// GET /api/v1/attendance-sheets/:id
func (h *AttendanceHandler) GetSheet(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "考勤表ID不能为空")
		return
	}

	sheet, err := h.svc.GetSheet(c.Request.Context(), id)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, sheet)
}

// ListSheets 分页查询考勤表
// GET /api/v1/attendance-sheets
func (h *AttendanceHandler) ListSheets(c *gin.Context) {
	var req dto.AttendanceSheetListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "查询参数无效")
		return
	}

	list, total, err := h.svc.ListSheets(c.Request.Context(), &req)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	response.OKPage(c, list, total, page, pageSize)
}

// UpdateSheet 整体替换考勤明细
// PUT /api/v1/attendance-sheets/:id
func (h *AttendanceHandler) UpdateSheet(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "考勤表ID不能为空")
		return
	}

	var req dto.UpdateAttendanceSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.UpdateSheet(c.Request.Context(), id, &req, callerID)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, resp)
}

// DeleteSheet 软删除考勤表
// DELETE /api/v1/attendance-sheets/:id
func (h *AttendanceHandler) DeleteSheet(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "考勤表ID不能为空")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.SoftDeleteSheet(c.Request.Context(), id, callerID)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, gin.H{"cascade": result})
}

// RestoreSheet 恢复已软删除的考勤表
// POST /api/v1/attendance-sheets/:id/restore
func (h *AttendanceHandler) RestoreSheet(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "考勤表ID不能为空")
		return
	}

	resp, err := h.svc.RestoreSheet(c.Request.Context(), id)
	if err != nil {
		handleAttendanceError(c, err)
		return
	}

	response.OK(c, resp)
}

func handleAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSheetNotFound):
		response.NotFound(c, 20001, "考勤表不存在")
	case errors.Is(err, service.ErrSheetInactive):
		response.Conflict(c, 20002, "考勤表已删除，请先恢复")
	case errors.Is(err, service.ErrSheetAlreadyActive):
		response.Conflict(c, 20003, "考勤表未被删除")
	case errors.Is(err, service.ErrSheetAlreadyExists):
		response.Conflict(c, 20004, "该课程当日已存在考勤表")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 20005, "数据已被其他操作修改，请刷新后重试")
	case writeValidation(c, err):
	default:
		response.InternalError(c)
	}
}
