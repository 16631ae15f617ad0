package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/service"
	pkgerrors "eduroots/backend/pkg/errors"
	"eduroots/backend/pkg/response"
)

// GradeHandler 成绩模块 HTTP 处理器
type GradeHandler struct {
	svc service.GradeService
}

// NewGradeHandler 创建 GradeHandler
func NewGradeHandler(svc service.GradeService) *GradeHandler {
	return &GradeHandler{svc: svc}
}

// CreateGradeSheet 提交成绩单
// POST /api/v1/grade-sheets
func (h *GradeHandler) CreateGradeSheet(c *gin.Context) {
	var req dto.CreateGradeSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.CreateGradeSheet(c.Request.Context(), &req, callerID)
	if err != nil {
		handleGradeError(c, err)
		return
	}

	response.Created(c, resp)
}

// UpdateGradeSheet 修改成绩单
// PUT /api/v1/grade-sheets/:id
func (h *GradeHandler) UpdateGradeSheet(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "成绩单ID不能为空")
		return
	}

	var req dto.UpdateGradeSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.UpdateGradeSheet(c.Request.Context(), id, &req, callerID)
	if err != nil {
		handleGradeError(c, err)
		return
	}

	response.OK(c, resp)
}

func handleGradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrGradeSheetNotFound):
		response.NotFound(c, 21001, "成绩单不存在")
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, 21002, "课次不存在")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 21003, "数据已被其他操作修改，请刷新后重试")
	case writeValidation(c, err):
	default:
		response.InternalError(c)
	}
}
