package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"eduroots/backend/internal/dto"
	"eduroots/backend/internal/service"
	"eduroots/backend/pkg/response"
)

// SessionHandler 课次模块 HTTP 处理器
type SessionHandler struct {
	svc service.CourseService
}

// NewSessionHandler 创建 SessionHandler
func NewSessionHandler(svc service.CourseService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CheckOverlap 检测时间段冲突；冲突不是错误，以 overlap=true 返回
// POST /api/v1/sessions/overlap-check
func (h *SessionHandler) CheckOverlap(c *gin.Context) {
	var req dto.OverlapCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	err := h.svc.CheckTimeSlotOverlap(c.Request.Context(), &req)
	var oe *service.OverlapError
	switch {
	case err == nil:
		response.OK(c, dto.OverlapCheckResponse{Overlap: false})
	case errors.As(err, &oe):
		conflict := oe.Conflict
		response.OK(c, dto.OverlapCheckResponse{Overlap: true, Conflict: &conflict})
	case writeValidation(c, err):
	default:
		response.InternalError(c)
	}
}
