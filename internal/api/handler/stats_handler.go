package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"eduroots/backend/internal/service"
	"eduroots/backend/pkg/response"
)

// StatsHandler 统计模块 HTTP 处理器
type StatsHandler struct {
	svc service.StatsService
}

// NewStatsHandler 创建 StatsHandler
func NewStatsHandler(svc service.StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// GetStudentStats 获取学生统计
// GET /api/v1/stats/students/:id
func (h *StatsHandler) GetStudentStats(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "学生ID不能为空")
		return
	}

	stats, err := h.svc.GetStudentStats(c.Request.Context(), id)
	if err != nil {
		handleStatsError(c, err)
		return
	}

	response.OK(c, stats)
}

// GetGlobalStats 获取全局统计
// GET /api/v1/stats/global
func (h *StatsHandler) GetGlobalStats(c *gin.Context) {
	stats, err := h.svc.GetGlobalStats(c.Request.Context())
	if err != nil {
		handleStatsError(c, err)
		return
	}

	response.OK(c, stats)
}

// RecomputeAll 全量重建统计
// POST /api/v1/stats/recompute
func (h *StatsHandler) RecomputeAll(c *gin.Context) {
	resp, err := h.svc.RecomputeAll(c.Request.Context())
	if err != nil {
		handleStatsError(c, err)
		return
	}

	response.OK(c, resp)
}

func handleStatsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStatsNotFound):
		response.NotFound(c, 23001, "该学生暂无统计数据")
	case errors.Is(err, service.ErrRunInProgress):
		response.Conflict(c, 24001, "同类任务正在运行，请稍后再试")
	default:
		response.InternalError(c)
	}
}
