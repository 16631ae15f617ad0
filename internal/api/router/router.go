package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eduroots/backend/config"
	"eduroots/backend/internal/api/handler"
	"eduroots/backend/internal/api/middleware"
	"eduroots/backend/pkg/jwt"
	"eduroots/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxJSONBytes, cfg.Server.MaxUploadBytes))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
	{
		// 考勤模块
		sheets := authorized.Group("/attendance-sheets")
		{
			sheets.GET("", h.Attendance.ListSheets)
			sheets.POST("", h.Attendance.CreateSheet)
			sheets.GET("/:id", h.Attendance.GetSheet)
			sheets.PUT("/:id", h.Attendance.UpdateSheet)
			sheets.DELETE("/:id", h.Attendance.DeleteSheet)
			sheets.POST("/:id/restore", h.Attendance.RestoreSheet)
		}

		// 成绩模块
		grades := authorized.Group("/grade-sheets")
		{
			grades.POST("", h.Grade.CreateGradeSheet)
			grades.PUT("/:id", h.Grade.UpdateGradeSheet)
		}

		// 课次模块
		authorized.POST("/sessions/overlap-check", h.Session.CheckOverlap)

		// 统计模块
		stats := authorized.Group("/stats")
		{
			stats.GET("/students/:id", h.Stats.GetStudentStats)
			stats.GET("/global", h.Stats.GetGlobalStats)
			stats.POST("/recompute", middleware.RoleAuth(jwt.RoleAdmin), h.Stats.RecomputeAll)
		}

		// 数据对账模块（仅管理员）
		reconcile := authorized.Group("/reconcile")
		reconcile.Use(middleware.RoleAuth(jwt.RoleAdmin), middleware.RateLimit(rdb, "reconcile", cfg.Reconcile.RateLimit, cfg.Reconcile.RateWindow))
		{
			reconcile.POST("/attendance-audit", h.Reconcile.AuditAttendance)
			reconcile.POST("/attendance-audit/export", h.Reconcile.ExportAttendanceAudit)
			reconcile.POST("/grade-duplicates", h.Reconcile.CollapseGradeDuplicates)
			reconcile.POST("/students/compare", h.Reconcile.CompareStudents)
			reconcile.POST("/scripts/apply", h.Reconcile.ApplyScript)
		}
	}

	return r
}
