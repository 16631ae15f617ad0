package handler

import "eduroots/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Attendance *AttendanceHandler
	Grade      *GradeHandler
	Session    *SessionHandler
	Stats      *StatsHandler
	Reconcile  *ReconcileHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Attendance: NewAttendanceHandler(svc.Attendance),
		Grade:      NewGradeHandler(svc.Grade),
		Session:    NewSessionHandler(svc.Course),
		Stats:      NewStatsHandler(svc.Stats),
		Reconcile:  NewReconcileHandler(svc.Reconcile),
	}
}
