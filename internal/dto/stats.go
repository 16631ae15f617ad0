package dto

import "eduroots/backend/internal/model"

// ── 统计模块 DTO ──

// StudentStatsResponse 学生统计响应
type StudentStatsResponse struct {
	StudentID       string              `json:"student_id"`
	TotalSessions   int                 `json:"total_sessions"`
	AbsencesCount   int                 `json:"absences_count"`
	AttendanceRate  float64             `json:"attendance_rate"`
	AbsencesRate    float64             `json:"absences_rate"`
	BehaviorAverage float64             `json:"behavior_average"`
	Grades          model.GradeAverages `json:"grades"`
	LastActivity    string              `json:"last_activity,omitempty"`
	LastUpdate      string              `json:"last_update"`
}

// GlobalStatsResponse 全局统计响应
type GlobalStatsResponse struct {
	AverageAttendanceRate float64 `json:"average_attendance_rate"`
	SheetCount            int     `json:"sheet_count"`
	LastUpdate            string  `json:"last_update"`
}

// RecomputeResponse 全量重建结果
type RecomputeResponse struct {
	Sheets   int                 `json:"sheets"`
	Students int                 `json:"students"`
	Failures []StudentFailure    `json:"failures,omitempty"`
	Global   GlobalStatsResponse `json:"global"`
}
