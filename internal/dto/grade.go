package dto

// ── 成绩模块 DTO ──

// GradeRecordInput 成绩明细输入
type GradeRecordInput struct {
	StudentID string   `json:"student_id" binding:"required,uuid"`
	Value     *float64 `json:"value"      binding:"omitempty,min=0,max=20"`
	IsAbsent  bool     `json:"is_absent"`
	Comment   *string  `json:"comment"    binding:"omitempty,max=500"`
}

// CreateGradeSheetRequest 提交成绩单请求
type CreateGradeSheetRequest struct {
	CourseID  string             `json:"course_id"  binding:"required,uuid"`
	SessionID string             `json:"session_id" binding:"required,uuid"`
	Date      string             `json:"date"       binding:"required,datetime=2006-01-02"`
	Type      string             `json:"type"       binding:"omitempty,oneof=controle examen devoir"`
	IsDraft   bool               `json:"is_draft"`
	Records   []GradeRecordInput `json:"records"    binding:"dive"`
}

// UpdateGradeSheetRequest 修改成绩单请求（整体替换明细）
type UpdateGradeSheetRequest struct {
	Type    *string            `json:"type"     binding:"omitempty,oneof=controle examen devoir"`
	IsDraft *bool              `json:"is_draft"`
	Records []GradeRecordInput `json:"records"  binding:"dive"`
}

// GradeSheetResponse 成绩单响应
type GradeSheetResponse struct {
	ID            string  `json:"id"`
	CourseID      string  `json:"course_id"`
	SessionID     string  `json:"session_id"`
	Date          string  `json:"date"`
	Type          string  `json:"type"`
	IsDraft       bool    `json:"is_draft"`
	AverageGrade  float64 `json:"average_grade"`
	HighestGrade  float64 `json:"highest_grade"`
	LowestGrade   float64 `json:"lowest_grade"`
	AbsentCount   int     `json:"absent_count"`
	TotalStudents int     `json:"total_students"`
	Version       int     `json:"version"`
}

// GradeWriteResponse 成绩写操作响应
type GradeWriteResponse struct {
	Sheet   GradeSheetResponse `json:"sheet"`
	Cascade CascadeResult      `json:"cascade"`
}
