package dto

// ── 考勤模块 DTO ──

// AttendanceRecordInput 考勤明细输入
type AttendanceRecordInput struct {
	StudentID      string  `json:"student_id"      binding:"required,uuid"`
	IsPresent      bool    `json:"is_present"`
	Comment        *string `json:"comment"         binding:"omitempty,max=500"`
	BehaviorRating *int    `json:"behavior_rating" binding:"omitempty,min=1,max=5"`
}

// CreateAttendanceSheetRequest 提交考勤表请求
type CreateAttendanceSheetRequest struct {
	CourseID  string                  `json:"course_id"  binding:"required,uuid"`
	SessionID string                  `json:"session_id" binding:"omitempty,uuid"`
	Date      string                  `json:"date"       binding:"required,datetime=2006-01-02"`
	Records   []AttendanceRecordInput `json:"records"    binding:"dive"`
}

// UpdateAttendanceSheetRequest 修改考勤表请求（整体替换明细）
type UpdateAttendanceSheetRequest struct {
	Records []AttendanceRecordInput `json:"records" binding:"dive"`
}

// AttendanceSheetListRequest 考勤表列表查询参数
type AttendanceSheetListRequest struct {
	CourseID        string `form:"course_id"        binding:"omitempty,uuid"`
	SessionID       string `form:"session_id"       binding:"omitempty,uuid"`
	From            string `form:"from"             binding:"omitempty,datetime=2006-01-02"`
	To              string `form:"to"               binding:"omitempty,datetime=2006-01-02"`
	IncludeInactive bool   `form:"include_inactive"`
	Page            int    `form:"page"             binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size"        binding:"omitempty,min=1,max=200"`
}

// AttendanceRecordResponse 考勤明细响应
type AttendanceRecordResponse struct {
	StudentID      string  `json:"student_id"`
	IsPresent      bool    `json:"is_present"`
	Comment        *string `json:"comment,omitempty"`
	BehaviorRating *int    `json:"behavior_rating,omitempty"`
}

// AttendanceSheetResponse 考勤表响应
type AttendanceSheetResponse struct {
	ID            string                     `json:"id"`
	CourseID      string                     `json:"course_id"`
	SessionID     string                     `json:"session_id,omitempty"`
	Date          string                     `json:"date"`
	PresenceRate  float64                    `json:"presence_rate"`
	TotalStudents int                        `json:"total_students"`
	IsActive      bool                       `json:"is_active"`
	Version       int                        `json:"version"`
	LastUpdate    string                     `json:"last_update"`
	Records       []AttendanceRecordResponse `json:"records,omitempty"`
}

// AttendanceWriteResponse 考勤写操作响应：表单本身与级联结果
type AttendanceWriteResponse struct {
	Sheet   AttendanceSheetResponse `json:"sheet"`
	Cascade CascadeResult           `json:"cascade"`
}
