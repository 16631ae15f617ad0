package dto

// ── 课次时间冲突检测 DTO ──

// OverlapCheckRequest 时间段冲突检测请求
type OverlapCheckRequest struct {
	TeacherID        string `json:"teacher_id"         binding:"required,uuid"`
	DayOfWeek        *int   `json:"day_of_week"        binding:"required,min=0,max=6"`
	StartTime        string `json:"start_time"         binding:"required,datetime=15:04"`
	EndTime          string `json:"end_time"           binding:"required,datetime=15:04"`
	Room             string `json:"room"               binding:"omitempty,max=50"`
	ExcludeSessionID string `json:"exclude_session_id" binding:"omitempty,uuid"`
}

// SessionBrief 课次简要信息
type SessionBrief struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	TeacherID string `json:"teacher_id"`
	Subject   string `json:"subject"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Room      string `json:"room"`
}

// OverlapCheckResponse 冲突检测结果
type OverlapCheckResponse struct {
	Overlap  bool          `json:"overlap"`
	Conflict *SessionBrief `json:"conflict,omitempty"`
}
