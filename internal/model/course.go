package model

import "time"

// Subject 课程科目（封闭集合）
type Subject string

const (
	SubjectArabic            Subject = "Arabe"
	SubjectCulturalEducation Subject = "Education Culturelle"
)

// Subjects 全部合法科目
var Subjects = []Subject{SubjectArabic, SubjectCulturalEducation}

// Valid 判断科目是否属于封闭集合
func (s Subject) Valid() bool {
	for _, v := range Subjects {
		if s == v {
			return true
		}
	}
	return false
}

// Course 课程表 — 对应 courses
type Course struct {
	CourseID     string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_id"`
	TeacherID    string `gorm:"type:uuid;not null"                             json:"teacher_id"`
	AcademicYear string `gorm:"type:varchar(20);not null;default:''"           json:"academic_year"`
	IsActive     bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel

	Sessions []Session `gorm:"foreignKey:CourseID;references:CourseID" json:"sessions,omitempty"`
}

// TableName 指定表名
func (Course) TableName() string { return "courses" }

// TimeSlot 课次时间段（星期 + HH:MM 起止 + 教室）
type TimeSlot struct {
	DayOfWeek int    `gorm:"type:smallint;not null"              json:"day_of_week"` // 0-6，0 为周日
	StartTime string `gorm:"type:varchar(5);not null"            json:"start_time"`
	EndTime   string `gorm:"type:varchar(5);not null"            json:"end_time"`
	Room      string `gorm:"type:varchar(50);not null;default:''" json:"room"`
}

// Session 课次表 — 对应 course_sessions
type Session struct {
	SessionID  string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"session_id"`
	CourseID   string  `gorm:"type:uuid;not null"                             json:"course_id"`
	TeacherID  string  `gorm:"type:uuid;not null"                             json:"teacher_id"`
	Subject    Subject `gorm:"type:varchar(50);not null"                      json:"subject"`
	Level      string  `gorm:"type:varchar(20);not null;default:''"           json:"level"`
	TimeSlot   `gorm:"embedded" json:"time_slot"`
	StudentIDs StringArray `gorm:"type:uuid[];not null;default:'{}'"              json:"student_ids"`
	IsActive   bool        `gorm:"not null;default:true"                          json:"is_active"`

	// 派生统计（仅由级联写入）
	AverageAttendance float64    `gorm:"not null;default:0" json:"average_attendance"`
	AverageGrade      float64    `gorm:"not null;default:0" json:"average_grade"`
	StatsUpdatedAt    *time.Time `json:"stats_updated_at,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (Session) TableName() string { return "course_sessions" }
