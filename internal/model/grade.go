package model

import "time"

// 成绩单类型
const (
	GradeTypeControl  = "controle"
	GradeTypeExam     = "examen"
	GradeTypeHomework = "devoir"
)

// GradeSheet 成绩单 — 对应 grade_sheets
// 重复检测自然键：(session_id, 日历日)
type GradeSheet struct {
	GradeSheetID  string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"grade_sheet_id"`
	CourseID      string    `gorm:"type:uuid;not null"                             json:"course_id"`
	SessionID     string    `gorm:"type:uuid;not null"                             json:"session_id"`
	Date          time.Time `gorm:"type:date;not null"                             json:"date"`
	Type          string    `gorm:"type:varchar(30);not null;default:'controle'"   json:"type"`
	IsDraft       bool      `gorm:"not null;default:false"                         json:"is_draft"`
	AverageGrade  float64   `gorm:"not null;default:0"                             json:"average_grade"`
	HighestGrade  float64   `gorm:"not null;default:0"                             json:"highest_grade"`
	LowestGrade   float64   `gorm:"not null;default:0"                             json:"lowest_grade"`
	AbsentCount   int       `gorm:"not null;default:0"                             json:"absent_count"`
	TotalStudents int       `gorm:"not null;default:0"                             json:"total_students"`
	IsActive      bool      `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel

	Records []GradeRecord `gorm:"foreignKey:GradeSheetID;references:GradeSheetID" json:"records,omitempty"`
}

// TableName 指定表名
func (GradeSheet) TableName() string { return "grade_sheets" }

// GradeRecord 成绩明细 — 对应 grade_records
type GradeRecord struct {
	RecordID     string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"record_id"`
	GradeSheetID string   `gorm:"type:uuid;not null;index"                       json:"grade_sheet_id"`
	StudentID    string   `gorm:"type:uuid;not null"                             json:"student_id"`
	Value        *float64 `json:"value"`
	IsAbsent     bool     `gorm:"not null;default:false"                         json:"is_absent"`
	Comment      *string  `gorm:"type:varchar(500)"                              json:"comment,omitempty"`
}

// TableName 指定表名
func (GradeRecord) TableName() string { return "grade_records" }

// StudentGradeEntry 学生成绩聚合输入：一条成绩明细及其所属成绩单的科目与状态
type StudentGradeEntry struct {
	Subject  Subject
	Value    *float64
	IsAbsent bool
	IsDraft  bool
}
