package model

import "time"

// 性别取值（规范化后）
const (
	GenderMale   = "masculin"
	GenderFemale = "feminin"
)

// Student 学生表 — 对应 students
type Student struct {
	StudentID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"student_id"`
	Firstname   string     `gorm:"type:varchar(100);not null"                     json:"firstname"`
	Lastname    string     `gorm:"type:varchar(100);not null"                     json:"lastname"`
	Email       string     `gorm:"type:varchar(200);not null;default:''"          json:"email"`
	Phone       string     `gorm:"type:varchar(50);not null;default:''"           json:"phone"`
	Gender      string     `gorm:"type:varchar(20);not null;default:''"           json:"gender"`
	DateOfBirth *time.Time `gorm:"type:date"                                      json:"date_of_birth,omitempty"`
	IsActive    bool       `gorm:"not null;default:true"                          json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (Student) TableName() string { return "students" }
