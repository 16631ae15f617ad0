package model

import (
	"time"

	"gorm.io/datatypes"
)

// SubjectAverage 单科平均分
type SubjectAverage struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// GradeAverages 学生各科与总平均分（科目为封闭集合，故使用显式字段）
type GradeAverages struct {
	Arabic            SubjectAverage `json:"arabe"`
	CulturalEducation SubjectAverage `json:"education_culturelle"`
	Overall           SubjectAverage `json:"overall"`
}

// ForSubject 返回指定科目的平均分指针，未知科目返回 nil
func (g *GradeAverages) ForSubject(s Subject) *SubjectAverage {
	switch s {
	case SubjectArabic:
		return &g.Arabic
	case SubjectCulturalEducation:
		return &g.CulturalEducation
	}
	return nil
}

// StudentStats 学生派生统计 — 对应 student_stats（每个学生一行，禁止直接编辑）
type StudentStats struct {
	StudentID       string                            `gorm:"type:uuid;primaryKey"               json:"student_id"`
	TotalSessions   int                               `gorm:"not null;default:0"                 json:"total_sessions"`
	AbsencesCount   int                               `gorm:"not null;default:0"                 json:"absences_count"`
	AttendanceRate  float64                           `gorm:"not null;default:0"                 json:"attendance_rate"`
	AbsencesRate    float64                           `gorm:"not null;default:0"                 json:"absences_rate"`
	BehaviorAverage float64                           `gorm:"not null;default:0"                 json:"behavior_average"`
	Grades          datatypes.JSONType[GradeAverages] `gorm:"type:jsonb;not null"                json:"grades"`
	LastActivity    *time.Time                        `json:"last_activity,omitempty"`
	LastUpdate      time.Time                         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_update"`
	Version         int                               `gorm:"not null;default:1"                 json:"version"`
}

// TableName 指定表名
func (StudentStats) TableName() string { return "student_stats" }

// GlobalStats 全局统计 — 对应 global_stats（单行强类型）
type GlobalStats struct {
	Singleton             bool      `gorm:"primaryKey;default:true"            json:"-"`
	AverageAttendanceRate float64   `gorm:"not null;default:0"                 json:"average_attendance_rate"`
	SheetCount            int       `gorm:"not null;default:0"                 json:"sheet_count"`
	LastUpdate            time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_update"`
}

// TableName 指定表名
func (GlobalStats) TableName() string { return "global_stats" }
