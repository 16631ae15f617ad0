package model

import "time"

// AttendanceSheet 考勤表 — 对应 attendance_sheets
// 同一课程同一日历日至多一张有效表单
type AttendanceSheet struct {
	SheetID       string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"sheet_id"`
	CourseID      string    `gorm:"type:uuid;not null"                             json:"course_id"`
	SessionID     *string   `gorm:"type:uuid"                                      json:"session_id,omitempty"`
	Date          time.Time `gorm:"type:date;not null"                             json:"date"`
	PresenceRate  float64   `gorm:"not null;default:0"                             json:"presence_rate"`
	TotalStudents int       `gorm:"not null;default:0"                             json:"total_students"`
	LastUpdate    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"last_update"`
	IsActive      bool      `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel

	Records []AttendanceRecord `gorm:"foreignKey:SheetID;references:SheetID" json:"records,omitempty"`
}

// TableName 指定表名
func (AttendanceSheet) TableName() string { return "attendance_sheets" }

// SessionRef 返回会话 ID，未关联时为空串
func (s *AttendanceSheet) SessionRef() string {
	if s.SessionID == nil {
		return ""
	}
	return *s.SessionID
}

// StudentIDs 返回表单中出现的去重学生 ID（保持首次出现顺序）
func (s *AttendanceSheet) StudentIDs() []string {
	seen := make(map[string]struct{}, len(s.Records))
	ids := make([]string, 0, len(s.Records))
	for _, r := range s.Records {
		if _, ok := seen[r.StudentID]; ok {
			continue
		}
		seen[r.StudentID] = struct{}{}
		ids = append(ids, r.StudentID)
	}
	return ids
}

// AttendanceRecord 考勤明细 — 对应 attendance_records
type AttendanceRecord struct {
	RecordID  string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"record_id"`
	SheetID   string  `gorm:"type:uuid;not null;index"                       json:"sheet_id"`
	StudentID string  `gorm:"type:uuid;not null"                             json:"student_id"`
	IsPresent bool    `gorm:"not null"                                       json:"is_present"`
	Comment   *string `gorm:"type:varchar(500)"                              json:"comment,omitempty"`
	// BehaviorRating 课堂表现评分 1-5，未评分为空
	BehaviorRating *int `gorm:"type:smallint" json:"behavior_rating,omitempty"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string { return "attendance_records" }

// StudentBehaviorEntry 学生在一张有效考勤表上的行为评分
type StudentBehaviorEntry struct {
	Date   time.Time
	Rating int
}
