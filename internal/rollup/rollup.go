// Package rollup 派生统计的纯计算函数
//
// 本包不做任何 I/O：输入为已加载的明细，输出为新的统计值。
// 所有比率保证在 [0,100] 之间且不会出现 NaN，缺勤次数保证非负且不超过课次数。
package rollup

import (
	"math"

	"eduroots/backend/internal/model"
)

// ──────────────────────── 考勤表 ────────────────────────

// SheetStats 考勤表统计
type SheetStats struct {
	PresenceRate  float64
	TotalStudents int
}

// ComputeSheetStats 计算考勤表出勤率：100 * 出勤人数 / 总人数，无明细时为 0
func ComputeSheetStats(records []model.AttendanceRecord) SheetStats {
	total := len(records)
	if total == 0 {
		return SheetStats{}
	}
	present := 0
	for _, r := range records {
		if r.IsPresent {
			present++
		}
	}
	return SheetStats{
		PresenceRate:  clampRate(100 * float64(present) / float64(total)),
		TotalStudents: total,
	}
}

// ──────────────────────── 成绩单 ────────────────────────

// GradeSheetStats 成绩单统计
type GradeSheetStats struct {
	AverageGrade  float64
	HighestGrade  float64
	LowestGrade   float64
	AbsentCount   int
	TotalStudents int
}

// ComputeGradeSheetStats 仅统计非缺考且有分数的明细
// 没有任何有效分数时平均、最高、最低均为 0
func ComputeGradeSheetStats(records []model.GradeRecord) GradeSheetStats {
	stats := GradeSheetStats{TotalStudents: len(records)}

	var sum float64
	graded := 0
	for _, r := range records {
		if r.IsAbsent {
			stats.AbsentCount++
			continue
		}
		if r.Value == nil {
			continue
		}
		v := *r.Value
		if graded == 0 || v > stats.HighestGrade {
			stats.HighestGrade = v
		}
		if graded == 0 || v < stats.LowestGrade {
			stats.LowestGrade = v
		}
		sum += v
		graded++
	}

	if graded == 0 {
		stats.HighestGrade, stats.LowestGrade = 0, 0
		return stats
	}
	stats.AverageGrade = Round2(sum / float64(graded))
	return stats
}

// ──────────────────────── 学生出勤 ────────────────────────

// StudentAttendance 学生出勤聚合
type StudentAttendance struct {
	TotalSessions  int
	TotalAbsences  int
	AttendanceRate float64
	AbsencesRate   float64
}

// FromStats 从持久化统计中提取出勤聚合
func FromStats(s *model.StudentStats) StudentAttendance {
	if s == nil {
		return StudentAttendance{}
	}
	return StudentAttendance{
		TotalSessions:  s.TotalSessions,
		TotalAbsences:  s.AbsencesCount,
		AttendanceRate: s.AttendanceRate,
		AbsencesRate:   s.AbsencesRate,
	}
}

// ApplyTo 将出勤聚合写回持久化统计
func (a StudentAttendance) ApplyTo(s *model.StudentStats) {
	s.TotalSessions = a.TotalSessions
	s.AbsencesCount = a.TotalAbsences
	s.AttendanceRate = a.AttendanceRate
	s.AbsencesRate = a.AbsencesRate
}

// ComputeStudentAggregate 计入一次新课次
func ComputeStudentAggregate(prior StudentAttendance, isPresent bool) StudentAttendance {
	next := StudentAttendance{
		TotalSessions: prior.TotalSessions + 1,
		TotalAbsences: prior.TotalAbsences,
	}
	if !isPresent {
		next.TotalAbsences++
	}
	return withRates(next)
}

// ApplyPresenceFlip 出勤状态翻转：由缺勤改为出勤时缺勤数减 1，反之加 1
func ApplyPresenceFlip(prior StudentAttendance, nowPresent bool) StudentAttendance {
	next := prior
	if nowPresent {
		next.TotalAbsences--
	} else {
		next.TotalAbsences++
	}
	return withRates(next)
}

// RemoveSession 撤销一次课次的贡献（明细被移除或考勤表被软删除）
func RemoveSession(prior StudentAttendance, wasPresent bool) StudentAttendance {
	next := prior
	next.TotalSessions--
	if !wasPresent {
		next.TotalAbsences--
	}
	return withRates(next)
}

// RebuildAttendance 按完整明细重建出勤聚合
func RebuildAttendance(sessions, absences int) StudentAttendance {
	return withRates(StudentAttendance{TotalSessions: sessions, TotalAbsences: absences})
}

func withRates(a StudentAttendance) StudentAttendance {
	if a.TotalSessions < 0 {
		a.TotalSessions = 0
	}
	if a.TotalAbsences < 0 {
		a.TotalAbsences = 0
	}
	if a.TotalAbsences > a.TotalSessions {
		a.TotalAbsences = a.TotalSessions
	}
	if a.TotalSessions == 0 {
		a.AttendanceRate, a.AbsencesRate = 0, 0
		return a
	}
	s := float64(a.TotalSessions)
	a.AttendanceRate = clampRate(100 * float64(a.TotalSessions-a.TotalAbsences) / s)
	a.AbsencesRate = clampRate(100 * float64(a.TotalAbsences) / s)
	return a
}

// ──────────────────────── 平均值 ────────────────────────

// ComputeGlobalAverage 全部考勤表出勤率的算术平均，无表单时为 0
func ComputeGlobalAverage(rates []float64) float64 {
	return mean(rates)
}

// ComputeSessionAverage 单个课次下考勤表出勤率的算术平均
func ComputeSessionAverage(rates []float64) float64 {
	return mean(rates)
}

// ComputeGradeAverages 按科目与总体计算平均分，忽略缺考、空分与草稿
func ComputeGradeAverages(entries []model.StudentGradeEntry) model.GradeAverages {
	type acc struct {
		sum float64
		n   int
	}
	var overall acc
	bySubject := make(map[model.Subject]*acc, len(model.Subjects))

	for _, e := range entries {
		if e.IsAbsent || e.IsDraft || e.Value == nil {
			continue
		}
		a, ok := bySubject[e.Subject]
		if !ok {
			a = &acc{}
			bySubject[e.Subject] = a
		}
		a.sum += *e.Value
		a.n++
		overall.sum += *e.Value
		overall.n++
	}

	var out model.GradeAverages
	for subject, a := range bySubject {
		if slot := out.ForSubject(subject); slot != nil && a.n > 0 {
			*slot = model.SubjectAverage{Average: Round2(a.sum / float64(a.n)), Count: a.n}
		}
	}
	if overall.n > 0 {
		out.Overall = model.SubjectAverage{Average: Round2(overall.sum / float64(overall.n)), Count: overall.n}
	}
	return out
}

// ──────────────────────── 行为评分 ────────────────────────

// ComputeBehaviorAverage 行为评分均值，保留两位小数，无评分时为 0
// entries 须按日期升序；同一日历日只计第一条评分
func ComputeBehaviorAverage(entries []model.StudentBehaviorEntry) float64 {
	seen := make(map[string]struct{}, len(entries))
	sum, n := 0, 0
	for _, e := range entries {
		day := model.DayKey(e.Date)
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		sum += e.Rating
		n++
	}
	if n == 0 {
		return 0
	}
	return Round2(float64(sum) / float64(n))
}

// ──────────────────────── 差异 ────────────────────────

// PresenceChange 单个学生的出勤变化
type PresenceChange struct {
	StudentID string
	Present   bool // 新状态；Removed 中为旧状态
}

// PresenceDiff 新旧考勤明细差异
type PresenceDiff struct {
	Flipped []PresenceChange
	Added   []PresenceChange
	Removed []PresenceChange
}

// Empty 是否无任何变化
func (d PresenceDiff) Empty() bool {
	return len(d.Flipped) == 0 && len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffPresence 比较新旧明细，结果按输入顺序排列
// 同一学生出现多次时以最后一条为准
func DiffPresence(old, updated []model.AttendanceRecord) PresenceDiff {
	oldByStudent, oldOrder := indexPresence(old)
	newByStudent, newOrder := indexPresence(updated)

	var d PresenceDiff
	for _, id := range newOrder {
		now := newByStudent[id]
		was, existed := oldByStudent[id]
		switch {
		case !existed:
			d.Added = append(d.Added, PresenceChange{StudentID: id, Present: now})
		case was != now:
			d.Flipped = append(d.Flipped, PresenceChange{StudentID: id, Present: now})
		}
	}
	for _, id := range oldOrder {
		if _, still := newByStudent[id]; !still {
			d.Removed = append(d.Removed, PresenceChange{StudentID: id, Present: oldByStudent[id]})
		}
	}
	return d
}

// DiffBehavior 返回新旧明细中都存在且行为评分发生变化的学生
func DiffBehavior(old, updated []model.AttendanceRecord) []string {
	before := make(map[string]*int, len(old))
	for _, r := range old {
		before[r.StudentID] = r.BehaviorRating
	}
	var ids []string
	seen := make(map[string]struct{}, len(updated))
	for _, r := range updated {
		prev, existed := before[r.StudentID]
		if _, dup := seen[r.StudentID]; dup || !existed {
			continue
		}
		seen[r.StudentID] = struct{}{}
		if !sameRating(prev, r.BehaviorRating) {
			ids = append(ids, r.StudentID)
		}
	}
	return ids
}

func sameRating(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func indexPresence(records []model.AttendanceRecord) (map[string]bool, []string) {
	m := make(map[string]bool, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := m[r.StudentID]; !ok {
			order = append(order, r.StudentID)
		}
		m[r.StudentID] = r.IsPresent
	}
	return m, order
}

// ──────────────────────── 工具 ────────────────────────

// Round2 四舍五入到两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clampRate(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
