package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"eduroots/backend/internal/model"
	"eduroots/backend/internal/repository"
	pkgerrors "eduroots/backend/pkg/errors"
	"eduroots/backend/pkg/redis"
)

// uid 生成测试用的合法 UUID
func uid(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// ── Mock AttendanceSheetRepository ──

type mockAttendanceSheetRepo struct {
	mu     sync.Mutex
	sheets map[string]*model.AttendanceSheet
	seq    int
}

func newMockAttendanceSheetRepo() *mockAttendanceSheetRepo {
	return &mockAttendanceSheetRepo{sheets: make(map[string]*model.AttendanceSheet)}
}

func copySheet(s *model.AttendanceSheet) *model.AttendanceSheet {
	c := *s
	c.Records = append([]model.AttendanceRecord(nil), s.Records...)
	return &c
}

func (m *mockAttendanceSheetRepo) Create(_ context.Context, sheet *model.AttendanceSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sheets {
		if s.IsActive && s.CourseID == sheet.CourseID && s.Date.Equal(sheet.Date) {
			return gorm.ErrDuplicatedKey
		}
	}
	if sheet.SheetID == "" {
		m.seq++
		sheet.SheetID = fmt.Sprintf("sheet-%04d", m.seq)
	}
	m.sheets[sheet.SheetID] = copySheet(sheet)
	return nil
}

func (m *mockAttendanceSheetRepo) GetByID(_ context.Context, id string) (*model.AttendanceSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sheets[id]; ok {
		return copySheet(s), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceSheetRepo) FindActiveByCourseAndDay(_ context.Context, courseID string, day time.Time) (*model.AttendanceSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sheets {
		if s.IsActive && s.CourseID == courseID && s.Date.Equal(model.DateOnly(day)) {
			return copySheet(s), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceSheetRepo) List(_ context.Context, f repository.AttendanceSheetFilter) ([]model.AttendanceSheet, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttendanceSheet
	for _, id := range m.sortedIDs() {
		s := m.sheets[id]
		if !f.IncludeInactive && !s.IsActive {
			continue
		}
		if f.CourseID != "" && s.CourseID != f.CourseID {
			continue
		}
		out = append(out, *copySheet(s))
	}
	return out, int64(len(out)), nil
}

func (m *mockAttendanceSheetRepo) ListAfter(_ context.Context, afterID string, limit int, withRecords bool) ([]model.AttendanceSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttendanceSheet
	for _, id := range m.sortedIDs() {
		s := m.sheets[id]
		if !s.IsActive || id <= afterID {
			continue
		}
		c := copySheet(s)
		if !withRecords {
			c.Records = nil
		}
		out = append(out, *c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockAttendanceSheetRepo) ListPresenceRates(_ context.Context, sessionID string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rates []float64
	for _, id := range m.sortedIDs() {
		s := m.sheets[id]
		if !s.IsActive || (sessionID != "" && s.SessionRef() != sessionID) {
			continue
		}
		rates = append(rates, s.PresenceRate)
	}
	return rates, nil
}

func (m *mockAttendanceSheetRepo) ListBehaviorByStudent(_ context.Context, studentID string) ([]model.StudentBehaviorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sheets []*model.AttendanceSheet
	for _, id := range m.sortedIDs() {
		if s := m.sheets[id]; s.IsActive {
			sheets = append(sheets, s)
		}
	}
	sort.SliceStable(sheets, func(i, j int) bool { return sheets[i].Date.Before(sheets[j].Date) })

	var entries []model.StudentBehaviorEntry
	for _, s := range sheets {
		for _, r := range s.Records {
			if r.StudentID == studentID && r.BehaviorRating != nil {
				entries = append(entries, model.StudentBehaviorEntry{Date: s.Date, Rating: *r.BehaviorRating})
			}
		}
	}
	return entries, nil
}

func (m *mockAttendanceSheetRepo) UpdateWithRecords(_ context.Context, sheet *model.AttendanceSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[sheet.SheetID]
	if !ok || cur.Version != sheet.Version {
		return pkgerrors.ErrOptimisticLock
	}
	sheet.Version++
	m.sheets[sheet.SheetID] = copySheet(sheet)
	return nil
}

func (m *mockAttendanceSheetRepo) SoftDelete(_ context.Context, id string, version int, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[id]
	if !ok || cur.Version != version || !cur.IsActive {
		return pkgerrors.ErrOptimisticLock
	}
	cur.IsActive = false
	cur.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	if deletedBy != "" {
		cur.DeletedBy = &deletedBy
	}
	cur.Version++
	return nil
}

func (m *mockAttendanceSheetRepo) Restore(_ context.Context, id string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[id]
	if !ok || cur.Version != version || cur.IsActive {
		return pkgerrors.ErrOptimisticLock
	}
	cur.IsActive = true
	cur.DeletedAt = gorm.DeletedAt{}
	cur.DeletedBy = nil
	cur.Version++
	return nil
}

func (m *mockAttendanceSheetRepo) UpdateSessionRef(_ context.Context, id, oldSessionID, newSessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[id]
	if !ok || cur.SessionRef() != oldSessionID {
		return false, nil
	}
	sid := newSessionID
	cur.SessionID = &sid
	cur.Version++
	return true, nil
}

func (m *mockAttendanceSheetRepo) sortedIDs() []string {
	ids := make([]string, 0, len(m.sheets))
	for id := range m.sheets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// put 直接写入一张考勤表（模拟历史数据）
func (m *mockAttendanceSheetRepo) put(s *model.AttendanceSheet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Version == 0 {
		s.Version = 1
	}
	m.sheets[s.SheetID] = copySheet(s)
}

// ── Mock GradeSheetRepository ──

type mockGradeSheetRepo struct {
	mu       sync.Mutex
	sheets   map[string]*model.GradeSheet
	sessions *mockSessionRepo
	seq      int
	deleted  []string
}

func newMockGradeSheetRepo(sessions *mockSessionRepo) *mockGradeSheetRepo {
	return &mockGradeSheetRepo{sheets: make(map[string]*model.GradeSheet), sessions: sessions}
}

func copyGradeSheet(s *model.GradeSheet) *model.GradeSheet {
	c := *s
	c.Records = append([]model.GradeRecord(nil), s.Records...)
	return &c
}

func (m *mockGradeSheetRepo) Create(_ context.Context, sheet *model.GradeSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sheet.GradeSheetID == "" {
		m.seq++
		sheet.GradeSheetID = fmt.Sprintf("grade-%04d", m.seq)
	}
	m.sheets[sheet.GradeSheetID] = copyGradeSheet(sheet)
	return nil
}

func (m *mockGradeSheetRepo) GetByID(_ context.Context, id string) (*model.GradeSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sheets[id]; ok {
		return copyGradeSheet(s), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockGradeSheetRepo) ListBySession(_ context.Context, sessionID string) ([]model.GradeSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GradeSheet
	for _, id := range m.sortedIDs() {
		if s := m.sheets[id]; s.SessionID == sessionID && s.IsActive {
			c := copyGradeSheet(s)
			c.Records = nil
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockGradeSheetRepo) ListAfter(_ context.Context, afterID string, limit int) ([]model.GradeSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GradeSheet
	for _, id := range m.sortedIDs() {
		if id <= afterID {
			continue
		}
		c := copyGradeSheet(m.sheets[id])
		c.Records = nil
		out = append(out, *c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockGradeSheetRepo) Update(_ context.Context, sheet *model.GradeSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[sheet.GradeSheetID]
	if !ok || cur.Version != sheet.Version {
		return pkgerrors.ErrOptimisticLock
	}
	sheet.Version++
	m.sheets[sheet.GradeSheetID] = copyGradeSheet(sheet)
	return nil
}

func (m *mockGradeSheetRepo) HardDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sheets, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockGradeSheetRepo) ListRecordsByStudent(ctx context.Context, studentID string) ([]model.StudentGradeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []model.StudentGradeEntry
	for _, id := range m.sortedIDs() {
		s := m.sheets[id]
		if !s.IsActive {
			continue
		}
		session, err := m.sessions.GetByID(ctx, s.SessionID)
		if err != nil {
			continue
		}
		for _, r := range s.Records {
			if r.StudentID != studentID {
				continue
			}
			entries = append(entries, model.StudentGradeEntry{
				Subject:  session.Subject,
				Value:    r.Value,
				IsAbsent: r.IsAbsent,
				IsDraft:  s.IsDraft,
			})
		}
	}
	return entries, nil
}

func (m *mockGradeSheetRepo) sortedIDs() []string {
	ids := make([]string, 0, len(m.sheets))
	for id := range m.sheets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ── Mock SessionRepository ──

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	// 调用计数，用于验证批量解析
	listByIDsCalls int
	requestedIDs   map[string]int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions:     make(map[string]*model.Session),
		requestedIDs: make(map[string]int),
	}
}

func (m *mockSessionRepo) put(s *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.SessionID] = &c
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSessionRepo) ListByIDs(_ context.Context, ids []string) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listByIDsCalls++
	var out []model.Session
	for _, id := range ids {
		m.requestedIDs[id]++
		if s, ok := m.sessions[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, id := range m.sortedIDs() {
		if s := m.sessions[id]; s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) ListByDay(_ context.Context, dayOfWeek int, teacherID, room string) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, id := range m.sortedIDs() {
		s := m.sessions[id]
		if !s.IsActive || s.DayOfWeek != dayOfWeek {
			continue
		}
		if (teacherID != "" && s.TeacherID == teacherID) || (room != "" && s.Room == room) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) ListContainingStudents(_ context.Context, studentIDs []string) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, id := range m.sortedIDs() {
		s := m.sessions[id]
		if !s.IsActive {
			continue
		}
		for _, st := range studentIDs {
			if s.StudentIDs.Contains(st) {
				out = append(out, *s)
				break
			}
		}
	}
	return out, nil
}

func (m *mockSessionRepo) UpdateAttendanceStats(_ context.Context, id string, avg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.AverageAttendance = avg
	}
	return nil
}

func (m *mockSessionRepo) UpdateGradeStats(_ context.Context, id string, avg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.AverageGrade = avg
	}
	return nil
}

func (m *mockSessionRepo) sortedIDs() []string {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	students []model.Student
}

func (m *mockStudentRepo) ListActive(_ context.Context) ([]model.Student, error) {
	var out []model.Student
	for _, s := range m.students {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) ListByIDs(_ context.Context, ids []string) ([]model.Student, error) {
	var out []model.Student
	for _, s := range m.students {
		for _, id := range ids {
			if s.StudentID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// ── Mock StudentStatsRepository ──

type mockStudentStatsRepo struct {
	mu    sync.Mutex
	stats map[string]*model.StudentStats

	failFor   map[string]error // 对指定学生的读取返回错误
	conflicts map[string]int   // 对指定学生的前 N 次更新返回版本冲突
}

func newMockStudentStatsRepo() *mockStudentStatsRepo {
	return &mockStudentStatsRepo{
		stats:     make(map[string]*model.StudentStats),
		failFor:   make(map[string]error),
		conflicts: make(map[string]int),
	}
}

func (m *mockStudentStatsRepo) GetByStudent(_ context.Context, studentID string) (*model.StudentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[studentID]; ok {
		return nil, err
	}
	if s, ok := m.stats[studentID]; ok {
		c := *s
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentStatsRepo) Create(_ context.Context, stats *model.StudentStats) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stats[stats.StudentID]; ok {
		return false, nil
	}
	if stats.Version == 0 {
		stats.Version = 1
	}
	c := *stats
	m.stats[stats.StudentID] = &c
	return true, nil
}

func (m *mockStudentStatsRepo) Update(_ context.Context, stats *model.StudentStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.conflicts[stats.StudentID]; n > 0 {
		m.conflicts[stats.StudentID] = n - 1
		return pkgerrors.ErrOptimisticLock
	}
	cur, ok := m.stats[stats.StudentID]
	if !ok || cur.Version != stats.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stats.Version++
	c := *stats
	m.stats[stats.StudentID] = &c
	return nil
}

func (m *mockStudentStatsRepo) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]*model.StudentStats)
	return nil
}

func (m *mockStudentStatsRepo) get(studentID string) *model.StudentStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[studentID]; ok {
		c := *s
		return &c
	}
	return nil
}

// ── Mock GlobalStatsRepository ──

type mockGlobalStatsRepo struct {
	mu      sync.Mutex
	stats   *model.GlobalStats
	upserts int
}

func (m *mockGlobalStatsRepo) Get(_ context.Context) (*model.GlobalStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return nil, gorm.ErrRecordNotFound
	}
	c := *m.stats
	return &c, nil
}

func (m *mockGlobalStatsRepo) Upsert(_ context.Context, stats *model.GlobalStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *stats
	m.stats = &c
	m.upserts++
	return nil
}

// ── Mock RunLocker ──

type mockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (m *mockLocker) AcquireLock(_ context.Context, name, owner string, _ time.Duration) (func(context.Context), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[name]; ok {
		return nil, redis.ErrLockHeld
	}
	m.held[name] = owner
	return func(context.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.held[name] == owner {
			delete(m.held, name)
		}
	}, nil
}
