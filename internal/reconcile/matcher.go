package reconcile

import "eduroots/backend/internal/model"

// Confidence 匹配置信度
type Confidence string

const (
	ConfidenceHigh       Confidence = "high"
	ConfidenceMedium     Confidence = "medium"
	ConfidenceLow        Confidence = "low"
	ConfidenceUnresolved Confidence = "unresolved" // 无任何候选，仅人工处理
)

// Thresholds 置信度阈值，边界值归入较高一档
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds 默认阈值 0.70 / 0.40
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.70, Medium: 0.40}
}

// Classify 按匹配比例分级
func (t Thresholds) Classify(ratio float64) Confidence {
	switch {
	case ratio >= t.High:
		return ConfidenceHigh
	case ratio >= t.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Candidate 候选课次
type Candidate struct {
	SessionID  string
	StudentIDs []string
}

// CandidatesFromSessions 将课次转换为候选列表（保持输入顺序）
func CandidatesFromSessions(sessions []model.Session) []Candidate {
	out := make([]Candidate, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Candidate{SessionID: s.SessionID, StudentIDs: s.StudentIDs})
	}
	return out
}

// SessionMatch 孤儿记录的匹配建议
type SessionMatch struct {
	OrphanID           string     `json:"orphan_id"`
	BrokenSessionID    string     `json:"broken_session_id"`
	SuggestedSessionID string     `json:"suggested_session_id,omitempty"`
	CommonCount        int        `json:"common_count"`
	TotalCount         int        `json:"total_count"`
	Ratio              float64    `json:"ratio"`
	Confidence         Confidence `json:"confidence"`
}

// MatchSession 为孤儿考勤表寻找最可能的课次
//
// 得分为共同学生数，候选按给定顺序遍历，严格大于才替换，因此并列时取第一个。
// 比例 = 共同学生数 / 孤儿表中去重学生数。没有任何共同学生时为 Unresolved。
func MatchSession(orphanID, brokenSessionID string, orphanStudents []string, candidates []Candidate, th Thresholds) SessionMatch {
	set := make(map[string]struct{}, len(orphanStudents))
	for _, id := range orphanStudents {
		set[id] = struct{}{}
	}

	m := SessionMatch{
		OrphanID:        orphanID,
		BrokenSessionID: brokenSessionID,
		TotalCount:      len(set),
		Confidence:      ConfidenceUnresolved,
	}

	best := 0
	for _, c := range candidates {
		score := commonCount(set, c.StudentIDs)
		if score > best {
			best = score
			m.SuggestedSessionID = c.SessionID
		}
	}
	if best == 0 || m.TotalCount == 0 {
		return m
	}

	m.CommonCount = best
	m.Ratio = float64(best) / float64(m.TotalCount)
	m.Confidence = th.Classify(m.Ratio)
	return m
}

func commonCount(set map[string]struct{}, students []string) int {
	seen := make(map[string]struct{}, len(students))
	n := 0
	for _, s := range students {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}

// MatchBuckets 按置信度分组的匹配结果
type MatchBuckets struct {
	High       []SessionMatch `json:"high"`
	Medium     []SessionMatch `json:"medium"`
	Low        []SessionMatch `json:"low"`
	Unresolved []SessionMatch `json:"unresolved"`
}

// Add 将匹配结果放入对应分组
func (b *MatchBuckets) Add(m SessionMatch) {
	switch m.Confidence {
	case ConfidenceHigh:
		b.High = append(b.High, m)
	case ConfidenceMedium:
		b.Medium = append(b.Medium, m)
	case ConfidenceLow:
		b.Low = append(b.Low, m)
	default:
		b.Unresolved = append(b.Unresolved, m)
	}
}
