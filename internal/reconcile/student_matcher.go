package reconcile

import (
	"sort"
	"strings"
	"time"

	"eduroots/backend/internal/model"
)

// ImportedStudent 外部名单中的一名学生
type ImportedStudent struct {
	Firstname   string     `json:"firstname"   yaml:"firstname"`
	Lastname    string     `json:"lastname"    yaml:"lastname"`
	Email       string     `json:"email"       yaml:"email"`
	Phone       string     `json:"phone"       yaml:"phone"`
	Gender      string     `json:"gender"      yaml:"gender"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" yaml:"date_of_birth,omitempty"`
	Teacher     string     `json:"teacher,omitempty" yaml:"teacher,omitempty"`
}

// Discrepancy 已匹配学生的字段差异
type Discrepancy struct {
	Field    string `json:"field"`
	Imported string `json:"imported"`
	Live     string `json:"live"`
}

// StudentMatch 一对已匹配的学生
type StudentMatch struct {
	StudentID     string        `json:"student_id"`
	Firstname     string        `json:"firstname"`
	Lastname      string        `json:"lastname"`
	Email         string        `json:"email"`
	Score         int           `json:"score"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// LiveStudent 仅存在于数据库的学生
type LiveStudent struct {
	StudentID string `json:"student_id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
}

// StudentComparison 名单比对结果，三个列表均按姓、名排序
type StudentComparison struct {
	Matched      []StudentMatch    `json:"matched"`
	OnlyInImport []ImportedStudent `json:"only_in_import"`
	OnlyInLive   []LiveStudent     `json:"only_in_live"`
}

// 匹配得分
const (
	scoreName   = 10
	scoreEmail  = 5
	scoreBirth  = 3
	scoreGender = 2
	scorePhone  = 1
)

// NameKey 姓名键：lower(trim(姓))_lower(trim(名))
func NameKey(lastname, firstname string) string {
	return strings.ToLower(strings.TrimSpace(lastname)) + "_" + strings.ToLower(strings.TrimSpace(firstname))
}

// NormalizeGender 将常见写法规范为 masculin / feminin，无法识别时返回空串
func NormalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "masculin", "m", "homme", "male":
		return model.GenderMale
	case "feminin", "féminin", "f", "femme", "female":
		return model.GenderFemale
	}
	return ""
}

// MatchScore 同名前提下的附加得分
func MatchScore(in ImportedStudent, live model.Student) int {
	score := scoreName
	if in.Email != "" && live.Email != "" && strings.EqualFold(in.Email, live.Email) {
		score += scoreEmail
	}
	if in.DateOfBirth != nil && live.DateOfBirth != nil && isoDay(in.DateOfBirth) == isoDay(live.DateOfBirth) {
		score += scoreBirth
	}
	if g := NormalizeGender(in.Gender); g != "" && g == live.Gender {
		score += scoreGender
	}
	if in.Phone != "" && live.Phone != "" && in.Phone == live.Phone {
		score += scorePhone
	}
	return score
}

// FindDiscrepancies 列出已匹配学生之间的字段差异
// 邮箱任一侧为空不视为差异
func FindDiscrepancies(in ImportedStudent, live model.Student) []Discrepancy {
	out := []Discrepancy{}

	if in.Email != "" && live.Email != "" && !strings.EqualFold(in.Email, live.Email) {
		out = append(out, Discrepancy{Field: "email", Imported: in.Email, Live: live.Email})
	}
	if isoDay(in.DateOfBirth) != isoDay(live.DateOfBirth) {
		out = append(out, Discrepancy{Field: "date_of_birth", Imported: isoDay(in.DateOfBirth), Live: isoDay(live.DateOfBirth)})
	}
	if g := NormalizeGender(in.Gender); g != live.Gender {
		shown := g
		if shown == "" {
			shown = in.Gender
		}
		out = append(out, Discrepancy{Field: "gender", Imported: shown, Live: live.Gender})
	}
	if in.Phone != live.Phone {
		out = append(out, Discrepancy{Field: "phone", Imported: in.Phone, Live: live.Phone})
	}
	return out
}

// CompareStudents 按姓名键比对外部名单与数据库学生
//
// 按导入顺序逐个贪心认领：在同名且未被认领的数据库学生中取得分最高者，
// 得分严格更高才替换，因此并列时取数据库顺序中的第一个。
func CompareStudents(imported []ImportedStudent, live []model.Student) StudentComparison {
	liveByKey := make(map[string][]int)
	for i, s := range live {
		if s.Lastname == "" || s.Firstname == "" {
			continue
		}
		key := NameKey(s.Lastname, s.Firstname)
		liveByKey[key] = append(liveByKey[key], i)
	}

	claimed := make([]bool, len(live))
	result := StudentComparison{
		Matched:      []StudentMatch{},
		OnlyInImport: []ImportedStudent{},
		OnlyInLive:   []LiveStudent{},
	}

	for _, in := range imported {
		if in.Lastname == "" || in.Firstname == "" {
			result.OnlyInImport = append(result.OnlyInImport, in)
			continue
		}

		best, bestScore := -1, -1
		for _, idx := range liveByKey[NameKey(in.Lastname, in.Firstname)] {
			if claimed[idx] {
				continue
			}
			if score := MatchScore(in, live[idx]); score > bestScore {
				best, bestScore = idx, score
			}
		}
		if best < 0 {
			result.OnlyInImport = append(result.OnlyInImport, in)
			continue
		}

		claimed[best] = true
		s := live[best]
		result.Matched = append(result.Matched, StudentMatch{
			StudentID:     s.StudentID,
			Firstname:     s.Firstname,
			Lastname:      s.Lastname,
			Email:         s.Email,
			Score:         bestScore,
			Discrepancies: FindDiscrepancies(in, s),
		})
	}

	for i, s := range live {
		if !claimed[i] {
			result.OnlyInLive = append(result.OnlyInLive, LiveStudent{
				StudentID: s.StudentID,
				Firstname: s.Firstname,
				Lastname:  s.Lastname,
				Email:     s.Email,
			})
		}
	}

	sort.SliceStable(result.Matched, func(i, j int) bool {
		return nameLess(result.Matched[i].Lastname, result.Matched[i].Firstname, result.Matched[j].Lastname, result.Matched[j].Firstname)
	})
	sort.SliceStable(result.OnlyInImport, func(i, j int) bool {
		return nameLess(result.OnlyInImport[i].Lastname, result.OnlyInImport[i].Firstname, result.OnlyInImport[j].Lastname, result.OnlyInImport[j].Firstname)
	})
	sort.SliceStable(result.OnlyInLive, func(i, j int) bool {
		return nameLess(result.OnlyInLive[i].Lastname, result.OnlyInLive[i].Firstname, result.OnlyInLive[j].Lastname, result.OnlyInLive[j].Firstname)
	})
	return result
}

func nameLess(lastA, firstA, lastB, firstB string) bool {
	if lastA != lastB {
		return lastA < lastB
	}
	return firstA < firstB
}

func isoDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
