package dto

// 级联阶段
const (
	StageSheet    = "sheet"
	StageSession  = "session"
	StageStudents = "students"
	StageGlobal   = "global"
)

// 阶段状态
const (
	StageStatusOK      = "ok"
	StageStatusSkipped = "skipped"
	StageStatusFailed  = "failed"
)

// StageOutcome 单个级联阶段的结果
type StageOutcome struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StudentFailure 单个学生统计更新失败
type StudentFailure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// CascadeResult 一次写操作的级联结果
// 后续阶段失败不会回滚已提交的阶段
type CascadeResult struct {
	Stages          []StageOutcome   `json:"stages"`
	StudentFailures []StudentFailure `json:"student_failures,omitempty"`
}

// Record 追加一个阶段结果，err 非空时记为失败
func (r *CascadeResult) Record(stage string, err error) {
	out := StageOutcome{Stage: stage, Status: StageStatusOK}
	if err != nil {
		out.Status = StageStatusFailed
		out.Error = err.Error()
	}
	r.Stages = append(r.Stages, out)
}

// Skip 追加一个跳过的阶段
func (r *CascadeResult) Skip(stage string) {
	r.Stages = append(r.Stages, StageOutcome{Stage: stage, Status: StageStatusSkipped})
}

// Failed 是否有任一阶段失败
func (r *CascadeResult) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageStatusFailed {
			return true
		}
	}
	return false
}

// Outcome 返回指定阶段的结果
func (r *CascadeResult) Outcome(stage string) (StageOutcome, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageOutcome{}, false
}
