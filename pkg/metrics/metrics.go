package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 统计级联与数据对账的 Prometheus 指标
// 所有指标注册在构造时传入的 Registerer 上，测试可使用独立的 Registry
type Metrics struct {
	// CascadeStageFailures 级联阶段失败次数（stage = sheet|session|students|global）
	CascadeStageFailures *prometheus.CounterVec
	// CascadeDuration 一次完整级联耗时（operation = create|update|soft_delete|restore|grade_create|grade_update）
	CascadeDuration *prometheus.HistogramVec
	// AuditReferences 审计引用结果（result = valid|invalid）
	AuditReferences *prometheus.CounterVec
	// Matches 启发式匹配置信度分布（confidence = high|medium|low|unresolved）
	Matches *prometheus.CounterVec
	// DuplicatesRemoved 重复成绩单删除数
	DuplicatesRemoved prometheus.Counter
	// ScriptsEmitted 生成的修正脚本数
	ScriptsEmitted prometheus.Counter
	// ScriptOperations 修正脚本执行结果（result = applied|skipped）
	ScriptOperations *prometheus.CounterVec
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CascadeStageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eduroots_cascade_stage_failures_total",
			Help: "Cascade stage failures by stage",
		}, []string{"stage"}),
		CascadeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eduroots_cascade_duration_seconds",
			Help:    "Full cascade duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		AuditReferences: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eduroots_audit_references_total",
			Help: "Audited child references by result",
		}, []string{"result"}),
		Matches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eduroots_reconcile_matches_total",
			Help: "Heuristic session matches by confidence",
		}, []string{"confidence"}),
		DuplicatesRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "eduroots_duplicates_removed_total",
			Help: "Duplicate grade sheets removed",
		}),
		ScriptsEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "eduroots_correction_scripts_emitted_total",
			Help: "Correction script artifacts written",
		}),
		ScriptOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eduroots_correction_operations_total",
			Help: "Correction script operations by result",
		}, []string{"result"}),
	}
}

// Nop 返回注册在私有 Registry 上的指标，供测试与命令行工具使用
func Nop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
