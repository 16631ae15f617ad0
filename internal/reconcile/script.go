package reconcile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// 修正操作目标
const (
	TargetAttendanceSheets = "attendance_sheets"
	FieldSessionID         = "session_id"
)

// Evidence 匹配证据
type Evidence struct {
	MatchRatio  float64 `yaml:"match_ratio"  json:"match_ratio"`
	CommonCount int     `yaml:"common_count" json:"common_count"`
	TotalCount  int     `yaml:"total_count"  json:"total_count"`
}

// Operation 一条修正操作：将 TargetID 的 Field 由 OldValue 改为 NewValue
type Operation struct {
	TargetCollection string   `yaml:"target_collection" json:"target_collection"`
	TargetID         string   `yaml:"target_id"         json:"target_id"`
	Field            string   `yaml:"field"             json:"field"`
	OldValue         string   `yaml:"old_value"         json:"old_value"`
	NewValue         string   `yaml:"new_value"         json:"new_value"`
	Evidence         Evidence `yaml:"evidence"          json:"evidence"`
}

// Script 修正脚本
type Script struct {
	RunID       string      `yaml:"run_id,omitempty"`
	GeneratedAt time.Time   `yaml:"generated_at"`
	Operations  []Operation `yaml:"operations"`
}

// OperationsFromMatches 仅将高置信度匹配转换为修正操作
func OperationsFromMatches(matches []SessionMatch) []Operation {
	var ops []Operation
	for _, m := range matches {
		if m.Confidence != ConfidenceHigh || m.SuggestedSessionID == "" {
			continue
		}
		ops = append(ops, Operation{
			TargetCollection: TargetAttendanceSheets,
			TargetID:         m.OrphanID,
			Field:            FieldSessionID,
			OldValue:         m.BrokenSessionID,
			NewValue:         m.SuggestedSessionID,
			Evidence: Evidence{
				MatchRatio:  m.Ratio,
				CommonCount: m.CommonCount,
				TotalCount:  m.TotalCount,
			},
		})
	}
	return ops
}

// Emitter 修正脚本生成器，只写文件不触碰业务数据
type Emitter struct {
	dir string
	now func() time.Time
}

// NewEmitter 创建生成器，脚本写入 dir
func NewEmitter(dir string) *Emitter {
	return &Emitter{dir: dir, now: time.Now}
}

// ArtifactName 运行产物文件名：<prefix>_<时间戳>_<运行 ID 前 8 位>.<ext>
// 同一秒内的多次运行由运行 ID 区分；runID 为空时改用纳秒
func ArtifactName(prefix, runID string, at time.Time, ext string) string {
	suffix := fmt.Sprintf("%09d", at.Nanosecond())
	if runID != "" {
		suffix = runID
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
	}
	return fmt.Sprintf("%s_%s_%s.%s", prefix, at.Format("2006-01-02T15-04-05"), suffix, ext)
}

// Emit 写出 attendance_corrections_<时间戳>_<运行 ID>.yaml 并返回路径
// 没有任何操作时不生成文件，返回空路径
func (e *Emitter) Emit(runID string, ops []Operation) (string, error) {
	if len(ops) == 0 {
		return "", nil
	}

	now := e.now()
	data, err := encodeScript(Script{RunID: runID, GeneratedAt: now.UTC(), Operations: ops})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建脚本目录失败: %w", err)
	}
	path := filepath.Join(e.dir, ArtifactName("attendance_corrections", runID, now, "yaml"))
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// encodeScript 序列化脚本，并为每条操作附上可读的证据注释
func encodeScript(s Script) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(s); err != nil {
		return nil, fmt.Errorf("序列化修正脚本失败: %w", err)
	}
	doc.HeadComment = fmt.Sprintf("考勤表会话引用修正脚本（共 %d 条）\n人工复核后执行: reconcile apply-script <path>", len(s.Operations))

	if seq := mappingValue(&doc, "operations"); seq != nil {
		for i, item := range seq.Content {
			op := s.Operations[i]
			item.HeadComment = fmt.Sprintf("%s: %d/%d 名学生重合 (%.0f%%)",
				op.TargetID, op.Evidence.CommonCount, op.Evidence.TotalCount, op.Evidence.MatchRatio*100)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("序列化修正脚本失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".script-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入脚本失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadScript 读取并校验修正脚本
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取修正脚本失败: %w", err)
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("解析修正脚本失败: %w", err)
	}
	for i, op := range s.Operations {
		if op.TargetCollection != TargetAttendanceSheets || op.Field != FieldSessionID {
			return nil, fmt.Errorf("第 %d 条操作不受支持: %s.%s", i+1, op.TargetCollection, op.Field)
		}
		if op.TargetID == "" || op.NewValue == "" {
			return nil, fmt.Errorf("第 %d 条操作缺少 target_id 或 new_value", i+1)
		}
	}
	return &s, nil
}
