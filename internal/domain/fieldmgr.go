package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldMgrName 标识一类可以持有配置字段的写入方。
type FieldMgrName string

const (
	FieldMgrWebForm     FieldMgrName = "web_form"
	FieldMgrAppDesc     FieldMgrName = "app_desc"
	FieldMgrAPI         FieldMgrName = "api"
	FieldMgrAutoscaling FieldMgrName = "autoscaling"
	FieldMgrDefault     FieldMgrName = "default"
)

// fieldMgrRanks 数值越大优先级越高，用于裁决字段冲突。
var fieldMgrRanks = map[FieldMgrName]int{
	FieldMgrWebForm:     40,
	FieldMgrAPI:         30,
	FieldMgrAppDesc:     20,
	FieldMgrAutoscaling: 10,
	FieldMgrDefault:     0,
}

func ParseFieldMgrName(s string) (FieldMgrName, error) {
	m := FieldMgrName(s)
	if _, ok := fieldMgrRanks[m]; !ok {
		return "", fmt.Errorf("%w: unknown field manager %q", ErrInvalidInput, s)
	}
	return m, nil
}

// Rank 返回管理者优先级，未知管理者按最低处理。
func (m FieldMgrName) Rank() int {
	return fieldMgrRanks[m]
}

// Outranks 判断 m 是否比 other 优先级更高。
func (m FieldMgrName) Outranks(other FieldMgrName) bool {
	return m.Rank() > other.Rank()
}

// Field 是 BkApp 模型中一个叶子配置的结构化路径，以规范化后的字符串判等。
type Field string

// NewField 去掉路径中的空白字符。
func NewField(path string) Field {
	return Field(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, path))
}

func (f Field) String() string { return string(f) }

func FProcReplicas(proc string) Field {
	return NewField(fmt.Sprintf("spec.processes[name=%s].replicas", proc))
}

func FProcAutoscaling(proc string) Field {
	return NewField(fmt.Sprintf("spec.processes[name=%s].autoscaling", proc))
}

func FProcCommand(proc string) Field {
	return NewField(fmt.Sprintf("spec.processes[name=%s].command", proc))
}

func FProcArgs(proc string) Field {
	return NewField(fmt.Sprintf("spec.processes[name=%s].args", proc))
}

func FProcTargetPort(proc string) Field {
	return NewField(fmt.Sprintf("spec.processes[name=%s].targetPort", proc))
}

func FProcProbes(proc string) Field {
	return NewField(fmt.Sprintf("spec.processes[name=%s].probes", proc))
}

func FOverlayReplicas(proc string, env EnvName) Field {
	return NewField(fmt.Sprintf("spec.envOverlay.replicas[envName=%s,process=%s]", env, proc))
}

func FOverlayAutoscaling(proc string, env EnvName) Field {
	return NewField(fmt.Sprintf("spec.envOverlay.autoscaling[envName=%s,process=%s]", env, proc))
}

func FBuildImage() Field { return NewField("spec.build.image") }

// FieldOwnership 是字段与其当前持有者的二元组。
type FieldOwnership struct {
	Field   Field        `json:"field"`
	Manager FieldMgrName `json:"manager"`
}
