package domain

import (
	"slices"
	"time"
)

type DeployStatus string

const (
	DeployStatusPending     DeployStatus = "pending"
	DeployStatusProgressing DeployStatus = "progressing"
	DeployStatusReady       DeployStatus = "ready"
	DeployStatusError       DeployStatus = "error"
	DeployStatusUnknown     DeployStatus = "unknown"
)

// IsTerminal READY 与 ERROR 之后记录不再变化，重新部署会新建记录。
func (s DeployStatus) IsTerminal() bool {
	return s == DeployStatusReady || s == DeployStatusError
}

// Condition 是集群侧上报的 BkApp 状态条件。
type Condition struct {
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason"`
	Message            string    `json:"message"`
	LastTransitionTime time.Time `json:"last_transition_time"`
}

// conditionReasons 是条件 reason 到部署状态的封闭映射，未登记的 reason 一律视为 unknown。
var conditionReasons = map[string]DeployStatus{
	"Pending":                  DeployStatusPending,
	"Initializing":             DeployStatusPending,
	"Scheduling":               DeployStatusPending,
	"Progressing":              DeployStatusProgressing,
	"NewRevision":              DeployStatusProgressing,
	"ReplicaSetUpdated":        DeployStatusProgressing,
	"RollingUpdate":            DeployStatusProgressing,
	"HooksRunning":             DeployStatusProgressing,
	"AddOnsProvisioning":       DeployStatusProgressing,
	"AppAvailable":             DeployStatusReady,
	"Available":                DeployStatusReady,
	"MinimumReplicasAvailable": DeployStatusReady,
	"NewReplicaSetAvailable":   DeployStatusReady,
	"Failed":                   DeployStatusError,
	"ReconcileError":           DeployStatusError,
	"ProgressDeadlineExceeded": DeployStatusError,
	"HookFailed":               DeployStatusError,
	"ImagePullFailed":          DeployStatusError,
	"CrashLoopBackOff":         DeployStatusError,
	"ReplicaFailure":           DeployStatusError,
}

// StatusFromCondition 把条件映射到粗粒度状态。
func StatusFromCondition(cond Condition) DeployStatus {
	if s, ok := conditionReasons[cond.Reason]; ok {
		return s
	}
	return DeployStatusUnknown
}

// allowedTransitions 状态机：pending → progressing → {ready, error}，unknown 可与非终态互转。
var allowedTransitions = map[DeployStatus][]DeployStatus{
	DeployStatusPending:     {DeployStatusProgressing, DeployStatusReady, DeployStatusError, DeployStatusUnknown},
	DeployStatusProgressing: {DeployStatusProgressing, DeployStatusReady, DeployStatusError, DeployStatusUnknown},
	DeployStatusUnknown:     {DeployStatusProgressing, DeployStatusReady, DeployStatusError, DeployStatusUnknown},
}

// AppModelDeploy 是一次部署尝试的记录。
type AppModelDeploy struct {
	ID                 string       `json:"id"`
	ApplicationID      string       `json:"application_id"`
	ModuleID           string       `json:"module_id"`
	Environment        EnvName      `json:"environment"`
	Name               string       `json:"name"`
	RevisionID         string       `json:"revision_id"`
	Status             DeployStatus `json:"status"`
	Reason             string       `json:"reason,omitempty"`
	Message            string       `json:"message,omitempty"`
	LastTransitionTime *time.Time   `json:"last_transition_time,omitempty"`
	Operator           string       `json:"operator,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (d *AppModelDeploy) HasSucceeded() bool {
	return d.Status == DeployStatusReady
}

// Transition 根据观察到的条件推进状态，返回记录是否发生变化。
// 终态记录和比当前记录更旧的条件都会被忽略。
func (d *AppModelDeploy) Transition(cond Condition) bool {
	if d.Status.IsTerminal() {
		return false
	}
	if d.LastTransitionTime != nil && !cond.LastTransitionTime.IsZero() &&
		cond.LastTransitionTime.Before(*d.LastTransitionTime) {
		return false
	}
	next := StatusFromCondition(cond)
	if !slices.Contains(allowedTransitions[d.Status], next) {
		return false
	}
	if next == d.Status && cond.Reason == d.Reason && cond.Message == d.Message {
		return false
	}
	d.Status = next
	d.Reason = cond.Reason
	d.Message = cond.Message
	ts := cond.LastTransitionTime
	if ts.IsZero() {
		ts = time.Now()
	}
	d.LastTransitionTime = &ts
	d.UpdatedAt = time.Now()
	return true
}
