package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/metrics"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	slogctx "github.com/veqryn/slog-context"
)

// ConflictPolicy 决定低优先级写入撞上高优先级持有者时的处理方式。
type ConflictPolicy string

const (
	ConflictPolicyIgnore ConflictPolicy = "ignore"
	ConflictPolicyReject ConflictPolicy = "reject"
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case ConflictPolicyIgnore, ConflictPolicyReject:
		return ConflictPolicy(s), nil
	}
	return "", fmt.Errorf("%w: unknown conflict policy %q", domain.ErrInvalidInput, s)
}

// ModelPatch 是一次针对模型的局部修改，nil 字段表示不修改。
type ModelPatch struct {
	Image     *string        `json:"image,omitempty"`
	Processes []ProcessPatch `json:"processes"`
}

type ProcessPatch struct {
	Name               string                              `json:"name"`
	Command            []string                            `json:"command,omitempty"`
	Args               []string                            `json:"args,omitempty"`
	TargetPort         *int32                              `json:"target_port,omitempty"`
	Replicas           *int32                              `json:"replicas,omitempty"`
	Autoscaling        *domain.AutoscalingSpec             `json:"autoscaling,omitempty"`
	DisableAutoscaling bool                                `json:"disable_autoscaling,omitempty"`
	Probes             *domain.ProbeSet                    `json:"probes,omitempty"`
	EnvOverlay         map[domain.EnvName]*ProcessEnvPatch `json:"env_overlay,omitempty"`
}

type ProcessEnvPatch struct {
	TargetReplicas     *int32                  `json:"target_replicas,omitempty"`
	Autoscaling        *domain.AutoscalingSpec `json:"autoscaling,omitempty"`
	DisableAutoscaling bool                    `json:"disable_autoscaling,omitempty"`
}

// ApplyResult 汇报本次合并写入与被跳过的字段。
type ApplyResult struct {
	Revision *domain.AppModelRevision `json:"revision"`
	Applied  []domain.Field           `json:"applied"`
	Ignored  []domain.FieldOwnership  `json:"ignored"`
}

// ProcessSpecService 按字段归属把局部修改合并进当前模型。
type ProcessSpecService struct {
	models *AppModelService
	store  *RowGroupStore
	tx     port.TxManager
	policy ConflictPolicy
}

func NewProcessSpecService(models *AppModelService, store *RowGroupStore, tx port.TxManager, policy ConflictPolicy) *ProcessSpecService {
	if policy == "" {
		policy = ConflictPolicyIgnore
	}
	return &ProcessSpecService{models: models, store: store, tx: tx, policy: policy}
}

// mayWrite 持有者本人或未被管理时可写；否则只有优先级更高的管理者可以覆盖。
func mayWrite(g *domain.ManagedFieldsRowGroup, f domain.Field, manager domain.FieldMgrName) (bool, domain.FieldMgrName) {
	if canBeManagedBy(g, f, manager, manager) {
		return true, ""
	}
	owner, _ := g.GetManager(f)
	return manager.Outranks(owner), owner
}

// mergeState 记录一次合并过程中的中间结果。
type mergeState struct {
	group   *domain.ManagedFieldsRowGroup
	manager domain.FieldMgrName
	applied []domain.Field
	claimed []domain.Field
	ignored []domain.FieldOwnership
}

// tracked 对受归属管理的字段做仲裁，允许时执行 apply 并记录归属。
func (m *mergeState) tracked(f domain.Field, apply func()) {
	ok, owner := mayWrite(m.group, f, m.manager)
	if !ok {
		m.ignored = append(m.ignored, domain.FieldOwnership{Field: f, Manager: owner})
		metrics.FieldConflicts.WithLabelValues(string(m.manager), string(owner)).Inc()
		return
	}
	apply()
	m.applied = append(m.applied, f)
	m.claimed = append(m.claimed, f)
}

// untracked 不参与归属仲裁的字段直接写入。
func (m *mergeState) untracked(f domain.Field, apply func()) {
	apply()
	m.applied = append(m.applied, f)
}

// Apply 合并 patch 并生成新版本；数据与字段归属在同一事务内提交。
func (s *ProcessSpecService) Apply(ctx context.Context, code, module string, manager domain.FieldMgrName, patch ModelPatch) (*ApplyResult, error) {
	app, mod, err := s.models.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	logger := slogctx.FromCtx(ctx).With("app", app.Code, "module", mod.Name, "manager", manager)

	var result *ApplyResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, currentRev, err := s.models.currentModel(ctx, mod.ID)
		if err != nil {
			return err
		}
		g, err := s.store.Load(ctx, mod.ID)
		if err != nil {
			return err
		}
		state := &mergeState{group: g.Clone(), manager: manager}
		next := current.DeepCopy()
		mergeModelPatch(state, next, patch)

		if len(state.ignored) > 0 && s.policy == ConflictPolicyReject {
			return &domain.FieldConflictError{Manager: manager, Conflicts: state.ignored}
		}
		if err := domain.ValidateBkAppResource(next); err != nil {
			return err
		}

		for _, f := range state.claimed {
			state.group.SetManager(manager, f)
		}
		if err := s.store.Save(ctx, state.group); err != nil {
			return err
		}

		result = &ApplyResult{Applied: state.applied, Ignored: state.ignored, Revision: currentRev}
		digest, err := domain.ResourceDigest(next)
		if err != nil {
			return err
		}
		if digest == currentRev.Digest {
			return nil
		}
		result.Revision, err = s.models.useResource(ctx, mod.ID, next, manager)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(result.Ignored) > 0 {
		logger.Warn("fields owned by higher-precedence managers were skipped", "ignored", len(result.Ignored))
	}
	logger.Info("process specs applied", "applied", len(result.Applied), "revision", result.Revision.Number)
	return result, nil
}

func mergeModelPatch(state *mergeState, res *domain.BkAppResource, patch ModelPatch) {
	spec := &res.Spec
	if patch.Image != nil {
		state.untracked(domain.FBuildImage(), func() {
			if res.APIVersion == domain.APIVersionV1Alpha1 {
				for i := range spec.Processes {
					spec.Processes[i].Image = *patch.Image
				}
				return
			}
			if spec.Build == nil {
				spec.Build = &domain.BkAppBuildConfig{}
			}
			spec.Build.Image = *patch.Image
		})
	}

	for _, pp := range patch.Processes {
		proc := spec.FindProcess(pp.Name)
		if proc == nil {
			spec.Processes = append(spec.Processes, domain.BkAppProcess{Name: pp.Name})
			proc = &spec.Processes[len(spec.Processes)-1]
			if res.APIVersion == domain.APIVersionV1Alpha1 && len(spec.Processes) > 1 {
				proc.Image = spec.Processes[0].Image
			}
		}
		name := pp.Name
		if pp.Command != nil {
			state.untracked(domain.FProcCommand(name), func() { proc.Command = pp.Command })
		}
		if pp.Args != nil {
			state.untracked(domain.FProcArgs(name), func() { proc.Args = pp.Args })
		}
		if pp.TargetPort != nil {
			state.untracked(domain.FProcTargetPort(name), func() { proc.TargetPort = pp.TargetPort })
		}
		if pp.Probes != nil {
			state.untracked(domain.FProcProbes(name), func() { proc.Probes = pp.Probes })
		}
		if pp.Replicas != nil {
			state.tracked(domain.FProcReplicas(name), func() { proc.Replicas = pp.Replicas })
		}
		switch {
		case pp.DisableAutoscaling:
			state.tracked(domain.FProcAutoscaling(name), func() { proc.Autoscaling = nil })
		case pp.Autoscaling != nil:
			state.tracked(domain.FProcAutoscaling(name), func() { proc.Autoscaling = withDefaultPolicy(pp.Autoscaling) })
		}

		for _, env := range slices.Sorted(maps.Keys(pp.EnvOverlay)) {
			ep := pp.EnvOverlay[env]
			if ep == nil {
				continue
			}
			if ep.TargetReplicas != nil {
				n := *ep.TargetReplicas
				state.tracked(domain.FOverlayReplicas(name, env), func() { spec.SetOverlayReplicas(name, env, n) })
			}
			switch {
			case ep.DisableAutoscaling:
				state.tracked(domain.FOverlayAutoscaling(name, env), func() { spec.SetOverlayAutoscaling(name, env, nil) })
			case ep.Autoscaling != nil:
				a := withDefaultPolicy(ep.Autoscaling)
				state.tracked(domain.FOverlayAutoscaling(name, env), func() { spec.SetOverlayAutoscaling(name, env, a) })
			}
		}
	}
}

func withDefaultPolicy(a *domain.AutoscalingSpec) *domain.AutoscalingSpec {
	out := *a
	if out.Policy == "" {
		out.Policy = domain.ScalingPolicyDefault
	}
	return &out
}

// CheckReplicasManuallyScaled 任一进程任一环境的副本数覆盖归网页表单所有时返回 true。
func (s *ProcessSpecService) CheckReplicasManuallyScaled(ctx context.Context, code, module string) (bool, error) {
	_, mod, err := s.models.apps.GetModule(ctx, code, module)
	if err != nil {
		return false, err
	}
	model, _, err := s.models.currentModel(ctx, mod.ID)
	if err != nil {
		return false, err
	}
	g, err := NewMultiFieldsManager(s.store, s.tx, mod.ID).Snapshot(ctx)
	if err != nil {
		return false, err
	}
	for _, proc := range model.Spec.ProcessNames() {
		for _, env := range domain.AllEnvs() {
			if owner, ok := g.GetManager(domain.FOverlayReplicas(proc, env)); ok && owner == domain.FieldMgrWebForm {
				return true, nil
			}
		}
	}
	return false, nil
}

// ResetManualScaling 释放网页表单持有的全部环境级扩缩容字段，之后声明式配置可以重新接管。
func (s *ProcessSpecService) ResetManualScaling(ctx context.Context, code, module string) ([]domain.Field, error) {
	_, mod, err := s.models.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	model, _, err := s.models.currentModel(ctx, mod.ID)
	if err != nil {
		return nil, err
	}
	mgr := NewMultiFieldsManager(s.store, s.tx, mod.ID)
	g, err := mgr.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var released []domain.Field
	for _, proc := range model.Spec.ProcessNames() {
		for _, env := range domain.AllEnvs() {
			for _, f := range []domain.Field{domain.FOverlayReplicas(proc, env), domain.FOverlayAutoscaling(proc, env)} {
				if owner, ok := g.GetManager(f); ok && owner == domain.FieldMgrWebForm {
					released = append(released, f)
				}
			}
		}
	}
	if len(released) == 0 {
		return nil, nil
	}
	if err := mgr.ResetMany(ctx, released); err != nil {
		return nil, err
	}
	return released, nil
}

// ProcessSpecView 是进程配置的合并视图，附带各字段当前持有者。
type ProcessSpecView struct {
	domain.BkAppProcess
	EnvOverlay map[domain.EnvName]ProcessEnvView    `json:"env_overlay"`
	Managers   map[domain.Field]domain.FieldMgrName `json:"managers,omitempty"`
}

type ProcessEnvView struct {
	TargetReplicas int32                   `json:"target_replicas"`
	Autoscaling    *domain.AutoscalingSpec `json:"autoscaling,omitempty"`
}

func (s *ProcessSpecService) ListProcessSpecs(ctx context.Context, code, module string) ([]ProcessSpecView, error) {
	_, mod, err := s.models.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	model, _, err := s.models.currentModel(ctx, mod.ID)
	if err != nil {
		return nil, err
	}
	g, err := NewMultiFieldsManager(s.store, s.tx, mod.ID).Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProcessSpecView, 0, len(model.Spec.Processes))
	for _, p := range model.Spec.Processes {
		v := ProcessSpecView{BkAppProcess: p, EnvOverlay: map[domain.EnvName]ProcessEnvView{}, Managers: map[domain.Field]domain.FieldMgrName{}}
		for _, env := range domain.AllEnvs() {
			ev := ProcessEnvView{TargetReplicas: model.Spec.EffectiveReplicas(p.Name, env), Autoscaling: p.Autoscaling}
			if a, ok := model.Spec.OverlayAutoscaling(p.Name, env); ok {
				ev.Autoscaling = a
			}
			v.EnvOverlay[env] = ev
		}
		for _, f := range trackedFields(p.Name) {
			if owner, ok := g.GetManager(f); ok {
				v.Managers[f] = owner
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// trackedFields 列出一个进程下受归属管理的全部字段。
func trackedFields(proc string) []domain.Field {
	fields := []domain.Field{domain.FProcReplicas(proc), domain.FProcAutoscaling(proc)}
	for _, env := range domain.AllEnvs() {
		fields = append(fields, domain.FOverlayReplicas(proc, env), domain.FOverlayAutoscaling(proc, env))
	}
	return fields
}

func trackedFieldValues(spec *domain.BkAppSpec) map[domain.Field]string {
	out := map[domain.Field]string{}
	enc := func(v any) string {
		b, _ := json.Marshal(v)
		return string(b)
	}
	for _, p := range spec.Processes {
		out[domain.FProcReplicas(p.Name)] = enc(p.Replicas)
		out[domain.FProcAutoscaling(p.Name)] = enc(p.Autoscaling)
		for _, env := range domain.AllEnvs() {
			var replicas *int32
			if n, ok := spec.OverlayReplicas(p.Name, env); ok {
				replicas = &n
			}
			out[domain.FOverlayReplicas(p.Name, env)] = enc(replicas)
			a, _ := spec.OverlayAutoscaling(p.Name, env)
			out[domain.FOverlayAutoscaling(p.Name, env)] = enc(a)
		}
	}
	return out
}

// changedTrackedFields 返回两份 spec 间取值不同的受管字段，按字典序排列。
func changedTrackedFields(before, after *domain.BkAppSpec) []domain.Field {
	a, b := trackedFieldValues(before), trackedFieldValues(after)
	var changed []domain.Field
	for f, v := range b {
		if a[f] != v {
			changed = append(changed, f)
		}
	}
	slices.Sort(changed)
	return changed
}

// restoreTrackedField 把 dst 中字段 f 的取值恢复为 src 中的取值，src 里不存在时清除。
func restoreTrackedField(dst, src *domain.BkAppSpec, f domain.Field) {
	for i := range dst.Processes {
		proc := &dst.Processes[i]
		name := proc.Name
		prev := src.FindProcess(name)
		switch f {
		case domain.FProcReplicas(name):
			proc.Replicas = nil
			if prev != nil && prev.Replicas != nil {
				proc.Replicas = ptrTo(*prev.Replicas)
			}
			return
		case domain.FProcAutoscaling(name):
			proc.Autoscaling = nil
			if prev != nil && prev.Autoscaling != nil {
				proc.Autoscaling = ptrTo(*prev.Autoscaling)
			}
			return
		}
		for _, env := range domain.AllEnvs() {
			switch f {
			case domain.FOverlayReplicas(name, env):
				if n, ok := src.OverlayReplicas(name, env); ok {
					dst.SetOverlayReplicas(name, env, n)
				} else {
					dst.UnsetOverlayReplicas(name, env)
				}
				return
			case domain.FOverlayAutoscaling(name, env):
				var a *domain.AutoscalingSpec
				if prevSpec, ok := src.OverlayAutoscaling(name, env); ok {
					a = ptrTo(*prevSpec)
				}
				dst.SetOverlayAutoscaling(name, env, a)
				return
			}
		}
	}
}

func ptrTo[T any](v T) *T { return &v }
