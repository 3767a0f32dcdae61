package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// appDescSpecVersion 是唯一支持的描述文件版本。
const appDescSpecVersion = 3

// appDesc 是 app_desc.yaml 的顶层结构，module 与 modules 二选一。
type appDesc struct {
	SpecVersion int             `json:"specVersion"`
	AppVersion  string          `json:"appVersion"`
	Module      *appDescModule  `json:"module"`
	Modules     []appDescModule `json:"modules"`
}

type appDescModule struct {
	Name      string           `json:"name"`
	IsDefault bool             `json:"isDefault"`
	Spec      domain.BkAppSpec `json:"spec"`
}

// AppDescService 把描述文件里的模块配置以 app_desc 身份合并进模型。
type AppDescService struct {
	specs *ProcessSpecService
}

func NewAppDescService(specs *ProcessSpecService) *AppDescService {
	return &AppDescService{specs: specs}
}

// Apply 解析描述文件，取出与 module 同名的模块并应用。
func (s *AppDescService) Apply(ctx context.Context, code, module string, content []byte) (*ApplyResult, error) {
	desc, err := parseAppDesc(content)
	if err != nil {
		return nil, err
	}
	m := desc.findModule(module)
	if m == nil {
		return nil, fmt.Errorf("%w: module %q is not declared in app_desc.yaml", domain.ErrInvalidInput, module)
	}
	return s.specs.Apply(ctx, code, module, domain.FieldMgrAppDesc, appDescPatch(&m.Spec))
}

func parseAppDesc(content []byte) (*appDesc, error) {
	var raw any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse app_desc.yaml: %v", domain.ErrInvalidInput, err)
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: app_desc.yaml must be a mapping", domain.ErrInvalidInput)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: app_desc.yaml: %v", domain.ErrInvalidInput, err)
	}
	var desc appDesc
	if err := json.Unmarshal(buf, &desc); err != nil {
		return nil, fmt.Errorf("%w: decode app_desc.yaml: %v", domain.ErrInvalidInput, err)
	}
	if desc.SpecVersion != appDescSpecVersion {
		return nil, fmt.Errorf("%w: unsupported specVersion %d", domain.ErrInvalidInput, desc.SpecVersion)
	}
	if desc.Module != nil && len(desc.Modules) > 0 {
		return nil, fmt.Errorf("%w: module and modules are mutually exclusive", domain.ErrInvalidInput)
	}
	return &desc, nil
}

func (d *appDesc) findModule(name string) *appDescModule {
	if d.Module != nil {
		// 单模块写法没有名字时视为主模块
		if d.Module.Name == name || (d.Module.Name == "" && name == domain.DefaultModuleName) {
			return d.Module
		}
		return nil
	}
	for i := range d.Modules {
		if d.Modules[i].Name == name {
			return &d.Modules[i]
		}
	}
	return nil
}

// appDescPatch 把描述文件中的 spec 转成局部修改，未声明的字段保持原值。
func appDescPatch(spec *domain.BkAppSpec) ModelPatch {
	var patch ModelPatch
	if spec.Build != nil && spec.Build.Image != "" {
		image := spec.Build.Image
		patch.Image = &image
	}
	index := map[string]int{}
	for _, p := range spec.Processes {
		index[p.Name] = len(patch.Processes)
		patch.Processes = append(patch.Processes, ProcessPatch{
			Name:        p.Name,
			Command:     p.Command,
			Args:        p.Args,
			TargetPort:  p.TargetPort,
			Replicas:    p.Replicas,
			Autoscaling: p.Autoscaling,
			Probes:      p.Probes,
		})
	}
	if spec.EnvOverlay == nil {
		return patch
	}
	envPatch := func(proc string, env domain.EnvName) *ProcessEnvPatch {
		i, ok := index[proc]
		if !ok {
			i = len(patch.Processes)
			index[proc] = i
			patch.Processes = append(patch.Processes, ProcessPatch{Name: proc})
		}
		pp := &patch.Processes[i]
		if pp.EnvOverlay == nil {
			pp.EnvOverlay = map[domain.EnvName]*ProcessEnvPatch{}
		}
		if pp.EnvOverlay[env] == nil {
			pp.EnvOverlay[env] = &ProcessEnvPatch{}
		}
		return pp.EnvOverlay[env]
	}
	for _, o := range spec.EnvOverlay.Replicas {
		count := o.Count
		envPatch(o.Process, o.EnvName).TargetReplicas = &count
	}
	for _, o := range spec.EnvOverlay.Autoscaling {
		a := o.Spec
		envPatch(o.Process, o.EnvName).Autoscaling = &a
	}
	return patch
}
