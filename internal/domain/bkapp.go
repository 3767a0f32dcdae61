package domain

import (
	"slices"

	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	APIVersionV1Alpha2 = "paas.bk.tencent.com/v1alpha2"
	APIVersionV1Alpha1 = "paas.bk.tencent.com/v1alpha1"
	DefaultAPIVersion  = APIVersionV1Alpha2

	KindBkApp = "BkApp"

	DefaultProcessName = "web"
	DefaultTargetPort  = int32(5000)

	// ScalingPolicyDefault 是目前唯一支持的扩缩容策略，指标固定为 CPU 使用率。
	ScalingPolicyDefault = "default"
	// MountEnvGlobal 表示挂载对所有环境生效。
	MountEnvGlobal       = "_global_"
)

// BkAppResource 是下发给集群的 BkApp 自定义资源，字段名与 CRD 保持一致。
type BkAppResource struct {
	APIVersion string         `json:"apiVersion"`
	Kind       string         `json:"kind"`
	Metadata   ObjectMetadata `json:"metadata"`
	Spec       BkAppSpec      `json:"spec"`
}

type ObjectMetadata struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type BkAppSpec struct {
	Build         *BkAppBuildConfig   `json:"build,omitempty"`
	Processes     []BkAppProcess      `json:"processes"`
	Hooks         *BkAppHooks         `json:"hooks,omitempty"`
	Configuration *BkAppConfiguration `json:"configuration,omitempty"`
	EnvOverlay    *EnvOverlay         `json:"envOverlay,omitempty"`
	Mounts        []MountSpec         `json:"mounts,omitempty"`
}

type BkAppBuildConfig struct {
	Image           string `json:"image,omitempty"`
	ImagePullPolicy string `json:"imagePullPolicy,omitempty"`
}

type BkAppProcess struct {
	Name         string           `json:"name"`
	Replicas     *int32           `json:"replicas,omitempty"`
	Image        string           `json:"image,omitempty"`
	Command      []string         `json:"command,omitempty"`
	Args         []string         `json:"args,omitempty"`
	TargetPort   *int32           `json:"targetPort,omitempty"`
	ResQuotaPlan string           `json:"resQuotaPlan,omitempty"`
	Autoscaling  *AutoscalingSpec `json:"autoscaling,omitempty"`
	Probes       *ProbeSet        `json:"probes,omitempty"`
}

type AutoscalingSpec struct {
	MinReplicas int32  `json:"minReplicas"`
	MaxReplicas int32  `json:"maxReplicas"`
	Policy      string `json:"policy"`
}

type ProbeSet struct {
	Liveness  *Probe `json:"liveness,omitempty"`
	Readiness *Probe `json:"readiness,omitempty"`
	Startup   *Probe `json:"startup,omitempty"`
}

type Probe struct {
	Exec                *ExecAction      `json:"exec,omitempty"`
	HTTPGet             *HTTPGetAction   `json:"httpGet,omitempty"`
	TCPSocket           *TCPSocketAction `json:"tcpSocket,omitempty"`
	InitialDelaySeconds int32            `json:"initialDelaySeconds,omitempty"`
	TimeoutSeconds      int32            `json:"timeoutSeconds,omitempty"`
	PeriodSeconds       int32            `json:"periodSeconds,omitempty"`
	SuccessThreshold    int32            `json:"successThreshold,omitempty"`
	FailureThreshold    int32            `json:"failureThreshold,omitempty"`
}

type ExecAction struct {
	Command []string `json:"command"`
}

type HTTPGetAction struct {
	Port   intstr.IntOrString `json:"port"`
	Path   string             `json:"path,omitempty"`
	Host   string             `json:"host,omitempty"`
	Scheme string             `json:"scheme,omitempty"`
}

type TCPSocketAction struct {
	Port intstr.IntOrString `json:"port"`
	Host string             `json:"host,omitempty"`
}

type BkAppHooks struct {
	PreRelease *HookSpec `json:"preRelease,omitempty"`
}

type HookSpec struct {
	Command []string `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

type BkAppConfiguration struct {
	Env []EnvVar `json:"env,omitempty"`
}

type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type EnvOverlay struct {
	Replicas     []ReplicasOverlay    `json:"replicas,omitempty"`
	Autoscaling  []AutoscalingOverlay `json:"autoscaling,omitempty"`
	EnvVariables []EnvVarOverlay      `json:"envVariables,omitempty"`
	Mounts       []MountOverlay       `json:"mounts,omitempty"`
}

type ReplicasOverlay struct {
	EnvName EnvName `json:"envName"`
	Process string  `json:"process"`
	Count   int32   `json:"count"`
}

type AutoscalingOverlay struct {
	EnvName EnvName         `json:"envName"`
	Process string          `json:"process"`
	Spec    AutoscalingSpec `json:"spec"`
}

type EnvVarOverlay struct {
	EnvName EnvName `json:"envName"`
	Name    string  `json:"name"`
	Value   string  `json:"value"`
}

type MountOverlay struct {
	EnvName   EnvName       `json:"envName"`
	Name      string        `json:"name"`
	MountPath string        `json:"mountPath"`
	Source    *VolumeSource `json:"source"`
}

type MountSpec struct {
	Name      string        `json:"name"`
	MountPath string        `json:"mountPath"`
	Source    *VolumeSource `json:"source"`
}

type VolumeSource struct {
	ConfigMap *ConfigMapRef `json:"configMap,omitempty"`
}

type ConfigMapRef struct {
	Name string `json:"name"`
}

// NewBkAppResourceOptions 初始化模型时的可选参数。
type NewBkAppResourceOptions struct {
	APIVersion string
	Command    []string
	Args       []string
	TargetPort *int32
}

// NewBkAppResource 生成只含一个 web 进程的初始模型。
// v1alpha1 没有 build 字段，镜像写在进程上。
func NewBkAppResource(name, image string, opts NewBkAppResourceOptions) *BkAppResource {
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	targetPort := opts.TargetPort
	if targetPort == nil {
		targetPort = ptr(DefaultTargetPort)
	}
	proc := BkAppProcess{
		Name:       DefaultProcessName,
		Replicas:   ptr(int32(1)),
		Command:    opts.Command,
		Args:       opts.Args,
		TargetPort: targetPort,
	}
	res := &BkAppResource{
		APIVersion: apiVersion,
		Kind:       KindBkApp,
		Metadata:   ObjectMetadata{Name: name},
	}
	if apiVersion == APIVersionV1Alpha1 {
		proc.Image = image
	} else {
		res.Spec.Build = &BkAppBuildConfig{Image: image}
	}
	res.Spec.Processes = []BkAppProcess{proc}
	return res
}

func (s *BkAppSpec) FindProcess(name string) *BkAppProcess {
	for i := range s.Processes {
		if s.Processes[i].Name == name {
			return &s.Processes[i]
		}
	}
	return nil
}

func (s *BkAppSpec) ProcessNames() []string {
	names := make([]string, 0, len(s.Processes))
	for _, p := range s.Processes {
		names = append(names, p.Name)
	}
	return names
}

func (s *BkAppSpec) overlay() *EnvOverlay {
	if s.EnvOverlay == nil {
		s.EnvOverlay = &EnvOverlay{}
	}
	return s.EnvOverlay
}

// OverlayReplicas 返回进程在指定环境的副本数覆盖值。
func (s *BkAppSpec) OverlayReplicas(proc string, env EnvName) (int32, bool) {
	if s.EnvOverlay == nil {
		return 0, false
	}
	for _, r := range s.EnvOverlay.Replicas {
		if r.Process == proc && r.EnvName == env {
			return r.Count, true
		}
	}
	return 0, false
}

func (s *BkAppSpec) SetOverlayReplicas(proc string, env EnvName, count int32) {
	o := s.overlay()
	for i := range o.Replicas {
		if o.Replicas[i].Process == proc && o.Replicas[i].EnvName == env {
			o.Replicas[i].Count = count
			return
		}
	}
	o.Replicas = append(o.Replicas, ReplicasOverlay{EnvName: env, Process: proc, Count: count})
}

// UnsetOverlayReplicas 删除进程在指定环境的副本数覆盖。
func (s *BkAppSpec) UnsetOverlayReplicas(proc string, env EnvName) {
	if s.EnvOverlay == nil {
		return
	}
	s.EnvOverlay.Replicas = slices.DeleteFunc(s.EnvOverlay.Replicas, func(r ReplicasOverlay) bool {
		return r.Process == proc && r.EnvName == env
	})
}

func (s *BkAppSpec) OverlayAutoscaling(proc string, env EnvName) (*AutoscalingSpec, bool) {
	if s.EnvOverlay == nil {
		return nil, false
	}
	for i := range s.EnvOverlay.Autoscaling {
		a := &s.EnvOverlay.Autoscaling[i]
		if a.Process == proc && a.EnvName == env {
			return &a.Spec, true
		}
	}
	return nil, false
}

// SetOverlayAutoscaling 设置环境级扩缩容配置，spec 为 nil 时删除该覆盖。
func (s *BkAppSpec) SetOverlayAutoscaling(proc string, env EnvName, spec *AutoscalingSpec) {
	o := s.overlay()
	idx := slices.IndexFunc(o.Autoscaling, func(a AutoscalingOverlay) bool {
		return a.Process == proc && a.EnvName == env
	})
	switch {
	case spec == nil && idx >= 0:
		o.Autoscaling = slices.Delete(o.Autoscaling, idx, idx+1)
	case spec == nil:
	case idx >= 0:
		o.Autoscaling[idx].Spec = *spec
	default:
		o.Autoscaling = append(o.Autoscaling, AutoscalingOverlay{EnvName: env, Process: proc, Spec: *spec})
	}
}

// EffectiveReplicas 计算某环境最终生效的副本数：环境覆盖优先于进程默认值。
func (s *BkAppSpec) EffectiveReplicas(proc string, env EnvName) int32 {
	if n, ok := s.OverlayReplicas(proc, env); ok {
		return n
	}
	if p := s.FindProcess(proc); p != nil && p.Replicas != nil {
		return *p.Replicas
	}
	return 1
}

func ptr[T any](v T) *T { return &v }
