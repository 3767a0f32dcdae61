package domain

import (
	"fmt"
	"time"
)

// MountEnvName 挂载生效的环境，除 stag/prod 外还可作用于全部环境。
type MountEnvName string

const MountEnvAll MountEnvName = MountEnvGlobal

func ParseMountEnvName(s string) (MountEnvName, error) {
	switch s {
	case string(EnvStag), string(EnvProd), MountEnvGlobal:
		return MountEnvName(s), nil
	}
	return "", fmt.Errorf("%w: unknown mount environment %q", ErrInvalidInput, s)
}

// AppliesTo 判断挂载是否对目标环境生效。
func (e MountEnvName) AppliesTo(env EnvName) bool {
	return e == MountEnvAll || string(e) == string(env)
}

type VolumeSourceType string

const VolumeSourceConfigMap VolumeSourceType = "ConfigMap"

// Mount 声明一个挂载路径及其引用的配置源，(module, mount_path, environment) 唯一。
type Mount struct {
	ID           string           `json:"id"`
	ModuleID     string           `json:"module_id"`
	Environment  MountEnvName     `json:"environment_name"`
	Name         string           `json:"name"`
	MountPath    string           `json:"mount_path"`
	SourceType   VolumeSourceType `json:"source_type"`
	SourceConfig VolumeSource     `json:"source_config"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SourceName 返回配置源名称，配置缺失时为空。
func (m *Mount) SourceName() string {
	if m.SourceType == VolumeSourceConfigMap && m.SourceConfig.ConfigMap != nil {
		return m.SourceConfig.ConfigMap.Name
	}
	return ""
}

// ToSpec 转换为 BkApp spec.mounts 中的条目。
func (m *Mount) ToSpec() MountSpec {
	src := m.SourceConfig
	return MountSpec{Name: m.Name, MountPath: m.MountPath, Source: &src}
}

// ConfigMapSource 是 ConfigMap 类型挂载的数据来源，按 (module, environment, name) 定位。
type ConfigMapSource struct {
	ID          string            `json:"id"`
	ModuleID    string            `json:"module_id"`
	Environment MountEnvName      `json:"environment_name"`
	Name        string            `json:"name"`
	Data        map[string]string `json:"data"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
