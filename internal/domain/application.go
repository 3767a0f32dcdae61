package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultModuleName 是每个应用自带的主模块名称。
const DefaultModuleName = "default"

// underscoreToken 替换资源名中的下划线，K8s 命名不允许出现 "_"。
const underscoreToken = "0us0"

type EnvName string

const (
	EnvStag EnvName = "stag"
	EnvProd EnvName = "prod"
)

// AllEnvs 按固定顺序返回全部部署环境。
func AllEnvs() []EnvName { return []EnvName{EnvStag, EnvProd} }

func ParseEnvName(s string) (EnvName, error) {
	switch EnvName(s) {
	case EnvStag, EnvProd:
		return EnvName(s), nil
	}
	return "", fmt.Errorf("%w: unknown environment %q", ErrInvalidInput, s)
}

// Application 是平台上的一个应用，拥有一个或多个模块。
type Application struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Module 是应用下可独立部署的单元，每个模块对应一份 BkApp 模型。
type Module struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Name          string    `json:"name"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
}

// ModuleEnv 是模块在某个环境下的部署目标。
type ModuleEnv struct {
	Application *Application
	Module      *Module
	Environment EnvName
}

// GenerateBkAppName 由应用 code 与模块名推导 BkApp 资源名。
func GenerateBkAppName(appCode, moduleName string) string {
	name := appCode
	if moduleName != DefaultModuleName {
		name = fmt.Sprintf("%s-m-%s", appCode, moduleName)
	}
	return strings.ReplaceAll(name, "_", underscoreToken)
}

// BkAppName 返回模块对应的 BkApp 资源名。
func (e ModuleEnv) BkAppName() string {
	return GenerateBkAppName(e.Application.Code, e.Module.Name)
}

// EngineAppName 是该环境下的引擎应用名，用于标记集群内的资源归属。
func (e ModuleEnv) EngineAppName() string {
	name := fmt.Sprintf("bkapp-%s-%s", e.Application.Code, e.Environment)
	if e.Module.Name != DefaultModuleName {
		name = fmt.Sprintf("bkapp-%s-m-%s-%s", e.Application.Code, e.Module.Name, e.Environment)
	}
	return strings.ReplaceAll(name, "_", underscoreToken)
}

// Namespace 同一应用同一环境下的所有模块共享一个命名空间。
func (e ModuleEnv) Namespace() string {
	return strings.ReplaceAll(fmt.Sprintf("bkapp-%s-%s", e.Application.Code, e.Environment), "_", underscoreToken)
}

// ProcessServiceName 是进程对应的 Service 名称，Ingress 默认指向 web 进程。
func (e ModuleEnv) ProcessServiceName(proc string) string {
	return e.EngineAppName() + "--" + proc
}

func (e ModuleEnv) String() string {
	return fmt.Sprintf("%s/%s/%s", e.Application.Code, e.Module.Name, e.Environment)
}
