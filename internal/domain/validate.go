package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// k8sNameRegex 匹配合法的 K8s 资源名称：小写字母开头，只含小写字母、数字和连字符，长度 2-63。
var k8sNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,61}[a-z0-9]$`)

// ValidateK8sName 校验名称是否可安全用作 K8s 资源名。
func ValidateK8sName(name string) error {
	if !k8sNameRegex.MatchString(name) {
		return fmt.Errorf("%w: name %q is not a valid k8s resource name", ErrInvalidInput, name)
	}
	return nil
}

// appCodeRegex 应用 code 允许下划线，生成资源名时再做替换。
var appCodeRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

// ValidateAppCode 校验应用 code。
func ValidateAppCode(code string) error {
	if !appCodeRegex.MatchString(code) {
		return fmt.Errorf("%w: app code %q must match %s", ErrInvalidInput, code, appCodeRegex)
	}
	return nil
}

// moduleNameRegex 模块名用在资源名中段，长度限制更严。
var moduleNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,15}$`)

func ValidateModuleName(name string) error {
	if !moduleNameRegex.MatchString(name) {
		return fmt.Errorf("%w: module name %q must match %s", ErrInvalidInput, name, moduleNameRegex)
	}
	return nil
}

var hostLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateHost 校验域名，每一段都需满足 RFC 1123 label 规则。
func ValidateHost(host string) error {
	if host == "" || len(host) > 253 {
		return fmt.Errorf("%w: host %q has invalid length", ErrInvalidInput, host)
	}
	for _, label := range strings.Split(host, ".") {
		if !hostLabelRegex.MatchString(label) {
			return fmt.Errorf("%w: host %q is not a valid domain name", ErrInvalidInput, host)
		}
	}
	return nil
}

// ValidatePathPrefix 路径前缀必须以 "/" 开头并以 "/" 结尾。
func ValidatePathPrefix(prefix string) error {
	if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("%w: path prefix %q must start and end with '/'", ErrInvalidInput, prefix)
	}
	if strings.Contains(prefix, "..") || strings.Contains(prefix, "//") {
		return fmt.Errorf("%w: path prefix %q is malformed", ErrInvalidInput, prefix)
	}
	return nil
}

// ValidateMountPath 挂载路径必须是绝对路径且不能为根目录。
func ValidateMountPath(p string) error {
	if !strings.HasPrefix(p, "/") || p == "/" {
		return fmt.Errorf("%w: mount path %q must be an absolute non-root path", ErrInvalidInput, p)
	}
	if strings.Contains(p, "..") {
		return fmt.Errorf("%w: mount path %q must not contain '..'", ErrInvalidInput, p)
	}
	return nil
}
