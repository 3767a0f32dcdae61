package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidInput          = errors.New("invalid input")
	ErrCannotDelete          = errors.New("cannot delete")
	ErrNotInitialized        = errors.New("not initialized")
	ErrConfiguration         = errors.New("configuration error")
	ErrUnsupportedSourceType = errors.New("unsupported source type")
	ErrFieldConflict         = errors.New("field conflict")

	ErrAppNotFound         = fmt.Errorf("application %w", ErrNotFound)
	ErrModuleNotFound      = fmt.Errorf("module %w", ErrNotFound)
	ErrRevisionNotFound    = fmt.Errorf("revision %w", ErrNotFound)
	ErrDeployNotFound      = fmt.Errorf("deploy %w", ErrNotFound)
	ErrMountNotFound       = fmt.Errorf("mount %w", ErrNotFound)
	ErrMountSourceNotFound = fmt.Errorf("mount source %w", ErrNotFound)
	ErrIngressNotFound     = fmt.Errorf("ingress %w", ErrNotFound)
	ErrDomainNotFound      = fmt.Errorf("domain %w", ErrNotFound)
	ErrCertNotFound        = fmt.Errorf("cert %w", ErrNotFound)

	ErrAppModelNotInitialized = fmt.Errorf("app model %w", ErrNotInitialized)

	ErrEmptyAppIngress            = fmt.Errorf("%w: app ingress has no domains", ErrConfiguration)
	ErrDefaultServiceNameRequired = fmt.Errorf("%w: default service name is required", ErrConfiguration)
	ErrValidCertNotFound          = fmt.Errorf("%w: no valid cert found", ErrConfiguration)
)

// FieldError 描述单个字段的校验失败。
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationError 汇总一次校验中的全部字段错误，每个字段一行。
type ValidationError struct {
	Errors []FieldError
}

func NewValidationError(errs ...FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

func (e *ValidationError) Add(path, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// OrNil 在没有任何字段错误时返回 nil。
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		lines = append(lines, fe.String())
	}
	return "invalid input:\n" + strings.Join(lines, "\n")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// FieldConflictError 在拒绝策略下报告被更高优先级管理者持有的字段。
type FieldConflictError struct {
	Manager   FieldMgrName
	Conflicts []FieldOwnership
}

func (e *FieldConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (owned by %s)", c.Field, c.Manager))
	}
	return fmt.Sprintf("field conflict: manager %s cannot modify %s", e.Manager, strings.Join(parts, ", "))
}

func (e *FieldConflictError) Unwrap() error { return ErrFieldConflict }
