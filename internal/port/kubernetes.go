package port

import (
	"context"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
)

// IngressStore 按 (namespace, name) 读写集群中的 Ingress。
// Get 与 Delete 在对象不存在时返回 domain.ErrIngressNotFound。
type IngressStore interface {
	Get(ctx context.Context, namespace, name string) (*domain.ProcessIngress, error)
	List(ctx context.Context, namespace string, labels map[string]string) ([]*domain.ProcessIngress, error)
	Create(ctx context.Context, ing *domain.ProcessIngress) error
	Update(ctx context.Context, ing *domain.ProcessIngress) error
	Delete(ctx context.Context, namespace, name string) error
}

// SecretStore 维护 Ingress TLS 与挂载所需的集群对象。
type SecretStore interface {
	EnsureTLSSecret(ctx context.Context, namespace, name, cert, key string) error
	EnsureConfigMap(ctx context.Context, namespace, name string, data map[string]string) error
}

// BkAppStatusCallback 在 BkApp 状态条件变化时被调用。
type BkAppStatusCallback func(ctx context.Context, deployID string, cond domain.Condition)

// BkAppApplier 负责下发 BkApp 资源并监听其状态。
type BkAppApplier interface {
	Apply(ctx context.Context, namespace string, res *domain.BkAppResource) error
	Delete(ctx context.Context, namespace, name string) error
	// Watch 启动 Informer 监听，状态变更时调用 callback，直到 ctx 结束。
	Watch(ctx context.Context, callback BkAppStatusCallback) error
}
