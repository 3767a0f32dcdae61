package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/metrics"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	slogctx "github.com/veqryn/slog-context"
)

// IngressConfig 是生成 Ingress 时的集群相关参数。
type IngressConfig struct {
	AppIngressClass          string
	CustomDomainIngressClass string
	ServicePortName          string
}

// tlsSecret 是待写入命名空间的证书，在执行阶段才真正创建。
type tlsSecret struct {
	name string
	cert string
	key  string
}

// IngressDomainFactory 为域名解析证书并生成 Ingress 条目。
type IngressDomainFactory struct {
	certs port.CertRepository
}

func NewIngressDomainFactory(certs port.CertRepository) *IngressDomainFactory {
	return &IngressDomainFactory{certs: certs}
}

// Create 依次尝试直接关联的证书与共享证书。都没有时，raiseOnNoCert 为 true 则报错，
// 否则关闭该域名的 TLS。
func (f *IngressDomainFactory) Create(ctx context.Context, d domain.DomainWithCert, raiseOnNoCert bool) (domain.IngressDomain, *tlsSecret, error) {
	prefix := d.PathPrefix
	if prefix == "" {
		prefix = domain.DefaultPathPrefix
	}
	out := domain.IngressDomain{Host: d.Host, PathPrefixList: []string{prefix}}
	if !d.HTTPSEnabled {
		return out, nil, nil
	}

	secret, err := f.findSecret(ctx, d)
	if err != nil {
		return out, nil, err
	}
	if secret == nil {
		if raiseOnNoCert {
			return out, nil, fmt.Errorf("host %s: %w", d.Host, domain.ErrValidCertNotFound)
		}
		slogctx.FromCtx(ctx).Warn("no valid cert found, tls disabled", "host", d.Host)
		return out, nil, nil
	}
	out.TLSEnabled = true
	out.TLSSecretName = secret.name
	return out, secret, nil
}

func (f *IngressDomainFactory) findSecret(ctx context.Context, d domain.DomainWithCert) (*tlsSecret, error) {
	if d.CertID != "" {
		c, err := f.certs.FindCert(ctx, d.CertID)
		switch {
		case err == nil:
			return &tlsSecret{name: c.SecretName(), cert: c.Cert, key: c.Key}, nil
		case !errors.Is(err, domain.ErrCertNotFound):
			return nil, err
		}
	}
	if d.SharedCertID != "" {
		c, err := f.certs.FindSharedCert(ctx, d.SharedCertID)
		switch {
		case err == nil:
			if _, ok := c.Match(d.Host); ok {
				return &tlsSecret{name: c.SecretName(), cert: c.Cert, key: c.Key}, nil
			}
		case !errors.Is(err, domain.ErrCertNotFound):
			return nil, err
		}
	}
	shared, err := f.certs.ListSharedCerts(ctx)
	if err != nil {
		return nil, err
	}
	if c := domain.PickSharedCert(shared, d.Host); c != nil {
		return &tlsSecret{name: c.SecretName(), cert: c.Cert, key: c.Key}, nil
	}
	return nil, nil
}

type ingressAction string

const (
	ingressActionNone   ingressAction = "noop"
	ingressActionCreate ingressAction = "created"
	ingressActionUpdate ingressAction = "updated"
	ingressActionDelete ingressAction = "deleted"
)

// ingressPlan 是一次同步计算出的变更。计算阶段只读，执行阶段才写集群，
// 因此配置错误不会留下半完成的 Ingress。
type ingressPlan struct {
	kind      domain.IngressKind
	namespace string
	name      string
	action    ingressAction
	ingress   *domain.ProcessIngress
	secrets   []tlsSecret

	// previous 是计划执行前集群中的对象，不存在时为 nil，回滚时使用。
	previous *domain.ProcessIngress
}

// IngressReconciler 持有生成各类 Ingress 管理器所需的依赖。
type IngressReconciler struct {
	appDomains port.AppDomainRepository
	ingresses  port.IngressStore
	secrets    port.SecretStore
	factory    *IngressDomainFactory
	cfg        IngressConfig
}

func NewIngressReconciler(
	appDomains port.AppDomainRepository,
	ingresses port.IngressStore,
	secrets port.SecretStore,
	factory *IngressDomainFactory,
	cfg IngressConfig,
) *IngressReconciler {
	return &IngressReconciler{appDomains: appDomains, ingresses: ingresses, secrets: secrets, factory: factory, cfg: cfg}
}

// List 返回模块环境在集群中的全部 Ingress，包括子域名与独立域名两类。
func (r *IngressReconciler) List(ctx context.Context, menv domain.ModuleEnv) ([]*domain.ProcessIngress, error) {
	list, err := r.ingresses.List(ctx, menv.Namespace(), map[string]string{domain.LabelEngineApp: menv.EngineAppName()})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b *domain.ProcessIngress) int { return cmp.Compare(a.Name, b.Name) })
	return list, nil
}

func (r *IngressReconciler) Subdomain(menv domain.ModuleEnv) *SubdomainAppIngressMgr {
	return &SubdomainAppIngressMgr{r: r, menv: menv}
}

func (r *IngressReconciler) CustomDomain(menv domain.ModuleEnv, d *domain.Domain) *CustomDomainIngressMgr {
	return &CustomDomainIngressMgr{r: r, menv: menv, domain: d}
}

// getExisting 不存在时返回 nil。
func (r *IngressReconciler) getExisting(ctx context.Context, namespace, name string) (*domain.ProcessIngress, error) {
	ing, err := r.ingresses.Get(ctx, namespace, name)
	if errors.Is(err, domain.ErrIngressNotFound) {
		return nil, nil
	}
	return ing, err
}

// resolveBackend 已存在的 Ingress 保留原后端，不存在时必须提供默认服务名。
func (r *IngressReconciler) resolveBackend(existing *domain.ProcessIngress, defaultServiceName string) (string, string, error) {
	if existing != nil && existing.ServiceName != "" {
		portName := existing.ServicePortName
		if portName == "" {
			portName = r.cfg.ServicePortName
		}
		return existing.ServiceName, portName, nil
	}
	if defaultServiceName == "" {
		return "", "", domain.ErrDefaultServiceNameRequired
	}
	return defaultServiceName, r.cfg.ServicePortName, nil
}

func (r *IngressReconciler) apply(ctx context.Context, p *ingressPlan) error {
	err := r.doApply(ctx, p)
	result := string(p.action)
	if err != nil {
		result = "error"
	}
	metrics.IngressSyncs.WithLabelValues(string(p.kind), result).Inc()
	if err != nil {
		return fmt.Errorf("sync ingress %s/%s: %w", p.namespace, p.name, err)
	}
	if p.action != ingressActionNone {
		slogctx.FromCtx(ctx).Info("ingress synced", "namespace", p.namespace, "name", p.name, "action", p.action)
	}
	return nil
}

func (r *IngressReconciler) doApply(ctx context.Context, p *ingressPlan) error {
	for _, s := range p.secrets {
		if err := r.secrets.EnsureTLSSecret(ctx, p.namespace, s.name, s.cert, s.key); err != nil {
			return err
		}
	}
	switch p.action {
	case ingressActionCreate:
		return r.ingresses.Create(ctx, p.ingress)
	case ingressActionUpdate:
		return r.ingresses.Update(ctx, p.ingress)
	case ingressActionDelete:
		if err := r.ingresses.Delete(ctx, p.namespace, p.name); err != nil && !errors.Is(err, domain.ErrIngressNotFound) {
			return err
		}
	}
	return nil
}

// applyAll 按顺序执行多个计划。任一失败时，把已执行的计划按相反顺序恢复原状。
func (r *IngressReconciler) applyAll(ctx context.Context, plans []*ingressPlan) error {
	for i, p := range plans {
		if err := r.apply(ctx, p); err != nil {
			r.rollback(ctx, plans[:i])
			return err
		}
	}
	return nil
}

func (r *IngressReconciler) rollback(ctx context.Context, applied []*ingressPlan) {
	logger := slogctx.FromCtx(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		p := applied[i]
		var err error
		switch {
		case p.action == ingressActionCreate:
			err = r.ingresses.Delete(ctx, p.namespace, p.name)
		case p.action == ingressActionUpdate && p.previous != nil:
			err = r.ingresses.Update(ctx, p.previous)
		case p.action == ingressActionDelete && p.previous != nil:
			err = r.ingresses.Create(ctx, p.previous)
		default:
			continue
		}
		if err != nil {
			logger.Error("ingress rollback failed", "namespace", p.namespace, "name", p.name, "error", err)
			continue
		}
		logger.Warn("ingress rolled back", "namespace", p.namespace, "name", p.name, "action", p.action)
	}
}

// deleteIngress 对象不存在时视为成功。
func (r *IngressReconciler) deleteIngress(ctx context.Context, kind domain.IngressKind, namespace, name string) error {
	return r.apply(ctx, &ingressPlan{kind: kind, namespace: namespace, name: name, action: ingressActionDelete})
}

// SyncOptions 控制子域名 Ingress 的同步行为。
type SyncOptions struct {
	// DefaultServiceName 在 Ingress 尚不存在时作为后端服务。
	DefaultServiceName string
	RaiseOnNoCert      bool
	// AllowEmpty 没有任何域名且 Ingress 不存在时不报错，直接跳过。
	AllowEmpty         bool
}

// SubdomainAppIngressMgr 把一个模块环境下的全部 AppDomain 汇总到同一个 Ingress。
type SubdomainAppIngressMgr struct {
	r    *IngressReconciler
	menv domain.ModuleEnv
}

func (m *SubdomainAppIngressMgr) IngressName() string {
	return m.menv.EngineAppName() + "-subdomains"
}

// ListDesiredDomains 按 host 排序返回当前绑定在该环境上的域名。独立域名有自己的 Ingress，不在此列。
func (m *SubdomainAppIngressMgr) ListDesiredDomains(ctx context.Context) ([]domain.DomainWithCert, error) {
	records, err := m.r.appDomains.FindByModuleEnv(ctx, m.menv.Module.ID, m.menv.Environment)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DomainWithCert, 0, len(records))
	for _, d := range records {
		if !d.Source.Reassignable() {
			continue
		}
		out = append(out, domain.DomainWithCert{
			Host:         d.Host,
			PathPrefix:   d.PathPrefix,
			HTTPSEnabled: d.HTTPSEnabled,
			CertID:       d.CertID,
			SharedCertID: d.SharedCertID,
		})
	}
	slices.SortFunc(out, func(a, b domain.DomainWithCert) int { return cmp.Compare(a.Host, b.Host) })
	return out, nil
}

// Sync 让 Ingress 与当前域名记录一致。域名为空时删除已有的 Ingress。
func (m *SubdomainAppIngressMgr) Sync(ctx context.Context, opts SyncOptions) error {
	p, err := m.plan(ctx, opts)
	if err != nil {
		return err
	}
	return m.r.apply(ctx, p)
}

func (m *SubdomainAppIngressMgr) plan(ctx context.Context, opts SyncOptions) (*ingressPlan, error) {
	ns, name := m.menv.Namespace(), m.IngressName()
	p := &ingressPlan{kind: domain.IngressKindSubdomain, namespace: ns, name: name, action: ingressActionNone}

	desired, err := m.ListDesiredDomains(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := m.r.getExisting(ctx, ns, name)
	if err != nil {
		return nil, err
	}
	p.previous = existing
	if len(desired) == 0 {
		switch {
		case existing != nil:
			p.action = ingressActionDelete
			return p, nil
		case opts.AllowEmpty:
			return p, nil
		default:
			return nil, fmt.Errorf("%s: %w", m.menv, domain.ErrEmptyAppIngress)
		}
	}

	serviceName, portName, err := m.r.resolveBackend(existing, opts.DefaultServiceName)
	if err != nil {
		return nil, err
	}
	domains := make([]domain.IngressDomain, 0, len(desired))
	for _, d := range desired {
		ing, secret, err := m.r.factory.Create(ctx, d, opts.RaiseOnNoCert)
		if err != nil {
			return nil, err
		}
		domains = append(domains, ing)
		if secret != nil {
			p.secrets = append(p.secrets, *secret)
		}
	}
	p.ingress = &domain.ProcessIngress{
		Name:            name,
		Namespace:       ns,
		Domains:         domains,
		ServiceName:     serviceName,
		ServicePortName: portName,
		Annotations:     map[string]string{domain.AnnotationIngressClass: m.r.cfg.AppIngressClass},
		Labels: map[string]string{
			domain.LabelEngineApp:   m.menv.EngineAppName(),
			domain.LabelIngressKind: string(domain.IngressKindSubdomain),
		},
	}
	p.action = ingressActionCreate
	if existing != nil {
		p.action = ingressActionUpdate
	}
	return p, nil
}

// Delete 删除 Ingress，不存在时不报错。
func (m *SubdomainAppIngressMgr) Delete(ctx context.Context) error {
	return m.r.deleteIngress(ctx, domain.IngressKindSubdomain, m.menv.Namespace(), m.IngressName())
}

// UpdateTarget 把已有 Ingress 的后端切换到新的服务与端口。
func (m *SubdomainAppIngressMgr) UpdateTarget(ctx context.Context, serviceName, portName string) error {
	ing, err := m.r.ingresses.Get(ctx, m.menv.Namespace(), m.IngressName())
	if err != nil {
		return err
	}
	ing.ServiceName = serviceName
	if portName != "" {
		ing.ServicePortName = portName
	}
	return m.r.apply(ctx, &ingressPlan{
		kind:      domain.IngressKindSubdomain,
		namespace: ing.Namespace,
		name:      ing.Name,
		action:    ingressActionUpdate,
		ingress:   ing,
	})
}

// CustomDomainIngressMgr 为单个独立域名维护专属的 Ingress。
type CustomDomainIngressMgr struct {
	r      *IngressReconciler
	menv   domain.ModuleEnv
	domain *domain.Domain
}

// MakeIngressName 非根路径前缀的域名带上记录 ID，避免同一域名的多条记录重名。
func (m *CustomDomainIngressMgr) MakeIngressName() string {
	if m.domain.HasRootPathPrefix() {
		return "custom-" + m.domain.Name
	}
	return fmt.Sprintf("custom-%s-%s", m.domain.Name, m.domain.ID)
}

func (m *CustomDomainIngressMgr) ingressClass() string {
	if m.r.cfg.CustomDomainIngressClass != "" {
		return m.r.cfg.CustomDomainIngressClass
	}
	return m.r.cfg.AppIngressClass
}

// Sync 证书缺失时关闭 TLS 而不是报错。
func (m *CustomDomainIngressMgr) Sync(ctx context.Context, defaultServiceName string) error {
	p, err := m.plan(ctx, defaultServiceName)
	if err != nil {
		return err
	}
	return m.r.apply(ctx, p)
}

func (m *CustomDomainIngressMgr) plan(ctx context.Context, defaultServiceName string) (*ingressPlan, error) {
	ns, name := m.menv.Namespace(), m.MakeIngressName()
	p := &ingressPlan{kind: domain.IngressKindCustomDomain, namespace: ns, name: name}

	existing, err := m.r.getExisting(ctx, ns, name)
	if err != nil {
		return nil, err
	}
	p.previous = existing
	serviceName, portName, err := m.r.resolveBackend(existing, defaultServiceName)
	if err != nil {
		return nil, err
	}
	d := m.domain
	ing, secret, err := m.r.factory.Create(ctx, domain.DomainWithCert{
		Host:         d.Name,
		PathPrefix:   d.PathPrefix,
		HTTPSEnabled: d.HTTPSEnabled,
		CertID:       d.CertID,
	}, false)
	if err != nil {
		return nil, err
	}
	if secret != nil {
		p.secrets = append(p.secrets, *secret)
	}
	p.ingress = &domain.ProcessIngress{
		Name:            name,
		Namespace:       ns,
		Domains:         []domain.IngressDomain{ing},
		ServiceName:     serviceName,
		ServicePortName: portName,
		RewriteToRoot:   !d.HasRootPathPrefix(),
		Annotations:     map[string]string{domain.AnnotationIngressClass: m.ingressClass()},
		Labels: map[string]string{
			domain.LabelEngineApp:   m.menv.EngineAppName(),
			domain.LabelIngressKind: string(domain.IngressKindCustomDomain),
		},
	}
	p.action = ingressActionCreate
	if existing != nil {
		p.action = ingressActionUpdate
	}
	return p, nil
}

func (m *CustomDomainIngressMgr) Delete(ctx context.Context) error {
	return m.r.deleteIngress(ctx, domain.IngressKindCustomDomain, m.menv.Namespace(), m.MakeIngressName())
}
