package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"
)

// AutoGenDomain 是一次分配请求中的目标域名。
type AutoGenDomain struct {
	Host         string `json:"host"`
	HTTPSEnabled bool   `json:"https_enabled"`
}

// DomainService 维护全局唯一的域名表，并把变更同步到集群 Ingress。
type DomainService struct {
	apps       *ApplicationService
	appDomains port.AppDomainRepository
	domains    port.DomainRepository
	ingress    *IngressReconciler
	tx         port.TxManager
	roots      []string
	https      bool
}

type DomainServiceOptions struct {
	SubDomainRoots []string
	SubDomainHTTPS bool
}

func NewDomainService(
	apps *ApplicationService,
	appDomains port.AppDomainRepository,
	domains port.DomainRepository,
	ingress *IngressReconciler,
	tx port.TxManager,
	opts DomainServiceOptions,
) *DomainService {
	return &DomainService{
		apps:       apps,
		appDomains: appDomains,
		domains:    domains,
		ingress:    ingress,
		tx:         tx,
		roots:      opts.SubDomainRoots,
		https:      opts.SubDomainHTTPS,
	}
}

type moduleEnvKey struct {
	moduleID string
	env      domain.EnvName
}

// AssignCustomHosts 让目标环境恰好绑定 hosts 中的域名：
// 已被其他应用占用且可重新分配的域名转移过来，本环境不再需要的域名删除，
// 随后同步全部原持有者与目标环境的 Ingress。所有计算先于任何集群写入完成。
func (s *DomainService) AssignCustomHosts(ctx context.Context, code, module string, env domain.EnvName, hosts []AutoGenDomain, defaultServiceName string, raiseOnNoCert bool) ([]*domain.AppDomain, error) {
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return nil, err
	}
	desired, err := normalizeHosts(hosts)
	if err != nil {
		return nil, err
	}
	logger := slogctx.FromCtx(ctx).With("target", menv.String())

	var out []*domain.AppDomain
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		formerOwners, err := s.assignRecords(ctx, menv, desired)
		if err != nil {
			return err
		}

		target, err := s.ingress.Subdomain(menv).plan(ctx, SyncOptions{
			DefaultServiceName: defaultServiceName,
			RaiseOnNoCert:      raiseOnNoCert,
		})
		if err != nil {
			return err
		}
		var others []*ingressPlan
		for _, k := range formerOwners {
			owner, err := s.apps.ModuleEnvByID(ctx, k.moduleID, k.env)
			if err != nil {
				return err
			}
			p, err := s.ingress.Subdomain(owner).plan(ctx, SyncOptions{
				DefaultServiceName: owner.ProcessServiceName(domain.DefaultProcessName),
				AllowEmpty:         true,
			})
			if err != nil {
				return fmt.Errorf("plan ingress for former owner %s: %w", owner, err)
			}
			others = append(others, p)
		}

		// 先摘除原持有者的域名再更新目标，任一失败都会恢复已写入的 Ingress。
		if err := s.ingress.applyAll(ctx, append(others, target)); err != nil {
			return err
		}

		out, err = s.appDomains.FindByModuleEnv(ctx, menv.Module.ID, env)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("custom hosts assigned", "hosts", len(desired))
	return out, nil
}

// assignRecords 更新域名表，返回因转移而失去域名的模块环境。
func (s *DomainService) assignRecords(ctx context.Context, menv domain.ModuleEnv, desired []AutoGenDomain) ([]moduleEnvKey, error) {
	hostList := make([]string, 0, len(desired))
	for _, d := range desired {
		hostList = append(hostList, d.Host)
	}
	existing, err := s.appDomains.FindByHosts(ctx, hostList)
	if err != nil {
		return nil, err
	}
	byHost := make(map[string]*domain.AppDomain, len(existing))
	for _, d := range existing {
		byHost[d.Host] = d
	}

	now := time.Now()
	var formerOwners []moduleEnvKey
	for _, want := range desired {
		cur, ok := byHost[want.Host]
		if !ok {
			rec := &domain.AppDomain{
				ID:            uuid.NewString(),
				Host:          want.Host,
				PathPrefix:    domain.DefaultPathPrefix,
				HTTPSEnabled:  want.HTTPSEnabled,
				Source:        domain.AppDomainSourceAutoGen,
				ApplicationID: menv.Application.ID,
				ModuleID:      menv.Module.ID,
				Environment:   menv.Environment,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.appDomains.Create(ctx, rec); err != nil {
				return nil, err
			}
			continue
		}
		if !cur.Source.Reassignable() {
			return nil, fmt.Errorf("host %s is bound as an independent domain: %w", want.Host, domain.ErrAlreadyExists)
		}
		owned := cur.BelongsTo(menv.Module.ID, menv.Environment)
		if owned && cur.HTTPSEnabled == want.HTTPSEnabled {
			continue
		}
		if !owned {
			key := moduleEnvKey{moduleID: cur.ModuleID, env: cur.Environment}
			if !slices.Contains(formerOwners, key) {
				formerOwners = append(formerOwners, key)
			}
		}
		next := *cur
		next.ApplicationID = menv.Application.ID
		next.ModuleID = menv.Module.ID
		next.Environment = menv.Environment
		next.HTTPSEnabled = want.HTTPSEnabled
		next.UpdatedAt = now
		n, err := s.appDomains.Transfer(ctx, &next)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("host %s changed concurrently: %w", want.Host, domain.ErrAlreadyExists)
		}
	}

	current, err := s.appDomains.FindByModuleEnv(ctx, menv.Module.ID, menv.Environment)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, d := range current {
		if d.Source.Reassignable() && !slices.ContainsFunc(desired, func(w AutoGenDomain) bool { return w.Host == d.Host }) {
			stale = append(stale, d.ID)
		}
	}
	if len(stale) > 0 {
		if err := s.appDomains.DeleteByIDs(ctx, stale); err != nil {
			return nil, err
		}
	}
	return formerOwners, nil
}

// normalizeHosts 统一小写并去重，同名域名以最后一次出现为准。
func normalizeHosts(hosts []AutoGenDomain) ([]AutoGenDomain, error) {
	var out []AutoGenDomain
	for _, h := range hosts {
		h.Host = strings.ToLower(strings.TrimSpace(h.Host))
		if err := domain.ValidateHost(h.Host); err != nil {
			return nil, err
		}
		if i := slices.IndexFunc(out, func(o AutoGenDomain) bool { return o.Host == h.Host }); i >= 0 {
			out[i] = h
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// SubdomainHosts 按平台规则生成模块环境的子域名，每个根域名一个。
func SubdomainHosts(menv domain.ModuleEnv, roots []string) []string {
	label := menv.Application.Code
	if menv.Module.Name != domain.DefaultModuleName {
		label = menv.Module.Name + "-dot-" + label
	}
	if menv.Environment == domain.EnvStag {
		label = "stag-dot-" + label
	}
	label = strings.ReplaceAll(label, "_", "0us0")
	hosts := make([]string, 0, len(roots))
	for _, root := range roots {
		if root = strings.Trim(strings.TrimSpace(root), "."); root != "" {
			hosts = append(hosts, label+"."+root)
		}
	}
	return hosts
}

// SyncAutoGenDomains 按配置的根域名重新生成子域名，保留用户自定义的域名。
func (s *DomainService) SyncAutoGenDomains(ctx context.Context, code, module string, env domain.EnvName, serviceName string) ([]*domain.AppDomain, error) {
	if len(s.roots) == 0 {
		return nil, fmt.Errorf("%w: no sub domain roots configured", domain.ErrConfiguration)
	}
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return nil, err
	}
	var desired []AutoGenDomain
	for _, h := range SubdomainHosts(menv, s.roots) {
		desired = append(desired, AutoGenDomain{Host: h, HTTPSEnabled: s.https})
	}
	current, err := s.appDomains.FindByModuleEnv(ctx, menv.Module.ID, env)
	if err != nil {
		return nil, err
	}
	for _, d := range current {
		if d.Source == domain.AppDomainSourceCustom {
			desired = append(desired, AutoGenDomain{Host: d.Host, HTTPSEnabled: d.HTTPSEnabled})
		}
	}
	if serviceName == "" {
		serviceName = menv.ProcessServiceName(domain.DefaultProcessName)
	}
	return s.AssignCustomHosts(ctx, code, module, env, desired, serviceName, false)
}

func (s *DomainService) ListAppDomains(ctx context.Context, code, module string, env domain.EnvName) ([]*domain.AppDomain, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	return s.appDomains.FindByModuleEnv(ctx, mod.ID, env)
}

type CreateDomainRequest struct {
	Name         string `json:"name"`
	PathPrefix   string `json:"path_prefix"`
	HTTPSEnabled bool   `json:"https_enabled"`
	CertID       string `json:"cert_id"`
}

// CreateCustomDomain 新建独立域名并同步其 Ingress，同步失败时记录不会保留。
func (s *DomainService) CreateCustomDomain(ctx context.Context, code, module string, env domain.EnvName, req CreateDomainRequest) (*domain.Domain, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if err := domain.ValidateHost(name); err != nil {
		return nil, err
	}
	prefix := req.PathPrefix
	if prefix == "" {
		prefix = domain.DefaultPathPrefix
	}
	if err := domain.ValidatePathPrefix(prefix); err != nil {
		return nil, err
	}
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	d := &domain.Domain{
		ID:            uuid.NewString(),
		Name:          name,
		PathPrefix:    prefix,
		HTTPSEnabled:  req.HTTPSEnabled,
		ApplicationID: menv.Application.ID,
		ModuleID:      menv.Module.ID,
		Environment:   env,
		CertID:        req.CertID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.domains.Save(ctx, d); err != nil {
			return err
		}
		return s.ingress.CustomDomain(menv, d).Sync(ctx, menv.ProcessServiceName(domain.DefaultProcessName))
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DomainService) ListCustomDomains(ctx context.Context, code, module string, env domain.EnvName) ([]*domain.Domain, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	return s.domains.FindByModuleEnv(ctx, mod.ID, env)
}

// DeleteCustomDomain 删除记录及其 Ingress。
func (s *DomainService) DeleteCustomDomain(ctx context.Context, code, module string, env domain.EnvName, id string) error {
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return err
	}
	d, err := s.domains.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if d.ModuleID != menv.Module.ID || d.Environment != env {
		return domain.ErrDomainNotFound
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.domains.Delete(ctx, d.ID); err != nil {
			return err
		}
		return s.ingress.CustomDomain(menv, d).Delete(ctx)
	})
}

// SyncCustomDomains 并发重建该环境全部独立域名的 Ingress。
func (s *DomainService) SyncCustomDomains(ctx context.Context, code, module string, env domain.EnvName) error {
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return err
	}
	list, err := s.domains.FindByModuleEnv(ctx, menv.Module.ID, env)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range list {
		g.Go(func() error {
			return s.ingress.CustomDomain(menv, d).Sync(gctx, menv.ProcessServiceName(domain.DefaultProcessName))
		})
	}
	return g.Wait()
}

// SwitchSubdomainTarget 把子域名 Ingress 切到另一个进程服务。
func (s *DomainService) SwitchSubdomainTarget(ctx context.Context, code, module string, env domain.EnvName, serviceName, portName string) (*domain.ProcessIngress, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("%w: service_name is required", domain.ErrInvalidInput)
	}
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return nil, err
	}
	mgr := s.ingress.Subdomain(menv)
	if err := mgr.UpdateTarget(ctx, serviceName, portName); err != nil {
		return nil, err
	}
	return s.ingress.ingresses.Get(ctx, menv.Namespace(), mgr.IngressName())
}

func (s *DomainService) ListIngresses(ctx context.Context, code, module string, env domain.EnvName) ([]*domain.ProcessIngress, error) {
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return nil, err
	}
	return s.ingress.List(ctx, menv)
}
