package service

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
)

// --- in-memory stubs shared by service tests ---

var (
	_ port.TxManager               = stubTx{}
	_ port.ApplicationRepository   = (*stubAppRepo)(nil)
	_ port.ModuleRepository        = (*stubModuleRepo)(nil)
	_ port.ManagedFieldsRepository = (*stubManagedFieldsRepo)(nil)
	_ port.AppModelRepository      = (*stubModelRepo)(nil)
	_ port.DeployRepository        = (*stubDeployRepo)(nil)
	_ port.MountRepository         = (*stubMountRepo)(nil)
	_ port.AppDomainRepository     = (*stubAppDomainRepo)(nil)
	_ port.DomainRepository        = (*stubDomainRepo)(nil)
	_ port.CertRepository          = (*stubCertRepo)(nil)
	_ port.IngressStore            = (*stubIngressStore)(nil)
	_ port.SecretStore             = (*stubSecretStore)(nil)
	_ port.BkAppApplier            = (*stubApplier)(nil)
)

type stubTx struct{}

func (stubTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type stubAppRepo struct {
	mu   sync.Mutex
	apps map[string]*domain.Application
}

func newStubAppRepo() *stubAppRepo { return &stubAppRepo{apps: map[string]*domain.Application{}} }

func (s *stubAppRepo) Save(_ context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.apps {
		if a.Code == app.Code && a.ID != app.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.apps[app.ID] = app
	return nil
}

func (s *stubAppRepo) FindByCode(_ context.Context, code string) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.apps {
		if a.Code == code {
			return a, nil
		}
	}
	return nil, domain.ErrAppNotFound
}

func (s *stubAppRepo) FindByID(_ context.Context, id string) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.apps[id]; ok {
		return a, nil
	}
	return nil, domain.ErrAppNotFound
}

func (s *stubAppRepo) FindAll(_ context.Context) ([]*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Application
	for _, a := range s.apps {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *domain.Application) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *stubAppRepo) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.apps, id)
	return nil
}

type stubModuleRepo struct {
	mu      sync.Mutex
	modules map[string]*domain.Module
}

func newStubModuleRepo() *stubModuleRepo { return &stubModuleRepo{modules: map[string]*domain.Module{}} }

func (s *stubModuleRepo) Save(_ context.Context, m *domain.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.modules {
		if e.ApplicationID == m.ApplicationID && e.Name == m.Name && e.ID != m.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.modules[m.ID] = m
	return nil
}

func (s *stubModuleRepo) FindByName(_ context.Context, appID, name string) (*domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.modules {
		if m.ApplicationID == appID && m.Name == name {
			return m, nil
		}
	}
	return nil, domain.ErrModuleNotFound
}

func (s *stubModuleRepo) FindByID(_ context.Context, id string) (*domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modules[id]; ok {
		return m, nil
	}
	return nil, domain.ErrModuleNotFound
}

func (s *stubModuleRepo) FindByApplication(_ context.Context, appID string) ([]*domain.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Module
	for _, m := range s.modules {
		if m.ApplicationID == appID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Module) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *stubModuleRepo) DeleteByApplication(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.modules {
		if m.ApplicationID == appID {
			delete(s.modules, id)
		}
	}
	return nil
}

type stubManagedFieldsRepo struct {
	mu    sync.Mutex
	rows  map[string]map[domain.FieldMgrName][]domain.Field
	saves int
}

func newStubManagedFieldsRepo() *stubManagedFieldsRepo {
	return &stubManagedFieldsRepo{rows: map[string]map[domain.FieldMgrName][]domain.Field{}}
}

func (s *stubManagedFieldsRepo) LoadRows(_ context.Context, moduleID string, _ bool) ([]*domain.ManagedFieldsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ManagedFieldsRow
	for mgr, fields := range s.rows[moduleID] {
		out = append(out, domain.NewManagedFieldsRow(moduleID, mgr, fields))
	}
	slices.SortFunc(out, func(a, b *domain.ManagedFieldsRow) int { return cmp.Compare(a.Manager, b.Manager) })
	return out, nil
}

func (s *stubManagedFieldsRepo) SaveRows(_ context.Context, rows []*domain.ManagedFieldsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if s.rows[r.ModuleID] == nil {
			s.rows[r.ModuleID] = map[domain.FieldMgrName][]domain.Field{}
		}
		s.rows[r.ModuleID][r.Manager] = r.Fields()
		s.saves++
	}
	return nil
}

type stubModelRepo struct {
	mu        sync.Mutex
	resources map[string]*domain.AppModelResource
	revisions map[string]*domain.AppModelRevision
}

func newStubModelRepo() *stubModelRepo {
	return &stubModelRepo{resources: map[string]*domain.AppModelResource{}, revisions: map[string]*domain.AppModelRevision{}}
}

func (s *stubModelRepo) SaveResource(_ context.Context, res *domain.AppModelResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *res
	cp.Revision = nil
	s.resources[res.ModuleID] = &cp
	return nil
}

func (s *stubModelRepo) FindResource(_ context.Context, moduleID string) (*domain.AppModelResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[moduleID]
	if !ok {
		return nil, domain.ErrAppModelNotInitialized
	}
	cp := *res
	return &cp, nil
}

func (s *stubModelRepo) Repoint(_ context.Context, moduleID, revisionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[moduleID]
	if !ok {
		return domain.ErrAppModelNotInitialized
	}
	res.RevisionID = revisionID
	return nil
}

func (s *stubModelRepo) SaveRevision(_ context.Context, rev *domain.AppModelRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rev
	s.revisions[rev.ID] = &cp
	return nil
}

func (s *stubModelRepo) UpdateRevision(ctx context.Context, rev *domain.AppModelRevision) error {
	return s.SaveRevision(ctx, rev)
}

func (s *stubModelRepo) FindRevision(_ context.Context, id string) (*domain.AppModelRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revisions[id]
	if !ok {
		return nil, domain.ErrRevisionNotFound
	}
	cp := *rev
	return &cp, nil
}

func (s *stubModelRepo) ListRevisions(_ context.Context, moduleID string) ([]*domain.AppModelRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AppModelRevision
	for _, r := range s.revisions {
		if r.ModuleID == moduleID {
			cp := *r
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.AppModelRevision) int { return cmp.Compare(b.Number, a.Number) })
	return out, nil
}

func (s *stubModelRepo) NextRevisionNumber(_ context.Context, moduleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.revisions {
		if r.ModuleID == moduleID && r.Number > n {
			n = r.Number
		}
	}
	return n + 1, nil
}

type stubDeployRepo struct {
	mu      sync.Mutex
	deploys []*domain.AppModelDeploy
}

func (s *stubDeployRepo) Save(_ context.Context, d *domain.AppModelDeploy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deploys = append(s.deploys, &cp)
	return nil
}

func (s *stubDeployRepo) Update(_ context.Context, d *domain.AppModelDeploy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.deploys {
		if e.ID == d.ID {
			cp := *d
			s.deploys[i] = &cp
			return nil
		}
	}
	return domain.ErrDeployNotFound
}

func (s *stubDeployRepo) FindByID(_ context.Context, id string) (*domain.AppModelDeploy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.deploys {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrDeployNotFound
}

func (s *stubDeployRepo) FilterByEnv(_ context.Context, moduleID string, env domain.EnvName) ([]*domain.AppModelDeploy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AppModelDeploy
	for i := len(s.deploys) - 1; i >= 0; i-- {
		if d := s.deploys[i]; d.ModuleID == moduleID && d.Environment == env {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubDeployRepo) LatestSucceeded(ctx context.Context, moduleID string, env domain.EnvName) (*domain.AppModelDeploy, error) {
	list, _ := s.FilterByEnv(ctx, moduleID, env)
	for _, d := range list {
		if d.HasSucceeded() {
			return d, nil
		}
	}
	return nil, domain.ErrDeployNotFound
}

type stubMountRepo struct {
	mu      sync.Mutex
	mounts  map[string]*domain.Mount
	sources []*domain.ConfigMapSource
}

func newStubMountRepo() *stubMountRepo { return &stubMountRepo{mounts: map[string]*domain.Mount{}} }

func (s *stubMountRepo) Save(_ context.Context, m *domain.Mount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[m.ID] = m
	return nil
}

func (s *stubMountRepo) FindByID(_ context.Context, id string) (*domain.Mount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mounts[id]; ok {
		return m, nil
	}
	return nil, domain.ErrMountNotFound
}

func (s *stubMountRepo) FindByModule(_ context.Context, moduleID string) ([]*domain.Mount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Mount
	for _, m := range s.mounts {
		if m.ModuleID == moduleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubMountRepo) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mounts, id)
	return nil
}

func (s *stubMountRepo) SaveConfigMapSource(_ context.Context, src *domain.ConfigMapSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.sources {
		if e.ID == src.ID {
			s.sources[i] = src
			return nil
		}
	}
	s.sources = append(s.sources, src)
	return nil
}

func (s *stubMountRepo) FindConfigMapSource(_ context.Context, moduleID string, env domain.MountEnvName, name string) (*domain.ConfigMapSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sources {
		if e.ModuleID == moduleID && e.Environment == env && e.Name == name {
			return e, nil
		}
	}
	return nil, domain.ErrMountSourceNotFound
}

type stubAppDomainRepo struct {
	mu      sync.Mutex
	domains map[string]*domain.AppDomain
}

func newStubAppDomainRepo(seed ...*domain.AppDomain) *stubAppDomainRepo {
	s := &stubAppDomainRepo{domains: map[string]*domain.AppDomain{}}
	for _, d := range seed {
		s.domains[d.Host] = d
	}
	return s
}

func (s *stubAppDomainRepo) FindByHosts(_ context.Context, hosts []string) ([]*domain.AppDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AppDomain
	for _, h := range hosts {
		if d, ok := s.domains[h]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubAppDomainRepo) FindByModuleEnv(_ context.Context, moduleID string, env domain.EnvName) ([]*domain.AppDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AppDomain
	for _, d := range s.domains {
		if d.BelongsTo(moduleID, env) {
			cp := *d
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.AppDomain) int { return cmp.Compare(a.Host, b.Host) })
	return out, nil
}

func (s *stubAppDomainRepo) Create(_ context.Context, d *domain.AppDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[d.Host]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *d
	s.domains[d.Host] = &cp
	return nil
}

func (s *stubAppDomainRepo) Transfer(_ context.Context, d *domain.AppDomain) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.domains[d.Host]
	if !ok || !cur.Source.Reassignable() {
		return 0, nil
	}
	cp := *d
	cp.Source = cur.Source
	s.domains[d.Host] = &cp
	return 1, nil
}

func (s *stubAppDomainRepo) DeleteByIDs(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for host, d := range s.domains {
		if slices.Contains(ids, d.ID) {
			delete(s.domains, host)
		}
	}
	return nil
}

func (s *stubAppDomainRepo) get(host string) *domain.AppDomain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domains[host]
}

type stubDomainRepo struct {
	mu      sync.Mutex
	domains map[string]*domain.Domain
}

func newStubDomainRepo() *stubDomainRepo { return &stubDomainRepo{domains: map[string]*domain.Domain{}} }

func (s *stubDomainRepo) Save(_ context.Context, d *domain.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.domains {
		if e.Name == d.Name && e.PathPrefix == d.PathPrefix && e.ID != d.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.domains[d.ID] = d
	return nil
}

func (s *stubDomainRepo) FindByID(_ context.Context, id string) (*domain.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.domains[id]; ok {
		return d, nil
	}
	return nil, domain.ErrDomainNotFound
}

func (s *stubDomainRepo) FindByModuleEnv(_ context.Context, moduleID string, env domain.EnvName) ([]*domain.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Domain
	for _, d := range s.domains {
		if d.ModuleID == moduleID && d.Environment == env {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubDomainRepo) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.domains, id)
	return nil
}

type stubCertRepo struct {
	certs  map[string]*domain.AppDomainCert
	shared []*domain.AppDomainSharedCert
}

func (s *stubCertRepo) FindCert(_ context.Context, id string) (*domain.AppDomainCert, error) {
	if c, ok := s.certs[id]; ok {
		return c, nil
	}
	return nil, domain.ErrCertNotFound
}

func (s *stubCertRepo) FindSharedCert(_ context.Context, id string) (*domain.AppDomainSharedCert, error) {
	for _, c := range s.shared {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domain.ErrCertNotFound
}

func (s *stubCertRepo) ListSharedCerts(_ context.Context) ([]*domain.AppDomainSharedCert, error) {
	return s.shared, nil
}

type stubIngressStore struct {
	mu        sync.Mutex
	ingresses map[string]*domain.ProcessIngress
	creates   int
	deletes   int

	// failWrites 按 namespace/name 注入写操作错误。
	failWrites map[string]error
}

func newStubIngressStore() *stubIngressStore {
	return &stubIngressStore{ingresses: map[string]*domain.ProcessIngress{}, failWrites: map[string]error{}}
}

func ingressKey(ns, name string) string { return ns + "/" + name }

func (s *stubIngressStore) Get(_ context.Context, ns, name string) (*domain.ProcessIngress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ing, ok := s.ingresses[ingressKey(ns, name)]
	if !ok {
		return nil, domain.ErrIngressNotFound
	}
	cp := *ing
	return &cp, nil
}

func (s *stubIngressStore) List(_ context.Context, ns string, labels map[string]string) ([]*domain.ProcessIngress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ProcessIngress
	for _, ing := range s.ingresses {
		if ing.Namespace != ns {
			continue
		}
		match := true
		for k, v := range labels {
			if ing.Labels[k] != v {
				match = false
			}
		}
		if match {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (s *stubIngressStore) Create(_ context.Context, ing *domain.ProcessIngress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ingressKey(ing.Namespace, ing.Name)
	if err := s.failWrites[key]; err != nil {
		return err
	}
	if _, ok := s.ingresses[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *ing
	s.ingresses[key] = &cp
	s.creates++
	return nil
}

func (s *stubIngressStore) Update(_ context.Context, ing *domain.ProcessIngress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ingressKey(ing.Namespace, ing.Name)
	if err := s.failWrites[key]; err != nil {
		return err
	}
	if _, ok := s.ingresses[key]; !ok {
		return domain.ErrIngressNotFound
	}
	cp := *ing
	s.ingresses[key] = &cp
	return nil
}

func (s *stubIngressStore) Delete(_ context.Context, ns, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ingressKey(ns, name)
	if err := s.failWrites[key]; err != nil {
		return err
	}
	if _, ok := s.ingresses[key]; !ok {
		return domain.ErrIngressNotFound
	}
	delete(s.ingresses, key)
	s.deletes++
	return nil
}

func (s *stubIngressStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ingresses)
}

type stubSecretStore struct {
	mu         sync.Mutex
	secrets    map[string]bool
	configMaps map[string]map[string]string
}

func newStubSecretStore() *stubSecretStore {
	return &stubSecretStore{secrets: map[string]bool{}, configMaps: map[string]map[string]string{}}
}

func (s *stubSecretStore) EnsureTLSSecret(_ context.Context, ns, name, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ingressKey(ns, name)] = true
	return nil
}

func (s *stubSecretStore) EnsureConfigMap(_ context.Context, ns, name string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configMaps[ingressKey(ns, name)] = data
	return nil
}

type stubApplier struct {
	mu      sync.Mutex
	applied []*domain.BkAppResource
	deleted []string
	err     error
}

func (s *stubApplier) Apply(_ context.Context, _ string, res *domain.BkAppResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, res)
	return nil
}

func (s *stubApplier) Delete(_ context.Context, ns, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ns+"/"+name)
	return nil
}

func (s *stubApplier) Watch(ctx context.Context, _ port.BkAppStatusCallback) error {
	<-ctx.Done()
	return nil
}

// --- fixture wiring ---

type fixture struct {
	appRepo    *stubAppRepo
	moduleRepo *stubModuleRepo
	fieldsRepo *stubManagedFieldsRepo
	modelRepo  *stubModelRepo
	deployRepo *stubDeployRepo
	mountRepo  *stubMountRepo
	appDomains *stubAppDomainRepo
	domains    *stubDomainRepo
	certs      *stubCertRepo
	ingresses  *stubIngressStore
	secrets    *stubSecretStore
	applier    *stubApplier

	apps    *ApplicationService
	models  *AppModelService
	specs   *ProcessSpecService
	appDesc *AppDescService
	mounts  *MountService
	deploy  *DeployService
	domain  *DomainService
	ingress *IngressReconciler
}

func newFixture(policy ConflictPolicy) *fixture {
	f := &fixture{
		appRepo:    newStubAppRepo(),
		moduleRepo: newStubModuleRepo(),
		fieldsRepo: newStubManagedFieldsRepo(),
		modelRepo:  newStubModelRepo(),
		deployRepo: &stubDeployRepo{},
		mountRepo:  newStubMountRepo(),
		appDomains: newStubAppDomainRepo(),
		domains:    newStubDomainRepo(),
		certs:      &stubCertRepo{certs: map[string]*domain.AppDomainCert{}},
		ingresses:  newStubIngressStore(),
		secrets:    newStubSecretStore(),
		applier:    &stubApplier{},
	}
	tx := stubTx{}
	store := NewRowGroupStore(f.fieldsRepo)
	f.apps = NewApplicationService(f.appRepo, f.moduleRepo, f.modelRepo, tx, "default")
	f.models = NewAppModelService(f.apps, f.modelRepo, store, tx, policy)
	f.specs = NewProcessSpecService(f.models, store, tx, policy)
	f.appDesc = NewAppDescService(f.specs)
	f.mounts = NewMountService(f.apps, f.mountRepo, f.secrets)
	f.deploy = NewDeployService(f.apps, f.models, f.deployRepo, f.mounts, f.applier, tx)
	f.ingress = NewIngressReconciler(f.appDomains, f.ingresses, f.secrets, NewIngressDomainFactory(f.certs), IngressConfig{
		AppIngressClass: "nginx",
		ServicePortName: "http",
	})
	f.domain = NewDomainService(f.apps, f.appDomains, f.domains, f.ingress, tx, DomainServiceOptions{
		SubDomainRoots: []string{"apps.example.com"},
	})
	return f
}

// createApp 创建应用并按需初始化 default 模块的模型。
func (f *fixture) createApp(t testingT, code string, modules ...string) *ApplicationDetail {
	t.Helper()
	detail, err := f.apps.CreateApplication(context.Background(), CreateApplicationRequest{Code: code, Modules: modules})
	if err != nil {
		t.Fatalf("create application %s: %v", code, err)
	}
	return detail
}

func (f *fixture) initModel(t testingT, code, module, image string) *domain.AppModelResource {
	t.Helper()
	res, err := f.models.InitAppModel(context.Background(), code, module, InitAppModelRequest{Image: image})
	if err != nil {
		t.Fatalf("init app model %s/%s: %v", code, module, err)
	}
	return res
}

func (f *fixture) moduleEnv(t testingT, code, module string, env domain.EnvName) domain.ModuleEnv {
	t.Helper()
	menv, err := f.apps.ModuleEnv(context.Background(), code, module, env)
	if err != nil {
		t.Fatalf("module env: %v", err)
	}
	return menv
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func int32p(v int32) *int32 { return &v }
