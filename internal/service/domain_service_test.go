package service

import (
	"context"
	"errors"
	"testing"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignCustomHosts_CertRequired(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()
	hosts := []AutoGenDomain{{Host: "www.demo.io", HTTPSEnabled: true}}

	_, err := f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, hosts, "demo-web", true)
	require.ErrorIs(t, err, domain.ErrValidCertNotFound)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Zero(t, f.ingresses.count(), "configuration errors must not touch the cluster")

	_, err = f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, hosts, "demo-web", false)
	require.NoError(t, err)
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	ing, err := f.ingresses.Get(ctx, menv.Namespace(), f.ingress.Subdomain(menv).IngressName())
	require.NoError(t, err)
	require.Len(t, ing.Domains, 1)
	assert.False(t, ing.Domains[0].TLSEnabled)
	assert.Equal(t, "demo-web", ing.ServiceName)
	assert.Equal(t, "http", ing.ServicePortName)
	assert.Equal(t, "nginx", ing.Annotations[domain.AnnotationIngressClass])
}

func TestAssignCustomHosts_SharedCert(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.certs.shared = []*domain.AppDomainSharedCert{
		{ID: "c1", Name: "wild", AutoMatchCNs: "*.demo.io"},
		{ID: "c2", Name: "exact", AutoMatchCNs: "www.demo.io"},
	}
	f.createApp(t, "demo")
	ctx := context.Background()

	_, err := f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, []AutoGenDomain{{Host: "www.demo.io", HTTPSEnabled: true}}, "demo-web", true)
	require.NoError(t, err)

	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	ing, err := f.ingresses.Get(ctx, menv.Namespace(), f.ingress.Subdomain(menv).IngressName())
	require.NoError(t, err)
	assert.True(t, ing.Domains[0].TLSEnabled)
	assert.Equal(t, "eng-shared-exact", ing.Domains[0].TLSSecretName)
	assert.True(t, f.secrets.secrets[menv.Namespace()+"/eng-shared-exact"])
}

func TestAssignCustomHosts_TransfersFromOtherApp(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	appA := f.createApp(t, "app-a")
	f.createApp(t, "app-b")
	ctx := context.Background()

	_, err := f.domain.AssignCustomHosts(ctx, "app-a", "default", domain.EnvProd, []AutoGenDomain{
		{Host: "h.example.com"}, {Host: "keep.example.com"},
	}, "a-web", false)
	require.NoError(t, err)
	require.NoError(t, f.appDomains.Create(ctx, &domain.AppDomain{
		ID: "ind", Host: "ind.example.com", Source: domain.AppDomainSourceIndependent,
		ApplicationID: appA.ID, ModuleID: appA.Modules[0].ID, Environment: domain.EnvProd,
	}))

	got, err := f.domain.AssignCustomHosts(ctx, "app-b", "default", domain.EnvProd, []AutoGenDomain{{Host: "h.example.com"}}, "b-web", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h.example.com", got[0].Host)
	assert.Equal(t, domain.AppDomainSourceAutoGen, got[0].Source)

	aEnv := f.moduleEnv(t, "app-a", "default", domain.EnvProd)
	aDomains, err := f.domain.ListAppDomains(ctx, "app-a", "default", domain.EnvProd)
	require.NoError(t, err)
	var aHosts []string
	for _, d := range aDomains {
		aHosts = append(aHosts, d.Host)
	}
	assert.Equal(t, []string{"ind.example.com", "keep.example.com"}, aHosts)
	assert.Equal(t, domain.AppDomainSourceIndependent, f.appDomains.get("ind.example.com").Source)

	aIng, err := f.ingresses.Get(ctx, aEnv.Namespace(), f.ingress.Subdomain(aEnv).IngressName())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.example.com"}, aIng.Hosts(), "independent hosts stay out of the shared ingress")

	bEnv := f.moduleEnv(t, "app-b", "default", domain.EnvProd)
	bIng, err := f.ingresses.Get(ctx, bEnv.Namespace(), f.ingress.Subdomain(bEnv).IngressName())
	require.NoError(t, err)
	assert.Equal(t, []string{"h.example.com"}, bIng.Hosts())
}

func TestAssignCustomHosts_IndependentHostNotTransferred(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	appA := f.createApp(t, "app-a")
	f.createApp(t, "app-b")
	ctx := context.Background()
	require.NoError(t, f.appDomains.Create(ctx, &domain.AppDomain{
		ID: "ind", Host: "ind.example.com", Source: domain.AppDomainSourceIndependent,
		ApplicationID: appA.ID, ModuleID: appA.Modules[0].ID, Environment: domain.EnvProd,
	}))

	_, err := f.domain.AssignCustomHosts(ctx, "app-b", "default", domain.EnvProd, []AutoGenDomain{{Host: "ind.example.com"}}, "b-web", false)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, appA.ID, f.appDomains.get("ind.example.com").ApplicationID)
}

func TestAssignCustomHosts_PrunesAndDeletesEmptyIngress(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()

	_, err := f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, []AutoGenDomain{{Host: "a.example.com"}}, "demo-web", false)
	require.NoError(t, err)
	require.Equal(t, 1, f.ingresses.count())

	got, err := f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, nil, "demo-web", false)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, f.appDomains.get("a.example.com"))
	assert.Zero(t, f.ingresses.count(), "an ingress left without hosts is deleted")
}

func TestSubdomainListDesiredDomains_SkipsIndependent(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	app := f.createApp(t, "demo")
	ctx := context.Background()
	require.NoError(t, f.appDomains.Create(ctx, &domain.AppDomain{
		ID: "ind", Host: "ind.example.com", Source: domain.AppDomainSourceIndependent,
		ApplicationID: app.ID, ModuleID: app.Modules[0].ID, Environment: domain.EnvProd,
	}))
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)

	desired, err := f.ingress.Subdomain(menv).ListDesiredDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, desired)

	err = f.ingress.Subdomain(menv).Sync(ctx, SyncOptions{DefaultServiceName: "demo-web"})
	assert.ErrorIs(t, err, domain.ErrEmptyAppIngress)
	assert.Zero(t, f.ingresses.count())
}

func TestSubdomainSync_EmptyWithoutIngress(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)

	err := f.ingress.Subdomain(menv).Sync(context.Background(), SyncOptions{DefaultServiceName: "demo-web"})
	assert.ErrorIs(t, err, domain.ErrEmptyAppIngress)

	err = f.ingress.Subdomain(menv).Sync(context.Background(), SyncOptions{AllowEmpty: true})
	assert.NoError(t, err)
	assert.Zero(t, f.ingresses.count())
}

func TestSubdomainSync_DefaultServiceNameRequired(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	detail := f.createApp(t, "demo")
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	require.NoError(t, f.appDomains.Create(context.Background(), &domain.AppDomain{
		ID: "d1", Host: "a.example.com", Source: domain.AppDomainSourceAutoGen,
		ApplicationID: detail.ID, ModuleID: detail.Modules[0].ID, Environment: domain.EnvProd,
	}))

	err := f.ingress.Subdomain(menv).Sync(context.Background(), SyncOptions{})
	assert.ErrorIs(t, err, domain.ErrDefaultServiceNameRequired)
	assert.Zero(t, f.ingresses.count())
}

func TestSubdomainSync_KeepsExistingBackend(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()
	_, err := f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, []AutoGenDomain{{Host: "a.example.com"}}, "demo-web", false)
	require.NoError(t, err)

	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	mgr := f.ingress.Subdomain(menv)
	require.NoError(t, mgr.UpdateTarget(ctx, "demo-worker", "grpc"))
	require.NoError(t, mgr.Sync(ctx, SyncOptions{DefaultServiceName: "ignored"}))

	ing, err := f.ingresses.Get(ctx, menv.Namespace(), mgr.IngressName())
	require.NoError(t, err)
	assert.Equal(t, "demo-worker", ing.ServiceName)
	assert.Equal(t, "grpc", ing.ServicePortName)
}

func TestSubdomainDelete_Idempotent(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	mgr := f.ingress.Subdomain(f.moduleEnv(t, "demo", "default", domain.EnvStag))

	assert.NoError(t, mgr.Delete(context.Background()))
	assert.NoError(t, mgr.Delete(context.Background()))
	assert.Zero(t, f.ingresses.count())
	assert.Zero(t, f.ingresses.creates)
}

func TestUpdateTarget_MissingIngress(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	mgr := f.ingress.Subdomain(f.moduleEnv(t, "demo", "default", domain.EnvStag))

	err := mgr.UpdateTarget(context.Background(), "svc", "http")
	if !errors.Is(err, domain.ErrIngressNotFound) {
		t.Errorf("expected ErrIngressNotFound, got %v", err)
	}
}

func TestCustomDomainIngressName(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)

	tests := []struct {
		name   string
		domain *domain.Domain
		want   string
	}{
		{"root prefix", &domain.Domain{ID: "1", Name: "www.demo.io", PathPrefix: "/"}, "custom-www.demo.io"},
		{"empty prefix", &domain.Domain{ID: "2", Name: "www.demo.io"}, "custom-www.demo.io"},
		{"sub path", &domain.Domain{ID: "3", Name: "www.demo.io", PathPrefix: "/api/"}, "custom-www.demo.io-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ingress.CustomDomain(menv, tt.domain).MakeIngressName(); got != tt.want {
				t.Errorf("MakeIngressName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCustomDomain_CreateAndDelete(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)

	root, err := f.domain.CreateCustomDomain(ctx, "demo", "default", domain.EnvProd, CreateDomainRequest{Name: "www.demo.io"})
	require.NoError(t, err)
	sub, err := f.domain.CreateCustomDomain(ctx, "demo", "default", domain.EnvProd, CreateDomainRequest{Name: "www.demo.io", PathPrefix: "/api/", HTTPSEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.ingresses.count())

	ing, err := f.ingresses.Get(ctx, menv.Namespace(), "custom-www.demo.io-"+sub.ID)
	require.NoError(t, err)
	assert.True(t, ing.RewriteToRoot)
	assert.False(t, ing.Domains[0].TLSEnabled, "missing certs disable tls for custom domains")
	assert.Equal(t, []string{"/api/"}, ing.Domains[0].PathPrefixList)
	assert.Equal(t, menv.ProcessServiceName("web"), ing.ServiceName)

	_, err = f.domain.CreateCustomDomain(ctx, "demo", "default", domain.EnvProd, CreateDomainRequest{Name: "www.demo.io"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, f.domain.DeleteCustomDomain(ctx, "demo", "default", domain.EnvProd, root.ID))
	assert.Equal(t, 1, f.ingresses.count())
	assert.ErrorIs(t, f.domain.DeleteCustomDomain(ctx, "demo", "default", domain.EnvStag, sub.ID), domain.ErrDomainNotFound)

	require.NoError(t, f.domain.SyncCustomDomains(ctx, "demo", "default", domain.EnvProd))
	assert.Equal(t, 1, f.ingresses.count())
}

func TestSubdomainHosts(t *testing.T) {
	app := &domain.Application{Code: "my_app"}
	tests := []struct {
		module string
		env    domain.EnvName
		want   string
	}{
		{"default", domain.EnvProd, "my0us0app.apps.io"},
		{"default", domain.EnvStag, "stag-dot-my0us0app.apps.io"},
		{"worker", domain.EnvProd, "worker-dot-my0us0app.apps.io"},
		{"worker", domain.EnvStag, "stag-dot-worker-dot-my0us0app.apps.io"},
	}
	for _, tt := range tests {
		menv := domain.ModuleEnv{Application: app, Module: &domain.Module{Name: tt.module}, Environment: tt.env}
		got := SubdomainHosts(menv, []string{"apps.io", " "})
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("SubdomainHosts(%s, %s) = %v, want [%s]", tt.module, tt.env, got, tt.want)
		}
	}
}

func TestSyncAutoGenDomains_KeepsCustomHosts(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	detail := f.createApp(t, "demo")
	ctx := context.Background()
	require.NoError(t, f.appDomains.Create(ctx, &domain.AppDomain{
		ID: "c1", Host: "shop.demo.io", Source: domain.AppDomainSourceCustom,
		ApplicationID: detail.ID, ModuleID: detail.Modules[0].ID, Environment: domain.EnvProd,
	}))

	got, err := f.domain.SyncAutoGenDomains(ctx, "demo", "default", domain.EnvProd, "")
	require.NoError(t, err)
	var hosts []string
	for _, d := range got {
		hosts = append(hosts, d.Host)
	}
	assert.Equal(t, []string{"demo.apps.example.com", "shop.demo.io"}, hosts)
	assert.Equal(t, domain.AppDomainSourceCustom, f.appDomains.get("shop.demo.io").Source)
}

func TestAssignCustomHosts_OwnerSyncFailureRestoresIngresses(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "app-a")
	f.createApp(t, "app-b")
	f.createApp(t, "app-c")
	ctx := context.Background()

	_, err := f.domain.AssignCustomHosts(ctx, "app-a", "default", domain.EnvProd, []AutoGenDomain{{Host: "h1.example.com"}, {Host: "a.example.com"}}, "a-web", false)
	require.NoError(t, err)
	_, err = f.domain.AssignCustomHosts(ctx, "app-c", "default", domain.EnvProd, []AutoGenDomain{{Host: "h2.example.com"}, {Host: "c.example.com"}}, "c-web", false)
	require.NoError(t, err)

	aEnv := f.moduleEnv(t, "app-a", "default", domain.EnvProd)
	bEnv := f.moduleEnv(t, "app-b", "default", domain.EnvProd)
	cEnv := f.moduleEnv(t, "app-c", "default", domain.EnvProd)
	f.ingresses.failWrites[ingressKey(cEnv.Namespace(), f.ingress.Subdomain(cEnv).IngressName())] = errors.New("apiserver unavailable")

	_, err = f.domain.AssignCustomHosts(ctx, "app-b", "default", domain.EnvProd, []AutoGenDomain{{Host: "h1.example.com"}, {Host: "h2.example.com"}}, "b-web", false)
	require.Error(t, err)

	aIng, err := f.ingresses.Get(ctx, aEnv.Namespace(), f.ingress.Subdomain(aEnv).IngressName())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.example.com", "h1.example.com"}, aIng.Hosts(), "former owner already synced is restored")

	cIng, err := f.ingresses.Get(ctx, cEnv.Namespace(), f.ingress.Subdomain(cEnv).IngressName())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c.example.com", "h2.example.com"}, cIng.Hosts())

	_, err = f.ingresses.Get(ctx, bEnv.Namespace(), f.ingress.Subdomain(bEnv).IngressName())
	assert.ErrorIs(t, err, domain.ErrIngressNotFound, "target ingress is written last")
}

func TestApplyAll_RollsBackCreatedIngress(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	ctx := context.Background()
	f.ingresses.failWrites[ingressKey("ns", "second")] = errors.New("boom")

	err := f.ingress.applyAll(ctx, []*ingressPlan{
		{kind: domain.IngressKindSubdomain, namespace: "ns", name: "first", action: ingressActionCreate,
			ingress: &domain.ProcessIngress{Name: "first", Namespace: "ns"}},
		{kind: domain.IngressKindSubdomain, namespace: "ns", name: "second", action: ingressActionCreate,
			ingress: &domain.ProcessIngress{Name: "second", Namespace: "ns"}},
	})
	require.Error(t, err)
	assert.Zero(t, f.ingresses.count())
}

func TestSwitchSubdomainTargetAndListIngresses(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()
	_, err := f.domain.AssignCustomHosts(ctx, "demo", "default", domain.EnvProd, []AutoGenDomain{{Host: "a.example.com"}}, "demo-web", false)
	require.NoError(t, err)
	_, err = f.domain.CreateCustomDomain(ctx, "demo", "default", domain.EnvProd, CreateDomainRequest{Name: "www.demo.io"})
	require.NoError(t, err)

	_, err = f.domain.SwitchSubdomainTarget(ctx, "demo", "default", domain.EnvProd, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ing, err := f.domain.SwitchSubdomainTarget(ctx, "demo", "default", domain.EnvProd, "demo-api", "")
	require.NoError(t, err)
	assert.Equal(t, "demo-api", ing.ServiceName)
	assert.Equal(t, "http", ing.ServicePortName, "port is kept when not given")

	list, err := f.domain.ListIngresses(ctx, "demo", "default", domain.EnvProd)
	require.NoError(t, err)
	var names []string
	for _, l := range list {
		names = append(names, l.Name)
	}
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	assert.Equal(t, []string{f.ingress.Subdomain(menv).IngressName(), "custom-www.demo.io"}, names)

	stag, err := f.domain.ListIngresses(ctx, "demo", "default", domain.EnvStag)
	require.NoError(t, err)
	assert.Empty(t, stag)
}
