package service

import (
	"context"
	"errors"
	"testing"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMount_Validation(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()

	tests := []struct {
		name    string
		req     CreateMountRequest
		wantErr error
	}{
		{"unsupported source", CreateMountRequest{Name: "conf", MountPath: "/etc/conf", Environment: "prod", SourceType: "PersistentStorage"}, domain.ErrUnsupportedSourceType},
		{"bad env", CreateMountRequest{Name: "conf", MountPath: "/etc/conf", Environment: "dev"}, domain.ErrInvalidInput},
		{"root path", CreateMountRequest{Name: "conf", MountPath: "/", Environment: "prod"}, domain.ErrInvalidInput},
		{"bad name", CreateMountRequest{Name: "Conf_1", MountPath: "/etc/conf", Environment: "prod"}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mounts.Create(ctx, "demo", "default", tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateMount_DuplicatePathPerEnv(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()

	m, err := f.mounts.Create(ctx, "demo", "default", CreateMountRequest{Name: "conf", MountPath: "/etc/conf", Environment: "prod"})
	require.NoError(t, err)
	assert.Equal(t, domain.VolumeSourceConfigMap, m.SourceType)
	assert.Equal(t, "conf", m.SourceName())

	_, err = f.mounts.Create(ctx, "demo", "default", CreateMountRequest{Name: "conf2", MountPath: "/etc/conf", Environment: "prod"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = f.mounts.Create(ctx, "demo", "default", CreateMountRequest{Name: "conf3", MountPath: "/etc/conf", Environment: "stag"})
	assert.NoError(t, err, "same path in another environment is allowed")
}

func TestResolveSource(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()

	m, err := f.mounts.Create(ctx, "demo", "default", CreateMountRequest{Name: "conf", MountPath: "/etc/conf", Environment: "_global_"})
	require.NoError(t, err)

	_, err = f.mounts.ResolveSource(ctx, m)
	assert.ErrorIs(t, err, domain.ErrMountSourceNotFound)

	_, err = f.mounts.UpsertConfigMapSource(ctx, "demo", "default", UpsertSourceRequest{Environment: "_global_", Name: "conf", Data: map[string]string{"a.yaml": "x: 1"}})
	require.NoError(t, err)
	src, err := f.mounts.ResolveSource(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "x: 1", src.Data["a.yaml"])

	unknown := *m
	unknown.SourceType = "Secret"
	_, err = f.mounts.ResolveSource(ctx, &unknown)
	assert.ErrorIs(t, err, domain.ErrUnsupportedSourceType)
}

func TestMountsForEnv_FiltersAndEnsuresConfigMaps(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	ctx := context.Background()

	for _, req := range []CreateMountRequest{
		{Name: "global", MountPath: "/etc/global", Environment: "_global_"},
		{Name: "prod-only", MountPath: "/etc/prod", Environment: "prod"},
		{Name: "stag-only", MountPath: "/etc/stag", Environment: "stag"},
	} {
		_, err := f.mounts.Create(ctx, "demo", "default", req)
		require.NoError(t, err)
		_, err = f.mounts.UpsertConfigMapSource(ctx, "demo", "default", UpsertSourceRequest{Environment: req.Environment, Name: req.Name, Data: map[string]string{"k": req.Name}})
		require.NoError(t, err)
	}

	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	specs, err := f.mounts.MountsForEnv(ctx, menv)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "/etc/global", specs[0].MountPath)
	assert.Equal(t, "demo-mount-global", specs[0].Source.ConfigMap.Name)
	assert.Equal(t, "/etc/prod", specs[1].MountPath)
	assert.Equal(t, map[string]string{"k": "prod-only"}, f.secrets.configMaps["bkapp-demo-prod/demo-mount-prod-only"])
}

func TestDeleteMount_OtherModule(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo", "worker")
	ctx := context.Background()

	m, err := f.mounts.Create(ctx, "demo", "default", CreateMountRequest{Name: "conf", MountPath: "/etc/conf", Environment: "prod"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.mounts.Delete(ctx, "demo", "worker", m.ID), domain.ErrMountNotFound)
	assert.NoError(t, f.mounts.Delete(ctx, "demo", "default", m.ID))
}
