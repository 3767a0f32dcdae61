package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeploy_AppliesManifestAndMarksRevision(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	init := f.initModel(t, "demo", "default", "repo/x:1")
	ctx := context.Background()

	_, err := f.mounts.Create(ctx, "demo", "default", CreateMountRequest{Name: "conf", MountPath: "/etc/conf", Environment: "prod"})
	require.NoError(t, err)
	_, err = f.mounts.UpsertConfigMapSource(ctx, "demo", "default", UpsertSourceRequest{Environment: "prod", Name: "conf", Data: map[string]string{"k": "v"}})
	require.NoError(t, err)

	d, err := f.deploy.Deploy(ctx, "demo", "default", domain.EnvProd, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.DeployStatusPending, d.Status)
	assert.Equal(t, init.RevisionID, d.RevisionID)

	require.Len(t, f.applier.applied, 1)
	manifest := f.applier.applied[0]
	assert.Equal(t, d.ID, manifest.Metadata.Annotations[domain.AnnotationDeployID])
	require.Len(t, manifest.Spec.Mounts, 1)
	assert.Equal(t, "demo-mount-conf", manifest.Spec.Mounts[0].Source.ConfigMap.Name)

	rev, err := f.models.GetRevision(ctx, "demo", "default", init.RevisionID)
	require.NoError(t, err)
	assert.True(t, rev.HasDeployed)
	assert.NotEmpty(t, rev.DeployedValue)

	stored := currentModel(t, f, "demo", "default")
	assert.Empty(t, stored.Spec.Mounts, "deploy-time mounts are not written back to the model")
}

func TestDeploy_ApplyFailureRecordsError(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	f.initModel(t, "demo", "default", "repo/x:1")
	f.applier.err = errors.New("connection refused")
	ctx := context.Background()

	_, err := f.deploy.Deploy(ctx, "demo", "default", domain.EnvStag, "alice")
	require.Error(t, err)

	list, err := f.deploy.ListDeploys(ctx, "demo", "default", domain.EnvStag)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DeployStatusError, list[0].Status)
	assert.Equal(t, "connection refused", list[0].Message)
}

func TestDeploy_NotInitialized(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")

	_, err := f.deploy.Deploy(context.Background(), "demo", "default", domain.EnvProd, "alice")
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestIngestCondition_StateMachine(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	f.initModel(t, "demo", "default", "repo/x:1")
	ctx := context.Background()

	d, err := f.deploy.Deploy(ctx, "demo", "default", domain.EnvProd, "alice")
	require.NoError(t, err)

	t0 := time.Now()
	got, err := f.deploy.IngestCondition(ctx, d.ID, domain.Condition{Reason: "Progressing", LastTransitionTime: t0})
	require.NoError(t, err)
	assert.Equal(t, domain.DeployStatusProgressing, got.Status)

	got, err = f.deploy.IngestCondition(ctx, d.ID, domain.Condition{Reason: "AppAvailable", LastTransitionTime: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, domain.DeployStatusReady, got.Status)
	assert.True(t, got.HasSucceeded())

	got, err = f.deploy.IngestCondition(ctx, d.ID, domain.Condition{Reason: "Failed", LastTransitionTime: t0.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, domain.DeployStatusReady, got.Status, "terminal status never changes")

	ok, err := f.deploy.AnySuccessful(ctx, "demo", "default", domain.EnvProd)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.deploy.AnySuccessful(ctx, "demo", "default", domain.EnvStag)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestSucceeded_PicksNewestReady(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	f.initModel(t, "demo", "default", "repo/x:1")
	ctx := context.Background()

	first, err := f.deploy.Deploy(ctx, "demo", "default", domain.EnvProd, "alice")
	require.NoError(t, err)
	_, err = f.deploy.IngestCondition(ctx, first.ID, domain.Condition{Reason: "AppAvailable"})
	require.NoError(t, err)

	second, err := f.deploy.Deploy(ctx, "demo", "default", domain.EnvProd, "bob")
	require.NoError(t, err)
	_, err = f.deploy.IngestCondition(ctx, second.ID, domain.Condition{Reason: "ImagePullFailed"})
	require.NoError(t, err)

	latest, err := f.deploy.LatestSucceeded(ctx, "demo", "default", domain.EnvProd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
}

func TestOnBkAppStatusChange_UnknownDeployIgnored(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.deploy.OnBkAppStatusChange(context.Background(), "missing", domain.Condition{Reason: "AppAvailable"})
}

func TestOffline(t *testing.T) {
	f := newFixture(ConflictPolicyIgnore)
	f.createApp(t, "demo")
	f.initModel(t, "demo", "default", "repo/x:1")
	ctx := context.Background()

	err := f.deploy.Offline(ctx, "demo", "default", domain.EnvProd)
	assert.ErrorIs(t, err, domain.ErrCannotDelete)
	assert.Empty(t, f.applier.deleted)

	_, err = f.deploy.Deploy(ctx, "demo", "default", domain.EnvProd, "alice")
	require.NoError(t, err)
	require.NoError(t, f.deploy.Offline(ctx, "demo", "default", domain.EnvProd))
	menv := f.moduleEnv(t, "demo", "default", domain.EnvProd)
	assert.Equal(t, []string{menv.Namespace() + "/" + menv.BkAppName()}, f.applier.deleted)
}
