package domain

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppModelRevision_CanonicalForms(t *testing.T) {
	res := NewBkAppResource("demo", "repo/x:1", NewBkAppResourceOptions{})
	rev, err := NewAppModelRevision("r1", "m1", 1, res, FieldMgrDefault)
	require.NoError(t, err)

	assert.Equal(t, APIVersionV1Alpha2, rev.Version)
	assert.False(t, rev.HasDeployed)
	assert.Len(t, rev.Digest, 64)
	assert.True(t, strings.HasPrefix(rev.YAMLValue, "apiVersion: paas.bk.tencent.com/v1alpha2\n"), rev.YAMLValue)

	decoded, err := rev.Resource()
	require.NoError(t, err)
	if diff := cmp.Diff(res, decoded); diff != "" {
		t.Errorf("Resource() mismatch (-want +got):\n%s", diff)
	}
}

func TestCanonicalForms_Deterministic(t *testing.T) {
	a := NewBkAppResource("demo", "repo/x:1", NewBkAppResourceOptions{})
	a.Metadata.Annotations = map[string]string{"b": "2", "a": "1", "c": "3"}
	b := a.DeepCopy()
	b.Metadata.Annotations = map[string]string{"c": "3", "a": "1", "b": "2"}

	ja, err := CanonicalJSON(a)
	require.NoError(t, err)
	jb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, ja, jb)

	ya, err := CanonicalYAML(a)
	require.NoError(t, err)
	yb, err := CanonicalYAML(b)
	require.NoError(t, err)
	assert.Equal(t, ya, yb)

	b.Spec.Build.Image = "repo/x:2"
	jc, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.NotEqual(t, ja, jc)
}

func TestAppModelRevision_MarkDeployed(t *testing.T) {
	res := NewBkAppResource("demo", "repo/x:1", NewBkAppResourceOptions{})
	rev, err := NewAppModelRevision("r1", "m1", 1, res, FieldMgrDefault)
	require.NoError(t, err)
	rev.MarkDeployed([]byte(`{"a":1}`))
	assert.True(t, rev.HasDeployed)
	assert.JSONEq(t, `{"a":1}`, string(rev.DeployedValue))
}
