package kubernetes

import (
	"context"
	"testing"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

func newFakeDynamic(objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{bkappGVR: "BkAppList"},
		objects...,
	)
}

func demoResource(image string) *domain.BkAppResource {
	res := domain.NewBkAppResource("demo", image, domain.NewBkAppResourceOptions{})
	res.Metadata.Annotations = map[string]string{domain.AnnotationDeployID: "d-1"}
	return res
}

func TestApply_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamic()
	applier := NewDynamicBkAppApplier(client, "")

	require.NoError(t, applier.Apply(ctx, "bkapp-demo-prod", demoResource("repo/x:1")))
	require.NoError(t, applier.Apply(ctx, "bkapp-demo-prod", demoResource("repo/x:2")))

	obj, err := client.Resource(bkappGVR).Namespace("bkapp-demo-prod").Get(ctx, "demo", metav1.GetOptions{})
	require.NoError(t, err)
	image, _, err := unstructured.NestedString(obj.Object, "spec", "build", "image")
	require.NoError(t, err)
	assert.Equal(t, "repo/x:2", image)
	assert.Equal(t, domain.KindBkApp, obj.GetKind())
	assert.Equal(t, "d-1", obj.GetAnnotations()[domain.AnnotationDeployID])
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	applier := NewDynamicBkAppApplier(newFakeDynamic(), "")
	require.NoError(t, applier.Apply(ctx, "ns", demoResource("repo/x:1")))
	require.NoError(t, applier.Delete(ctx, "ns", "demo"))
	require.NoError(t, applier.Delete(ctx, "ns", "demo"))
}

func bkappObject(annotations map[string]interface{}, conditions []interface{}) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": domain.APIVersionV1Alpha2,
		"kind":       domain.KindBkApp,
		"metadata": map[string]interface{}{
			"name":        "demo",
			"namespace":   "bkapp-demo-prod",
			"annotations": annotations,
		},
		"status": map[string]interface{}{"conditions": conditions},
	}}
}

func TestLatestCondition(t *testing.T) {
	deployAnn := map[string]interface{}{domain.AnnotationDeployID: "d-1"}
	tests := []struct {
		name       string
		obj        *unstructured.Unstructured
		wantOK     bool
		wantReason string
	}{
		{
			name:   "no deploy annotation",
			obj:    bkappObject(map[string]interface{}{}, []interface{}{map[string]interface{}{"reason": "AppAvailable"}}),
			wantOK: false,
		},
		{
			name:   "no conditions",
			obj:    bkappObject(deployAnn, nil),
			wantOK: false,
		},
		{
			name: "newest wins",
			obj: bkappObject(deployAnn, []interface{}{
				map[string]interface{}{"type": "AppAvailable", "reason": "AppAvailable", "lastTransitionTime": "2024-01-01T00:00:10Z"},
				map[string]interface{}{"type": "AppProgressing", "reason": "Progressing", "lastTransitionTime": "2024-01-01T00:00:05Z"},
			}),
			wantOK:     true,
			wantReason: "AppAvailable",
		},
		{
			name: "same time takes the later entry",
			obj: bkappObject(deployAnn, []interface{}{
				map[string]interface{}{"reason": "Progressing", "lastTransitionTime": "2024-01-01T00:00:05Z"},
				map[string]interface{}{"reason": "Failed", "message": "boom", "lastTransitionTime": "2024-01-01T00:00:05Z"},
			}),
			wantOK:     true,
			wantReason: "Failed",
		},
		{
			name: "conditions without reason skipped",
			obj: bkappObject(deployAnn, []interface{}{
				map[string]interface{}{"type": "HooksFinished"},
			}),
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, cond, ok := latestCondition(tt.obj)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "d-1", id)
				assert.Equal(t, tt.wantReason, cond.Reason)
			}
		})
	}
}

func TestWatch_ReportsConditions(t *testing.T) {
	obj := bkappObject(map[string]interface{}{domain.AnnotationDeployID: "d-1"}, []interface{}{
		map[string]interface{}{"reason": "AppAvailable", "lastTransitionTime": "2024-01-01T00:00:10Z"},
	})
	applier := NewDynamicBkAppApplier(newFakeDynamic(obj), "bkapp-demo-prod")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan domain.Condition, 1)
	go func() {
		_ = applier.Watch(ctx, func(_ context.Context, deployID string, cond domain.Condition) {
			if deployID == "d-1" {
				select {
				case got <- cond:
				default:
				}
			}
		})
	}()

	select {
	case cond := <-got:
		assert.Equal(t, "AppAvailable", cond.Reason)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC), cond.LastTransitionTime)
	case <-time.After(5 * time.Second):
		t.Fatal("no condition reported")
	}
}
