package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
)

var _ port.BkAppApplier = (*DynamicBkAppApplier)(nil)

var bkappGVR = schema.GroupVersionResource{
	Group:    "paas.bk.tencent.com",
	Version:  "v1alpha2",
	Resource: "bkapps",
}

type DynamicBkAppApplier struct {
	dynamic   dynamic.Interface
	// namespace 为空时监听全部命名空间。
	namespace string
}

func NewDynamicBkAppApplier(dynamic dynamic.Interface, watchNamespace string) *DynamicBkAppApplier {
	return &DynamicBkAppApplier{dynamic: dynamic, namespace: watchNamespace}
}

// Apply 不存在时创建，存在时带上 resourceVersion 整体替换。
func (a *DynamicBkAppApplier) Apply(ctx context.Context, namespace string, res *domain.BkAppResource) error {
	content, err := res.ToUnstructured()
	if err != nil {
		return fmt.Errorf("encode bkapp %s: %w", res.Metadata.Name, err)
	}
	obj := &unstructured.Unstructured{Object: content}
	obj.SetNamespace(namespace)

	client := a.dynamic.Resource(bkappGVR).Namespace(namespace)
	existing, err := client.Get(ctx, res.Metadata.Name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		_, err = client.Create(ctx, obj, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	_, err = client.Update(ctx, obj, metav1.UpdateOptions{})
	return err
}

func (a *DynamicBkAppApplier) Delete(ctx context.Context, namespace, name string) error {
	err := a.dynamic.Resource(bkappGVR).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if errors.IsNotFound(err) {
		return nil
	}
	return err
}

// Watch 启动 BkApp Informer，把带部署标记的对象的最新状态条件交给 callback。
func (a *DynamicBkAppApplier) Watch(ctx context.Context, callback port.BkAppStatusCallback) error {
	ns := a.namespace
	if ns == "" {
		ns = metav1.NamespaceAll
	}
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(a.dynamic, 0, ns, nil)
	informer := factory.ForResource(bkappGVR).Informer()

	notify := func(obj interface{}) {
		u, ok := obj.(*unstructured.Unstructured)
		if !ok {
			return
		}
		deployID, cond, ok := latestCondition(u)
		if !ok {
			return
		}
		callback(ctx, deployID, cond)
	}
	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    notify,
		UpdateFunc: func(_, newObj interface{}) { notify(newObj) },
	})
	if err != nil {
		return err
	}

	factory.Start(ctx.Done())
	factory.WaitForCacheSync(ctx.Done())

	<-ctx.Done()
	return ctx.Err()
}

// latestCondition 取 lastTransitionTime 最新的一条条件，时间相同时取列表中靠后的。
func latestCondition(u *unstructured.Unstructured) (string, domain.Condition, bool) {
	deployID := u.GetAnnotations()[domain.AnnotationDeployID]
	if deployID == "" {
		return "", domain.Condition{}, false
	}
	items, found, err := unstructured.NestedSlice(u.Object, "status", "conditions")
	if err != nil || !found {
		return "", domain.Condition{}, false
	}

	var latest domain.Condition
	ok := false
	for _, item := range items {
		m, isMap := item.(map[string]interface{})
		if !isMap {
			continue
		}
		cond := domain.Condition{
			Type:    stringField(m, "type"),
			Status:  stringField(m, "status"),
			Reason:  stringField(m, "reason"),
			Message: stringField(m, "message"),
		}
		if cond.Reason == "" {
			continue
		}
		if ts := stringField(m, "lastTransitionTime"); ts != "" {
			t, perr := time.Parse(time.RFC3339, ts)
			if perr != nil {
				slog.Warn("invalid condition time", "bkapp", u.GetName(), "value", ts)
			} else {
				cond.LastTransitionTime = t
			}
		}
		if !ok || !cond.LastTransitionTime.Before(latest.LastTransitionTime) {
			latest, ok = cond, true
		}
	}
	return deployID, latest, ok
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
