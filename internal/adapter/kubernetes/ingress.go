package kubernetes

import (
	"context"
	"maps"
	"strings"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

var _ port.IngressStore = (*IngressStore)(nil)

const (
	annotationRewriteTarget = "nginx.ingress.kubernetes.io/rewrite-target"
	annotationUseRegex      = "nginx.ingress.kubernetes.io/use-regex"
	// rewritePathSuffix 捕获前缀之后的路径，配合 rewrite-target /$2 使用。
	rewritePathSuffix       = "(/|$)(.*)"
)

type IngressStore struct {
	client kubernetes.Interface
}

func NewIngressStore(client kubernetes.Interface) *IngressStore {
	return &IngressStore{client: client}
}

func (s *IngressStore) Get(ctx context.Context, namespace, name string) (*domain.ProcessIngress, error) {
	ing, err := s.client.NetworkingV1().Ingresses(namespace).Get(ctx, name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return nil, domain.ErrIngressNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromIngress(ing), nil
}

func (s *IngressStore) List(ctx context.Context, namespace string, selector map[string]string) ([]*domain.ProcessIngress, error) {
	list, err := s.client.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(selector).String(),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ProcessIngress, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, fromIngress(&list.Items[i]))
	}
	return out, nil
}

func (s *IngressStore) Create(ctx context.Context, ing *domain.ProcessIngress) error {
	_, err := s.client.NetworkingV1().Ingresses(ing.Namespace).Create(ctx, toIngress(ing), metav1.CreateOptions{})
	if errors.IsAlreadyExists(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *IngressStore) Update(ctx context.Context, ing *domain.ProcessIngress) error {
	client := s.client.NetworkingV1().Ingresses(ing.Namespace)
	existing, err := client.Get(ctx, ing.Name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return domain.ErrIngressNotFound
	}
	if err != nil {
		return err
	}
	obj := toIngress(ing)
	obj.SetResourceVersion(existing.GetResourceVersion())
	_, err = client.Update(ctx, obj, metav1.UpdateOptions{})
	return err
}

func (s *IngressStore) Delete(ctx context.Context, namespace, name string) error {
	err := s.client.NetworkingV1().Ingresses(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if errors.IsNotFound(err) {
		return domain.ErrIngressNotFound
	}
	return err
}

func toIngress(p *domain.ProcessIngress) *networkingv1.Ingress {
	annotations := maps.Clone(p.Annotations)
	if annotations == nil {
		annotations = map[string]string{}
	}
	pathType := networkingv1.PathTypePrefix
	if p.RewriteToRoot {
		annotations[domain.AnnotationRewriteToRoot] = "true"
		annotations[annotationRewriteTarget] = "/$2"
		annotations[annotationUseRegex] = "true"
		pathType = networkingv1.PathTypeImplementationSpecific
	}

	backend := networkingv1.IngressBackend{
		Service: &networkingv1.IngressServiceBackend{
			Name: p.ServiceName,
			Port: networkingv1.ServiceBackendPort{Name: p.ServicePortName},
		},
	}

	var rules []networkingv1.IngressRule
	var tls []networkingv1.IngressTLS
	tlsIndex := map[string]int{}
	for _, d := range p.Domains {
		prefixes := d.PathPrefixList
		if len(prefixes) == 0 {
			prefixes = []string{domain.DefaultPathPrefix}
		}
		paths := make([]networkingv1.HTTPIngressPath, 0, len(prefixes))
		for _, prefix := range prefixes {
			path := prefix
			if p.RewriteToRoot {
				path = strings.TrimSuffix(prefix, "/") + rewritePathSuffix
			}
			paths = append(paths, networkingv1.HTTPIngressPath{
				Path:     path,
				PathType: &pathType,
				Backend:  backend,
			})
		}
		rules = append(rules, networkingv1.IngressRule{
			Host: d.Host,
			IngressRuleValue: networkingv1.IngressRuleValue{
				HTTP: &networkingv1.HTTPIngressRuleValue{Paths: paths},
			},
		})

		if d.TLSEnabled && d.TLSSecretName != "" {
			if i, ok := tlsIndex[d.TLSSecretName]; ok {
				tls[i].Hosts = append(tls[i].Hosts, d.Host)
			} else {
				tlsIndex[d.TLSSecretName] = len(tls)
				tls = append(tls, networkingv1.IngressTLS{Hosts: []string{d.Host}, SecretName: d.TLSSecretName})
			}
		}
	}

	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        p.Name,
			Namespace:   p.Namespace,
			Labels:      maps.Clone(p.Labels),
			Annotations: annotations,
		},
		Spec: networkingv1.IngressSpec{
			Rules: rules,
			TLS:   tls,
		},
	}
}

// fromIngress 还原 toIngress 写入的内容，重写相关的注解不回传。
func fromIngress(ing *networkingv1.Ingress) *domain.ProcessIngress {
	p := &domain.ProcessIngress{
		Name:          ing.Name,
		Namespace:     ing.Namespace,
		Labels:        maps.Clone(ing.Labels),
		RewriteToRoot: ing.Annotations[domain.AnnotationRewriteToRoot] == "true",
	}
	if len(ing.Annotations) > 0 {
		p.Annotations = maps.Clone(ing.Annotations)
		delete(p.Annotations, domain.AnnotationRewriteToRoot)
		delete(p.Annotations, annotationRewriteTarget)
		delete(p.Annotations, annotationUseRegex)
	}

	secretOf := map[string]string{}
	for _, t := range ing.Spec.TLS {
		for _, h := range t.Hosts {
			secretOf[h] = t.SecretName
		}
	}

	for _, rule := range ing.Spec.Rules {
		d := domain.IngressDomain{Host: rule.Host}
		if secret, ok := secretOf[rule.Host]; ok {
			d.TLSEnabled = true
			d.TLSSecretName = secret
		}
		if rule.HTTP != nil {
			for _, path := range rule.HTTP.Paths {
				prefix := path.Path
				if p.RewriteToRoot {
					prefix = strings.TrimSuffix(prefix, rewritePathSuffix)
					if prefix == "" {
						prefix = domain.DefaultPathPrefix
					}
				}
				d.PathPrefixList = append(d.PathPrefixList, prefix)
				if p.ServiceName == "" && path.Backend.Service != nil {
					p.ServiceName = path.Backend.Service.Name
					p.ServicePortName = path.Backend.Service.Port.Name
				}
			}
		}
		p.Domains = append(p.Domains, d)
	}
	return p
}
