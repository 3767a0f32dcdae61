package kubernetes

import (
	"context"
	"maps"

	"github.com/chiwei-platform/bkapp-engine/internal/port"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

var _ port.SecretStore = (*SecretStore)(nil)

const labelManagedBy = "app.kubernetes.io/managed-by"

const managedByValue = "bkapp-engine"

type SecretStore struct {
	client kubernetes.Interface
}

func NewSecretStore(client kubernetes.Interface) *SecretStore {
	return &SecretStore{client: client}
}

// EnsureTLSSecret 内容相同时不发起更新。
func (s *SecretStore) EnsureTLSSecret(ctx context.Context, namespace, name, cert, key string) error {
	desired := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{labelManagedBy: managedByValue},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       []byte(cert),
			corev1.TLSPrivateKeyKey: []byte(key),
		},
	}

	client := s.client.CoreV1().Secrets(namespace)
	existing, err := client.Get(ctx, name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		_, err = client.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if string(existing.Data[corev1.TLSCertKey]) == cert && string(existing.Data[corev1.TLSPrivateKeyKey]) == key {
		return nil
	}
	existing.Data = desired.Data
	_, err = client.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}

func (s *SecretStore) EnsureConfigMap(ctx context.Context, namespace, name string, data map[string]string) error {
	desired := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{labelManagedBy: managedByValue},
		},
		Data: maps.Clone(data),
	}

	client := s.client.CoreV1().ConfigMaps(namespace)
	existing, err := client.Get(ctx, name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		_, err = client.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if maps.Equal(existing.Data, data) {
		return nil
	}
	existing.Data = desired.Data
	_, err = client.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}
