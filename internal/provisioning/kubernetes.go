// Package provisioning creates the per-account namespace in the cluster.
//
// Provisioning is fire-and-forget: callers hand over a username and never learn the result.
// Failures are logged and counted but not retried, and nothing reconciles missed namespaces.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Metadata set on every provisioned namespace
const (
	ManagedByLabel  = "app.kubernetes.io/managed-by"
	ManagedByValue  = "kubeusers"
	OwnerAnnotation = "kubeusers.io/owner"
)

// ErrInvalidNamespaceName is returned when a username does not yield a valid DNS-1123 label
var ErrInvalidNamespaceName = errors.New("invalid namespace name")

// KubernetesProvisioner creates namespaces through the Kubernetes API
type KubernetesProvisioner struct {
	client kubernetes.Interface
	logger *zap.Logger
}

// NewKubernetesProvisioner creates a provisioner over client
func NewKubernetesProvisioner(client kubernetes.Interface, logger *zap.Logger) *KubernetesProvisioner {
	return &KubernetesProvisioner{
		client: client,
		logger: logger,
	}
}

// EnsureNamespace creates the namespace for username. It reports created=false without an
// error when the namespace already exists.
func (p *KubernetesProvisioner) EnsureNamespace(ctx context.Context, username string) (bool, error) {
	name := models.NamespaceName(username)
	if errs := validation.IsDNS1123Label(name); len(errs) > 0 {
		return false, fmt.Errorf("%w %q: %s", ErrInvalidNamespaceName, name, strings.Join(errs, "; "))
	}

	namespace := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				ManagedByLabel: ManagedByValue,
			},
			Annotations: map[string]string{
				OwnerAnnotation: username,
			},
		},
	}

	_, err := p.client.CoreV1().Namespaces().Create(ctx, namespace, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		p.logger.Info("namespace already exists", zap.String("namespace", name))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create namespace %q: %w", name, err)
	}

	p.logger.Info("namespace created", zap.String("namespace", name), zap.String("username", username))
	return true, nil
}

// NewClientset builds a clientset from the in-cluster service account, falling back to
// kubeconfigPath (or the default ~/.kube/config when empty) outside a cluster.
func NewClientset(kubeconfigPath string) (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if errors.Is(err, rest.ErrNotInCluster) {
		if kubeconfigPath == "" {
			kubeconfigPath = clientcmd.RecommendedHomeFile
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return client, nil
}
