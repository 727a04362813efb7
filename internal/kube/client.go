// Package kube locates a Prometheus-compatible metrics service inside a
// Kubernetes cluster and, when running outside it, tunnels to that service.
package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client bundles a clientset with the REST config needed for port-forwarding.
type Client struct {
	Clientset  kubernetes.Interface
	RESTConfig *rest.Config
	// Context is the kubeconfig context in use; empty when in-cluster.
	Context   string
	InCluster bool
}

// NewClient resolves a kubeconfig (explicit path, $KUBECONFIG, ~/.kube/config)
// and falls back to in-cluster config when none exists.
func NewClient(kubeconfig, kubeContext string) (*Client, error) {
	restConfig, currentContext, inCluster, err := buildConfig(kubeconfig, kubeContext)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}

	return &Client{
		Clientset:  clientset,
		RESTConfig: restConfig,
		Context:    currentContext,
		InCluster:  inCluster,
	}, nil
}

func kubeconfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".kube", "config")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func buildConfig(kubeconfig, kubeContext string) (*rest.Config, string, bool, error) {
	path := kubeconfigPath(kubeconfig)
	if path == "" {
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return nil, "", false, fmt.Errorf("no kubeconfig found and not running in-cluster: %w", err)
		}
		return restConfig, "", true, nil
	}

	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: path},
		&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
	)

	raw, err := clientConfig.RawConfig()
	if err != nil {
		return nil, "", false, err
	}
	current := raw.CurrentContext
	if kubeContext != "" {
		current = kubeContext
	}

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, "", false, err
	}
	return restConfig, current, false, nil
}
