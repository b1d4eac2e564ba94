package kubeclient

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const userAgent = "stale-node-controller"

var inClusterConfig = rest.InClusterConfig

// Get creates a Kubernetes clientset for the given rest config.
func Get(cfg *rest.Config) (*kubernetes.Clientset, error) {
	return kubernetes.NewForConfig(rest.AddUserAgent(rest.CopyConfig(cfg), userAgent))
}

// GetRestConfig returns a *rest.Config. An explicit kubeconfig path wins; otherwise
// in-cluster config is tried before falling back to $HOME/.kube/config.
func GetRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		if _, err := os.Stat(kubeconfig); err != nil {
			return nil, fmt.Errorf("kubeconfig %s: %w", kubeconfig, err)
		}
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig %s: %w", kubeconfig, err)
		}
		return cfg, nil
	}

	if cfg, err := inClusterConfig(); err == nil {
		return cfg, nil
	}

	fallback := filepath.Join(homeDir(), ".kube", "config")
	if _, err := os.Stat(fallback); os.IsNotExist(err) {
		return nil, fmt.Errorf("kubeconfig not found and not running in-cluster")
	}
	return clientcmd.BuildConfigFromFlags("", fallback)
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // for Windows
}
