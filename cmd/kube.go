package cmd

import (
	"fmt"

	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/config"
)

// namespace returns the --namespace flag or the operator's default namespace.
func namespace() string {
	if rootNamespace != "" {
		return rootNamespace
	}
	return config.GetDefaultConfig().Namespace
}

// newKubeClient connects to the cluster of the current kubeconfig context.
func newKubeClient() (*theiaclient.Client, *rest.Config, error) {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get Kubernetes config: %w", err)
	}
	c, err := theiaclient.NewForConfig(restConfig, namespace())
	if err != nil {
		return nil, nil, err
	}
	return c, restConfig, nil
}
