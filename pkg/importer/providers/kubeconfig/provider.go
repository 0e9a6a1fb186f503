package kubeconfig

import (
	"context"
	"fmt"

	"k8s.io/client-go/tools/clientcmd"

	"open-cluster-management.io/ocmplus/pkg/importer/providers"
)

// Provider connects to the target cluster with a kubeconfig file.
type Provider struct {
	path    string
	context string
}

func NewProvider(path, kubeContext string) *Provider {
	return &Provider{path: path, context: kubeContext}
}

func (p *Provider) Name() string {
	return "kubeconfig"
}

func (p *Provider) Clients(_ context.Context) (*providers.Clients, error) {
	if len(p.path) == 0 {
		return nil, fmt.Errorf("cluster kubeconfig is required")
	}
	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: p.path}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: p.context}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster kubeconfig %s: %w", p.path, err)
	}
	return providers.NewClient(config)
}
