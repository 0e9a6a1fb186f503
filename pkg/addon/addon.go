package addon

import (
	"context"
	"fmt"
	"time"

	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

const (
	ClusterProxyAddonName          = "cluster-proxy"
	ManagedServiceAccountAddonName = "managed-serviceaccount"
	PolicyControllerAddonName      = "policy-controller"
	CertPolicyControllerAddonName  = "cert-policy-controller"
	IAMPolicyControllerAddonName   = "iam-policy-controller"
	ApplicationManagerAddonName    = "application-manager"
	SearchCollectorAddonName       = "search-collector"
)

// Addon enables and disables an addon on one managed cluster.
type Addon interface {
	Name() string
	// CheckFeature returns an error when the hub does not provide the addon.
	CheckFeature(ctx context.Context) error
	Enable(ctx context.Context) (*result.Status, error)
	Disable(ctx context.Context) (*result.Status, error)
}

// FeatureToggler is implemented by addons which are switched on and off as a hub feature.
type FeatureToggler interface {
	EnableFeature(ctx context.Context) (bool, error)
	DisableFeature(ctx context.Context) (bool, error)
}

// Names lists the supported addons.
var Names = []string{
	ClusterProxyAddonName,
	ManagedServiceAccountAddonName,
	PolicyControllerAddonName,
	CertPolicyControllerAddonName,
	IAMPolicyControllerAddonName,
	ApplicationManagerAddonName,
	SearchCollectorAddonName,
}

// FeatureNames lists the addons which can be toggled as hub features.
var FeatureNames = []string{
	ClusterProxyAddonName,
	ManagedServiceAccountAddonName,
	SearchCollectorAddonName,
}

// IsKlusterletAddon reports whether the addon is switched through the KlusterletAddonConfig.
func IsKlusterletAddon(name string) bool {
	_, ok := klusterletAddonFields[name]
	return ok
}

// New returns the addon with the given name for the cluster. cluster may be empty when only
// the hub feature is toggled.
func New(name string, clients *hub.Clients, cluster string, wait bool, timeout time.Duration) (Addon, error) {
	b := base{
		name:    name,
		clients: clients,
		cluster: cluster,
		wait:    wait,
		timeout: timeout,
	}
	switch name {
	case ClusterProxyAddonName:
		return &clusterProxy{base: b}, nil
	case ManagedServiceAccountAddonName:
		return &managedServiceAccount{base: b}, nil
	case SearchCollectorAddonName:
		return &searchCollector{klusterletAddon: newKlusterletAddon(b)}, nil
	case PolicyControllerAddonName, CertPolicyControllerAddonName, IAMPolicyControllerAddonName, ApplicationManagerAddonName:
		return newKlusterletAddon(b), nil
	}
	return nil, fmt.Errorf("unsupported addon %q", name)
}

// NewFeature returns the hub feature toggle of the addon.
func NewFeature(name string, clients *hub.Clients, wait bool, timeout time.Duration) (FeatureToggler, error) {
	a, err := New(name, clients, "", wait, timeout)
	if err != nil {
		return nil, err
	}
	toggler, ok := a.(FeatureToggler)
	if !ok {
		return nil, fmt.Errorf("addon %q cannot be toggled as a feature", name)
	}
	return toggler, nil
}
