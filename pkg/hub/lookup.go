package hub

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	addonv1alpha1 "open-cluster-management.io/api/addon/v1alpha1"
	clusterv1 "open-cluster-management.io/api/cluster/v1"
)

// GetManagedCluster returns the managed cluster, or nil when it does not exist.
func (c *Clients) GetManagedCluster(ctx context.Context, name string) (*clusterv1.ManagedCluster, error) {
	cluster, err := c.ClusterClient.ClusterV1().ManagedClusters().Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return cluster, nil
}

func (c *Clients) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	_, err := c.KubeClient.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// GetManagedClusterAddOn returns the addon in the cluster namespace, or nil when it does not exist.
func (c *Clients) GetManagedClusterAddOn(ctx context.Context, clusterName, addonName string) (*addonv1alpha1.ManagedClusterAddOn, error) {
	addon, err := c.AddonClient.AddonV1alpha1().ManagedClusterAddOns(clusterName).Get(ctx, addonName, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return addon, nil
}

// GetClusterManagementAddOn returns the hub side registration of an addon, or nil when the
// addon is not installed on the hub.
func (c *Clients) GetClusterManagementAddOn(ctx context.Context, addonName string) (*addonv1alpha1.ClusterManagementAddOn, error) {
	cma, err := c.AddonClient.AddonV1alpha1().ClusterManagementAddOns().Get(ctx, addonName, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return cma, nil
}

// IsAddOnAvailable reports whether the Available condition of the addon is true.
func IsAddOnAvailable(addon *addonv1alpha1.ManagedClusterAddOn) bool {
	if addon == nil {
		return false
	}
	return meta.IsStatusConditionTrue(addon.Status.Conditions, addonv1alpha1.ManagedClusterAddOnConditionAvailable)
}

func (c *Clients) CheckAddOnAvailable(ctx context.Context, clusterName, addonName string) (bool, error) {
	addon, err := c.GetManagedClusterAddOn(ctx, clusterName, addonName)
	if err != nil {
		return false, err
	}
	return IsAddOnAvailable(addon), nil
}
