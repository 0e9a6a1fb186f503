package addon

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	"open-cluster-management.io/addon-framework/pkg/addonfactory"
	addonv1alpha1 "open-cluster-management.io/api/addon/v1alpha1"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

type base struct {
	name    string
	clients *hub.Clients
	cluster string
	wait    bool
	timeout time.Duration
}

func (b *base) Name() string {
	return b.name
}

func (b *base) checkClusterManagementAddOn(ctx context.Context) error {
	cma, err := b.clients.GetClusterManagementAddOn(ctx, b.name)
	if err != nil {
		return err
	}
	if cma == nil {
		return fmt.Errorf("failed to check feature: %s of ClusterManagementAddOn is not enabled", b.name)
	}
	return nil
}

// enableManagedClusterAddOn creates the ManagedClusterAddOn in the cluster namespace and
// reports success once the addon is available.
func (b *base) enableManagedClusterAddOn(ctx context.Context) (*result.Status, error) {
	logger := klog.FromContext(ctx)
	available, err := b.clients.CheckAddOnAvailable(ctx, b.cluster, b.name)
	if err != nil {
		return nil, err
	}
	if available {
		return result.Unchanged("addon: %s is already enabled in %s", b.name, b.cluster), nil
	}

	if err := b.ensureManagedClusterAddOn(ctx); err != nil {
		return nil, err
	}

	if b.wait {
		if _, err := b.waitForAddOnAvailable(ctx); err != nil {
			return nil, err
		}
	}

	available, err = b.clients.CheckAddOnAvailable(ctx, b.cluster, b.name)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("failed to enable addon: %s", b.name)
	}
	logger.V(2).Info("Addon enabled", "addon", b.name, "cluster", b.cluster)
	return result.Changed("addon: %s enabled in %s successfully", b.name, b.cluster), nil
}

func (b *base) ensureManagedClusterAddOn(ctx context.Context) error {
	logger := klog.FromContext(ctx)
	addons := b.clients.AddonClient.AddonV1alpha1().ManagedClusterAddOns(b.cluster)
	_, err := addons.Get(ctx, b.name, metav1.GetOptions{})
	switch {
	case err == nil:
		return nil
	case !apierrors.IsNotFound(err):
		return err
	}

	addon := &addonv1alpha1.ManagedClusterAddOn{
		ObjectMeta: metav1.ObjectMeta{
			Name:      b.name,
			Namespace: b.cluster,
		},
		Spec: addonv1alpha1.ManagedClusterAddOnSpec{
			InstallNamespace: addonfactory.AddonDefaultInstallNamespace,
		},
	}
	if _, err := addons.Create(ctx, addon, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create managedclusteraddon %s: %w", b.name, err)
	}
	logger.V(2).Info("ManagedClusterAddOn created", "addon", b.name, "cluster", b.cluster)
	return nil
}

func (b *base) disableManagedClusterAddOn(ctx context.Context) (*result.Status, error) {
	addon, err := b.clients.GetManagedClusterAddOn(ctx, b.cluster, b.name)
	if err != nil {
		return nil, err
	}
	if addon == nil {
		return result.Unchanged("addon: %s in %s is not found or already disabled", b.name, b.cluster), nil
	}

	err = b.clients.AddonClient.AddonV1alpha1().ManagedClusterAddOns(b.cluster).Delete(ctx, b.name, metav1.DeleteOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return result.Unchanged("addon: %s in %s is not found or already disabled", b.name, b.cluster), nil
	case err != nil:
		return nil, fmt.Errorf("failed to disable addon: %s: %w", b.name, err)
	}
	return result.Changed("addon: %s disabled in %s successfully", b.name, b.cluster), nil
}

func (b *base) waitForAddOnAvailable(ctx context.Context) (bool, error) {
	addons := b.clients.AddonClient.AddonV1alpha1().ManagedClusterAddOns(b.cluster)
	return helpers.WaitFor(ctx, addons.Get, addons.Watch, b.name, b.timeout,
		func(addon *addonv1alpha1.ManagedClusterAddOn, exists bool) bool {
			return exists && hub.IsAddOnAvailable(addon)
		})
}

func (b *base) waitForAddOnDeleted(ctx context.Context) (bool, error) {
	addons := b.clients.AddonClient.AddonV1alpha1().ManagedClusterAddOns(b.cluster)
	return helpers.WaitFor(ctx, addons.Get, addons.Watch, b.name, b.timeout,
		helpers.Deleted[*addonv1alpha1.ManagedClusterAddOn])
}

// waitForFeatureEnabled waits for the ClusterManagementAddOn registered by the hub once the
// feature is on.
func (b *base) waitForFeatureEnabled(ctx context.Context) error {
	cmas := b.clients.AddonClient.AddonV1alpha1().ClusterManagementAddOns()
	ok, err := helpers.WaitFor(ctx, cmas.Get, cmas.Watch, b.name, b.timeout,
		helpers.Exists[*addonv1alpha1.ClusterManagementAddOn])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("timeout waiting for the feature %s to be enabled.", b.name)
	}
	return nil
}
