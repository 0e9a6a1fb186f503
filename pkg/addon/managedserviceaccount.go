package addon

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

var managedServiceAccountFeaturePath = []string{"spec", "componentConfig", "managedServiceAccount", "enable"}

type managedServiceAccount struct {
	base
}

func (m *managedServiceAccount) CheckFeature(ctx context.Context) error {
	return m.checkClusterManagementAddOn(ctx)
}

func (m *managedServiceAccount) Enable(ctx context.Context) (*result.Status, error) {
	return m.enableManagedClusterAddOn(ctx)
}

func (m *managedServiceAccount) Disable(ctx context.Context) (*result.Status, error) {
	return m.disableManagedClusterAddOn(ctx)
}

func (m *managedServiceAccount) EnableFeature(ctx context.Context) (bool, error) {
	changed, err := m.toggleFeature(ctx, true)
	if err != nil {
		return false, err
	}

	if m.wait {
		cma, err := m.clients.GetClusterManagementAddOn(ctx, m.name)
		if err != nil {
			return changed, err
		}
		if cma == nil {
			if err := m.waitForFeatureEnabled(ctx); err != nil {
				return changed, err
			}
		}
	}
	return changed, nil
}

func (m *managedServiceAccount) DisableFeature(ctx context.Context) (bool, error) {
	return m.toggleFeature(ctx, false)
}

// toggleFeature sets the feature on the MultiClusterHub, or on the MultiClusterEngine of a hub
// which runs the engine alone.
func (m *managedServiceAccount) toggleFeature(ctx context.Context, enabled bool) (bool, error) {
	logger := klog.FromContext(ctx)
	var client dynamic.ResourceInterface

	owner, err := m.clients.GetMultiClusterHub(ctx, true)
	if err != nil {
		return false, err
	}
	if owner != nil {
		client = m.clients.DynamicClient.Resource(hub.MultiClusterHubGVR).Namespace(owner.GetNamespace())
	} else {
		owner, err = m.clients.GetMultiClusterEngine(ctx)
		if err != nil {
			return false, err
		}
		client = m.clients.DynamicClient.Resource(hub.MultiClusterEngineGVR)
	}

	if helpers.NestedBool(owner, managedServiceAccountFeaturePath...) == enabled {
		return false, nil
	}

	if err := patchFeature(ctx, client, owner, managedServiceAccountFeaturePath, enabled); err != nil {
		return false, err
	}
	logger.V(2).Info("Feature toggled", "feature", m.name, "kind", owner.GetKind(), "name", owner.GetName(), "enabled", enabled)
	return true, nil
}

// patchFeature sets a nested field of the object with a merge patch.
func patchFeature(ctx context.Context, client dynamic.ResourceInterface, obj *unstructured.Unstructured, path []string, value interface{}) error {
	body := map[string]interface{}{}
	if err := unstructured.SetNestedField(body, value, path...); err != nil {
		return err
	}
	patch, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if _, err := client.Patch(ctx, obj.GetName(), types.MergePatchType, patch, metav1.PatchOptions{}); err != nil {
		if ns := obj.GetNamespace(); len(ns) > 0 {
			return fmt.Errorf("failed to patch %s %s in %s namespace: %w", obj.GetKind(), obj.GetName(), ns, err)
		}
		return fmt.Errorf("failed to patch %s %s: %w", obj.GetKind(), obj.GetName(), err)
	}
	return nil
}
