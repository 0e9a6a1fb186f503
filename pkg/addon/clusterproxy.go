package addon

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

const (
	// ClusterProxyComponentName is the MultiClusterEngine component running the cluster proxy.
	ClusterProxyComponentName = "cluster-proxy-addon"

	// engineComponentsVersion is the first engine version configuring the cluster proxy
	// through spec.overrides.components.
	engineComponentsVersion = "2.1.0"
)

var clusterProxyHubPath = []string{"spec", "enableClusterProxyAddon"}

type clusterProxy struct {
	base
}

func (c *clusterProxy) CheckFeature(ctx context.Context) error {
	enabled, err := c.featureEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("failed to check feature: %s is not enabled", c.name)
	}
	return nil
}

func (c *clusterProxy) Enable(ctx context.Context) (*result.Status, error) {
	return c.enableManagedClusterAddOn(ctx)
}

func (c *clusterProxy) Disable(ctx context.Context) (*result.Status, error) {
	return c.disableManagedClusterAddOn(ctx)
}

func (c *clusterProxy) EnableFeature(ctx context.Context) (bool, error) {
	changed, err := c.toggleFeature(ctx, true)
	if err != nil {
		return false, err
	}
	if c.wait {
		cma, err := c.clients.GetClusterManagementAddOn(ctx, c.name)
		if err != nil {
			return changed, err
		}
		if cma == nil {
			if err := c.waitForFeatureEnabled(ctx); err != nil {
				return changed, err
			}
		}
	}
	return changed, nil
}

func (c *clusterProxy) DisableFeature(ctx context.Context) (bool, error) {
	return c.toggleFeature(ctx, false)
}

// engine returns the MultiClusterEngine when it configures the cluster proxy as a component,
// or nil when the MultiClusterHub flag is used instead.
func (c *clusterProxy) engine(ctx context.Context) (*unstructured.Unstructured, error) {
	logger := klog.FromContext(ctx)
	version, err := c.clients.EngineVersion(ctx)
	if err != nil {
		logger.V(4).Info("Unable to detect the engine version, using the MultiClusterHub", "err", err)
		return nil, nil
	}
	if !helpers.CompareVersion(version, engineComponentsVersion) {
		return nil, nil
	}
	return c.clients.GetMultiClusterEngine(ctx)
}

func (c *clusterProxy) featureEnabled(ctx context.Context) (bool, error) {
	mce, err := c.engine(ctx)
	if err != nil {
		return false, err
	}
	if mce != nil {
		return helpers.GetComponentStatus(mce, ClusterProxyComponentName)
	}

	mch, err := c.clients.GetMultiClusterHub(ctx, false)
	if err != nil {
		return false, err
	}
	return helpers.NestedBool(mch, clusterProxyHubPath...), nil
}

func (c *clusterProxy) toggleFeature(ctx context.Context, enabled bool) (bool, error) {
	logger := klog.FromContext(ctx)
	mce, err := c.engine(ctx)
	if err != nil {
		return false, err
	}

	if mce == nil {
		mch, err := c.clients.GetMultiClusterHub(ctx, false)
		if err != nil {
			return false, err
		}
		if helpers.NestedBool(mch, clusterProxyHubPath...) == enabled {
			return false, nil
		}
		client := c.clients.DynamicClient.Resource(hub.MultiClusterHubGVR).Namespace(mch.GetNamespace())
		if err := patchFeature(ctx, client, mch, clusterProxyHubPath, enabled); err != nil {
			return false, err
		}
		logger.V(2).Info("Feature toggled", "feature", c.name, "kind", "MultiClusterHub", "enabled", enabled)
		return true, nil
	}

	current, err := helpers.GetComponentStatus(mce, ClusterProxyComponentName)
	if err != nil {
		return false, err
	}
	if current == enabled {
		return false, nil
	}

	required := mce.DeepCopy()
	if err := helpers.SetComponentStatus(required, ClusterProxyComponentName, enabled); err != nil {
		return false, err
	}
	components, _, err := unstructured.NestedSlice(required.Object, "spec", "overrides", "components")
	if err != nil {
		return false, err
	}
	// a merge patch replaces lists, so the full component list is sent
	patch, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			"overrides": map[string]interface{}{
				"components": components,
			},
		},
	})
	if err != nil {
		return false, err
	}
	_, err = c.clients.DynamicClient.Resource(hub.MultiClusterEngineGVR).Patch(
		ctx, mce.GetName(), types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to patch MultiClusterEngine %s: %w", mce.GetName(), err)
	}
	logger.V(2).Info("Feature toggled", "feature", c.name, "kind", "MultiClusterEngine", "enabled", enabled)
	return true, nil
}
