package addon

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

// klusterletAddonFields maps addon names to their field in the KlusterletAddonConfig spec.
var klusterletAddonFields = map[string]string{
	PolicyControllerAddonName:     "policyController",
	CertPolicyControllerAddonName: "certPolicyController",
	IAMPolicyControllerAddonName:  "iamPolicyController",
	ApplicationManagerAddonName:   "applicationManager",
	SearchCollectorAddonName:      "searchCollector",
}

// klusterletAddon is an addon deployed by the klusterlet addon controller and switched on and
// off through the KlusterletAddonConfig of the cluster.
type klusterletAddon struct {
	base
	field string
}

func newKlusterletAddon(b base) *klusterletAddon {
	return &klusterletAddon{base: b, field: klusterletAddonFields[b.name]}
}

func (k *klusterletAddon) CheckFeature(ctx context.Context) error {
	return k.checkClusterManagementAddOn(ctx)
}

func (k *klusterletAddon) Enable(ctx context.Context) (*result.Status, error) {
	status, err := k.ensureKlusterletAddon(ctx, true)
	if err != nil || status != nil {
		return status, err
	}

	if k.wait {
		if _, err := k.waitForAddOnAvailable(ctx); err != nil {
			return nil, err
		}
	}

	available, err := k.clients.CheckAddOnAvailable(ctx, k.cluster, k.name)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("failed to enable addon: %s", k.name)
	}
	return result.Changed("addon: %s enabled in %s successfully", k.name, k.cluster), nil
}

func (k *klusterletAddon) Disable(ctx context.Context) (*result.Status, error) {
	status, err := k.ensureKlusterletAddon(ctx, false)
	if err != nil || status != nil {
		return status, err
	}

	if k.wait {
		if _, err := k.waitForAddOnDeleted(ctx); err != nil {
			return nil, err
		}
	}

	available, err := k.clients.CheckAddOnAvailable(ctx, k.cluster, k.name)
	if err != nil {
		return nil, err
	}
	if available {
		return nil, fmt.Errorf("failed to disable addon: %s", k.name)
	}
	return result.Changed("addon: %s disabled in %s successfully", k.name, k.cluster), nil
}

// ensureKlusterletAddon sets the addon toggle of the KlusterletAddonConfig. It returns a
// status only when the config is already in the desired state.
func (k *klusterletAddon) ensureKlusterletAddon(ctx context.Context, enabled bool) (*result.Status, error) {
	logger := klog.FromContext(ctx)
	configs := k.clients.DynamicClient.Resource(hub.KlusterletAddonConfigGVR).Namespace(k.cluster)
	list, err := configs.List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list KlusterletAddonConfig in namespace: %s: %w", k.cluster, err)
	}
	if len(list.Items) != 1 {
		return nil, fmt.Errorf("KlusterletAddonConfig in namespace: %s not found", k.cluster)
	}

	config := &list.Items[0]
	if helpers.NestedBool(config, "spec", k.field, "enabled") == enabled {
		return result.Unchanged("addon: %s is already %s in %s", k.name, enabledString(enabled), k.cluster), nil
	}

	patch, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			k.field: map[string]interface{}{
				"enabled": enabled,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if _, err := configs.Patch(ctx, config.GetName(), types.MergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return nil, fmt.Errorf("failed to %s klusterletaddonconfig addon: %s: %w", verb(enabled), k.name, err)
	}
	logger.V(2).Info("KlusterletAddonConfig patched", "addon", k.name, "cluster", k.cluster, "enabled", enabled)
	return nil, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func verb(enabled bool) string {
	if enabled {
		return "enable"
	}
	return "disable"
}
