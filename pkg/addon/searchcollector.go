package addon

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/hub"
)

var searchDisablePath = []string{"spec", "componentConfig", "search", "disable"}

// searchCollector is a klusterlet addon backed by the search feature of the MultiClusterHub.
type searchCollector struct {
	*klusterletAddon
}

func (s *searchCollector) CheckFeature(ctx context.Context) error {
	mch, err := s.clients.GetMultiClusterHub(ctx, false)
	if err != nil {
		return err
	}
	if !searchEnabled(mch) {
		return fmt.Errorf("failed to check feature: %s is not enabled", s.name)
	}
	return nil
}

func (s *searchCollector) EnableFeature(ctx context.Context) (bool, error) {
	return s.toggleFeature(ctx, true)
}

func (s *searchCollector) DisableFeature(ctx context.Context) (bool, error) {
	return s.toggleFeature(ctx, false)
}

func (s *searchCollector) toggleFeature(ctx context.Context, enabled bool) (bool, error) {
	mch, err := s.clients.GetMultiClusterHub(ctx, false)
	if err != nil {
		return false, err
	}
	if searchEnabled(mch) == enabled {
		return false, nil
	}

	client := s.clients.DynamicClient.Resource(hub.MultiClusterHubGVR).Namespace(mch.GetNamespace())
	if err := patchFeature(ctx, client, mch, searchDisablePath, !enabled); err != nil {
		return false, err
	}
	klog.FromContext(ctx).V(2).Info("Feature toggled", "feature", s.name, "enabled", enabled)
	return true, nil
}

// searchEnabled reports whether search is on. Search is on when no search config exists. Once a
// search config exists, only an explicit disable: false turns it on.
func searchEnabled(mch *unstructured.Unstructured) bool {
	search, found, _ := unstructured.NestedFieldNoCopy(mch.Object, searchDisablePath[:len(searchDisablePath)-1]...)
	if !found || search == nil {
		return true
	}
	disable, found, err := unstructured.NestedBool(mch.Object, searchDisablePath...)
	return err == nil && found && !disable
}
