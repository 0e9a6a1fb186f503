package hub

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
)

const (
	// EngineCSVPrefix is the name prefix of the multicluster engine ClusterServiceVersions.
	EngineCSVPrefix = "multicluster-engine"

	defaultEngineNamespace = "multicluster-engine"
)

// GetMultiClusterHub returns the first MultiClusterHub of the hub. With ignoreNotFound set, a
// hub without the MultiClusterHub API or without any instance yields nil instead of an error.
func (c *Clients) GetMultiClusterHub(ctx context.Context, ignoreNotFound bool) (*unstructured.Unstructured, error) {
	return c.getFirst(ctx, MultiClusterHubGVR, "MultiClusterHub", ignoreNotFound)
}

// GetMultiClusterEngine returns the first MultiClusterEngine of the hub.
func (c *Clients) GetMultiClusterEngine(ctx context.Context) (*unstructured.Unstructured, error) {
	return c.getFirst(ctx, MultiClusterEngineGVR, "MultiClusterEngine", false)
}

func (c *Clients) getFirst(ctx context.Context, gvr schema.GroupVersionResource, kind string, ignoreNotFound bool) (*unstructured.Unstructured, error) {
	list, err := c.DynamicClient.Resource(gvr).List(ctx, metav1.ListOptions{})
	switch {
	case apierrors.IsNotFound(err) && ignoreNotFound:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	if len(list.Items) < 1 {
		if ignoreNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s", kind)
	}

	first := list.Items[0]
	var obj *unstructured.Unstructured
	if ns := first.GetNamespace(); len(ns) > 0 {
		obj, err = c.DynamicClient.Resource(gvr).Namespace(ns).Get(ctx, first.GetName(), metav1.GetOptions{})
	} else {
		obj, err = c.DynamicClient.Resource(gvr).Get(ctx, first.GetName(), metav1.GetOptions{})
	}
	if err != nil {
		if len(first.GetNamespace()) > 0 {
			return nil, fmt.Errorf("failed to get %s %s in %s namespace: %w", kind, first.GetName(), first.GetNamespace(), err)
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, first.GetName(), err)
	}
	return obj, nil
}

// OCMInstallNamespace returns the namespace of the only MultiClusterHub.
func (c *Clients) OCMInstallNamespace(ctx context.Context) (string, error) {
	list, err := c.DynamicClient.Resource(MultiClusterHubGVR).List(ctx, metav1.ListOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return "", fmt.Errorf("failed to list MultiClusterHub: %w", err)
	}
	if list == nil || len(list.Items) != 1 {
		return "", fmt.Errorf("failed to detect ocm namespace")
	}
	return list.Items[0].GetNamespace(), nil
}

// EngineVersion returns the version of the multicluster engine, read from the status of the
// MultiClusterEngine or, when that is not reported yet, from its ClusterServiceVersion.
func (c *Clients) EngineVersion(ctx context.Context) (string, error) {
	logger := klog.FromContext(ctx)
	mce, err := c.GetMultiClusterEngine(ctx)
	if err != nil {
		return "", err
	}
	if v, _, _ := unstructured.NestedString(mce.Object, "status", "currentVersion"); len(v) > 0 {
		return v, nil
	}

	namespace, _, _ := unstructured.NestedString(mce.Object, "spec", "targetNamespace")
	if len(namespace) == 0 {
		namespace = defaultEngineNamespace
	}
	logger.V(4).Info("MultiClusterEngine does not report a version, reading the ClusterServiceVersion", "namespace", namespace)

	csvs, err := c.DynamicClient.Resource(ClusterServiceVersionGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to list ClusterServiceVersion in %s namespace: %w", namespace, err)
	}
	for i := range csvs.Items {
		if v := helpers.GetCSVVersion(&csvs.Items[i], EngineCSVPrefix); len(v) > 0 {
			return v, nil
		}
	}
	return "", fmt.Errorf("failed to get the version of MultiClusterEngine %s", mce.GetName())
}
