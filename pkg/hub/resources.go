package hub

import (
	"fmt"

	routev1 "github.com/openshift/api/route/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	KlusterletAddonConfigGVR = schema.GroupVersionResource{
		Group: "agent.open-cluster-management.io", Version: "v1", Resource: "klusterletaddonconfigs"}
	PolicyGVR = schema.GroupVersionResource{
		Group: "policy.open-cluster-management.io", Version: "v1", Resource: "policies"}
	PlacementBindingGVR = schema.GroupVersionResource{
		Group: "policy.open-cluster-management.io", Version: "v1", Resource: "placementbindings"}
	PolicySetGVR = schema.GroupVersionResource{
		Group: "policy.open-cluster-management.io", Version: "v1beta1", Resource: "policysets"}
	PlacementRuleGVR = schema.GroupVersionResource{
		Group: "apps.open-cluster-management.io", Version: "v1", Resource: "placementrules"}
	MultiClusterHubGVR = schema.GroupVersionResource{
		Group: "operator.open-cluster-management.io", Version: "v1", Resource: "multiclusterhubs"}
	MultiClusterEngineGVR = schema.GroupVersionResource{
		Group: "multicluster.openshift.io", Version: "v1", Resource: "multiclusterengines"}
	ClusterServiceVersionGVR = schema.GroupVersionResource{
		Group: "operators.coreos.com", Version: "v1alpha1", Resource: "clusterserviceversions"}
	RouteGVR = routev1.GroupVersion.WithResource("routes")

	ManagedServiceAccountGK = schema.GroupKind{
		Group: "authentication.open-cluster-management.io", Kind: "ManagedServiceAccount"}
	ManagedServiceAccountGVR = schema.GroupVersionResource{
		Group: ManagedServiceAccountGK.Group, Version: "v1alpha1", Resource: "managedserviceaccounts"}
	managedServiceAccountVersions = []string{"v1alpha1", "v1beta1"}
)

// ListKinds maps the resources accessed through the dynamic client to their list kinds.
var ListKinds = map[schema.GroupVersionResource]string{
	KlusterletAddonConfigGVR: "KlusterletAddonConfigList",
	PolicyGVR:                "PolicyList",
	PlacementBindingGVR:      "PlacementBindingList",
	PolicySetGVR:             "PolicySetList",
	PlacementRuleGVR:         "PlacementRuleList",
	MultiClusterHubGVR:       "MultiClusterHubList",
	MultiClusterEngineGVR:    "MultiClusterEngineList",
	ClusterServiceVersionGVR: "ClusterServiceVersionList",
	RouteGVR:                 "RouteList",
	ManagedServiceAccountGVR: "ManagedServiceAccountList",
	{Group: ManagedServiceAccountGK.Group, Version: "v1beta1", Resource: "managedserviceaccounts"}: "ManagedServiceAccountList",
}

// ManagedServiceAccountResource resolves the served version of the ManagedServiceAccount API,
// preferring v1alpha1 and falling back to v1beta1.
func (c *Clients) ManagedServiceAccountResource() (schema.GroupVersionResource, error) {
	if c.RESTMapper == nil {
		return ManagedServiceAccountGVR, nil
	}
	mapping, err := c.RESTMapper.RESTMapping(ManagedServiceAccountGK, managedServiceAccountVersions...)
	if err != nil {
		if meta.IsNoMatchError(err) {
			return schema.GroupVersionResource{}, fmt.Errorf("the ManagedServiceAccount API is not served by the hub: %w", err)
		}
		return schema.GroupVersionResource{}, err
	}
	return mapping.Resource, nil
}
