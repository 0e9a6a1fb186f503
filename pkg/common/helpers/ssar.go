package helpers

import (
	"context"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

func CreateSelfSubjectAccessReviews(
	ctx context.Context,
	kubeClient kubernetes.Interface,
	selfSubjectAccessReviews []authorizationv1.SelfSubjectAccessReview) (bool, *authorizationv1.SelfSubjectAccessReview, error) {

	for i := range selfSubjectAccessReviews {
		subjectAccessReview := selfSubjectAccessReviews[i]

		ssar, err := kubeClient.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, &subjectAccessReview, metav1.CreateOptions{})
		if err != nil {
			return false, &subjectAccessReview, err
		}
		if !ssar.Status.Allowed {
			return false, &subjectAccessReview, nil
		}
	}
	return true, nil, nil
}

// CheckAccess runs the reviews and returns an error naming the first denied request.
func CheckAccess(ctx context.Context, kubeClient kubernetes.Interface, reviews []authorizationv1.SelfSubjectAccessReview) error {
	allowed, denied, err := CreateSelfSubjectAccessReviews(ctx, kubeClient, reviews)
	if err != nil {
		return fmt.Errorf("failed to review access: %w", err)
	}
	if allowed {
		return nil
	}
	attrs := denied.Spec.ResourceAttributes
	resource := attrs.Resource
	if len(attrs.Group) > 0 {
		resource = resource + "." + attrs.Group
	}
	if len(attrs.Namespace) > 0 {
		return fmt.Errorf("not allowed to %s %s in namespace %s on the hub", attrs.Verb, resource, attrs.Namespace)
	}
	return fmt.Errorf("not allowed to %s %s on the hub", attrs.Verb, resource)
}

// GetImportSSARs returns the access reviews for importing a cluster into the hub.
func GetImportSSARs(clusterName string) []authorizationv1.SelfSubjectAccessReview {
	var reviews []authorizationv1.SelfSubjectAccessReview
	clusterResource := authorizationv1.ResourceAttributes{
		Group:    "cluster.open-cluster-management.io",
		Resource: "managedclusters",
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(clusterResource, "create", "get", "watch")...)

	addonConfigResource := authorizationv1.ResourceAttributes{
		Group:     "agent.open-cluster-management.io",
		Resource:  "klusterletaddonconfigs",
		Namespace: clusterName,
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(addonConfigResource, "create", "get", "watch")...)

	secretResource := authorizationv1.ResourceAttributes{
		Resource:  "secrets",
		Name:      clusterName + "-import",
		Namespace: clusterName,
	}
	return append(reviews, generateSelfSubjectAccessReviews(secretResource, "get")...)
}

// GetManagedServiceAccountSSARs returns the access reviews for managing service accounts
// and their RBAC on a managed cluster.
func GetManagedServiceAccountSSARs(clusterName string) []authorizationv1.SelfSubjectAccessReview {
	var reviews []authorizationv1.SelfSubjectAccessReview
	msaResource := authorizationv1.ResourceAttributes{
		Group:     "authentication.open-cluster-management.io",
		Resource:  "managedserviceaccounts",
		Namespace: clusterName,
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(msaResource, "create", "get", "patch", "delete")...)

	workResource := authorizationv1.ResourceAttributes{
		Group:     "work.open-cluster-management.io",
		Resource:  "manifestworks",
		Namespace: clusterName,
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(workResource, "create", "get", "patch")...)

	secretResource := authorizationv1.ResourceAttributes{
		Resource:  "secrets",
		Namespace: clusterName,
	}
	return append(reviews, generateSelfSubjectAccessReviews(secretResource, "get")...)
}

// GetAddonSSARs returns the access reviews for enabling or disabling an addon on a managed
// cluster. Klusterlet addons are toggled through the KlusterletAddonConfig of the cluster, the
// others through their ManagedClusterAddOn.
func GetAddonSSARs(clusterName, addonName string, klusterletAddon bool) []authorizationv1.SelfSubjectAccessReview {
	var reviews []authorizationv1.SelfSubjectAccessReview
	clusterResource := authorizationv1.ResourceAttributes{
		Group:    "cluster.open-cluster-management.io",
		Resource: "managedclusters",
		Name:     clusterName,
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(clusterResource, "get")...)

	cmaResource := authorizationv1.ResourceAttributes{
		Group:    "addon.open-cluster-management.io",
		Resource: "clustermanagementaddons",
		Name:     addonName,
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(cmaResource, "get")...)

	addonResource := authorizationv1.ResourceAttributes{
		Group:     "addon.open-cluster-management.io",
		Resource:  "managedclusteraddons",
		Namespace: clusterName,
	}
	if !klusterletAddon {
		return append(reviews, generateSelfSubjectAccessReviews(addonResource, "create", "get", "delete", "watch")...)
	}
	reviews = append(reviews, generateSelfSubjectAccessReviews(addonResource, "get", "watch")...)

	addonConfigResource := authorizationv1.ResourceAttributes{
		Group:     "agent.open-cluster-management.io",
		Resource:  "klusterletaddonconfigs",
		Namespace: clusterName,
	}
	return append(reviews, generateSelfSubjectAccessReviews(addonConfigResource, "list", "patch")...)
}

// GetHubFeatureSSARs returns the access reviews for toggling an addon feature of the hub
// installer. The MultiClusterEngine is reviewed only when the feature may be set on it.
func GetHubFeatureSSARs(engine bool) []authorizationv1.SelfSubjectAccessReview {
	hubResource := authorizationv1.ResourceAttributes{
		Group:    "operator.open-cluster-management.io",
		Resource: "multiclusterhubs",
	}
	reviews := generateSelfSubjectAccessReviews(hubResource, "list", "get", "patch")
	if !engine {
		return reviews
	}

	engineResource := authorizationv1.ResourceAttributes{
		Group:    "multicluster.openshift.io",
		Resource: "multiclusterengines",
	}
	return append(reviews, generateSelfSubjectAccessReviews(engineResource, "list", "get", "patch")...)
}

// GetPolicySetSSARs returns the access reviews for generating a policy set in a namespace.
func GetPolicySetSSARs(namespace string) []authorizationv1.SelfSubjectAccessReview {
	var reviews []authorizationv1.SelfSubjectAccessReview
	for _, resource := range []authorizationv1.ResourceAttributes{
		{Group: "policy.open-cluster-management.io", Resource: "policies", Namespace: namespace},
		{Group: "policy.open-cluster-management.io", Resource: "policysets", Namespace: namespace},
		{Group: "policy.open-cluster-management.io", Resource: "placementbindings", Namespace: namespace},
		{Group: "apps.open-cluster-management.io", Resource: "placementrules", Namespace: namespace},
	} {
		reviews = append(reviews, generateSelfSubjectAccessReviews(resource, "create", "get", "patch", "delete")...)
	}
	return reviews
}

func generateSelfSubjectAccessReviews(resource authorizationv1.ResourceAttributes, verbs ...string) []authorizationv1.SelfSubjectAccessReview {
	var reviews []authorizationv1.SelfSubjectAccessReview
	for _, verb := range verbs {
		reviews = append(reviews, authorizationv1.SelfSubjectAccessReview{
			Spec: authorizationv1.SelfSubjectAccessReviewSpec{
				ResourceAttributes: &authorizationv1.ResourceAttributes{
					Group:       resource.Group,
					Resource:    resource.Resource,
					Subresource: resource.Subresource,
					Name:        resource.Name,
					Namespace:   resource.Namespace,
					Verb:        verb,
				},
			},
		})
	}
	return reviews
}
