package importer

import (
	"context"
	"fmt"

	"github.com/openshift/api"
	"github.com/openshift/library-go/pkg/operator/events"
	"github.com/openshift/library-go/pkg/operator/resource/resourceapply"
	"github.com/openshift/library-go/pkg/operator/resource/resourcehelper"
	"github.com/openshift/library-go/pkg/operator/resource/resourcemerge"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"

	operatorclient "open-cluster-management.io/api/client/operator/clientset/versioned"
	operatorv1 "open-cluster-management.io/api/operator/v1"

	"open-cluster-management.io/ocmplus/pkg/importer/providers"
)

var (
	genericScheme = runtime.NewScheme()
	genericCodecs = serializer.NewCodecFactory(genericScheme)
	genericCodec  = genericCodecs.UniversalDeserializer()
)

func init() {
	utilruntime.Must(api.InstallKube(genericScheme))
	utilruntime.Must(apiextensionsv1.AddToScheme(genericScheme))
	utilruntime.Must(operatorv1.Install(genericScheme))
}

// ApplyManifests applies the import manifests to the target cluster in order. A manifest that
// fails is logged and skipped, the failures are returned as an aggregate once every manifest
// has been tried.
func ApplyManifests(
	ctx context.Context,
	clients *providers.Clients,
	recorder events.Recorder,
	rawManifests [][]byte) error {
	logger := klog.FromContext(ctx)

	clientHolder := resourceapply.NewKubeClientHolder(clients.KubeClient).
		WithAPIExtensionsClient(clients.APIExtClient).WithDynamicClient(clients.DynamicClient)
	cache := resourceapply.NewResourceCache()

	var errs []error
	for _, manifest := range rawManifests {
		var results []resourceapply.ApplyResult
		requiredObj, _, err := genericCodec.Decode(manifest, nil, nil)
		switch {
		case runtime.IsNotRegisteredError(err) || runtime.IsMissingKind(err):
			result := resourceapply.ApplyResult{}
			result.Result, result.Changed, result.Error = applyUnstructured(ctx, clients.DynamicClient, manifest)
			results = append(results, result)
		case err != nil:
			logger.Error(err, "Failed to decode manifest", "manifest", string(manifest))
			errs = append(errs, fmt.Errorf("failed to decode manifest: %w", err))
			continue
		default:
			result := resourceapply.ApplyResult{}
			switch t := requiredObj.(type) {
			case *appsv1.Deployment:
				result.Result, result.Changed, result.Error = resourceapply.ApplyDeployment(
					ctx, clients.KubeClient.AppsV1(), recorder, t, 0)
				results = append(results, result)
			case *operatorv1.Klusterlet:
				result.Result, result.Changed, result.Error = ApplyKlusterlet(
					ctx, clients.OperatorClient, recorder, t)
				results = append(results, result)
			case *corev1.Namespace, *corev1.ServiceAccount, *corev1.ConfigMap, *corev1.Secret, *corev1.Service,
				*rbacv1.ClusterRole, *rbacv1.ClusterRoleBinding, *rbacv1.Role, *rbacv1.RoleBinding,
				*apiextensionsv1.CustomResourceDefinition:
				results = resourceapply.ApplyDirectly(ctx, clientHolder, recorder, cache,
					func(name string) ([]byte, error) {
						return manifest, nil
					},
					"manifest")
			default:
				result.Result, result.Changed, result.Error = applyUnstructured(ctx, clients.DynamicClient, manifest)
				results = append(results, result)
			}
		}

		for _, result := range results {
			if result.Error != nil {
				logger.Error(result.Error, "Failed to apply manifest", "manifest", describe(manifest))
				errs = append(errs, result.Error)
				continue
			}
			logger.V(2).Info("Applied manifest", "manifest", describe(manifest), "changed", result.Changed)
		}
	}

	return utilerrors.NewAggregate(errs)
}

func ApplyKlusterlet(
	ctx context.Context,
	client operatorclient.Interface,
	recorder events.Recorder,
	required *operatorv1.Klusterlet) (*operatorv1.Klusterlet, bool, error) {
	existing, err := client.OperatorV1().Klusterlets().Get(ctx, required.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		requiredCopy := required.DeepCopy()
		actual, err := client.OperatorV1().Klusterlets().Create(ctx, requiredCopy, metav1.CreateOptions{})
		resourcehelper.ReportCreateEvent(recorder, required, err)
		return actual, true, err
	}
	if err != nil {
		return nil, false, err
	}

	modified := ptr.To(false)
	existingCopy := existing.DeepCopy()
	resourcemerge.EnsureObjectMeta(modified, &existingCopy.ObjectMeta, required.ObjectMeta)

	if !*modified && equality.Semantic.DeepEqual(existingCopy.Spec, required.Spec) {
		return existingCopy, false, nil
	}

	existingCopy.Spec = required.Spec
	actual, err := client.OperatorV1().Klusterlets().Update(ctx, existingCopy, metav1.UpdateOptions{})
	resourcehelper.ReportUpdateEvent(recorder, required, err)
	return actual, true, err
}

// applyUnstructured creates kinds that have no typed apply. An existing object is left as is.
func applyUnstructured(ctx context.Context, client dynamic.Interface, manifest []byte) (*unstructured.Unstructured, bool, error) {
	required := &unstructured.Unstructured{}
	if err := required.UnmarshalJSON(manifest); err != nil {
		return nil, false, fmt.Errorf("failed to decode manifest: %w", err)
	}
	gvr, _ := meta.UnsafeGuessKindToResource(required.GroupVersionKind())
	var resource dynamic.ResourceInterface = client.Resource(gvr)
	if ns := required.GetNamespace(); len(ns) > 0 {
		resource = client.Resource(gvr).Namespace(ns)
	}

	actual, err := resource.Create(ctx, required, metav1.CreateOptions{})
	switch {
	case apierrors.IsAlreadyExists(err):
		return required, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to create %s %s: %w", required.GetKind(), required.GetName(), err)
	}
	return actual, true, nil
}

func describe(manifest []byte) string {
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(manifest); err != nil {
		return "unknown"
	}
	if ns := obj.GetNamespace(); len(ns) > 0 {
		return fmt.Sprintf("%s %s/%s", obj.GetKind(), ns, obj.GetName())
	}
	return fmt.Sprintf("%s %s", obj.GetKind(), obj.GetName())
}
