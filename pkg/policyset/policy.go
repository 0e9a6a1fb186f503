package policyset

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/manifests"
)

// LabelKey marks the resources created by this tool. Only labelled resources are ever deleted.
const LabelKey = "ocmplus.cm.policyset/created"

const (
	annotationCategories = "policy.open-cluster-management.io/categories"
	annotationControls   = "policy.open-cluster-management.io/controls"
	annotationStandards  = "policy.open-cluster-management.io/standards"
)

// RenderPolicy builds a Policy wrapping one ConfigurationPolicy over the object templates.
func RenderPolicy(name, namespace, remediationAction string, attrs *Attributes, objectTemplates []interface{}) (*unstructured.Unstructured, error) {
	policy, err := manifests.Render(manifests.PolicyTemplate, map[string]string{
		"name":              name,
		"namespace":         namespace,
		"labelKey":          LabelKey,
		"remediationAction": remediationAction,
		"severity":          attrs.Severity,
	})
	if err != nil {
		return nil, err
	}
	policy.SetAnnotations(map[string]string{
		annotationCategories: attrs.Categories,
		annotationControls:   attrs.Controls,
		annotationStandards:  attrs.Standards,
	})

	policyTemplates, _, err := unstructured.NestedSlice(policy.Object, "spec", "policy-templates")
	if err != nil {
		return nil, err
	}
	configPolicy := policyTemplates[0].(map[string]interface{})
	if err := unstructured.SetNestedSlice(configPolicy, objectTemplates,
		"objectDefinition", "spec", "object-templates"); err != nil {
		return nil, err
	}
	if err := unstructured.SetNestedSlice(policy.Object, policyTemplates, "spec", "policy-templates"); err != nil {
		return nil, err
	}
	return policy, nil
}

// ensureObject creates the object when it is missing. An existing object is merge-patched
// when its metadata or spec differs from the required one, fields only set on the existing
// object are kept.
func ensureObject(ctx context.Context, client dynamic.ResourceInterface, required *unstructured.Unstructured) (bool, error) {
	existing, err := client.Get(ctx, required.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := client.Create(ctx, required, metav1.CreateOptions{})
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	patch, err := updatePatch(existing.Object, required.Object, "metadata", "spec")
	if err != nil {
		return false, err
	}
	if patch == nil {
		return false, nil
	}
	klog.FromContext(ctx).V(4).Info("Patching", "kind", required.GetKind(),
		"namespace", required.GetNamespace(), "name", required.GetName(), "patch", string(patch))
	if _, err := client.Patch(ctx, required.GetName(), types.MergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return false, fmt.Errorf("Failed to patch %s: %s namespace: %s: %w",
			required.GetKind(), required.GetName(), required.GetNamespace(), err)
	}
	return true, nil
}

// updatePatch returns the merge patch bringing the fields of existing to required, or nil
// when they already match. Only the keys present in required are compared.
func updatePatch(existing, required map[string]interface{}, fields ...string) ([]byte, error) {
	current := map[string]interface{}{}
	desired := map[string]interface{}{}
	for _, field := range fields {
		value, ok := required[field]
		if !ok {
			continue
		}
		desired[field] = value
		if existingValue, ok := existing[field]; ok {
			current[field] = project(existingValue, value)
		}
	}

	oldData, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	newData, err := json.Marshal(desired)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(oldData, newData)
	if err != nil {
		return nil, err
	}
	if string(patch) == "{}" {
		return nil, nil
	}
	return patch, nil
}

// project trims existing down to the map keys of required. Lists and scalars are kept whole.
func project(existing, required interface{}) interface{} {
	existingMap, ok := existing.(map[string]interface{})
	if !ok {
		return existing
	}
	requiredMap, ok := required.(map[string]interface{})
	if !ok {
		return existing
	}
	projected := map[string]interface{}{}
	for key, value := range requiredMap {
		if existingValue, ok := existingMap[key]; ok {
			projected[key] = project(existingValue, value)
		}
	}
	return projected
}

// deleteLabelled deletes the object only when it carries LabelKey. It reports whether the
// object was deleted.
func deleteLabelled(ctx context.Context, client dynamic.ResourceInterface, name string) (bool, error) {
	obj, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(obj.GetLabels()[LabelKey]) == 0 {
		return false, nil
	}
	err = client.Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}
