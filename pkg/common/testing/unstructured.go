package testing

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

func NewUnstructured(apiVersion, kind, namespace, name string, owners ...metav1.OwnerReference) *unstructured.Unstructured {
	u := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": apiVersion,
			"kind":       kind,
			"metadata": map[string]interface{}{
				"namespace": namespace,
				"name":      name,
			},
		},
	}

	u.SetOwnerReferences(owners)

	return u
}

func NewUnstructuredWithContent(
	apiVersion, kind, namespace, name string, content map[string]interface{}) *unstructured.Unstructured {
	object := NewUnstructured(apiVersion, kind, namespace, name)
	for key, val := range content {
		object.Object[key] = val
	}

	return object
}

// NewUnstructuredWithConditions builds an object whose status carries the given conditions
func NewUnstructuredWithConditions(
	apiVersion, kind, namespace, name string, conditions ...metav1.Condition) *unstructured.Unstructured {
	object := NewUnstructured(apiVersion, kind, namespace, name)
	var items []interface{}
	for _, c := range conditions {
		items = append(items, map[string]interface{}{
			"type":    c.Type,
			"status":  string(c.Status),
			"reason":  c.Reason,
			"message": c.Message,
		})
	}
	object.Object["status"] = map[string]interface{}{"conditions": items}
	return object
}

// NewFakeDynamicClient returns a fake dynamic client which can list the given resources
func NewFakeDynamicClient(listKinds map[schema.GroupVersionResource]string, objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds, objects...)
}
