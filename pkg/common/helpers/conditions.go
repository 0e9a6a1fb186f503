package helpers

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// FindCondition returns the status.conditions entry of the given type, or nil.
func FindCondition(obj *unstructured.Unstructured, conditionType string) map[string]interface{} {
	if obj == nil {
		return nil
	}
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return nil
	}
	for _, c := range conditions {
		condition, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := condition["type"].(string); t == conditionType {
			return condition
		}
	}
	return nil
}

// HasCondition reports whether a condition of the given type is present, whatever its status.
func HasCondition(obj *unstructured.Unstructured, conditionType string) bool {
	return FindCondition(obj, conditionType) != nil
}

func IsConditionTrue(obj *unstructured.Unstructured, conditionType string) bool {
	condition := FindCondition(obj, conditionType)
	if condition == nil {
		return false
	}
	status, _ := condition["status"].(string)
	return status == string(metav1.ConditionTrue)
}

// HasStatus reports whether the object carries a status field.
func HasStatus(obj *unstructured.Unstructured) bool {
	if obj == nil {
		return false
	}
	_, found := obj.Object["status"]
	return found
}

// NestedBool reads a boolean field, treating a missing or mistyped field as false.
func NestedBool(obj *unstructured.Unstructured, fields ...string) bool {
	if obj == nil {
		return false
	}
	v, found, err := unstructured.NestedBool(obj.Object, fields...)
	if err != nil || !found {
		return false
	}
	return v
}
