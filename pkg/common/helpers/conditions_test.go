package helpers

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
)

func TestConditions(t *testing.T) {
	addon := testingcommon.NewUnstructuredWithConditions(
		"addon.open-cluster-management.io/v1alpha1", "ManagedClusterAddOn", "cluster1", "cluster-proxy",
		metav1.Condition{Type: "Available", Status: metav1.ConditionTrue},
		metav1.Condition{Type: "Degraded", Status: metav1.ConditionFalse},
	)
	noStatus := testingcommon.NewUnstructured(
		"addon.open-cluster-management.io/v1alpha1", "ManagedClusterAddOn", "cluster1", "cluster-proxy")

	if !IsConditionTrue(addon, "Available") {
		t.Errorf("expected Available to be true")
	}
	if IsConditionTrue(addon, "Degraded") {
		t.Errorf("expected Degraded to be false")
	}
	if !HasCondition(addon, "Degraded") {
		t.Errorf("expected Degraded to be present")
	}
	if HasCondition(addon, "Progressing") || IsConditionTrue(addon, "Progressing") {
		t.Errorf("expected Progressing to be absent")
	}
	if !HasStatus(addon) || HasStatus(noStatus) || HasStatus(nil) {
		t.Errorf("unexpected status detection")
	}
	if IsConditionTrue(noStatus, "Available") || FindCondition(nil, "Available") != nil {
		t.Errorf("expected no condition without status")
	}
}

func TestNestedBool(t *testing.T) {
	mch := testingcommon.NewUnstructuredWithContent(
		"operator.open-cluster-management.io/v1", "MultiClusterHub", "open-cluster-management", "multiclusterhub",
		map[string]interface{}{
			"spec": map[string]interface{}{
				"enableClusterProxyAddon": true,
				"componentConfig": map[string]interface{}{
					"search": map[string]interface{}{"disable": "yes"},
				},
			},
		})

	if !NestedBool(mch, "spec", "enableClusterProxyAddon") {
		t.Errorf("expected enableClusterProxyAddon to be true")
	}
	if NestedBool(mch, "spec", "componentConfig", "search", "disable") {
		t.Errorf("expected mistyped field to read as false")
	}
	if NestedBool(mch, "spec", "missing") || NestedBool(nil, "spec") {
		t.Errorf("expected missing field to read as false")
	}
}
