package policyset

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"open-cluster-management.io/ocmplus/manifests"
)

// Expressions turns cluster selectors into label selector requirements: "key!=a,b" is NotIn,
// "key=a,b" is In and anything else requires the key to exist.
func Expressions(selectors []string) []metav1.LabelSelectorRequirement {
	var expressions []metav1.LabelSelectorRequirement
	for _, selector := range selectors {
		expression := metav1.LabelSelectorRequirement{
			Key:      strings.TrimSpace(selector),
			Operator: metav1.LabelSelectorOpExists,
		}
		for _, op := range []struct {
			separator string
			operator  metav1.LabelSelectorOperator
		}{
			{"!=", metav1.LabelSelectorOpNotIn},
			{"=", metav1.LabelSelectorOpIn},
		} {
			parts := strings.Split(selector, op.separator)
			if len(parts) != 2 {
				continue
			}
			expression = metav1.LabelSelectorRequirement{
				Key:      strings.TrimSpace(parts[0]),
				Operator: op.operator,
			}
			for _, v := range strings.Split(parts[1], ",") {
				expression.Values = append(expression.Values, strings.TrimSpace(v))
			}
			break
		}
		expressions = append(expressions, expression)
	}
	return expressions
}

func sortedByKey(expressions []metav1.LabelSelectorRequirement) []metav1.LabelSelectorRequirement {
	sorted := append([]metav1.LabelSelectorRequirement{}, expressions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return sorted
}

func toUnstructuredSlice(expressions []metav1.LabelSelectorRequirement) ([]interface{}, error) {
	items := []interface{}{}
	for i := range expressions {
		item, err := runtime.DefaultUnstructuredConverter.ToUnstructured(&expressions[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ensurePlacementRule creates the PlacementRule selecting the clusters, or patches its match
// expressions when they changed.
func ensurePlacementRule(ctx context.Context, client dynamic.ResourceInterface, name, namespace string, selectors []string) (bool, error) {
	expressions := sortedByKey(Expressions(selectors))

	existing, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		rule, err := manifests.Render(manifests.PlacementRuleTemplate, map[string]string{
			"name":      name,
			"namespace": namespace,
			"labelKey":  LabelKey,
		})
		if err != nil {
			return false, err
		}
		items, err := toUnstructuredSlice(expressions)
		if err != nil {
			return false, err
		}
		if err := unstructured.SetNestedSlice(rule.Object, items, "spec", "clusterSelector", "matchExpressions"); err != nil {
			return false, err
		}
		_, err = client.Create(ctx, rule, metav1.CreateOptions{})
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	var current []metav1.LabelSelectorRequirement
	if items, found, _ := unstructured.NestedSlice(existing.Object, "spec", "clusterSelector", "matchExpressions"); found {
		data, err := json.Marshal(items)
		if err != nil {
			return false, err
		}
		if err := json.Unmarshal(data, &current); err != nil {
			return false, err
		}
	}
	if len(current) == 0 && len(expressions) == 0 {
		return false, nil
	}
	if equality.Semantic.DeepEqual(sortedByKey(current), expressions) {
		return false, nil
	}

	if expressions == nil {
		expressions = []metav1.LabelSelectorRequirement{}
	}
	patch, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			"clusterSelector": map[string]interface{}{"matchExpressions": expressions},
		},
	})
	if err != nil {
		return false, err
	}
	_, err = client.Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
	return err == nil, err
}

// ensurePlacementBinding creates the PlacementBinding of the policy set when it is missing.
func ensurePlacementBinding(ctx context.Context, client dynamic.ResourceInterface, name, namespace string) (bool, error) {
	_, err := client.Get(ctx, name, metav1.GetOptions{})
	if err == nil || !apierrors.IsNotFound(err) {
		return false, err
	}
	binding, err := manifests.Render(manifests.PlacementBindingTemplate, map[string]string{
		"name":      name,
		"namespace": namespace,
		"labelKey":  LabelKey,
	})
	if err != nil {
		return false, err
	}
	_, err = client.Create(ctx, binding, metav1.CreateOptions{})
	return err == nil, err
}
