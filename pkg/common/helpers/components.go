package helpers

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

var componentsPath = []string{"spec", "overrides", "components"}

// GetComponentStatus reports whether the component is enabled in spec.overrides.components of
// a MultiClusterHub or MultiClusterEngine. A missing path or component is reported as disabled.
func GetComponentStatus(obj *unstructured.Unstructured, componentName string) (bool, error) {
	if obj == nil {
		return false, nil
	}

	var curr interface{} = obj.Object
	for _, p := range componentsPath {
		m, ok := curr.(map[string]interface{})
		if !ok {
			return false, fmt.Errorf("failed to get enablement status of component %s: %q is not an object", componentName, p)
		}
		next, found := m[p]
		if !found || next == nil {
			return false, nil
		}
		curr = next
	}

	components, ok := curr.([]interface{})
	if !ok {
		return false, fmt.Errorf("failed to get enablement status of component %s: components is not a list", componentName)
	}
	for _, c := range components {
		component, ok := c.(map[string]interface{})
		if !ok {
			return false, fmt.Errorf("failed to get enablement status of component %s: unexpected entry %v", componentName, c)
		}
		if name, _ := component["name"].(string); name != componentName {
			continue
		}
		enabled, found := component["enabled"]
		if !found {
			return false, nil
		}
		b, ok := enabled.(bool)
		if !ok {
			return false, fmt.Errorf("failed to get enablement status of component %s: enabled is %T", componentName, enabled)
		}
		return b, nil
	}

	return false, nil
}

// SetComponentStatus sets the enabled field of the component in spec.overrides.components in place,
// appending the component when it is not listed yet.
func SetComponentStatus(obj *unstructured.Unstructured, componentName string, enabled bool) error {
	if obj == nil {
		return fmt.Errorf("failed to set enablement status of component %s in nil object", componentName)
	}
	spec, ok := obj.Object["spec"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("failed to set enablement status of component %s in %s %s: spec is missing",
			componentName, obj.GetKind(), obj.GetName())
	}

	overrides, found := spec["overrides"]
	if !found || overrides == nil {
		overrides = map[string]interface{}{}
		spec["overrides"] = overrides
	}
	overridesMap, ok := overrides.(map[string]interface{})
	if !ok {
		return fmt.Errorf("failed to set enablement status of component %s: overrides is not an object", componentName)
	}

	components, found := overridesMap["components"]
	if !found || components == nil {
		components = []interface{}{}
	}
	list, ok := components.([]interface{})
	if !ok {
		return fmt.Errorf("failed to set enablement status of component %s: components is not a list", componentName)
	}

	hasComponent := false
	for _, c := range list {
		component, ok := c.(map[string]interface{})
		if !ok {
			return fmt.Errorf("failed to set enablement status of component %s: unexpected entry %v", componentName, c)
		}
		if name, _ := component["name"].(string); name == componentName {
			hasComponent = true
			component["enabled"] = enabled
		}
	}
	if !hasComponent {
		list = append(list, map[string]interface{}{
			"name":    componentName,
			"enabled": enabled,
		})
	}
	overridesMap["components"] = list

	return nil
}
