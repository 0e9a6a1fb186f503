package helpers

import (
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
)

func TestCompareVersion(t *testing.T) {
	cases := []struct {
		name     string
		current  string
		target   string
		expected bool
	}{
		{name: "empty current", current: "", target: "2.3.0"},
		{name: "empty target", current: "2.3.0", target: ""},
		{name: "invalid", current: "abcde", target: "0.0.1"},
		{name: "invalid prefix", current: "abcde1.2.3", target: "0.0.1"},
		{name: "lower patch", current: "2.3.0", target: "2.3.1"},
		{name: "lower minor", current: "2.2.99", target: "2.3.0"},
		{name: "lower major", current: "1.4.3", target: "2.1.1"},
		{name: "equal", current: "2.3.1", target: "2.3.1", expected: true},
		{name: "higher patch", current: "2.3.2", target: "2.3.1", expected: true},
		{name: "higher minor", current: "2.4.0", target: "2.3.1", expected: true},
		{name: "higher major", current: "3.1.0", target: "2.3.1", expected: true},
		{name: "partial major", current: "2", target: "2.0.0"},
		{name: "partial major newer", current: "3", target: "2.1.0"},
		{name: "partial minor", current: "2.1", target: "2.0.1"},
		{name: "partial minor equal", current: "2.1", target: "2.1.0"},
		{name: "prerelease current", current: "2.0.0-rc1", target: "2.0.0", expected: true},
		{name: "prerelease target", current: "2.0.0", target: "2.0.0-rc1", expected: true},
		{name: "prerelease newer", current: "2.1.2-rc1", target: "2.1.1", expected: true},
		{name: "prerelease older", current: "2.1.2-rc1", target: "2.1.3"},
		{name: "prerelease both", current: "2.1.3-alpha1", target: "2.1.3-beta1", expected: true},
		{name: "prerelease both older", current: "2.1.2-alpha1", target: "2.1.3-beta1"},
		{name: "build metadata", current: "2.1.3-alpha1+abc", target: "2.1.3-beta1+def", expected: true},
		{name: "build metadata older", current: "2.1.2-alpha1+abc", target: "2.1.3-beta1+def"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if actual := CompareVersion(c.current, c.target); actual != c.expected {
				t.Errorf("CompareVersion(%q, %q) = %v, want %v", c.current, c.target, actual, c.expected)
			}
		})
	}
}

func TestGetCSVVersion(t *testing.T) {
	newCSV := func(name string, spec map[string]interface{}) *unstructured.Unstructured {
		return testingcommon.NewUnstructuredWithContent(
			"operators.coreos.com/v1alpha1", "ClusterServiceVersion", "multicluster-engine", name,
			map[string]interface{}{"spec": spec})
	}

	cases := []struct {
		name     string
		csv      *unstructured.Unstructured
		prefix   string
		expected string
	}{
		{name: "nil csv", prefix: "abc"},
		{name: "no version", csv: newCSV("abc", map[string]interface{}{}), prefix: "abc"},
		{name: "version in spec", csv: newCSV("abc", map[string]interface{}{"version": "1.2.3"}), prefix: "abc", expected: "1.2.3"},
		{name: "version in name", csv: newCSV("abc.v1.2.3", map[string]interface{}{}), prefix: "abc", expected: "1.2.3"},
		{name: "empty spec version", csv: newCSV("abc.v2.4.5", map[string]interface{}{"version": ""}), prefix: "abc", expected: "2.4.5"},
		{name: "spec version first", csv: newCSV("abc.v2.4.5", map[string]interface{}{"version": "1.3.4"}), prefix: "abc", expected: "1.3.4"},
		{name: "other prefix", csv: newCSV("xyz.v2.4.5", map[string]interface{}{}), prefix: "abc"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if actual := GetCSVVersion(c.csv, c.prefix); actual != c.expected {
				t.Errorf("expected %q, got %q", c.expected, actual)
			}
		})
	}
}
