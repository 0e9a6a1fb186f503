package policyset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
	"open-cluster-management.io/ocmplus/pkg/hub"
	hubtesting "open-cluster-management.io/ocmplus/pkg/hub/testing"
)

const testNamespace = "policies"

func newNamespace() *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: testNamespace}}
}

func newLabelled(apiVersion, kind, name string, content map[string]interface{}) *unstructured.Unstructured {
	obj := testingcommon.NewUnstructuredWithContent(apiVersion, kind, testNamespace, name, content)
	obj.SetLabels(map[string]string{LabelKey: "true"})
	return obj
}

func newPolicySet(policies []interface{}, description string) *unstructured.Unstructured {
	return newLabelled("policy.open-cluster-management.io/v1beta1", "PolicySet", "set1", map[string]interface{}{
		"spec": map[string]interface{}{"description": description, "policies": policies},
		"status": map[string]interface{}{"placement": []interface{}{
			map[string]interface{}{"placementRule": "set1", "placementBinding": "set1"},
		}},
	})
}

func newOptions() *Options {
	return &Options{
		Namespace:        testNamespace,
		ManifestDir:      "testdata/set1",
		Description:      "demo",
		ClusterSelectors: []string{"vendor=EKS"},
		MaxWorkers:       2,
	}
}

func exists(t *testing.T, fake *hubtesting.FakeClients, gvr schema.GroupVersionResource, name string) bool {
	t.Helper()
	_, err := fake.Dynamic.Resource(gvr).Namespace(testNamespace).Get(context.TODO(), name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestPresent(t *testing.T) {
	fake := hubtesting.NewFakeClients(hubtesting.Objects{Kube: []runtime.Object{newNamespace()}})
	m := NewManager(fake.Clients)

	r, err := m.Present(context.TODO(), newOptions())
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.Equal(t, successMessage, r.Msg)
	assert.Equal(t, "set1", r.PolicySet)
	assert.Equal(t, []string{"set1-noprivileged", "set1-pod-security"}, r.Policies)
	assert.Empty(t, r.Warnings)
	assert.Len(t, testingcommon.FilterActions(fake.Dynamic.Actions(), "create"), 5)

	policy, err := fake.Dynamic.Resource(hub.PolicyGVR).Namespace(testNamespace).Get(
		context.TODO(), "set1-pod-security", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "CM Configuration Management", policy.GetAnnotations()[annotationCategories])
	action, _, _ := unstructured.NestedString(policy.Object, "spec", "remediationAction")
	assert.Equal(t, "inform", action)

	policySet, err := fake.Dynamic.Resource(hub.PolicySetGVR).Namespace(testNamespace).Get(
		context.TODO(), "set1", metav1.GetOptions{})
	require.NoError(t, err)
	policies, _, _ := unstructured.NestedStringSlice(policySet.Object, "spec", "policies")
	assert.Equal(t, []string{"set1-noprivileged", "set1-pod-security"}, policies)
	description, _, _ := unstructured.NestedString(policySet.Object, "spec", "description")
	assert.Equal(t, "demo", description)
	assert.True(t, exists(t, fake, hub.PlacementRuleGVR, "set1"))
	assert.True(t, exists(t, fake, hub.PlacementBindingGVR, "set1"))

	// a second run finds everything in place
	fake.Dynamic.ClearActions()
	r, err = m.Present(context.TODO(), newOptions())
	require.NoError(t, err)
	assert.False(t, r.Changed)
	assert.Empty(t, testingcommon.FilterActions(fake.Dynamic.Actions(), "create", "patch", "delete"))

	// a new description is patched
	fake.Dynamic.ClearActions()
	o := newOptions()
	o.Description = "updated"
	r, err = m.Present(context.TODO(), o)
	require.NoError(t, err)
	assert.True(t, r.Changed)
	patches := testingcommon.FilterActions(fake.Dynamic.Actions(), "patch")
	require.Len(t, patches, 1)
	assert.JSONEq(t, `{"spec":{"description":"updated"}}`,
		string(testingcommon.AssertPatch(t, patches[0], "policysets", testNamespace, "set1")))
}

func TestPresentRemovesStalePolicies(t *testing.T) {
	fake := hubtesting.NewFakeClients(hubtesting.Objects{
		Kube: []runtime.Object{newNamespace()},
		Dynamic: []runtime.Object{
			newPolicySet([]interface{}{"set1-old", "set1-pod-security"}, "demo"),
			newLabelled("policy.open-cluster-management.io/v1", "Policy", "set1-old", nil),
		},
	})

	r, err := NewManager(fake.Clients).Present(context.TODO(), newOptions())
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.False(t, exists(t, fake, hub.PolicyGVR, "set1-old"))

	policySet, err := fake.Dynamic.Resource(hub.PolicySetGVR).Namespace(testNamespace).Get(
		context.TODO(), "set1", metav1.GetOptions{})
	require.NoError(t, err)
	policies, _, _ := unstructured.NestedStringSlice(policySet.Object, "spec", "policies")
	assert.Equal(t, []string{"set1-noprivileged", "set1-pod-security"}, policies)
}

func TestPresentValidation(t *testing.T) {
	foreign := testingcommon.NewUnstructured("policy.open-cluster-management.io/v1beta1", "PolicySet", testNamespace, "set1")

	cases := []struct {
		name        string
		objects     hubtesting.Objects
		options     func(o *Options)
		expectedErr string
	}{
		{
			name:        "namespace not found",
			expectedErr: "Does the namespace: policies exist?",
		},
		{
			name: "policy set not created by this tool",
			objects: hubtesting.Objects{
				Kube:    []runtime.Object{newNamespace()},
				Dynamic: []runtime.Object{foreign},
			},
			expectedErr: "PolicySet: set1 already exist but was not created by this plugin",
		},
		{
			name:        "no selectors",
			options:     func(o *Options) { o.ClusterSelectors = nil },
			expectedErr: "cluster selectors are required",
		},
		{
			name:        "no manifest dir name",
			options:     func(o *Options) { o.ManifestDir = "/" },
			expectedErr: "failed to derive the policy set name from manifest dir /",
		},
		{
			name:        "invalid repository url",
			objects:     hubtesting.Objects{Kube: []runtime.Object{newNamespace()}},
			options:     func(o *Options) { o.GitHubRepositoryURL = "github.com/org/repo"; o.GitHubToken = "secret" },
			expectedErr: "invalid github_repo_url github.com/org/repo",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fake := hubtesting.NewFakeClients(c.objects)
			o := newOptions()
			if c.options != nil {
				c.options(o)
			}
			_, err := NewManager(fake.Clients).Present(context.TODO(), o)
			testingcommon.AssertError(t, err, c.expectedErr)
		})
	}
}

func TestAbsent(t *testing.T) {
	foreignPolicy := testingcommon.NewUnstructured("policy.open-cluster-management.io/v1", "Policy", testNamespace, "set1-b")
	fake := hubtesting.NewFakeClients(hubtesting.Objects{
		Kube: []runtime.Object{newNamespace()},
		Dynamic: []runtime.Object{
			newPolicySet([]interface{}{"set1-a", "set1-b"}, ""),
			newLabelled("policy.open-cluster-management.io/v1", "Policy", "set1-a", nil),
			foreignPolicy,
			newLabelled("apps.open-cluster-management.io/v1", "PlacementRule", "set1", nil),
			newLabelled("policy.open-cluster-management.io/v1", "PlacementBinding", "set1", nil),
		},
	})
	m := NewManager(fake.Clients)

	r, err := m.Absent(context.TODO(), newOptions())
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.False(t, exists(t, fake, hub.PolicyGVR, "set1-a"))
	assert.True(t, exists(t, fake, hub.PolicyGVR, "set1-b"))
	assert.False(t, exists(t, fake, hub.PlacementRuleGVR, "set1"))
	assert.False(t, exists(t, fake, hub.PlacementBindingGVR, "set1"))
	assert.False(t, exists(t, fake, hub.PolicySetGVR, "set1"))

	r, err = m.Absent(context.TODO(), newOptions())
	require.NoError(t, err)
	assert.False(t, r.Changed)
}
