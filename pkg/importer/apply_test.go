package importer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	fakeapiextensions "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	fakedynamic "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"

	fakeoperatorclient "open-cluster-management.io/api/client/operator/clientset/versioned/fake"

	"open-cluster-management.io/ocmplus/pkg/common/recorder"
	"open-cluster-management.io/ocmplus/pkg/importer/providers"
)

const agentNamespace = "open-cluster-management-agent"

var (
	priorityClassGVR = schema.GroupVersionResource{Group: "scheduling.k8s.io", Version: "v1", Resource: "priorityclasses"}
	clusterClaimGVR  = schema.GroupVersionResource{Group: "cluster.open-cluster-management.io", Version: "v1alpha1", Resource: "clusterclaims"}
)

type fakeTarget struct {
	kube     *kubefake.Clientset
	apiExt   *fakeapiextensions.Clientset
	operator *fakeoperatorclient.Clientset
	dynamic  *fakedynamic.FakeDynamicClient
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		kube: kubefake.NewSimpleClientset(),
		// due to https://github.com/kubernetes/kubernetes/issues/126850, still need to use NewSimpleClientset
		apiExt:   fakeapiextensions.NewSimpleClientset(),
		operator: fakeoperatorclient.NewSimpleClientset(),
		dynamic:  fakedynamic.NewSimpleDynamicClient(runtime.NewScheme()),
	}
}

func (f *fakeTarget) clients() *providers.Clients {
	return &providers.Clients{
		KubeClient:     f.kube,
		APIExtClient:   f.apiExt,
		OperatorClient: f.operator,
		DynamicClient:  f.dynamic,
	}
}

func loadDocuments(t *testing.T, path string) [][]byte {
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := splitDocuments(data)
	if err != nil {
		t.Fatal(err)
	}
	return docs
}

func (f *fakeTarget) assertApplied(t *testing.T, skipClaim bool) {
	ctx := context.TODO()
	if _, err := f.apiExt.ApiextensionsV1().CustomResourceDefinitions().Get(
		ctx, "klusterlets.operator.open-cluster-management.io", metav1.GetOptions{}); err != nil {
		t.Errorf("expected crd to be applied: %v", err)
	}
	if _, err := f.kube.CoreV1().Namespaces().Get(ctx, agentNamespace, metav1.GetOptions{}); err != nil {
		t.Errorf("expected namespace to be applied: %v", err)
	}
	if _, err := f.kube.CoreV1().ServiceAccounts(agentNamespace).Get(ctx, "klusterlet", metav1.GetOptions{}); err != nil {
		t.Errorf("expected service account to be applied: %v", err)
	}
	if _, err := f.kube.RbacV1().ClusterRoleBindings().Get(ctx, "klusterlet", metav1.GetOptions{}); err != nil {
		t.Errorf("expected cluster role binding to be applied: %v", err)
	}
	if _, err := f.kube.AppsV1().Deployments(agentNamespace).Get(ctx, "klusterlet", metav1.GetOptions{}); err != nil {
		t.Errorf("expected deployment to be applied: %v", err)
	}
	klusterlet, err := f.operator.OperatorV1().Klusterlets().Get(ctx, "klusterlet", metav1.GetOptions{})
	if err != nil {
		t.Errorf("expected klusterlet to be applied: %v", err)
	} else if klusterlet.Spec.ClusterName != "cluster1" {
		t.Errorf("expected klusterlet of cluster1, but got %q", klusterlet.Spec.ClusterName)
	}
	if _, err := f.dynamic.Resource(priorityClassGVR).Get(ctx, "klusterlet-critical", metav1.GetOptions{}); err != nil {
		t.Errorf("expected priority class to be applied: %v", err)
	}
	if skipClaim {
		return
	}
	if _, err := f.dynamic.Resource(clusterClaimGVR).Get(ctx, "id.k8s.io", metav1.GetOptions{}); err != nil {
		t.Errorf("expected cluster claim to be applied: %v", err)
	}
}

func TestApplyManifests(t *testing.T) {
	manifests := append(loadDocuments(t, "testdata/crds.yaml"), loadDocuments(t, "testdata/import.yaml")...)
	target := newFakeTarget()
	r := recorder.NewContextualLoggingEventRecorder(context.TODO(), "test")

	if err := ApplyManifests(context.TODO(), target.clients(), r, manifests); err != nil {
		t.Fatal(err)
	}
	target.assertApplied(t, false)

	// applying again keeps the existing objects
	if err := ApplyManifests(context.TODO(), target.clients(), r, manifests); err != nil {
		t.Fatal(err)
	}
	target.assertApplied(t, false)
}

func TestApplyManifestsContinueOnError(t *testing.T) {
	manifests := append(loadDocuments(t, "testdata/crds.yaml"), loadDocuments(t, "testdata/import.yaml")...)
	manifests = append([][]byte{[]byte(`{"apiVersion": "v1", "kind": `)}, manifests...)
	target := newFakeTarget()
	target.dynamic.PrependReactor("create", "clusterclaims",
		func(action clienttesting.Action) (bool, runtime.Object, error) {
			return true, nil, fmt.Errorf("admission denied")
		})

	err := ApplyManifests(context.TODO(), target.clients(),
		recorder.NewContextualLoggingEventRecorder(context.TODO(), "test"), manifests)
	if err == nil {
		t.Fatalf("expected error, but got nil")
	}
	if !strings.Contains(err.Error(), "failed to create ClusterClaim id.k8s.io: admission denied") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "failed to decode manifest") {
		t.Errorf("unexpected error: %v", err)
	}
	target.assertApplied(t, true)
}

func TestSplitDocuments(t *testing.T) {
	docs, err := splitDocuments([]byte("---\n# comment only\n---\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: a\n---\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, but got %d: %q", len(docs), docs)
	}
	if string(docs[0]) != `{"apiVersion":"v1","kind":"Namespace","metadata":{"name":"a"}}` {
		t.Errorf("unexpected document %s", docs[0])
	}

	if docs := loadDocuments(t, "testdata/import.yaml"); len(docs) != 7 {
		t.Errorf("expected 7 documents, but got %d", len(docs))
	}
}
