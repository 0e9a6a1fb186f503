package testing

import (
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"

	addonfake "open-cluster-management.io/api/client/addon/clientset/versioned/fake"
	clusterfake "open-cluster-management.io/api/client/cluster/clientset/versioned/fake"
	workfake "open-cluster-management.io/api/client/work/clientset/versioned/fake"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

// Objects holds the initial objects of each fake hub client.
type Objects struct {
	Kube    []runtime.Object
	Dynamic []runtime.Object
	Cluster []runtime.Object
	Addon   []runtime.Object
	Work    []runtime.Object
}

// FakeClients keeps the concrete fakes so tests can inspect actions and add reactors.
type FakeClients struct {
	*hub.Clients

	Kube    *kubefake.Clientset
	Dynamic *dynamicfake.FakeDynamicClient
	Cluster *clusterfake.Clientset
	Addon   *addonfake.Clientset
	Work    *workfake.Clientset
}

func NewFakeClients(objects Objects) *FakeClients {
	f := &FakeClients{
		Kube:    kubefake.NewSimpleClientset(objects.Kube...),
		Dynamic: testingcommon.NewFakeDynamicClient(hub.ListKinds, objects.Dynamic...),
		Cluster: clusterfake.NewSimpleClientset(objects.Cluster...),
		Addon:   addonfake.NewSimpleClientset(objects.Addon...),
		Work:    workfake.NewSimpleClientset(objects.Work...),
	}
	f.Clients = &hub.Clients{
		KubeClient:    f.Kube,
		DynamicClient: f.Dynamic,
		ClusterClient: f.Cluster,
		AddonClient:   f.Addon,
		WorkClient:    f.Work,
	}
	return f
}
