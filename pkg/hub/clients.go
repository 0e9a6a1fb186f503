package hub

import (
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"

	addonclientset "open-cluster-management.io/api/client/addon/clientset/versioned"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
	workclientset "open-cluster-management.io/api/client/work/clientset/versioned"
)

// Clients bundles the clients used to talk to the hub cluster. OCM resources with a published
// clientset are accessed through it, everything else goes through the dynamic client.
type Clients struct {
	KubeClient    kubernetes.Interface
	DynamicClient dynamic.Interface
	ClusterClient clusterclientset.Interface
	AddonClient   addonclientset.Interface
	WorkClient    workclientset.Interface
	RESTMapper    meta.RESTMapper
}

func NewClients(config *rest.Config) (*Clients, error) {
	kubeClient, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	clusterClient, err := clusterclientset.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	addonClient, err := addonclientset.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	workClient, err := workclientset.NewForConfig(config)
	if err != nil {
		return nil, err
	}

	return &Clients{
		KubeClient:    kubeClient,
		DynamicClient: dynamicClient,
		ClusterClient: clusterClient,
		AddonClient:   addonClient,
		WorkClient:    workClient,
		RESTMapper:    restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(kubeClient.Discovery())),
	}, nil
}
