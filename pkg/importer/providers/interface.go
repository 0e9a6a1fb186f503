package providers

import (
	"context"

	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	operatorclient "open-cluster-management.io/api/client/operator/clientset/versioned"
)

// Interface is the interface that a cluster provider should implement
type Interface interface {
	// Name identifies the provider in logs.
	Name() string

	// Clients returns the client to connect to the target cluster. The client should have the sufficient
	// permission to create CRDs/operator and klusterlet CR in the remote cluster.
	Clients(ctx context.Context) (*Clients, error)
}

type Clients struct {
	KubeClient     kubernetes.Interface
	APIExtClient   apiextensionsclient.Interface
	OperatorClient operatorclient.Interface
	DynamicClient  dynamic.Interface
}

func NewClient(config *rest.Config) (*Clients, error) {
	kubeClient, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	apiExtensionClient, err := apiextensionsclient.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	operatorClient, err := operatorclient.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}

	return &Clients{
		APIExtClient:   apiExtensionClient,
		KubeClient:     kubeClient,
		OperatorClient: operatorClient,
		DynamicClient:  dynamicClient,
	}, nil
}
