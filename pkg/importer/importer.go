package importer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/openshift/library-go/pkg/operator/events"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	clusterv1 "open-cluster-management.io/api/cluster/v1"

	"open-cluster-management.io/ocmplus/manifests"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
	"open-cluster-management.io/ocmplus/pkg/importer/providers"
)

const (
	DefaultJoinPollInterval = 5 * time.Second

	importSecretSuffix = "-import"
	crdsKey            = "crds.yaml"
	importKey          = "import.yaml"
)

// AddonToggles selects the klusterlet addons enabled in the KlusterletAddonConfig.
type AddonToggles struct {
	PolicyController     bool
	IAMPolicyController  bool
	SearchCollector      bool
	ApplicationManager   bool
	CertPolicyController bool
}

func (a AddonToggles) values(clusterName string) map[string]string {
	return map[string]string{
		"clusterName":          clusterName,
		"applicationManager":   strconv.FormatBool(a.ApplicationManager),
		"certPolicyController": strconv.FormatBool(a.CertPolicyController),
		"iamPolicyController":  strconv.FormatBool(a.IAMPolicyController),
		"policyController":     strconv.FormatBool(a.PolicyController),
		"searchCollector":      strconv.FormatBool(a.SearchCollector),
	}
}

type Options struct {
	ClusterName string
	Addons      AddonToggles
	Wait        bool
	Timeout     time.Duration
}

func (o *Options) Validate() error {
	if len(o.ClusterName) == 0 {
		return fmt.Errorf("cluster name is required")
	}
	return options.ValidateClusterName(o.ClusterName)
}

type Result struct {
	result.Status `json:",inline"`
	ClusterName   string `json:"cluster_name"`
	OK            bool   `json:"ok"`
}

type Importer struct {
	clients      *hub.Clients
	recorder     events.Recorder
	pollInterval time.Duration
}

func NewImporter(clients *hub.Clients, recorder events.Recorder) *Importer {
	return &Importer{
		clients:      clients,
		recorder:     recorder,
		pollInterval: DefaultJoinPollInterval,
	}
}

// Import registers the cluster on the hub and applies the klusterlet manifests generated by
// the hub to the cluster reached through the provider.
func (i *Importer) Import(ctx context.Context, provider providers.Interface, o *Options) (*Result, error) {
	logger := klog.FromContext(ctx).WithValues("cluster", o.ClusterName, "provider", provider.Name())
	ctx = klog.NewContext(ctx, logger)

	targetClients, err := provider.Clients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build clients of cluster %s: %w", o.ClusterName, err)
	}

	cluster, clusterCreated, err := i.EnsureManagedCluster(ctx, o.ClusterName, o.Timeout)
	if err != nil {
		return nil, err
	}
	configCreated, err := i.EnsureKlusterletAddonConfig(ctx, o.ClusterName, o.Addons, o.Timeout)
	if err != nil {
		return nil, err
	}

	r := &Result{ClusterName: o.ClusterName, OK: true}
	if !ShouldImport(cluster) {
		r.Status = *result.Unchanged("managed cluster %s has already joined the hub", o.ClusterName)
		r.Changed = clusterCreated || configCreated
		return r, nil
	}

	crds, objs, err := i.ImportManifests(ctx, o.ClusterName, o.Timeout)
	if err != nil {
		return nil, err
	}
	r.Status = *result.Changed("managed cluster %s is imported", o.ClusterName)

	if err := ApplyManifests(ctx, targetClients, i.recorder, crds); err != nil {
		r.Warn("Error when applying CRD yamls: %v", err)
	}
	if err := ApplyManifests(ctx, targetClients, i.recorder, objs); err != nil {
		r.Warn("Error when applying import yamls: %v", err)
	}

	if o.Wait {
		joined, err := helpers.PollUntil(ctx, i.pollInterval, o.Timeout, func(ctx context.Context) (bool, error) {
			cluster, err := i.clients.GetManagedCluster(ctx, o.ClusterName)
			if err != nil {
				return false, err
			}
			return cluster != nil && !ShouldImport(cluster), nil
		})
		if err != nil {
			return nil, err
		}
		if !joined {
			return nil, fmt.Errorf("timed out waiting for managedcluster %s to join the hub", o.ClusterName)
		}
		logger.Info("Managed cluster joined the hub")
	}
	return r, nil
}

// EnsureManagedCluster returns the managed cluster, creating it when missing. A created cluster
// is returned once the hub has populated its status.
func (i *Importer) EnsureManagedCluster(ctx context.Context, name string, timeout time.Duration) (*clusterv1.ManagedCluster, bool, error) {
	logger := klog.FromContext(ctx)
	clusterClient := i.clients.ClusterClient.ClusterV1().ManagedClusters()

	cluster, err := i.clients.GetManagedCluster(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if cluster != nil {
		return cluster, false, nil
	}

	obj, err := manifests.Render(manifests.ManagedClusterTemplate, map[string]string{"clusterName": name})
	if err != nil {
		return nil, false, err
	}
	required := &clusterv1.ManagedCluster{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, required); err != nil {
		return nil, false, err
	}
	if _, err := clusterClient.Create(ctx, required, metav1.CreateOptions{}); err != nil {
		return nil, false, fmt.Errorf("failed to create managedcluster %s: %w", name, err)
	}
	logger.Info("Created managed cluster")

	var current *clusterv1.ManagedCluster
	ok, err := helpers.WaitFor(ctx, clusterClient.Get, clusterClient.Watch, name, timeout,
		func(cluster *clusterv1.ManagedCluster, exists bool) bool {
			if !exists || equality.Semantic.DeepEqual(cluster.Status, clusterv1.ManagedClusterStatus{}) {
				return false
			}
			current = cluster
			return true
		})
	if err != nil {
		return nil, true, err
	}
	if !ok {
		return nil, true, fmt.Errorf("timed out waiting for managedcluster %s status field to be available", name)
	}
	return current, true, nil
}

// EnsureKlusterletAddonConfig creates the KlusterletAddonConfig in the cluster namespace when
// missing. An existing config is not updated.
func (i *Importer) EnsureKlusterletAddonConfig(ctx context.Context, name string, addons AddonToggles, timeout time.Duration) (bool, error) {
	logger := klog.FromContext(ctx)
	client := i.clients.DynamicClient.Resource(hub.KlusterletAddonConfigGVR).Namespace(name)

	_, err := client.Get(ctx, name, metav1.GetOptions{})
	switch {
	case err == nil:
		return false, nil
	case !apierrors.IsNotFound(err):
		return false, err
	}

	required, err := manifests.Render(manifests.KlusterletAddonConfigTemplate, addons.values(name))
	if err != nil {
		return false, err
	}
	if _, err := client.Create(ctx, required, metav1.CreateOptions{}); err != nil {
		return false, fmt.Errorf("failed to create klusterletaddonconfig %s: %w", name, err)
	}
	logger.Info("Created klusterlet addon config")

	ok, err := helpers.WaitForUnstructured(ctx, client, name, timeout, helpers.Exists)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, fmt.Errorf("timed out waiting for klusterletaddonconfig %s to be available", name)
	}
	return true, nil
}

// ShouldImport reports whether the cluster still needs the klusterlet, which is the case until
// the cluster has ever reported the joined condition.
func ShouldImport(cluster *clusterv1.ManagedCluster) bool {
	return meta.FindStatusCondition(cluster.Status.Conditions, clusterv1.ManagedClusterConditionJoined) == nil
}

// ImportManifests waits for the import secret of the cluster and returns its CRDs and the rest
// of the klusterlet manifests, one JSON document each.
func (i *Importer) ImportManifests(ctx context.Context, name string, timeout time.Duration) ([][]byte, [][]byte, error) {
	secretName := name + importSecretSuffix
	secretClient := i.clients.KubeClient.CoreV1().Secrets(name)

	var secret *corev1.Secret
	ok, err := helpers.WaitFor(ctx, secretClient.Get, secretClient.Watch, secretName, timeout,
		func(s *corev1.Secret, exists bool) bool {
			if !exists {
				return false
			}
			_, hasCRDs := s.Data[crdsKey]
			_, hasImport := s.Data[importKey]
			if !hasCRDs || !hasImport {
				return false
			}
			secret = s
			return true
		})
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("timed out waiting for secret %s to be populated", secretName)
	}

	crds, err := splitDocuments(secret.Data[crdsKey])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s of secret %s: %w", crdsKey, secretName, err)
	}
	objs, err := splitDocuments(secret.Data[importKey])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s of secret %s: %w", importKey, secretName, err)
	}
	return crds, objs, nil
}

func splitDocuments(data []byte) ([][]byte, error) {
	var docs [][]byte
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	for {
		doc, err := reader.Read()
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		raw, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(raw, []byte("null")) {
			continue
		}
		docs = append(docs, raw)
	}
}
