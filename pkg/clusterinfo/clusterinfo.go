package clusterinfo

import (
	"context"
	"fmt"
	"sort"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
	clusterv1 "open-cluster-management.io/api/cluster/v1"

	"open-cluster-management.io/ocmplus/pkg/common/result"
)

type Condition struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type ClusterInfo struct {
	Name          string            `json:"name"`
	Labels        map[string]string `json:"labels"`
	ClusterClaims map[string]string `json:"cluster_claims"`
	Conditions    []Condition       `json:"conditions"`
	Version       string            `json:"version"`
}

type Result struct {
	result.Status `json:",inline"`
	Results       []ClusterInfo `json:"results"`
}

// List describes the managed clusters of the hub, or only the cluster labelled with the given
// name when cluster is set.
func List(ctx context.Context, client clusterclientset.Interface, cluster string) (*Result, error) {
	opts := metav1.ListOptions{}
	if len(cluster) > 0 {
		opts.LabelSelector = labels.SelectorFromSet(labels.Set{"name": cluster}).String()
	}
	clusters, err := client.ClusterV1().ManagedClusters().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list managedclusters: %w", err)
	}

	r := &Result{Results: []ClusterInfo{}}
	for i := range clusters.Items {
		r.Results = append(r.Results, Describe(&clusters.Items[i]))
	}
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Name < r.Results[j].Name })
	return r, nil
}

func Describe(cluster *clusterv1.ManagedCluster) ClusterInfo {
	info := ClusterInfo{
		Name:          cluster.Name,
		Labels:        map[string]string{},
		ClusterClaims: map[string]string{},
		Conditions:    []Condition{},
		Version:       cluster.Status.Version.Kubernetes,
	}
	for k, v := range cluster.Labels {
		info.Labels[k] = v
	}
	for _, claim := range cluster.Status.ClusterClaims {
		info.ClusterClaims[claim.Name] = claim.Value
	}
	for _, c := range cluster.Status.Conditions {
		info.Conditions = append(info.Conditions, Condition{
			Type:    c.Type,
			Reason:  c.Reason,
			Message: c.Message,
			Status:  string(c.Status),
		})
	}
	return info
}
