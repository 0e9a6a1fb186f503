package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	clusterfake "open-cluster-management.io/api/client/cluster/clientset/versioned/fake"
	clusterv1 "open-cluster-management.io/api/cluster/v1"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
)

func newCluster(name, kubeVersion string, labels map[string]string) *clusterv1.ManagedCluster {
	return &clusterv1.ManagedCluster{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
			Annotations: map[string]string{
				"kubectl.kubernetes.io/last-applied-configuration": "{}",
				"open-cluster-management/created-via":              "other",
			},
		},
		Spec: clusterv1.ManagedClusterSpec{
			ManagedClusterClientConfigs: []clusterv1.ClientConfig{
				{URL: "https://" + name + ".example.com:6443"},
				{URL: "https://" + name + ".backup.example.com:6443"},
			},
		},
		Status: clusterv1.ManagedClusterStatus{
			Version: clusterv1.ManagedClusterVersion{Kubernetes: kubeVersion},
		},
	}
}

func testClusters() []runtime.Object {
	return []runtime.Object{
		newCluster("local-cluster", "v1.30.4", map[string]string{"name": "local-cluster", "cloud": "Amazon"}),
		newCluster("eks1", "v1.30.1", map[string]string{"name": "eks1", "cloud": "Amazon", "region": "us-east-1"}),
		newCluster("gke1", "v1.29.0", map[string]string{"name": "gke1", "cloud": "Google", "region": "us-east-1"}),
		newCluster("kind1", "v1.31.0", map[string]string{"name": "kind1"}),
	}
}

func testConfig() *Config {
	return &Config{
		Plugin:        PluginName,
		HubKubeconfig: "/path/to/hub/kubeconfig",
		ClusterGroups: []ClusterGroup{
			{Name: "east-region-clusters", LabelSelectors: []string{"region=us-east-1"}},
			{Name: "aws-clusters", LabelSelectors: []string{"cloud=Amazon", "region=us-east-1"}},
			{Name: "recent-clusters", CELSelectors: []string{`managedCluster.status.version.kubernetes.startsWith("v1.30")`}},
		},
	}
}

func TestBuild(t *testing.T) {
	client := clusterfake.NewSimpleClientset(testClusters()...)
	inventory, err := NewBuilder(client, nil, false).Build(context.TODO(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"eks1", "gke1", "local-cluster"}, inventory.Hosts())
	assert.Equal(t, []string{"local-cluster"}, inventory.GroupHosts(HubGroup))
	assert.Equal(t, []string{"eks1", "gke1"}, inventory.GroupHosts("east-region-clusters"))
	assert.Equal(t, []string{"eks1"}, inventory.GroupHosts("aws-clusters"))
	assert.Equal(t, []string{"eks1", "local-cluster"}, inventory.GroupHosts("recent-clusters"))

	hub := inventory.Host("local-cluster").(*HostVars)
	assert.Equal(t, "/path/to/hub/kubeconfig", hub.Kubeconfig)
	assert.Equal(t, map[string]interface{}{"url": "https://local-cluster.example.com:6443"}, hub.ClientConfig)
	assert.Equal(t, map[string]string{"open-cluster-management/created-via": "other"}, hub.Annotations)

	eks := inventory.Host("eks1").(*HostVars)
	assert.Empty(t, eks.Kubeconfig)
	assert.Equal(t, "us-east-1", eks.Labels["region"])

	assert.Equal(t, map[string]interface{}{}, inventory.Host("missing"))
}

func TestList(t *testing.T) {
	config := testConfig()
	config.ClusterGroups = append(config.ClusterGroups, ClusterGroup{LabelSelectors: []string{"name=kind1"}})
	client := clusterfake.NewSimpleClientset(testClusters()...)
	inventory, err := NewBuilder(client, nil, false).Build(context.TODO(), config)
	require.NoError(t, err)

	data, err := json.Marshal(inventory.List())
	require.NoError(t, err)
	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, map[string]interface{}{
		"children": []interface{}{"aws-clusters", "east-region-clusters", "hub", "recent-clusters", "ungrouped"},
	}, doc["all"])
	assert.Equal(t, map[string]interface{}{"hosts": []interface{}{"kind1"}}, doc["ungrouped"])
	assert.Equal(t, map[string]interface{}{"hosts": []interface{}{"local-cluster"}}, doc["hub"])

	hostVars := doc["_meta"].(map[string]interface{})["hostvars"].(map[string]interface{})
	assert.Len(t, hostVars, 4)
	assert.Equal(t, "kind1", hostVars["kind1"].(map[string]interface{})["cluster_name"])
}

func TestBuildErrors(t *testing.T) {
	cases := []struct {
		name        string
		groups      []ClusterGroup
		expectedErr string
	}{
		{
			name:        "host named like a group",
			groups:      []ClusterGroup{{Name: "eks1", LabelSelectors: []string{"name=eks1"}}},
			expectedErr: "expecting the host name eks1 to be different from group name",
		},
		{
			name: "host named like an earlier group",
			groups: []ClusterGroup{
				{Name: "kind1", LabelSelectors: []string{"name=eks1"}},
				{Name: "others", LabelSelectors: []string{"name=kind1"}},
			},
			expectedErr: "expecting the host name kind1 to be different from group name",
		},
		{
			name:        "reserved group",
			groups:      []ClusterGroup{{Name: HubGroup}},
			expectedErr: "group_name cannot be 'hub'",
		},
		{
			name:        "invalid cel",
			groups:      []ClusterGroup{{Name: "broken", CELSelectors: []string{"managedCluster.metadata.labels["}}},
			expectedErr: "compilation of",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			client := clusterfake.NewSimpleClientset(testClusters()...)
			_, err := NewBuilder(client, nil, false).Build(context.TODO(), &Config{Plugin: PluginName, ClusterGroups: c.groups})
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expectedErr)
		})
	}
}

func TestBuildWithoutHub(t *testing.T) {
	client := clusterfake.NewSimpleClientset(newCluster("eks1", "v1.30.1", map[string]string{"name": "eks1"}))
	inventory, err := NewBuilder(client, nil, false).Build(context.TODO(), &Config{
		Plugin:        PluginName,
		ClusterGroups: []ClusterGroup{{Name: "everything"}},
	})
	require.NoError(t, err)
	assert.Empty(t, inventory.GroupHosts(HubGroup))
	assert.Equal(t, []string{"eks1"}, inventory.GroupHosts("everything"))
}

func TestBuildWithCache(t *testing.T) {
	cache := NewFileCache(t.TempDir(), 0)
	client := clusterfake.NewSimpleClientset(testClusters()...)

	first, err := NewBuilder(client, cache, false).Build(context.TODO(), testConfig())
	require.NoError(t, err)
	testingcommon.AssertActions(t, client.Actions(), "list", "list", "list", "list")

	client.ClearActions()
	second, err := NewBuilder(client, cache, false).Build(context.TODO(), testConfig())
	require.NoError(t, err)
	testingcommon.AssertNoActions(t, client.Actions())
	assert.Equal(t, first.List(), second.List())

	_, err = NewBuilder(client, cache, true).Build(context.TODO(), testConfig())
	require.NoError(t, err)
	testingcommon.AssertActions(t, client.Actions(), "list", "list", "list", "list")
}
