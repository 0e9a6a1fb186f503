package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
	clusterv1 "open-cluster-management.io/api/cluster/v1"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
)

const (
	hubLabelSelector = "name=local-cluster"
	allGroup         = "all"
	ungroupedGroup   = "ungrouped"
)

var managedClusterResource = clusterv1.GroupVersion.String() + "/managedclusters"

// HostVars are the variables of a managed cluster host.
type HostVars struct {
	ClusterName  string                 `json:"cluster_name"`
	ClientConfig map[string]interface{} `json:"client_config"`
	Annotations  map[string]string      `json:"annotations"`
	Labels       map[string]string      `json:"labels"`
	Kubeconfig   string                 `json:"kubeconfig,omitempty"`
}

func NewHostVars(cluster *clusterv1.ManagedCluster) *HostVars {
	vars := &HostVars{
		ClusterName:  cluster.Name,
		ClientConfig: map[string]interface{}{},
		Annotations:  helpers.FilterClusterAnnotations(cluster.Annotations),
		Labels:       map[string]string{},
	}
	if len(cluster.Spec.ManagedClusterClientConfigs) > 0 {
		if config, err := runtime.DefaultUnstructuredConverter.ToUnstructured(
			&cluster.Spec.ManagedClusterClientConfigs[0]); err == nil {
			vars.ClientConfig = config
		}
	}
	for k, v := range cluster.Labels {
		vars.Labels[k] = v
	}
	return vars
}

// Cache is implemented by FileCache.
type Cache interface {
	Get(key string, out interface{}) (bool, error)
	Set(key string, value interface{}) error
}

// Inventory is an ansible dynamic inventory of managed clusters.
type Inventory struct {
	groups   map[string]sets.Set[string]
	hostVars map[string]*HostVars
}

func newInventory() *Inventory {
	return &Inventory{
		groups:   map[string]sets.Set[string]{allGroup: sets.New[string](), ungroupedGroup: sets.New[string]()},
		hostVars: map[string]*HostVars{},
	}
}

func (i *Inventory) addGroup(name string) {
	if _, ok := i.groups[name]; !ok {
		i.groups[name] = sets.New[string]()
	}
}

func (i *Inventory) addHost(vars *HostVars, group string) {
	if existing, ok := i.hostVars[vars.ClusterName]; ok && len(existing.Kubeconfig) > 0 {
		vars.Kubeconfig = existing.Kubeconfig
	}
	i.hostVars[vars.ClusterName] = vars
	if len(group) > 0 {
		i.addGroup(group)
		i.groups[group].Insert(vars.ClusterName)
	}
}

// Hosts returns the sorted host names.
func (i *Inventory) Hosts() []string {
	names := make([]string, 0, len(i.hostVars))
	for name := range i.hostVars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupHosts returns the sorted hosts of a group.
func (i *Inventory) GroupHosts(group string) []string {
	return sets.List(i.groups[group])
}

// List renders the --list document of an ansible dynamic inventory script.
func (i *Inventory) List() map[string]interface{} {
	grouped := sets.New[string]()
	children := sets.New[string](ungroupedGroup)
	doc := map[string]interface{}{}
	for name, hosts := range i.groups {
		if name == allGroup || name == ungroupedGroup {
			continue
		}
		children.Insert(name)
		grouped = grouped.Union(hosts)
		doc[name] = map[string]interface{}{"hosts": sets.List(hosts)}
	}

	ungrouped := sets.New[string](i.Hosts()...).Difference(grouped)
	doc[ungroupedGroup] = map[string]interface{}{"hosts": sets.List(ungrouped)}
	doc[allGroup] = map[string]interface{}{"children": sets.List(children)}
	doc["_meta"] = map[string]interface{}{"hostvars": i.hostVars}
	return doc
}

// Host renders the --host document, unknown hosts have no variables.
func (i *Inventory) Host(name string) interface{} {
	if vars, ok := i.hostVars[name]; ok {
		return vars
	}
	return map[string]interface{}{}
}

type Builder struct {
	clusterClient clusterclientset.Interface
	cache         Cache
	refreshCache  bool
}

// NewBuilder creates an inventory builder. A nil cache disables caching, refresh ignores
// cached entries and overwrites them.
func NewBuilder(clusterClient clusterclientset.Interface, cache Cache, refresh bool) *Builder {
	return &Builder{clusterClient: clusterClient, cache: cache, refreshCache: refresh}
}

// Build puts the hub cluster into the hub group and every matching cluster into its group.
func (b *Builder) Build(ctx context.Context, config *Config) (*Inventory, error) {
	logger := klog.FromContext(ctx)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	inventory := newInventory()

	hubClusters, err := b.fetchClusters(ctx, []string{hubLabelSelector}, nil)
	if err != nil {
		return nil, err
	}
	if len(hubClusters) == 0 {
		logger.Info("No managed cluster labelled as the hub cluster", "selector", hubLabelSelector)
	} else {
		hubCluster := hubClusters[0]
		hubCluster.Kubeconfig = config.HubKubeconfig
		inventory.addHost(hubCluster, HubGroup)
	}

	for _, group := range config.ClusterGroups {
		clusters, err := b.fetchClusters(ctx, group.LabelSelectors, group.CELSelectors)
		if err != nil {
			return nil, err
		}
		for _, cluster := range clusters {
			if _, ok := inventory.groups[cluster.ClusterName]; ok || cluster.ClusterName == group.Name {
				return nil, fmt.Errorf("expecting the host name %s to be different from group name", cluster.ClusterName)
			}
			inventory.addHost(cluster, group.Name)
		}
	}
	return inventory, nil
}

func cacheKey(labelSelector string, celSelectors []string) string {
	key := managedClusterResource + "?" + labelSelector
	if len(celSelectors) > 0 {
		key += "&cel=" + strings.Join(celSelectors, "&cel=")
	}
	return key
}

func (b *Builder) fetchClusters(ctx context.Context, labelSelectors, celSelectors []string) ([]*HostVars, error) {
	logger := klog.FromContext(ctx)
	labelSelector := strings.Join(labelSelectors, ",")
	key := cacheKey(labelSelector, celSelectors)

	var clusters []*HostVars
	if b.cache != nil && !b.refreshCache {
		hit, err := b.cache.Get(key, &clusters)
		if err != nil {
			logger.Info("Failed to read inventory cache", "key", key, "err", err)
		}
		if hit {
			logger.V(4).Info("Inventory cache hit", "key", key)
			return clusters, nil
		}
	}

	list, err := b.clusterClient.ClusterV1().ManagedClusters().List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("error while fetching clusters: %w", err)
	}
	matcher, err := newCELMatcher(celSelectors)
	if err != nil {
		return nil, err
	}
	clusters = []*HostVars{}
	for i := range list.Items {
		cluster := &list.Items[i]
		ok, err := matcher.matches(ctx, cluster)
		if err != nil {
			return nil, err
		}
		if ok {
			clusters = append(clusters, NewHostVars(cluster))
		}
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].ClusterName < clusters[j].ClusterName
	})

	if b.cache != nil {
		if err := b.cache.Set(key, clusters); err != nil {
			logger.Info("Failed to write inventory cache", "key", key, "err", err)
		}
	}
	return clusters, nil
}

type celMatcher struct {
	expressions []string
	programs    []cel.Program
}

func newCELMatcher(expressions []string) (*celMatcher, error) {
	if len(expressions) == 0 {
		return &celMatcher{}, nil
	}
	env, err := helpers.NewClusterEnv()
	if err != nil {
		return nil, err
	}
	programs, err := helpers.CompileExpressions(env, expressions)
	if err != nil {
		return nil, err
	}
	return &celMatcher{expressions: expressions, programs: programs}, nil
}

// matches reports whether every expression evaluates to true. An evaluation error or an
// exhausted cost budget counts as no match.
func (m *celMatcher) matches(ctx context.Context, cluster *clusterv1.ManagedCluster) (bool, error) {
	if len(m.programs) == 0 {
		return true, nil
	}
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(cluster)
	if err != nil {
		return false, err
	}
	input := map[string]interface{}{"managedCluster": obj}

	budget := helpers.RuntimeCostBudget
	for i, program := range m.programs {
		var result interface{}
		val, remaining := helpers.EvaluateSingleExpression(ctx, program, budget, m.expressions[i], input)
		if val != nil {
			result = val.Value()
		}
		if matched, ok := result.(bool); !ok || !matched {
			return false, nil
		}
		if remaining < 0 {
			return false, nil
		}
		budget = remaining
	}
	return true, nil
}
