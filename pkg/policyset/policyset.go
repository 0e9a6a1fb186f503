package policyset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/manifests"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

const (
	DefaultMaxWorkers = 5

	successMessage = "PolicySet, Policies, PlacementRule, and PlacementBinding successfully done"
)

// Options describes a policy set generated from a directory of manifests.
type Options struct {
	Namespace              string
	ManifestDir            string
	Description            string
	ClusterSelectors       []string
	GitHubRepositoryURL    string
	GitHubRepositoryBranch string
	GitHubToken            string
	MaxWorkers             int
}

func (o *Options) Validate() error {
	if len(o.Namespace) == 0 {
		return fmt.Errorf("namespace is required")
	}
	if len(o.ManifestDir) == 0 {
		return fmt.Errorf("manifest dir is required")
	}
	if len(NameFromManifestDir(o.ManifestDir)) == 0 {
		return fmt.Errorf("failed to derive the policy set name from manifest dir %s", o.ManifestDir)
	}
	if o.MaxWorkers <= 0 {
		return fmt.Errorf("max policy workers must be positive")
	}
	return nil
}

type Result struct {
	result.Status `json:",inline"`
	PolicySet     string   `json:"policyset"`
	Policies      []string `json:"policies,omitempty"`
}

// Manager generates policy sets on the hub.
type Manager struct {
	clients *hub.Clients
}

func NewManager(clients *hub.Clients) *Manager {
	return &Manager{clients: clients}
}

func (m *Manager) resource(gvr schema.GroupVersionResource, namespace string) dynamic.ResourceInterface {
	return m.clients.DynamicClient.Resource(gvr).Namespace(namespace)
}

// validate checks the namespace exists and that an existing policy set of the same name was
// created by this tool.
func (m *Manager) validate(ctx context.Context, namespace, name string) error {
	exists, err := m.clients.NamespaceExists(ctx, namespace)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("Does the namespace: %s exist?", namespace)
	}

	policySet, err := m.resource(hub.PolicySetGVR, namespace).Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return nil
	case err != nil:
		return err
	}
	if len(policySet.GetLabels()[LabelKey]) == 0 {
		return fmt.Errorf("PolicySet: %s already exist but was not created by this plugin", name)
	}
	return nil
}

// Present generates one Policy per manifest file, groups them in a PolicySet and places the
// set on the clusters matching the selectors.
func (m *Manager) Present(ctx context.Context, o *Options) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if len(o.ClusterSelectors) == 0 {
		return nil, fmt.Errorf("cluster selectors are required")
	}
	name := NameFromManifestDir(o.ManifestDir)
	if err := m.validate(ctx, o.Namespace, name); err != nil {
		return nil, err
	}

	manifestDir := o.ManifestDir
	if len(o.GitHubRepositoryURL) > 0 {
		repoPath, err := Clone(ctx, o.GitHubRepositoryURL, o.GitHubRepositoryBranch, o.GitHubToken)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(repoPath)
		manifestDir = filepath.Join(repoPath, o.ManifestDir)
	}

	files, err := Discover(manifestDir, name)
	if err != nil {
		return nil, err
	}

	r := &Result{PolicySet: name}
	policies, changed, warnings := m.ensureAllPolicies(ctx, o.Namespace, name, files, o.MaxWorkers)
	r.Policies = policies
	r.Warnings = warnings

	setChanged, err := m.ensurePolicySet(ctx, name, o.Namespace, o.Description, policies)
	if err != nil {
		return nil, err
	}
	ruleChanged, err := ensurePlacementRule(ctx, m.resource(hub.PlacementRuleGVR, o.Namespace), name, o.Namespace, o.ClusterSelectors)
	if err != nil {
		return nil, fmt.Errorf("Failed to ensure PlacementRule: %s namespace: %s: %w", name, o.Namespace, err)
	}
	bindingChanged, err := ensurePlacementBinding(ctx, m.resource(hub.PlacementBindingGVR, o.Namespace), name, o.Namespace)
	if err != nil {
		return nil, fmt.Errorf("Failed to ensure PlacementBinding: %s namespace: %s: %w", name, o.Namespace, err)
	}

	r.Changed = changed || setChanged || ruleChanged || bindingChanged
	r.Msg = successMessage
	return r, nil
}

// Absent deletes the policies of the set, its placement rules and bindings and the set itself.
func (m *Manager) Absent(ctx context.Context, o *Options) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	name := NameFromManifestDir(o.ManifestDir)
	if err := m.validate(ctx, o.Namespace, name); err != nil {
		return nil, err
	}

	r := &Result{PolicySet: name}
	changed, warnings, err := m.deleteAll(ctx, name, o.Namespace, o.MaxWorkers)
	if err != nil {
		return nil, err
	}
	r.Changed = changed
	r.Warnings = warnings
	r.Msg = successMessage
	return r, nil
}

type outcome struct {
	name    string
	ok      bool
	changed bool
}

// ensureAllPolicies ensures the policy of every file on a bounded worker pool. A policy that
// fails is reported as a warning and left out of the returned names.
func (m *Manager) ensureAllPolicies(ctx context.Context, namespace, policySetName string, files []ManifestFile, workers int) ([]string, bool, []string) {
	logger := klog.FromContext(ctx)
	client := m.resource(hub.PolicyGVR, namespace)
	outcomes := make([]outcome, len(files))
	var lock sync.Mutex
	var warnings []string

	g := &errgroup.Group{}
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			policyName := fmt.Sprintf("%s-%s", policySetName, file.Name)
			changed, err := m.ensurePolicy(ctx, client, policyName, namespace, file)
			if err != nil {
				msg := fmt.Sprintf("Failed to ensure Policy: %s namespace: %s. %v", policyName, namespace, err)
				logger.Info("WARNING: " + msg)
				lock.Lock()
				warnings = append(warnings, msg)
				lock.Unlock()
				return nil
			}
			outcomes[i] = outcome{name: policyName, ok: true, changed: changed}
			return nil
		})
	}
	_ = g.Wait()

	var names []string
	changed := false
	for _, o := range outcomes {
		if !o.ok {
			continue
		}
		names = append(names, o.name)
		changed = changed || o.changed
	}
	return names, changed, warnings
}

func (m *Manager) ensurePolicy(ctx context.Context, client dynamic.ResourceInterface, name, namespace string, file ManifestFile) (bool, error) {
	path, err := filepath.EvalSymlinks(file.Path)
	if err != nil {
		return false, err
	}
	templates, err := ObjectTemplates(path, file.ComplianceType)
	if err != nil {
		return false, err
	}
	attrs, err := ReadAttributes(path)
	if err != nil {
		return false, err
	}
	policy, err := RenderPolicy(name, namespace, file.RemediationAction, attrs, templates)
	if err != nil {
		return false, err
	}
	return ensureObject(ctx, client, policy)
}

// ensurePolicySet creates the set, or deletes the policies that left it and patches its policy
// list and description.
func (m *Manager) ensurePolicySet(ctx context.Context, name, namespace, description string, policies []string) (bool, error) {
	client := m.resource(hub.PolicySetGVR, namespace)
	existing, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		policySet, err := manifests.Render(manifests.PolicySetTemplate, map[string]string{
			"name":      name,
			"namespace": namespace,
			"labelKey":  LabelKey,
		})
		if err != nil {
			return false, err
		}
		if err := unstructured.SetNestedField(policySet.Object, description, "spec", "description"); err != nil {
			return false, err
		}
		if err := unstructured.SetNestedStringSlice(policySet.Object, append([]string{}, policies...), "spec", "policies"); err != nil {
			return false, err
		}
		_, err = client.Create(ctx, policySet, metav1.CreateOptions{})
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	oldPolicies, _, _ := unstructured.NestedStringSlice(existing.Object, "spec", "policies")
	current, desired := sets.New(oldPolicies...), sets.New(policies...)
	removed := current.Difference(desired)
	policyClient := m.resource(hub.PolicyGVR, namespace)
	for _, policy := range sets.List(removed) {
		if _, err := deleteLabelled(ctx, policyClient, policy); err != nil {
			return false, fmt.Errorf("Failed to delete Policy: %s namespace: %s: %w", policy, namespace, err)
		}
	}

	spec := map[string]interface{}{}
	if !current.Equal(desired) {
		items := make([]interface{}, 0, len(policies))
		for _, p := range policies {
			items = append(items, p)
		}
		spec["policies"] = items
	}
	oldDescription, _, _ := unstructured.NestedString(existing.Object, "spec", "description")
	if oldDescription != description {
		spec["description"] = description
	}
	if len(spec) == 0 {
		return removed.Len() > 0, nil
	}

	patch, err := json.Marshal(map[string]interface{}{"spec": spec})
	if err != nil {
		return false, err
	}
	if _, err := client.Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return false, fmt.Errorf("Failed to patch PolicySet: %s namespace: %s: %w", name, namespace, err)
	}
	return true, nil
}

// deleteAll removes the policy set and everything generated for it.
func (m *Manager) deleteAll(ctx context.Context, name, namespace string, workers int) (bool, []string, error) {
	logger := klog.FromContext(ctx)
	client := m.resource(hub.PolicySetGVR, namespace)
	policySet, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	policies, _, _ := unstructured.NestedStringSlice(policySet.Object, "spec", "policies")
	policyClient := m.resource(hub.PolicyGVR, namespace)
	var lock sync.Mutex
	var warnings []string
	g := &errgroup.Group{}
	g.SetLimit(workers)
	for _, policy := range policies {
		g.Go(func() error {
			if _, err := deleteLabelled(ctx, policyClient, policy); err != nil {
				msg := fmt.Sprintf("Failed to delete Policy: %s namespace: %s. %v", policy, namespace, err)
				logger.Info("WARNING: " + msg)
				lock.Lock()
				warnings = append(warnings, msg)
				lock.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	placements, _, _ := unstructured.NestedSlice(policySet.Object, "status", "placement")
	for _, p := range placements {
		placement, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if rule, _ := placement["placementRule"].(string); len(rule) > 0 {
			if _, err := deleteLabelled(ctx, m.resource(hub.PlacementRuleGVR, namespace), rule); err != nil {
				return false, warnings, err
			}
		}
		if binding, _ := placement["placementBinding"].(string); len(binding) > 0 {
			if _, err := deleteLabelled(ctx, m.resource(hub.PlacementBindingGVR, namespace), binding); err != nil {
				return false, warnings, err
			}
		}
	}

	err = client.Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return true, warnings, nil
	}
	return err == nil, warnings, err
}
