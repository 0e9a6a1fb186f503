package serviceaccount

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"
	workapiv1 "open-cluster-management.io/api/work/v1"
	"sigs.k8s.io/yaml"

	"open-cluster-management.io/ocmplus/pkg/addon"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/common/workapplier"
)

// rbacKinds is the order in which template resources are emitted.
var rbacKinds = []string{"Role", "ClusterRole", "RoleBinding", "ClusterRoleBinding"}

// RBACOptions names the ManagedServiceAccount to grant permissions and the templates holding them.
type RBACOptions struct {
	Cluster            string
	ServiceAccountName string
	TemplatePath       string
	Wait               bool
	Timeout            time.Duration
}

// RBACResources holds the valid template resources per kind, in template order.
type RBACResources struct {
	byKind map[string][]*unstructured.Unstructured
	keys   map[string]bool
}

func newRBACResources() *RBACResources {
	return &RBACResources{
		byKind: map[string][]*unstructured.Unstructured{},
		keys:   map[string]bool{},
	}
}

func rbacKey(kind, namespace, name string) string {
	return fmt.Sprintf("%s:%s/%s", kind, namespace, name)
}

func (r *RBACResources) add(obj *unstructured.Unstructured) bool {
	key := rbacKey(obj.GetKind(), obj.GetNamespace(), obj.GetName())
	if r.keys[key] {
		return false
	}
	r.keys[key] = true
	r.byKind[obj.GetKind()] = append(r.byKind[obj.GetKind()], obj)
	return true
}

func (r *RBACResources) has(kind, namespace, name string) bool {
	return r.keys[rbacKey(kind, namespace, name)]
}

// Len is the number of resources of all kinds.
func (r *RBACResources) Len() int {
	return len(r.keys)
}

// Kind returns the resources of one kind.
func (r *RBACResources) Kind(kind string) []*unstructured.Unstructured {
	return r.byKind[kind]
}

// TemplateFiles returns the template path itself when it is a file, or the regular files
// directly inside it when it is a directory.
func TemplateFiles(path string) ([]string, error) {
	var files []string
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			files = append(files, path)
		} else {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, errors.Wrapf(err, "error: fail to read RBAC template directory %s", path)
			}
			for _, entry := range entries {
				if entry.Type().IsRegular() {
					files = append(files, filepath.Join(path, entry.Name()))
				}
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("error: RBAC template file or directory not found. rbac_template: %s", path)
	}
	return files, nil
}

// LoadDocuments decodes every YAML document of the files. Empty documents are skipped.
func LoadDocuments(path string, files []string) ([]interface{}, error) {
	var docs []interface{}
	for _, file := range files {
		fileDocs, err := loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error: fail to read RBAC template file %s %v", file, err)
		}
		docs = append(docs, fileDocs...)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("error: No YAML resource found in RBAC template file or directory. rbac_template: %s", path)
	}
	return docs, nil
}

func loadFile(file string) ([]interface{}, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []interface{}
	reader := utilyaml.NewYAMLReader(bufio.NewReader(f))
	for {
		raw, err := reader.Read()
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
}

// ValidateDocuments keeps the well formed RBAC resources. Anything else is skipped with a
// warning, a resource defined twice is an error.
func ValidateDocuments(path string, docs []interface{}) (*RBACResources, []string, error) {
	resources := newRBACResources()
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for _, doc := range docs {
		content, ok := doc.(map[string]interface{})
		kind := "UNKNOWN"
		if ok {
			kind, _, _ = unstructured.NestedString(content, "kind")
		}
		if !isRBACKind(kind) {
			warn("Non-RBAC resource detected, this resource will be ignored. resource.kind: %s, expecting %v. resource: %v",
				kind, rbacKinds, doc)
			continue
		}
		obj := &unstructured.Unstructured{Object: content}

		if _, found := content["metadata"]; !found {
			warn("missing metadata, this resource will be ignored. resource: %v", doc)
			continue
		}
		if len(obj.GetName()) == 0 {
			warn("missing metadata.name, this resource will be ignored. resource: %v", doc)
			continue
		}
		clusterScoped := strings.HasPrefix(kind, "Cluster")
		if clusterScoped && len(obj.GetNamespace()) > 0 {
			warn("%s should not have metadata.namespace, this resource will be ignored. resource: %v", kind, doc)
			continue
		}
		if !clusterScoped && len(obj.GetNamespace()) == 0 {
			warn("metadata.namespace required for %s, this resource will be ignored. resource: %v", kind, doc)
			continue
		}
		if strings.HasSuffix(kind, "RoleBinding") {
			roleRef, found, _ := unstructured.NestedMap(content, "roleRef")
			if !found {
				warn("roleRef required for %s, this resource will be ignored. resource: %v", kind, doc)
				continue
			}
			if refKind, _ := roleRef["kind"].(string); len(refKind) == 0 {
				warn("roleRef.kind required for %s, this resource will be ignored. resource: %v", kind, doc)
				continue
			}
			if refName, _ := roleRef["name"].(string); len(refName) == 0 {
				warn("roleRef.name required for %s, this resource will be ignored. resource: %v", kind, doc)
				continue
			}
		}

		if !resources.add(obj) {
			return nil, warnings, fmt.Errorf("RBAC resource with duplicate name detected. resource: %v", doc)
		}
	}

	if resources.Len() == 0 {
		return nil, warnings, fmt.Errorf("No RBAC resource found in rbac_template. rbac_template: %s", path)
	}
	return resources, warnings, nil
}

func isRBACKind(kind string) bool {
	for _, k := range rbacKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// GenerateManifests binds every template binding to the subject and suffixes the names of all
// resources, and of the role references pointing at template roles, with the postfix.
func GenerateManifests(resources *RBACResources, subject rbacv1.Subject, postfix string) ([]*unstructured.Unstructured, []string) {
	var warnings []string
	referenced := map[string]bool{}

	for _, kind := range []string{"ClusterRoleBinding", "RoleBinding"} {
		for _, binding := range resources.Kind(kind) {
			if _, found := binding.Object["subjects"]; found {
				warnings = append(warnings, fmt.Sprintf(
					"subjects in ClusterRoleBinding/RoleBinding will be ignored. namespace: %s, name: %s",
					binding.GetNamespace(), binding.GetName()))
			}
			binding.Object["subjects"] = []interface{}{map[string]interface{}{
				"kind":      subject.Kind,
				"name":      subject.Name,
				"namespace": subject.Namespace,
			}}
			binding.SetName(fmt.Sprintf("%s-%s", binding.GetName(), postfix))

			refKind, _, _ := unstructured.NestedString(binding.Object, "roleRef", "kind")
			refName, _, _ := unstructured.NestedString(binding.Object, "roleRef", "name")
			refNamespace := binding.GetNamespace()
			if refKind == "ClusterRole" {
				refNamespace = ""
			}
			if resources.has(refKind, refNamespace, refName) {
				referenced[rbacKey(refKind, refNamespace, refName)] = true
				_ = unstructured.SetNestedField(binding.Object, fmt.Sprintf("%s-%s", refName, postfix), "roleRef", "name")
			}
		}
	}

	for _, kind := range []string{"ClusterRole", "Role"} {
		for _, role := range resources.Kind(kind) {
			if !referenced[rbacKey(kind, role.GetNamespace(), role.GetName())] {
				warnings = append(warnings, fmt.Sprintf("Unreferenced ClusterRole/Role detected. namespace: %s, name: %s",
					role.GetNamespace(), role.GetName()))
			}
			role.SetName(fmt.Sprintf("%s-%s", role.GetName(), postfix))
		}
	}

	var manifests []*unstructured.Unstructured
	for _, kind := range rbacKinds {
		manifests = append(manifests, resources.Kind(kind)...)
	}
	return manifests, warnings
}

// ApplyRBAC delivers the RBAC resources of the templates, bound to the ManagedServiceAccount,
// to the managed cluster through a ManifestWork owned by the account.
func (p *Provisioner) ApplyRBAC(ctx context.Context, o *RBACOptions) (*result.Status, error) {
	logger := klog.FromContext(ctx)

	cluster, err := p.clients.GetManagedCluster(ctx, o.Cluster)
	if err != nil {
		return nil, err
	}
	if cluster == nil {
		return nil, fmt.Errorf("failed to get managedcluster %s", o.Cluster)
	}

	msa, err := p.Get(ctx, o.Cluster, o.ServiceAccountName)
	if err != nil {
		return nil, err
	}
	if msa == nil {
		return nil, fmt.Errorf("failed to get managed serviceaccount %s", o.ServiceAccountName)
	}
	msaAddon, err := p.clients.GetManagedClusterAddOn(ctx, o.Cluster, addon.ManagedServiceAccountAddonName)
	if err != nil {
		return nil, err
	}
	if msaAddon == nil {
		return nil, fmt.Errorf("failed to get managed serviceaccount addon %s", addon.ManagedServiceAccountAddonName)
	}

	files, err := TemplateFiles(o.TemplatePath)
	if err != nil {
		return nil, err
	}
	docs, err := LoadDocuments(o.TemplatePath, files)
	if err != nil {
		return nil, err
	}
	resources, warnings, err := ValidateDocuments(o.TemplatePath, docs)
	for _, w := range warnings {
		logger.Info("WARNING: " + w)
	}
	if err != nil {
		return nil, err
	}

	uidParts := strings.Split(string(msa.GetUID()), "-")
	subject := rbacv1.Subject{
		Kind:      rbacv1.ServiceAccountKind,
		Name:      msa.GetName(),
		Namespace: msaAddon.Spec.InstallNamespace,
	}
	manifests, generateWarnings := GenerateManifests(resources, subject, uidParts[len(uidParts)-1])
	for _, w := range generateWarnings {
		logger.Info("WARNING: " + w)
	}
	warnings = append(warnings, generateWarnings...)
	if len(manifests) == 0 {
		return nil, fmt.Errorf("No resource generated from rbac_template: %s", o.TemplatePath)
	}

	work, err := newManifestWork(msa, manifests)
	if err != nil {
		return nil, err
	}
	applied, changed, err := workapplier.NewWorkApplier(p.clients.WorkClient).Apply(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("failed to apply manifestwork %s: %w", work.Name, err)
	}

	if o.Wait {
		works := p.clients.WorkClient.WorkV1().ManifestWorks(applied.Namespace)
		available, err := helpers.WaitFor(ctx, works.Get, works.Watch, applied.Name, o.Timeout,
			func(work *workapiv1.ManifestWork, exists bool) bool {
				return exists && meta.IsStatusConditionTrue(work.Status.Conditions, workapiv1.WorkAvailable)
			})
		if err != nil {
			return nil, err
		}
		if !available {
			logger.Info("ManifestWork is not available yet", "namespace", applied.Namespace, "name", applied.Name)
		}
	}

	status := result.Changed("RBAC configuration successfully done for managed cluster %s", o.Cluster)
	status.Changed = changed
	status.Warnings = warnings
	return status, nil
}

func newManifestWork(msa *unstructured.Unstructured, manifests []*unstructured.Unstructured) (*workapiv1.ManifestWork, error) {
	work := &workapiv1.ManifestWork{
		ObjectMeta: metav1.ObjectMeta{
			Name:      msa.GetName(),
			Namespace: msa.GetNamespace(),
			OwnerReferences: []metav1.OwnerReference{{
				APIVersion:         msa.GetAPIVersion(),
				Kind:               msa.GetKind(),
				Name:               msa.GetName(),
				UID:                msa.GetUID(),
				Controller:         ptr.To(true),
				BlockOwnerDeletion: ptr.To(true),
			}},
		},
	}
	for _, m := range manifests {
		raw, err := json.Marshal(m.Object)
		if err != nil {
			return nil, err
		}
		work.Spec.Workload.Manifests = append(work.Spec.Workload.Manifests, workapiv1.Manifest{
			RawExtension: runtime.RawExtension{Raw: raw},
		})
	}
	return work, nil
}
