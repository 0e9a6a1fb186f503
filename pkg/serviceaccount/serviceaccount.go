package serviceaccount

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/manifests"
	"open-cluster-management.io/ocmplus/pkg/addon"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

// ConditionSecretCreated is set on a ManagedServiceAccount once its token secret exists on the hub.
const ConditionSecretCreated = "SecretCreated"

var secretBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    5,
}

// Options describes the ManagedServiceAccount to provision in a managed cluster namespace.
type Options struct {
	Cluster                 string
	Name                    string
	GenerateName            string
	TTLSecondsAfterCreation *int64
	Wait                    bool
	Timeout                 time.Duration
}

func (o *Options) Validate() error {
	if o.TTLSecondsAfterCreation != nil && *o.TTLSecondsAfterCreation < 0 {
		return fmt.Errorf("expecting ttl_seconds_after_creation >= 0, but ttl_seconds_after_creation=%d",
			*o.TTLSecondsAfterCreation)
	}
	if len(o.Name) > 0 && len(o.GenerateName) > 0 {
		return fmt.Errorf("name and generate-name are mutually exclusive")
	}
	return nil
}

// Result is the token of a ManagedServiceAccount. Token is null once the account is removed.
type Result struct {
	result.Status  `json:",inline"`
	Name           string  `json:"name"`
	ManagedCluster string  `json:"managed_cluster"`
	Token          *string `json:"token"`
}

type Provisioner struct {
	clients *hub.Clients
}

func NewProvisioner(clients *hub.Clients) *Provisioner {
	return &Provisioner{clients: clients}
}

func (p *Provisioner) resource(namespace string) (dynamic.ResourceInterface, schema.GroupVersionResource, error) {
	gvr, err := p.clients.ManagedServiceAccountResource()
	if err != nil {
		return nil, gvr, err
	}
	return p.clients.DynamicClient.Resource(gvr).Namespace(namespace), gvr, nil
}

// Get returns the ManagedServiceAccount, or nil when it does not exist.
func (p *Provisioner) Get(ctx context.Context, cluster, name string) (*unstructured.Unstructured, error) {
	client, _, err := p.resource(cluster)
	if err != nil {
		return nil, err
	}
	msa, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	return msa, err
}

// Present ensures the ManagedServiceAccount exists and returns its token.
func (p *Provisioner) Present(ctx context.Context, o *Options) (*Result, error) {
	logger := klog.FromContext(ctx)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if len(o.Name) == 0 && len(o.GenerateName) == 0 {
		return nil, fmt.Errorf("one of name or generate-name is required")
	}

	cluster, err := p.clients.GetManagedCluster(ctx, o.Cluster)
	if err != nil {
		return nil, err
	}
	if cluster == nil {
		return nil, fmt.Errorf("failed to get managedcluster %s", o.Cluster)
	}
	available, err := p.clients.CheckAddOnAvailable(ctx, o.Cluster, addon.ManagedServiceAccountAddonName)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("failed to check addon: %s of %s is not available",
			addon.ManagedServiceAccountAddonName, o.Cluster)
	}

	msa, err := p.ensure(ctx, o)
	if err != nil {
		return nil, err
	}
	logger.V(2).Info("ManagedServiceAccount ensured", "cluster", o.Cluster, "name", msa.GetName())

	if o.Wait {
		client, _, err := p.resource(o.Cluster)
		if err != nil {
			return nil, err
		}
		ready, err := helpers.WaitForUnstructured(ctx, client, msa.GetName(), o.Timeout,
			func(obj *unstructured.Unstructured, exists bool) bool {
				return exists && helpers.IsConditionTrue(obj, ConditionSecretCreated)
			})
		if err != nil {
			return nil, err
		}
		if !ready {
			return nil, fmt.Errorf("timed out waiting for the secret of managedserviceaccount %s of cluster %s",
				msa.GetName(), o.Cluster)
		}
	}

	secret, err := p.tokenSecret(ctx, msa)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("failed to get secret: secret of managedserviceaccount %s of cluster %s is not found",
			msa.GetName(), o.Cluster)
	}

	token := string(secret.Data[corev1.ServiceAccountTokenKey])
	return &Result{
		Status:         *result.Changed("managed serviceaccount %s is ready.", msa.GetName()),
		Name:           msa.GetName(),
		ManagedCluster: o.Cluster,
		Token:          &token,
	}, nil
}

// Absent deletes the named ManagedServiceAccount.
func (p *Provisioner) Absent(ctx context.Context, o *Options) (*Result, error) {
	if len(o.Name) == 0 {
		return nil, fmt.Errorf("name is required when state is absent")
	}
	r := &Result{Name: o.Name, ManagedCluster: o.Cluster}

	client, _, err := p.resource(o.Cluster)
	if err != nil {
		return nil, err
	}
	err = client.Delete(ctx, o.Name, metav1.DeleteOptions{})
	switch {
	case apierrors.IsNotFound(err):
		r.Status = *result.Unchanged("managed serviceaccount %s is deleted.", o.Name)
	case err != nil:
		return nil, fmt.Errorf("failed to delete managed serviceaccount %s: %w", o.Name, err)
	default:
		r.Status = *result.Changed("managed serviceaccount %s is deleted.", o.Name)
	}
	return r, nil
}

func (p *Provisioner) ensure(ctx context.Context, o *Options) (*unstructured.Unstructured, error) {
	client, gvr, err := p.resource(o.Cluster)
	if err != nil {
		return nil, err
	}

	required, err := manifests.Render(manifests.ManagedServiceAccountTemplate, map[string]string{
		"apiVersion":  gvr.GroupVersion().String(),
		"clusterName": o.Cluster,
	})
	if err != nil {
		return nil, err
	}
	if len(o.Name) > 0 {
		required.SetName(o.Name)
	} else {
		required.SetGenerateName(o.GenerateName)
	}
	if o.TTLSecondsAfterCreation != nil {
		if err := unstructured.SetNestedField(required.Object, *o.TTLSecondsAfterCreation,
			"spec", "ttlSecondsAfterCreation"); err != nil {
			return nil, err
		}
	}

	if len(o.Name) > 0 {
		_, err := client.Get(ctx, o.Name, metav1.GetOptions{})
		switch {
		case err == nil:
			data, err := required.MarshalJSON()
			if err != nil {
				return nil, err
			}
			return client.Patch(ctx, o.Name, types.MergePatchType, data, metav1.PatchOptions{})
		case !apierrors.IsNotFound(err):
			return nil, err
		}
	}
	return client.Create(ctx, required, metav1.CreateOptions{})
}

// tokenSecret reads the token secret of the account, retrying while it is not yet created.
// It returns nil when the secret never shows up.
func (p *Provisioner) tokenSecret(ctx context.Context, msa *unstructured.Unstructured) (*corev1.Secret, error) {
	name, _, _ := unstructured.NestedString(msa.Object, "status", "tokenSecretRef", "name")
	if len(name) == 0 {
		name = msa.GetName()
	}

	var secret *corev1.Secret
	err := wait.ExponentialBackoffWithContext(ctx, secretBackoff, func(ctx context.Context) (bool, error) {
		s, err := p.clients.KubeClient.CoreV1().Secrets(msa.GetNamespace()).Get(ctx, name, metav1.GetOptions{})
		switch {
		case apierrors.IsNotFound(err):
			return false, nil
		case err != nil:
			return false, err
		}
		secret = s
		return true, nil
	})
	if wait.Interrupted(err) {
		return nil, nil
	}
	return secret, err
}
