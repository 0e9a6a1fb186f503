package workapplier

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"open-cluster-management.io/addon-framework/pkg/utils"
	workv1client "open-cluster-management.io/api/client/work/clientset/versioned"
	workapiv1 "open-cluster-management.io/api/work/v1"
)

// WorkApplier creates or patches ManifestWorks on the hub so that they carry the required
// manifests and owners.
type WorkApplier struct {
	workClient workv1client.Interface
}

func NewWorkApplier(workClient workv1client.Interface) *WorkApplier {
	return &WorkApplier{workClient: workClient}
}

// Apply creates the work when it is missing, otherwise it merge-patches the spec and the
// owner references of the existing work when they differ. It returns the work on the hub and
// whether anything was written.
func (w *WorkApplier) Apply(ctx context.Context, work *workapiv1.ManifestWork) (*workapiv1.ManifestWork, bool, error) {
	logger := klog.FromContext(ctx)
	works := w.workClient.WorkV1().ManifestWorks(work.Namespace)

	existingWork, err := works.Get(ctx, work.Name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		created, err := works.Create(ctx, work, metav1.CreateOptions{})
		if err != nil {
			return nil, false, err
		}
		logger.V(2).Info("Created work", "namespace", work.Namespace, "name", work.Name)
		return created, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	existingWork = existingWork.DeepCopy()

	owners := append([]metav1.OwnerReference{}, existingWork.OwnerReferences...)
	ownersChanged := false
	for _, owner := range work.OwnerReferences {
		if utils.MergeOwnerRefs(&owners, owner, false) {
			ownersChanged = true
		}
	}
	if !ownersChanged && manifestWorkSpecEqual(work.Spec, existingWork.Spec) {
		return existingWork, false, nil
	}

	oldData, err := json.Marshal(&workapiv1.ManifestWork{
		ObjectMeta: metav1.ObjectMeta{OwnerReferences: existingWork.OwnerReferences},
		Spec:       existingWork.Spec,
	})
	if err != nil {
		return existingWork, false, err
	}

	newData, err := json.Marshal(&workapiv1.ManifestWork{
		ObjectMeta: metav1.ObjectMeta{
			UID:             existingWork.UID,
			ResourceVersion: existingWork.ResourceVersion,
			OwnerReferences: owners,
		},
		Spec: work.Spec,
	})
	if err != nil {
		return existingWork, false, err
	}

	patchBytes, err := jsonpatch.CreateMergePatch(oldData, newData)
	if err != nil {
		return existingWork, false, fmt.Errorf("failed to create patch for work %s: %w", existingWork.Name, err)
	}

	logger.V(2).Info("Patching work", "namespace", existingWork.Namespace, "name", existingWork.Name, "patch", string(patchBytes))
	updated, err := works.Patch(ctx, existingWork.Name, types.MergePatchType, patchBytes, metav1.PatchOptions{})
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func manifestsEqual(new, old []workapiv1.Manifest) bool {
	if len(new) != len(old) {
		return false
	}

	for i := range new {
		if !equality.Semantic.DeepEqual(new[i].Raw, old[i].Raw) {
			return false
		}
	}
	return true
}

func manifestWorkSpecEqual(new, old workapiv1.ManifestWorkSpec) bool {
	if !manifestsEqual(new.Workload.Manifests, old.Workload.Manifests) {
		return false
	}
	if !equality.Semantic.DeepEqual(new.ManifestConfigs, old.ManifestConfigs) {
		return false
	}
	if !equality.Semantic.DeepEqual(new.DeleteOption, old.DeleteOption) {
		return false
	}
	return true
}
