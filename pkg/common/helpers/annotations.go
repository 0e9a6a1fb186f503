package helpers

import (
	"strings"
)

const lastAppliedConfigurationSuffix = "last-applied-configuration"

// FilterClusterAnnotations copies the annotations of a managed cluster, leaving out the
// last-applied-configuration annotations written by client side apply.
func FilterClusterAnnotations(annotations map[string]string) map[string]string {
	clusterAnnotations := make(map[string]string)
	if annotations == nil {
		return clusterAnnotations
	}

	for k, v := range annotations {
		if strings.HasSuffix(k, lastAppliedConfigurationSuffix) {
			continue
		}
		clusterAnnotations[k] = v
	}

	return clusterAnnotations
}
