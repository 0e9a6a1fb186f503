package helpers

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

var coreVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// CompareVersion returns true if current is equal to or newer than target. Only the
// major.minor.patch core is compared, prerelease and build metadata are ignored. Versions
// which do not start with a full major.minor.patch never compare as newer.
func CompareVersion(current, target string) bool {
	currentVersion, ok := coreVersion(current)
	if !ok {
		return false
	}
	targetVersion, ok := coreVersion(target)
	if !ok {
		return false
	}
	return currentVersion.Compare(targetVersion) >= 0
}

func coreVersion(v string) (*semver.Version, bool) {
	core := coreVersionPattern.FindString(v)
	if len(core) == 0 {
		return nil, false
	}
	parsed, err := semver.NewVersion(core)
	if err != nil {
		return nil, false
	}
	return parsed, true
}

// GetCSVVersion returns the version of a ClusterServiceVersion, read from spec.version or,
// when that is empty, from a metadata.name of the form <prefix>.v<version>.
func GetCSVVersion(csv *unstructured.Unstructured, prefix string) string {
	if csv == nil {
		return ""
	}
	if v, _, _ := unstructured.NestedString(csv.Object, "spec", "version"); len(v) > 0 {
		return v
	}
	namePrefix := prefix + ".v"
	if name := csv.GetName(); strings.HasPrefix(name, namePrefix) {
		return strings.TrimPrefix(name, namePrefix)
	}
	return ""
}
