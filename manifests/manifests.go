package manifests

import (
	"embed"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

//go:embed templates
var templateFiles embed.FS

const (
	ManagedClusterTemplate        = "templates/managedcluster.yaml"
	KlusterletAddonConfigTemplate = "templates/klusterletaddonconfig.yaml"
	ManagedServiceAccountTemplate = "templates/managedserviceaccount.yaml"
	PlacementRuleTemplate         = "templates/placementrule.yaml"
	PlacementBindingTemplate      = "templates/placementbinding.yaml"
	PolicySetTemplate             = "templates/policyset.yaml"
	PolicyTemplate                = "templates/policy.yaml"
)

// Render fills the {{ }} tags of the embedded template with the values and decodes the result.
// Every tag must have a string value.
func Render(name string, values map[string]string) (*unstructured.Unstructured, error) {
	raw, err := templateFiles.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read template %s", name)
	}

	t, err := fasttemplate.NewTemplate(string(raw), "{{", "}}")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %s", name)
	}
	rendered, err := t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		value, ok := values[tag]
		if !ok {
			return 0, fmt.Errorf("no value for %q", tag)
		}
		return w.Write([]byte(value))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render template %s", name)
	}

	data, err := yaml.YAMLToJSON([]byte(rendered))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode template %s", name)
	}
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, errors.Wrapf(err, "failed to decode template %s", name)
	}
	return obj, nil
}
