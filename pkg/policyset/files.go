package policyset

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

const maxNameLength = 253

var (
	remediationActions = []string{"inform", "enforce"}
	complianceTypes    = []string{"musthave", "mustonlyhave", "mustnothave"}
	severities         = []string{"low", "Low", "medium", "Medium", "high", "High", "critical", "Critical"}

	invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)
)

// ManifestFile is a manifest found under <manifest_dir>/<remediation action>/<compliance type>/.
type ManifestFile struct {
	Name              string
	Path              string
	RemediationAction string
	ComplianceType    string
}

// Attributes are the policy annotations read from the comments of a manifest file.
type Attributes struct {
	Categories string
	Controls   string
	Standards  string
	Severity   string
}

// SanitizeName drops every character that is not alphanumeric or a dash.
func SanitizeName(name string) string {
	return invalidNameChars.ReplaceAllString(name, "")
}

// NameFromManifestDir derives the policy set name from the last segment of the manifest directory.
func NameFromManifestDir(manifestDir string) string {
	manifestDir = strings.TrimRight(manifestDir, "/")
	return SanitizeName(manifestDir[strings.LastIndex(manifestDir, "/")+1:])
}

// Discover walks the manifest directory, following symlinks, and returns the manifest files of
// every remediation action and compliance type in walk order.
func Discover(manifestDir, policySetName string) ([]ManifestFile, error) {
	if info, err := os.Stat(manifestDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("Error accessing %s. Does the directory exist?", manifestDir)
	}
	manifestDir = filepath.Clean(manifestDir)

	var files []ManifestFile
	used := map[string]bool{}
	err := walk(manifestDir, func(path string) error {
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		for _, action := range remediationActions {
			for _, complianceType := range complianceTypes {
				if !strings.HasPrefix(path, fmt.Sprintf("%s/%s/%s/", manifestDir, action, complianceType)) {
					continue
				}
				base := filepath.Base(path)
				name := SanitizeName(strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml"))
				if used[name] {
					return fmt.Errorf("Filename: %s already being used!", name)
				}
				if len(policySetName)+1+len(name) > maxNameLength {
					return fmt.Errorf("Filename: %s can contain at most %d characters",
						name, maxNameLength-len(policySetName)-1)
				}
				used[name] = true
				files = append(files, ManifestFile{
					Name:              name,
					Path:              path,
					RemediationAction: action,
					ComplianceType:    complianceType,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("No manifest file in directory: %s", manifestDir)
	}
	return files, nil
}

// walk visits the regular files below dir in lexical order. Symlinked directories are
// followed, path keeps the link name so that prefixes are matched against the logical tree.
func walk(dir string, visit func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := dir + "/" + entry.Name()
		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			mode = info.Mode().Type()
		}
		switch {
		case mode.IsDir():
			if err := walk(path, visit); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := visit(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadAttributes scans the comment lines of the file for policy_categories, policy_controls,
// policy_standards and policy_severity. The value follows the first '=' or else the first ':'.
func ReadAttributes(path string) (*Attributes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	attrs := &Attributes{}
	fields := []struct {
		key   string
		value *string
	}{
		{"policy_categories", &attrs.Categories},
		{"policy_controls", &attrs.Controls},
		{"policy_standards", &attrs.Standards},
		{"policy_severity", &attrs.Severity},
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "#") {
			continue
		}
		for _, field := range fields {
			if !strings.Contains(line, field.key) {
				continue
			}
			value := ""
			if i := strings.Index(line, "="); i >= 0 {
				value = line[i+1:]
			} else if i := strings.Index(line, ":"); i >= 0 {
				value = line[i+1:]
			}
			value = strings.NewReplacer("'", "", `"`, "").Replace(value)
			*field.value = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !validSeverity(attrs.Severity) {
		attrs.Severity = "low"
	}
	return attrs, nil
}

func validSeverity(severity string) bool {
	for _, s := range severities {
		if s == severity {
			return true
		}
	}
	return false
}

// ObjectTemplates wraps every YAML document of the file into an object template with the
// compliance type. Templates are sorted by metadata.name when every document has one.
func ObjectTemplates(path, complianceType string) ([]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Error loading resource file %s: %w", path, err)
	}
	defer f.Close()

	var docs []map[string]interface{}
	reader := utilyaml.NewYAMLReader(bufio.NewReader(f))
	for {
		raw, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Error loading resource file %s: %w", path, err)
		}
		doc := map[string]interface{}{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("Error loading resource file %s: %w", path, err)
		}
		if len(doc) > 0 {
			docs = append(docs, doc)
		}
	}

	named := true
	for _, doc := range docs {
		if len(documentName(doc)) == 0 {
			named = false
			break
		}
	}
	if named {
		sort.SliceStable(docs, func(i, j int) bool {
			return documentName(docs[i]) < documentName(docs[j])
		})
	}

	templates := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		templates = append(templates, map[string]interface{}{
			"complianceType":   complianceType,
			"objectDefinition": doc,
		})
	}
	return templates, nil
}

func documentName(doc map[string]interface{}) string {
	metadata, _ := doc["metadata"].(map[string]interface{})
	name, _ := metadata["name"].(string)
	return name
}
