package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

const (
	PluginName = "ocm_managedcluster"
	// HubGroup holds the hub cluster itself, the name is reserved.
	HubGroup = "hub"

	defaultCacheTimeout = 3600
)

type ClusterGroup struct {
	Name string `json:"name,omitempty"`
	// LabelSelectors are key=value strings, a cluster has to match all of them.
	LabelSelectors []string `json:"label_selectors,omitempty"`
	// CELSelectors are evaluated against the managedCluster variable, a cluster has to match all of them.
	CELSelectors []string `json:"cel_selectors,omitempty"`
}

type Config struct {
	Plugin        string         `json:"plugin"`
	HubKubeconfig string         `json:"hub_kubeconfig,omitempty"`
	ClusterGroups []ClusterGroup `json:"cluster_groups,omitempty"`
	Cache         bool           `json:"cache,omitempty"`
	// CacheTimeout is in seconds.
	CacheTimeout *int   `json:"cache_timeout,omitempty"`
	CacheDir     string `json:"cache_dir,omitempty"`
}

// LoadConfig reads an inventory source file. Only .yaml and .yml files are accepted.
func LoadConfig(path string) (*Config, error) {
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("inventory source %s is not a .yaml or .yml file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory source %s: %w", path, err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse inventory source %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Plugin != PluginName && !strings.HasSuffix(c.Plugin, "."+PluginName) {
		return fmt.Errorf("inventory source is not for the %s plugin: plugin is %q", PluginName, c.Plugin)
	}
	for _, group := range c.ClusterGroups {
		if group.Name == HubGroup {
			return fmt.Errorf("group_name cannot be '%s'", HubGroup)
		}
	}
	if c.CacheTimeout != nil && *c.CacheTimeout < 0 {
		return fmt.Errorf("cache_timeout must not be negative")
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	if c.CacheTimeout == nil {
		return defaultCacheTimeout * time.Second
	}
	return time.Duration(*c.CacheTimeout) * time.Second
}

// CachePath returns the cache directory, defaulting to the user cache dir.
func (c *Config) CachePath() (string, error) {
	if len(c.CacheDir) > 0 {
		return c.CacheDir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ocmplus", "inventory"), nil
}
