package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://hub.example.com:6443
  name: hub
contexts:
- context:
    cluster: hub
    user: admin
  name: hub
current-context: hub
users:
- name: admin
  user:
    token: abc
`

func TestComplete(t *testing.T) {
	cases := []struct {
		name               string
		args               []string
		env                string
		expectedKubeconfig string
		expectedTimeout    time.Duration
	}{
		{
			name:            "defaults",
			expectedTimeout: 60 * time.Second,
		},
		{
			name:               "kubeconfig from env",
			env:                "/tmp/env-kubeconfig",
			expectedKubeconfig: "/tmp/env-kubeconfig",
			expectedTimeout:    60 * time.Second,
		},
		{
			name:               "flag wins over env",
			args:               []string{"--hub-kubeconfig=/tmp/flag-kubeconfig", "--timeout=30"},
			env:                "/tmp/env-kubeconfig",
			expectedKubeconfig: "/tmp/flag-kubeconfig",
			expectedTimeout:    30 * time.Second,
		},
		{
			name:            "non positive timeout",
			args:            []string{"--timeout=-5"},
			expectedTimeout: 60 * time.Second,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(KubeconfigEnv, c.env)

			o := NewHubOptions()
			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			o.AddFlags(flags)
			if err := flags.Parse(c.args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			o.Complete()

			if o.KubeconfigFile != c.expectedKubeconfig {
				t.Errorf("expected kubeconfig %q, got %q", c.expectedKubeconfig, o.KubeconfigFile)
			}
			if o.Timeout() != c.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", c.expectedTimeout, o.Timeout())
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name        string
		mutate      func(o *HubOptions)
		expectedErr string
	}{
		{
			name:   "defaults",
			mutate: func(o *HubOptions) {},
		},
		{
			name:   "yaml output",
			mutate: func(o *HubOptions) { o.Output = OutputYAML },
		},
		{
			name:        "unknown output",
			mutate:      func(o *HubOptions) { o.Output = "table" },
			expectedErr: `unsupported output format "table", expected json or yaml`,
		},
		{
			name:        "zero qps",
			mutate:      func(o *HubOptions) { o.QPS = 0 },
			expectedErr: "hub kube api qps and burst must be positive",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			o := NewHubOptions()
			c.mutate(o)
			testingcommon.AssertError(t, o.Validate(), c.expectedErr)
		})
	}
}

func TestHubRestConfig(t *testing.T) {
	kubeconfig := filepath.Join(t.TempDir(), "kubeconfig")
	if err := os.WriteFile(kubeconfig, []byte(testKubeconfig), 0600); err != nil {
		t.Fatal(err)
	}

	o := NewHubOptions()
	o.KubeconfigFile = kubeconfig
	config, err := o.HubRestConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Host != "https://hub.example.com:6443" || config.BearerToken != "abc" {
		t.Errorf("unexpected rest config %+v", config)
	}
	if config.QPS != 50 || config.Burst != 100 {
		t.Errorf("expected qps and burst to be set, got %v %v", config.QPS, config.Burst)
	}

	o.KubeconfigFile = filepath.Join(t.TempDir(), "missing")
	if _, err := o.HubRestConfig(); err == nil {
		t.Errorf("expected error for a missing kubeconfig")
	}
}

func TestValidateClusterName(t *testing.T) {
	testingcommon.AssertError(t, ValidateClusterName("cluster1"), "")
	testingcommon.AssertError(t, ValidateClusterName(""), "managed cluster name is empty")
	testingcommon.AssertErrorWithPrefix(t, ValidateClusterName("Cluster_1"), `managed cluster name "Cluster_1" is not valid`)
}

func TestState(t *testing.T) {
	var s State
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Var(&s, "state", "")
	if err := flags.Parse([]string{"--state=absent"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != StateAbsent {
		t.Errorf("expected absent, got %q", s)
	}
	if err := flags.Parse([]string{"--state=gone"}); err == nil {
		t.Errorf("expected error for an invalid state")
	}
	if _, err := ParseState("present"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
