package hub

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clienttesting "k8s.io/client-go/testing"

	clusterv1 "open-cluster-management.io/api/cluster/v1"

	"open-cluster-management.io/ocmplus/pkg/cmd"
	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
	hubtesting "open-cluster-management.io/ocmplus/pkg/hub/testing"
)

func newManagedCluster(name string) *clusterv1.ManagedCluster {
	return &clusterv1.ManagedCluster{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{"name": name, "vendor": "OpenShift"},
		},
	}
}

// allowAccess answers every access review, denying the ones matching deny.
func allowAccess(fake *hubtesting.FakeClients, deny func(attrs *authorizationv1.ResourceAttributes) bool) {
	fake.Kube.PrependReactor("create", "selfsubjectaccessreviews", func(action clienttesting.Action) (bool, runtime.Object, error) {
		review := action.(clienttesting.CreateAction).GetObject().(*authorizationv1.SelfSubjectAccessReview).DeepCopy()
		review.Status.Allowed = deny == nil || !deny(review.Spec.ResourceAttributes)
		return true, review, nil
	})
}

func fakeRunner(name string, fake *hubtesting.FakeClients) *cmd.Runner {
	runner := cmd.NewRunner(name)
	runner.Clients = fake.Clients
	return runner
}

func execute(command *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	command.SetArgs(args)
	command.SilenceUsage = true
	command.SilenceErrors = true
	command.SetOut(out)
	command.SetErr(io.Discard)
	err := command.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	cases := []struct {
		command         *cobra.Command
		expectedUse     string
		expectedAliases []string
		expectedFlags   []string
	}{
		{
			command:         NewAddonCommand(),
			expectedUse:     "addon",
			expectedAliases: []string{"managedcluster-addon"},
			expectedFlags:   []string{"cluster", "addon", "state", "hub-kubeconfig", "wait", "timeout"},
		},
		{
			command:         NewFeatureCommand(),
			expectedUse:     "feature",
			expectedAliases: []string{"cluster-management-addon"},
			expectedFlags:   []string{"addon", "state", "wait"},
		},
		{
			command:       NewClusterProxyCommand(),
			expectedUse:   "cluster-proxy",
			expectedFlags: []string{"cluster", "wait", "timeout"},
		},
		{
			command:       NewClusterInfoCommand(),
			expectedUse:   "managedcluster-info",
			expectedFlags: []string{"cluster", "output"},
		},
		{
			command:       NewManagedServiceAccountCommand(),
			expectedUse:   "managed-serviceaccount",
			expectedFlags: []string{"cluster", "name", "generate-name", "ttl-seconds-after-creation", "state"},
		},
		{
			command:       NewManagedServiceAccountRBACCommand(),
			expectedUse:   "managed-serviceaccount-rbac",
			expectedFlags: []string{"cluster", "managed-serviceaccount-name", "rbac-template"},
		},
		{
			command:     NewPolicySetCommand(),
			expectedUse: "policyset",
			expectedFlags: []string{"namespace", "manifest-dir", "description", "cluster-selectors",
				"github-repository-url", "github-repository-branch", "github-token", "max-policy-workers", "state"},
		},
	}

	for _, c := range cases {
		t.Run(c.expectedUse, func(t *testing.T) {
			if c.command.Use != c.expectedUse {
				t.Errorf("Expected Use to be %q, got %q", c.expectedUse, c.command.Use)
			}
			if len(c.command.Short) == 0 {
				t.Error("Expected Short to be set")
			}
			if strings.Join(c.command.Aliases, ",") != strings.Join(c.expectedAliases, ",") {
				t.Errorf("Expected aliases %v, got %v", c.expectedAliases, c.command.Aliases)
			}
			for _, flag := range c.expectedFlags {
				if c.command.Flags().Lookup(flag) == nil {
					t.Errorf("Expected flag %q", flag)
				}
			}
			if c.command.RunE == nil {
				t.Error("Expected command to have RunE set")
			}
			if _, err := execute(c.command, "--help"); err != nil {
				t.Errorf("Command execution with --help failed: %v", err)
			}
		})
	}
}

func TestAddonCommand(t *testing.T) {
	cases := []struct {
		name            string
		args            []string
		objects         hubtesting.Objects
		deny            func(attrs *authorizationv1.ResourceAttributes) bool
		expectedErr     string
		expectedMsg     string
		expectedChanged bool
	}{
		{
			name:        "addon required",
			args:        []string{"--cluster=cluster1"},
			expectedErr: "addon is required, one of cluster-proxy, managed-serviceaccount, policy-controller, cert-policy-controller, iam-policy-controller, application-manager, search-collector",
		},
		{
			name:        "unsupported addon",
			args:        []string{"--cluster=cluster1", "--addon=foo"},
			expectedErr: `unsupported addon "foo"`,
		},
		{
			name:        "managed cluster missing",
			args:        []string{"--cluster=cluster1", "--addon=cluster-proxy"},
			expectedErr: "failed to get managedcluster cluster1",
		},
		{
			name:        "feature missing",
			args:        []string{"--cluster=cluster1", "--addon=managed-serviceaccount"},
			objects:     hubtesting.Objects{Cluster: []runtime.Object{newManagedCluster("cluster1")}},
			expectedErr: "failed to check feature: managed-serviceaccount of ClusterManagementAddOn is not enabled",
		},
		{
			name:        "absent",
			args:        []string{"--cluster=cluster1", "--addon=cluster-proxy", "--state=absent"},
			expectedMsg: "addon: cluster-proxy in cluster1 is not found or already disabled",
		},
		{
			name:    "managed cluster addon access denied",
			args:    []string{"--cluster=cluster1", "--addon=cluster-proxy"},
			objects: hubtesting.Objects{Cluster: []runtime.Object{newManagedCluster("cluster1")}},
			deny: func(attrs *authorizationv1.ResourceAttributes) bool {
				return attrs.Resource == "managedclusteraddons" && attrs.Verb == "create"
			},
			expectedErr: "not allowed to create managedclusteraddons.addon.open-cluster-management.io in namespace cluster1 on the hub",
		},
		{
			name:    "klusterlet addon config access denied",
			args:    []string{"--cluster=cluster1", "--addon=policy-controller", "--state=absent"},
			objects: hubtesting.Objects{Cluster: []runtime.Object{newManagedCluster("cluster1")}},
			deny: func(attrs *authorizationv1.ResourceAttributes) bool {
				return attrs.Resource == "klusterletaddonconfigs" && attrs.Verb == "patch"
			},
			expectedErr: "not allowed to patch klusterletaddonconfigs.agent.open-cluster-management.io in namespace cluster1 on the hub",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fake := hubtesting.NewFakeClients(c.objects)
			allowAccess(fake, c.deny)
			out, err := execute(newAddonCommand(fakeRunner("addon", fake)), c.args...)
			if c.deny != nil {
				if actions := testingcommon.FilterActions(fake.Addon.Actions(), "create", "delete"); len(actions) > 0 {
					t.Errorf("expected no addon changes, got %v", actions)
				}
				if actions := testingcommon.FilterActions(fake.Dynamic.Actions(), "patch"); len(actions) > 0 {
					t.Errorf("expected no patches, got %v", actions)
				}
			}
			testingcommon.AssertError(t, err, c.expectedErr)
			if err != nil {
				return
			}

			doc := map[string]interface{}{}
			if err := json.Unmarshal([]byte(out), &doc); err != nil {
				t.Fatalf("unexpected output %q: %v", out, err)
			}
			if doc["msg"] != c.expectedMsg {
				t.Errorf("expected msg %q, got %v", c.expectedMsg, doc["msg"])
			}
			if doc["changed"] != c.expectedChanged {
				t.Errorf("expected changed %v, got %v", c.expectedChanged, doc["changed"])
			}
		})
	}
}

func TestFeatureCommand(t *testing.T) {
	cases := []struct {
		name        string
		args        []string
		deny        func(attrs *authorizationv1.ResourceAttributes) bool
		expectedErr string
	}{
		{
			name:        "not a feature",
			args:        []string{"--addon=policy-controller"},
			expectedErr: `addon "policy-controller" cannot be toggled as a feature`,
		},
		{
			name: "hub access denied",
			args: []string{"--addon=search-collector"},
			deny: func(attrs *authorizationv1.ResourceAttributes) bool {
				return attrs.Resource == "multiclusterhubs" && attrs.Verb == "patch"
			},
			expectedErr: "not allowed to patch multiclusterhubs.operator.open-cluster-management.io on the hub",
		},
		{
			name: "engine access denied",
			args: []string{"--addon=cluster-proxy", "--state=absent"},
			deny: func(attrs *authorizationv1.ResourceAttributes) bool {
				return attrs.Resource == "multiclusterengines"
			},
			expectedErr: "not allowed to list multiclusterengines.multicluster.openshift.io on the hub",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fake := hubtesting.NewFakeClients(hubtesting.Objects{})
			allowAccess(fake, c.deny)
			_, err := execute(newFeatureCommand(fakeRunner("feature", fake)), c.args...)
			testingcommon.AssertError(t, err, c.expectedErr)
			if c.deny != nil {
				testingcommon.AssertNoActions(t, fake.Dynamic.Actions())
			}
		})
	}
}

func TestClusterInfoCommand(t *testing.T) {
	fake := hubtesting.NewFakeClients(hubtesting.Objects{
		Cluster: []runtime.Object{newManagedCluster("cluster1"), newManagedCluster("cluster2")},
	})

	out, err := execute(newClusterInfoCommand(fakeRunner("managedcluster-info", fake)), "--output=yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, expected := range []string{"changed: false", "name: cluster1", "name: cluster2", "vendor: OpenShift"} {
		if !strings.Contains(out, expected) {
			t.Errorf("expected %q in output:\n%s", expected, out)
		}
	}
}

func TestManagedServiceAccountCommand(t *testing.T) {
	cases := []struct {
		name        string
		args        []string
		deny        func(attrs *authorizationv1.ResourceAttributes) bool
		expectedErr string
	}{
		{
			name:        "cluster required",
			args:        []string{"--name=msa"},
			expectedErr: "managed cluster name is empty",
		},
		{
			name:        "negative ttl",
			args:        []string{"--cluster=cluster1", "--name=msa", "--ttl-seconds-after-creation=-1"},
			expectedErr: "expecting ttl_seconds_after_creation >= 0, but ttl_seconds_after_creation=-1",
		},
		{
			name:        "name and generate name",
			args:        []string{"--cluster=cluster1", "--name=msa", "--generate-name=msa-"},
			expectedErr: "name and generate-name are mutually exclusive",
		},
		{
			name: "access denied",
			args: []string{"--cluster=cluster1", "--name=msa"},
			deny: func(attrs *authorizationv1.ResourceAttributes) bool {
				return attrs.Resource == "managedserviceaccounts" && attrs.Verb == "create"
			},
			expectedErr: "not allowed to create managedserviceaccounts.authentication.open-cluster-management.io in namespace cluster1 on the hub",
		},
		{
			name:        "managed cluster missing",
			args:        []string{"--cluster=cluster1", "--name=msa"},
			expectedErr: "failed to get managedcluster cluster1",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fake := hubtesting.NewFakeClients(hubtesting.Objects{})
			allowAccess(fake, c.deny)
			_, err := execute(newManagedServiceAccountCommand(fakeRunner("managed-serviceaccount", fake)), c.args...)
			testingcommon.AssertError(t, err, c.expectedErr)
		})
	}
}

func TestManagedServiceAccountRBACCommand(t *testing.T) {
	cases := []struct {
		name        string
		args        []string
		expectedErr string
	}{
		{
			name:        "service account required",
			args:        []string{"--cluster=cluster1", "--rbac-template=templates"},
			expectedErr: "--managed-serviceaccount-name is required",
		},
		{
			name:        "template required",
			args:        []string{"--cluster=cluster1", "--managed-serviceaccount-name=msa"},
			expectedErr: "--rbac-template is required",
		},
		{
			name:        "managed cluster missing",
			args:        []string{"--cluster=cluster1", "--managed-serviceaccount-name=msa", "--rbac-template=templates"},
			expectedErr: "failed to get managedcluster cluster1",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fake := hubtesting.NewFakeClients(hubtesting.Objects{})
			allowAccess(fake, nil)
			_, err := execute(newManagedServiceAccountRBACCommand(fakeRunner("managed-serviceaccount-rbac", fake)), c.args...)
			testingcommon.AssertError(t, err, c.expectedErr)
		})
	}
}

func TestPolicySetCommand(t *testing.T) {
	cases := []struct {
		name        string
		args        []string
		deny        func(attrs *authorizationv1.ResourceAttributes) bool
		expectedErr string
	}{
		{
			name:        "namespace required",
			args:        []string{"--manifest-dir=policies/etcd"},
			expectedErr: "namespace is required",
		},
		{
			name:        "workers must be positive",
			args:        []string{"--namespace=policies", "--manifest-dir=policies/etcd", "--max-policy-workers=0"},
			expectedErr: "max policy workers must be positive",
		},
		{
			name: "access denied",
			args: []string{"--namespace=policies", "--manifest-dir=policies/etcd", "--state=absent"},
			deny: func(attrs *authorizationv1.ResourceAttributes) bool {
				return attrs.Resource == "policysets" && attrs.Verb == "delete"
			},
			expectedErr: "not allowed to delete policysets.policy.open-cluster-management.io in namespace policies on the hub",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fake := hubtesting.NewFakeClients(hubtesting.Objects{})
			allowAccess(fake, c.deny)
			_, err := execute(newPolicySetCommand(fakeRunner("policyset", fake)), c.args...)
			testingcommon.AssertError(t, err, c.expectedErr)
		})
	}
}
