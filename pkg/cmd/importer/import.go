package importer

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	authorizationv1 "k8s.io/api/authorization/v1"

	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/recorder"
	"open-cluster-management.io/ocmplus/pkg/hub"
	"open-cluster-management.io/ocmplus/pkg/importer"
	"open-cluster-management.io/ocmplus/pkg/importer/providers"
	"open-cluster-management.io/ocmplus/pkg/importer/providers/eks"
	"open-cluster-management.io/ocmplus/pkg/importer/providers/kubeconfig"
)

const componentName = "ocmplus-import"

type importOptions struct {
	importer.Options
}

func (o *importOptions) addFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&o.Addons.PolicyController, "policy-controller", o.Addons.PolicyController,
		"Enable the policy controller addon.")
	flags.BoolVar(&o.Addons.IAMPolicyController, "iam-policy-controller", o.Addons.IAMPolicyController,
		"Enable the IAM policy controller addon.")
	flags.BoolVar(&o.Addons.SearchCollector, "search-collector", o.Addons.SearchCollector,
		"Enable the search collector addon.")
	flags.BoolVar(&o.Addons.ApplicationManager, "application-manager", o.Addons.ApplicationManager,
		"Enable the application manager addon.")
	flags.BoolVar(&o.Addons.CertPolicyController, "cert-policy-controller", o.Addons.CertPolicyController,
		"Enable the cert policy controller addon.")
}

// run imports the cluster reached through the provider and surfaces the warnings recorded
// while applying the import manifests.
func (o *importOptions) run(runner *cmd.Runner, newProvider func(ctx context.Context) (providers.Interface, error)) cmd.Operation {
	return func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
		provider, err := newProvider(ctx)
		if err != nil {
			return nil, err
		}

		o.Wait = runner.HubOptions.Wait
		o.Timeout = runner.HubOptions.Timeout()
		if err := o.Validate(); err != nil {
			return nil, err
		}

		eventRecorder := recorder.NewContextualLoggingEventRecorder(ctx, componentName)
		r, err := importer.NewImporter(clients, eventRecorder).Import(ctx, provider, &o.Options)
		if err != nil {
			return nil, err
		}
		r.Warnings = append(r.Warnings, eventRecorder.Warnings()...)
		return r, nil
	}
}

// NewImportCommand generates a command to import a cluster reached through a kubeconfig
func NewImportCommand() *cobra.Command {
	return newImportCommand(cmd.NewRunner("import"), func(path, kubeContext string) providers.Interface {
		return kubeconfig.NewProvider(path, kubeContext)
	})
}

func newImportCommand(runner *cmd.Runner, newProvider func(path, kubeContext string) providers.Interface) *cobra.Command {
	o := &importOptions{}
	var clusterKubeconfig, clusterContext string

	command := &cobra.Command{
		Use:   "import",
		Short: "Import a cluster reached through a kubeconfig into the hub",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			if len(clusterKubeconfig) == 0 {
				return fmt.Errorf("--cluster-kubeconfig is required")
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetImportSSARs(o.ClusterName)
			}
			return runner.Run(command, o.run(runner, func(ctx context.Context) (providers.Interface, error) {
				return newProvider(clusterKubeconfig, clusterContext), nil
			}))
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&o.ClusterName, "cluster", o.ClusterName, "Name of the managed cluster on the hub.")
	flags.StringVar(&clusterKubeconfig, "cluster-kubeconfig", clusterKubeconfig,
		"Location of the kubeconfig file of the cluster to import.")
	flags.StringVar(&clusterContext, "cluster-context", clusterContext,
		"Context of the cluster kubeconfig to use. Defaults to the current context.")
	o.addFlags(flags)
	return command
}

// NewImportEKSCommand generates a command to import an EKS cluster into the hub
func NewImportEKSCommand() *cobra.Command {
	return newImportEKSCommand(cmd.NewRunner("import-eks"), newEKSProvider)
}

func newEKSProvider(ctx context.Context, creds eks.Credentials, cluster string) (providers.Interface, error) {
	cfg, err := eks.LoadConfig(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	provider, err := eks.NewProvider(cfg, cluster)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

type eksProviderFunc func(ctx context.Context, creds eks.Credentials, cluster string) (providers.Interface, error)

func newImportEKSCommand(runner *cmd.Runner, newProvider eksProviderFunc) *cobra.Command {
	o := &importOptions{}
	creds := eks.Credentials{}
	var eksCluster string

	command := &cobra.Command{
		Use:   "import-eks",
		Short: "Import an EKS cluster into the hub",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if len(eksCluster) == 0 {
				return fmt.Errorf("--eks-cluster is required")
			}
			if len(o.ClusterName) == 0 {
				o.ClusterName = eksCluster
				if helpers.IsARN(eksCluster) {
					parsed, err := helpers.ParseClusterARN(eksCluster)
					if err != nil {
						return err
					}
					o.ClusterName = parsed.Name
				}
			}
			if err := o.Validate(); err != nil {
				return err
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetImportSSARs(o.ClusterName)
			}
			return runner.Run(command, o.run(runner, func(ctx context.Context) (providers.Interface, error) {
				return newProvider(ctx, creds, eksCluster)
			}))
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&eksCluster, "eks-cluster", eksCluster, "Name or ARN of the EKS cluster.")
	flags.StringVar(&o.ClusterName, "cluster", o.ClusterName,
		"Name of the managed cluster on the hub. Defaults to the EKS cluster name.")
	flags.StringVar(&creds.AccessKeyID, "aws-access-key", creds.AccessKeyID,
		"AWS access key id. The default credential chain is used when empty.")
	flags.StringVar(&creds.SecretAccessKey, "aws-secret-key", creds.SecretAccessKey, "AWS secret access key.")
	flags.StringVar(&creds.SessionToken, "aws-session-token", creds.SessionToken, "AWS session token.")
	flags.StringVar(&creds.Region, "aws-region", creds.Region,
		"AWS region of the cluster. The region of an ARN wins over it.")
	o.addFlags(flags)
	return command
}
