package hub

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	authorizationv1 "k8s.io/api/authorization/v1"

	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/hub"
	"open-cluster-management.io/ocmplus/pkg/policyset"
)

// NewPolicySetCommand generates a command to generate a policy set from a directory of manifests
func NewPolicySetCommand() *cobra.Command {
	return newPolicySetCommand(cmd.NewRunner("policyset"))
}

func newPolicySetCommand(runner *cmd.Runner) *cobra.Command {
	o := &policyset.Options{MaxWorkers: policyset.DefaultMaxWorkers}
	state := options.StatePresent

	command := &cobra.Command{
		Use:   "policyset",
		Short: "Generate or delete a policy set from a directory of manifests",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetPolicySetSSARs(o.Namespace)
			}
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				manager := policyset.NewManager(clients)
				if state == options.StateAbsent {
					return manager.Absent(ctx, o)
				}
				return manager.Present(ctx, o)
			})
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&o.Namespace, "namespace", o.Namespace, "Namespace of the policy set on the hub.")
	flags.StringVar(&o.ManifestDir, "manifest-dir", o.ManifestDir,
		"Directory of the manifests. Its last path element names the policy set.")
	flags.StringVar(&o.Description, "description", o.Description, "Description of the policy set.")
	flags.StringSliceVar(&o.ClusterSelectors, "cluster-selectors", o.ClusterSelectors,
		"Selectors of the clusters to place the policy set on, like key=value or key!=value.")
	flags.StringVar(&o.GitHubRepositoryURL, "github-repository-url", o.GitHubRepositoryURL,
		"Clone this repository and resolve the manifest dir inside it.")
	flags.StringVar(&o.GitHubRepositoryBranch, "github-repository-branch", o.GitHubRepositoryBranch,
		"Branch, tag or commit of the repository to check out.")
	flags.StringVar(&o.GitHubToken, "github-token", o.GitHubToken, "Token to clone a private repository.")
	flags.IntVar(&o.MaxWorkers, "max-policy-workers", o.MaxWorkers,
		fmt.Sprintf("Number of policies handled in parallel. Defaults to %d.", policyset.DefaultMaxWorkers))
	flags.Var(&state, "state", "Desired state of the policy set, present or absent.")
	return command
}
