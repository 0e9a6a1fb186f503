package hub

import (
	"context"

	"github.com/spf13/cobra"
	authorizationv1 "k8s.io/api/authorization/v1"

	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/hub"
	"open-cluster-management.io/ocmplus/pkg/serviceaccount"
)

const ttlFlag = "ttl-seconds-after-creation"

// NewManagedServiceAccountCommand generates a command to provision a managed service account
// and print its token
func NewManagedServiceAccountCommand() *cobra.Command {
	return newManagedServiceAccountCommand(cmd.NewRunner("managed-serviceaccount"))
}

func newManagedServiceAccountCommand(runner *cmd.Runner) *cobra.Command {
	o := &serviceaccount.Options{}
	state := options.StatePresent
	var ttl int64

	command := &cobra.Command{
		Use:   "managed-serviceaccount",
		Short: "Create or delete a managed service account and print its token",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := options.ValidateClusterName(o.Cluster); err != nil {
				return err
			}
			if command.Flags().Changed(ttlFlag) {
				o.TTLSecondsAfterCreation = &ttl
			}
			if err := o.Validate(); err != nil {
				return err
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetManagedServiceAccountSSARs(o.Cluster)
			}
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				o.Wait = runner.HubOptions.Wait
				o.Timeout = runner.HubOptions.Timeout()
				provisioner := serviceaccount.NewProvisioner(clients)
				if state == options.StateAbsent {
					return provisioner.Absent(ctx, o)
				}
				return provisioner.Present(ctx, o)
			})
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&o.Cluster, "cluster", o.Cluster, "Name of the managed cluster.")
	flags.StringVar(&o.Name, "name", o.Name, "Name of the managed service account.")
	flags.StringVar(&o.GenerateName, "generate-name", o.GenerateName,
		"Prefix of a generated name of the managed service account. Mutually exclusive with --name.")
	flags.Int64Var(&ttl, ttlFlag, ttl,
		"Seconds after which the managed service account is deleted once created. Never deleted when unset.")
	flags.Var(&state, "state", "Desired state of the managed service account, present or absent.")
	return command
}

// NewManagedServiceAccountRBACCommand generates a command to grant permissions on a managed
// cluster to a managed service account
func NewManagedServiceAccountRBACCommand() *cobra.Command {
	return newManagedServiceAccountRBACCommand(cmd.NewRunner("managed-serviceaccount-rbac"))
}

func newManagedServiceAccountRBACCommand(runner *cmd.Runner) *cobra.Command {
	o := &serviceaccount.RBACOptions{}

	command := &cobra.Command{
		Use:   "managed-serviceaccount-rbac",
		Short: "Grant RBAC templates on a managed cluster to a managed service account",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := options.ValidateClusterName(o.Cluster); err != nil {
				return err
			}
			if len(o.ServiceAccountName) == 0 {
				return errRequired("managed-serviceaccount-name")
			}
			if len(o.TemplatePath) == 0 {
				return errRequired("rbac-template")
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetManagedServiceAccountSSARs(o.Cluster)
			}
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				o.Wait = runner.HubOptions.Wait
				o.Timeout = runner.HubOptions.Timeout()
				return serviceaccount.NewProvisioner(clients).ApplyRBAC(ctx, o)
			})
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&o.Cluster, "cluster", o.Cluster, "Name of the managed cluster.")
	flags.StringVar(&o.ServiceAccountName, "managed-serviceaccount-name", o.ServiceAccountName,
		"Name of the managed service account to grant the permissions to.")
	flags.StringVar(&o.TemplatePath, "rbac-template", o.TemplatePath,
		"Path of a RBAC template file or of a directory of template files.")
	return command
}
