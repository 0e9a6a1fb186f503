package hub

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	authorizationv1 "k8s.io/api/authorization/v1"

	"open-cluster-management.io/ocmplus/pkg/addon"
	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

type addonOptions struct {
	cluster string
	addon   string
	state   options.State
}

func (o *addonOptions) validate(clusterRequired bool) error {
	if len(o.addon) == 0 {
		return fmt.Errorf("addon is required, one of %s", strings.Join(addon.Names, ", "))
	}
	if clusterRequired {
		return options.ValidateClusterName(o.cluster)
	}
	return nil
}

// NewAddonCommand generates a command to enable or disable an addon on a managed cluster
func NewAddonCommand() *cobra.Command {
	return newAddonCommand(cmd.NewRunner("addon"))
}

func newAddonCommand(runner *cmd.Runner) *cobra.Command {
	o := &addonOptions{state: options.StatePresent}
	command := &cobra.Command{
		Use:     "addon",
		Aliases: []string{"managedcluster-addon"},
		Short:   "Enable or disable an addon on a managed cluster",
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := o.validate(true); err != nil {
				return err
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetAddonSSARs(o.cluster, o.addon, addon.IsKlusterletAddon(o.addon))
			}
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				a, err := addon.New(o.addon, clients, o.cluster, runner.HubOptions.Wait, runner.HubOptions.Timeout())
				if err != nil {
					return nil, err
				}
				if o.state == options.StateAbsent {
					return a.Disable(ctx)
				}

				cluster, err := clients.GetManagedCluster(ctx, o.cluster)
				if err != nil {
					return nil, err
				}
				if cluster == nil {
					return nil, fmt.Errorf("failed to get managedcluster %s", o.cluster)
				}
				if err := a.CheckFeature(ctx); err != nil {
					return nil, err
				}
				return a.Enable(ctx)
			})
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&o.cluster, "cluster", o.cluster, "Name of the managed cluster.")
	flags.StringVar(&o.addon, "addon", o.addon, fmt.Sprintf("Name of the addon, one of %s.", strings.Join(addon.Names, ", ")))
	flags.Var(&o.state, "state", "Desired state of the addon, present or absent.")
	return command
}

// NewFeatureCommand generates a command to toggle the hub feature behind an addon
func NewFeatureCommand() *cobra.Command {
	return newFeatureCommand(cmd.NewRunner("feature"))
}

func newFeatureCommand(runner *cmd.Runner) *cobra.Command {
	o := &addonOptions{state: options.StatePresent}
	command := &cobra.Command{
		Use:     "feature",
		Aliases: []string{"cluster-management-addon"},
		Short:   "Enable or disable the hub feature of an addon",
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := o.validate(false); err != nil {
				return err
			}
			runner.Reviews = func() []authorizationv1.SelfSubjectAccessReview {
				return helpers.GetHubFeatureSSARs(o.addon != addon.SearchCollectorAddonName)
			}
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				toggler, err := addon.NewFeature(o.addon, clients, runner.HubOptions.Wait, runner.HubOptions.Timeout())
				if err != nil {
					return nil, err
				}
				if o.state == options.StateAbsent {
					changed, err := toggler.DisableFeature(ctx)
					if err != nil {
						return nil, err
					}
					return &result.Status{Changed: changed, Msg: fmt.Sprintf("Addon feature %s is disabled.", o.addon)}, nil
				}
				changed, err := toggler.EnableFeature(ctx)
				if err != nil {
					return nil, err
				}
				return &result.Status{Changed: changed, Msg: fmt.Sprintf("Addon feature %s is enabled.", o.addon)}, nil
			})
		},
	}

	runner.AddFlags(command)
	flags := command.Flags()
	flags.StringVar(&o.addon, "addon", o.addon, fmt.Sprintf("Name of the addon, one of %s.", strings.Join(addon.FeatureNames, ", ")))
	flags.Var(&o.state, "state", "Desired state of the feature, present or absent.")
	return command
}
