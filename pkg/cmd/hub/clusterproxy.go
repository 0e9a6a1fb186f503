package hub

import (
	"context"

	"github.com/spf13/cobra"

	"open-cluster-management.io/ocmplus/pkg/clusterproxy"
	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

// NewClusterProxyCommand generates a command to print the cluster proxy url of a managed cluster
func NewClusterProxyCommand() *cobra.Command {
	return newClusterProxyCommand(cmd.NewRunner("cluster-proxy"))
}

func newClusterProxyCommand(runner *cmd.Runner) *cobra.Command {
	var cluster string
	command := &cobra.Command{
		Use:   "cluster-proxy",
		Short: "Get the cluster proxy url of a managed cluster",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			if err := options.ValidateClusterName(cluster); err != nil {
				return err
			}
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				return clusterproxy.New(clients, runner.HubOptions.Wait, runner.HubOptions.Timeout()).Get(ctx, cluster)
			})
		},
	}

	runner.AddFlags(command)
	command.Flags().StringVar(&cluster, "cluster", cluster, "Name of the managed cluster.")
	return command
}
