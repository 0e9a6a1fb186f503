package hub

import (
	"context"

	"github.com/spf13/cobra"

	"open-cluster-management.io/ocmplus/pkg/clusterinfo"
	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

// NewClusterInfoCommand generates a command to describe the managed clusters of the hub
func NewClusterInfoCommand() *cobra.Command {
	return newClusterInfoCommand(cmd.NewRunner("managedcluster-info"))
}

func newClusterInfoCommand(runner *cmd.Runner) *cobra.Command {
	var cluster string
	command := &cobra.Command{
		Use:   "managedcluster-info",
		Short: "Describe the managed clusters of the hub",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			return runner.Run(command, func(ctx context.Context, clients *hub.Clients) (cmd.Document, error) {
				return clusterinfo.List(ctx, clients.ClusterClient, cluster)
			})
		},
	}

	runner.AddFlags(command)
	command.Flags().StringVar(&cluster, "cluster", cluster, "Only describe the cluster with this name. All clusters are described when empty.")
	return command
}
