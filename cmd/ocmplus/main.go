package main

import (
	goflag "flag"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	utilflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/logs"

	"open-cluster-management.io/ocmplus/pkg/cmd"
	"open-cluster-management.io/ocmplus/pkg/cmd/hub"
	"open-cluster-management.io/ocmplus/pkg/cmd/importer"
	"open-cluster-management.io/ocmplus/pkg/cmd/inventory"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/version"
)

func main() {
	pflag.CommandLine.SetNormalizeFunc(utilflag.WordSepNormalizeFunc)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)

	logs.AddFlags(pflag.CommandLine)
	logs.InitLogs()
	defer logs.FlushLogs()

	command := newOcmplusCommand()
	if err := command.Execute(); err != nil {
		_ = result.Print(os.Stdout, "json", result.NewFailure(err))
		logs.FlushLogs()
		os.Exit(1)
	}
}

func newOcmplusCommand() *cobra.Command {
	command := &cobra.Command{
		Use:           "ocmplus",
		Short:         "Manage clusters, addons, service accounts and policies of an Open Cluster Management hub",
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(command *cobra.Command, args []string) {
			_ = command.Help()
			os.Exit(1)
		},
	}

	if v := version.Get().String(); len(v) == 0 {
		command.Version = "<unknown>"
	} else {
		command.Version = v
	}

	command.AddCommand(hub.NewAddonCommand())
	command.AddCommand(hub.NewFeatureCommand())
	command.AddCommand(hub.NewClusterProxyCommand())
	command.AddCommand(hub.NewClusterInfoCommand())
	command.AddCommand(hub.NewManagedServiceAccountCommand())
	command.AddCommand(hub.NewManagedServiceAccountRBACCommand())
	command.AddCommand(hub.NewPolicySetCommand())
	command.AddCommand(importer.NewImportCommand())
	command.AddCommand(importer.NewImportEKSCommand())
	command.AddCommand(inventory.NewInventoryCommand())
	command.AddCommand(cmd.NewVersionCommand())

	return command
}
