package cmd

import (
	"github.com/spf13/cobra"

	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/version"
)

// NewVersionCommand generates a command to print the build version
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of ocmplus",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			return result.Print(command.OutOrStdout(), "json", version.Get())
		},
	}
}
