package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"

	"open-cluster-management.io/ocmplus/pkg/common/metrics"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/inventory"
)

const operationName = "inventory"

type Options struct {
	HubOptions   *options.HubOptions
	List         bool
	Host         string
	RefreshCache bool
}

func NewOptions() *Options {
	return &Options{HubOptions: options.NewHubOptions()}
}

func (o *Options) Validate() error {
	if o.List && len(o.Host) > 0 {
		return fmt.Errorf("--list and --host are mutually exclusive")
	}
	return nil
}

type clusterClientFunc func(o *options.HubOptions) (clusterclientset.Interface, error)

func newClusterClient(o *options.HubOptions) (clusterclientset.Interface, error) {
	config, err := o.HubRestConfig()
	if err != nil {
		return nil, err
	}
	return clusterclientset.NewForConfig(config)
}

// NewInventoryCommand generates a command printing the managed clusters as an Ansible dynamic inventory
func NewInventoryCommand() *cobra.Command {
	return newInventoryCommand(newClusterClient)
}

func newInventoryCommand(clusterClient clusterClientFunc) *cobra.Command {
	o := NewOptions()
	command := &cobra.Command{
		Use:   "inventory <source>",
		Short: "Print the managed clusters of the hub as an Ansible dynamic inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			config, err := inventory.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if len(o.HubOptions.KubeconfigFile) == 0 {
				o.HubOptions.KubeconfigFile = config.HubKubeconfig
			}
			o.HubOptions.Complete()
			if err := o.HubOptions.Validate(); err != nil {
				return err
			}
			client, err := clusterClient(o.HubOptions)
			if err != nil {
				return fmt.Errorf("failed to build hub clients: %w", err)
			}

			ctx := command.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			recorder := metrics.NewRecorder()
			start := time.Now()
			doc, err := o.run(ctx, client, config)
			recorder.Observe(operationName, start, false, err)
			if len(o.HubOptions.MetricsTextfile) > 0 {
				if werr := recorder.WriteToTextfile(o.HubOptions.MetricsTextfile); werr != nil {
					klog.FromContext(ctx).Error(werr, "Failed to write metrics", "path", o.HubOptions.MetricsTextfile)
				}
			}
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(command.OutOrStdout(), string(data))
			return err
		},
	}

	o.HubOptions.AddFlags(command.Flags())
	flags := command.Flags()
	flags.BoolVar(&o.List, "list", o.List, "Print all groups and hosts. This is the default.")
	flags.StringVar(&o.Host, "host", o.Host, "Print the variables of a single host.")
	flags.BoolVar(&o.RefreshCache, "refresh-cache", o.RefreshCache, "Ignore cached clusters and refresh the cache.")
	return command
}

func (o *Options) run(ctx context.Context, client clusterclientset.Interface, config *inventory.Config) (interface{}, error) {
	var cache inventory.Cache
	if config.Cache {
		dir, err := config.CachePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve the cache dir: %w", err)
		}
		cache = inventory.NewFileCache(dir, config.CacheTTL())
	}

	inv, err := inventory.NewBuilder(client, cache, o.RefreshCache).Build(ctx, config)
	if err != nil {
		return nil, err
	}
	if len(o.Host) > 0 {
		return inv.Host(o.Host), nil
	}
	return inv.List(), nil
}
