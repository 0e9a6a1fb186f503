package cmd

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/common/metrics"
	"open-cluster-management.io/ocmplus/pkg/common/options"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

// Document is the result of an operation printed on success.
type Document interface {
	IsChanged() bool
}

// Operation runs against the hub once the options are validated and access is reviewed.
type Operation func(ctx context.Context, clients *hub.Clients) (Document, error)

// Runner wires the common hub options, clients, access review and metrics around an operation.
type Runner struct {
	Name       string
	HubOptions *options.HubOptions

	// Reviews returns the access required on the hub. It is evaluated after flags are parsed.
	Reviews func() []authorizationv1.SelfSubjectAccessReview

	// Clients replaces the clients built from the hub kubeconfig when set.
	Clients *hub.Clients
}

func NewRunner(name string) *Runner {
	return &Runner{
		Name:       name,
		HubOptions: options.NewHubOptions(),
	}
}

// AddFlags adds the hub flags to the command.
func (r *Runner) AddFlags(command *cobra.Command) {
	r.HubOptions.AddFlags(command.Flags())
}

func (r *Runner) clients() (*hub.Clients, error) {
	if r.Clients != nil {
		return r.Clients, nil
	}
	config, err := r.HubOptions.HubRestConfig()
	if err != nil {
		return nil, err
	}
	return hub.NewClients(config)
}

// Run executes the operation and prints its result to the command output.
func (r *Runner) Run(command *cobra.Command, op Operation) error {
	ctx := command.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := klog.FromContext(ctx).WithValues("operation", r.Name)
	ctx = klog.NewContext(ctx, logger)

	r.HubOptions.Complete()
	if err := r.HubOptions.Validate(); err != nil {
		return err
	}

	clients, err := r.clients()
	if err != nil {
		return fmt.Errorf("failed to build hub clients: %w", err)
	}

	if r.Reviews != nil {
		if err := helpers.CheckAccess(ctx, clients.KubeClient, r.Reviews()); err != nil {
			return err
		}
	}

	recorder := metrics.NewRecorder()
	start := time.Now()
	doc, err := op(ctx, clients)
	if err == nil && isNil(doc) {
		err = fmt.Errorf("operation %s returned no result", r.Name)
	}
	recorder.Observe(r.Name, start, err == nil && doc.IsChanged(), err)
	if len(r.HubOptions.MetricsTextfile) > 0 {
		if werr := recorder.WriteToTextfile(r.HubOptions.MetricsTextfile); werr != nil {
			logger.Error(werr, "Failed to write metrics", "path", r.HubOptions.MetricsTextfile)
		}
	}
	if err != nil {
		return err
	}

	logger.V(2).Info("Operation done", "changed", doc.IsChanged())
	return result.Print(command.OutOrStdout(), r.HubOptions.Output, doc)
}

// isNil also catches a nil pointer wrapped in the interface.
func isNil(doc Document) bool {
	if doc == nil {
		return true
	}
	v := reflect.ValueOf(doc)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
