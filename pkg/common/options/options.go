package options

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	apimachineryvalidation "k8s.io/apimachinery/pkg/api/validation"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// KubeconfigEnv is read when no hub kubeconfig flag is given.
	KubeconfigEnv = "K8S_AUTH_KUBECONFIG"

	defaultTimeoutSeconds = 60

	OutputJSON = "json"
	OutputYAML = "yaml"
)

// HubOptions is the common options of the commands talking to the hub cluster
type HubOptions struct {
	KubeconfigFile  string
	Wait            bool
	TimeoutSeconds  int
	QPS             float32
	Burst           int
	Output          string
	MetricsTextfile string
}

// NewHubOptions returns the flags with default value set
func NewHubOptions() *HubOptions {
	return &HubOptions{
		TimeoutSeconds: defaultTimeoutSeconds,
		QPS:            50,
		Burst:          100,
		Output:         OutputJSON,
	}
}

func (o *HubOptions) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.KubeconfigFile, "hub-kubeconfig", o.KubeconfigFile,
		fmt.Sprintf("Location of kubeconfig file to connect to the hub cluster. Defaults to $%s, then the default loading rules.", KubeconfigEnv))
	flags.BoolVar(&o.Wait, "wait", o.Wait, "Wait for the resources to become available before returning.")
	flags.IntVar(&o.TimeoutSeconds, "timeout", o.TimeoutSeconds, "Number of seconds to wait. Values not above zero fall back to 60.")
	flags.Float32Var(&o.QPS, "hub-kube-api-qps", o.QPS, "QPS to use while talking with apiserver on hub cluster.")
	flags.IntVar(&o.Burst, "hub-kube-api-burst", o.Burst, "Burst to use while talking with apiserver on hub cluster.")
	flags.StringVarP(&o.Output, "output", "o", o.Output, "Output format of the result, json or yaml.")
	flags.StringVar(&o.MetricsTextfile, "metrics-textfile", o.MetricsTextfile,
		"Write run metrics in the Prometheus text format to this file.")
}

// Complete fills in the hub kubeconfig from the environment and defaults the timeout
func (o *HubOptions) Complete() {
	if len(o.KubeconfigFile) == 0 {
		o.KubeconfigFile = os.Getenv(KubeconfigEnv)
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (o *HubOptions) Validate() error {
	switch o.Output {
	case OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("unsupported output format %q, expected %s or %s", o.Output, OutputJSON, OutputYAML)
	}
	if o.QPS <= 0 || o.Burst <= 0 {
		return fmt.Errorf("hub kube api qps and burst must be positive")
	}
	return nil
}

// Timeout returns the wait timeout as a duration
func (o *HubOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// HubRestConfig builds the rest config of the hub cluster
func (o *HubOptions) HubRestConfig() (*rest.Config, error) {
	var hubRestConfig *rest.Config
	var err error
	if len(o.KubeconfigFile) > 0 {
		hubRestConfig, err = clientcmd.BuildConfigFromFlags("" /* leave masterurl as empty */, o.KubeconfigFile)
		if err != nil {
			return nil, fmt.Errorf("unable to load hub kubeconfig from file %q: %w", o.KubeconfigFile, err)
		}
	} else {
		hubRestConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			clientcmd.NewDefaultClientConfigLoadingRules(), &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("unable to load hub kubeconfig: %w", err)
		}
	}
	hubRestConfig.QPS = o.QPS
	hubRestConfig.Burst = o.Burst
	return hubRestConfig, nil
}

// ValidateClusterName checks the managed cluster name is usable as a namespace name
func ValidateClusterName(clusterName string) error {
	if clusterName == "" {
		return fmt.Errorf("managed cluster name is empty")
	}
	if errMsgs := apimachineryvalidation.ValidateNamespaceName(clusterName, false); len(errMsgs) > 0 {
		return fmt.Errorf("managed cluster name %q is not valid: %s", clusterName, strings.Join(errMsgs, ","))
	}
	return nil
}
