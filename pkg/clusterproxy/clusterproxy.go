package clusterproxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	routev1 "github.com/openshift/api/route/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/addon"
	"open-cluster-management.io/ocmplus/pkg/common/result"
	"open-cluster-management.io/ocmplus/pkg/hub"
)

const (
	// UserRouteName is the Route exposing the cluster proxy to users of the hub.
	UserRouteName = "cluster-proxy-addon-user"

	maxRetries = 5
)

// retryStatusCodes are the health check responses which are retried.
var retryStatusCodes = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Result struct {
	result.Status `json:",inline"`
	ClusterURL    string `json:"cluster_url"`
}

type ClusterProxy struct {
	clients *hub.Clients
	wait    bool
	timeout time.Duration

	// healthClient is built from the timeout when nil.
	healthClient *retryablehttp.Client
}

func New(clients *hub.Clients, wait bool, timeout time.Duration) *ClusterProxy {
	return &ClusterProxy{
		clients: clients,
		wait:    wait,
		timeout: timeout,
	}
}

// Get returns the proxy url of the cluster. With wait set, the url is returned once the
// cluster answers health checks through the proxy.
func (p *ClusterProxy) Get(ctx context.Context, clusterName string) (*Result, error) {
	clusterURL, err := p.ClusterURL(ctx, clusterName)
	if err != nil {
		return nil, err
	}

	if p.wait {
		healthURL := clusterURL + "/healthz"
		if err := p.waitForHealthy(ctx, healthURL); err != nil {
			klog.FromContext(ctx).V(2).Info("Cluster proxy is not healthy", "url", healthURL, "err", err)
			return nil, fmt.Errorf("timed out waiting for proxy url %s to become available", healthURL)
		}
	}

	return &Result{
		Status:     result.Status{Msg: fmt.Sprintf("cluster proxy is ready at %s.", clusterURL)},
		ClusterURL: clusterURL,
	}, nil
}

// ClusterURL resolves https://<user route host>/<cluster>.
func (p *ClusterProxy) ClusterURL(ctx context.Context, clusterName string) (string, error) {
	cluster, err := p.clients.GetManagedCluster(ctx, clusterName)
	if err != nil {
		return "", err
	}
	if cluster == nil {
		return "", fmt.Errorf("managedcluster %s not found", clusterName)
	}

	available, err := p.clients.CheckAddOnAvailable(ctx, clusterName, addon.ClusterProxyAddonName)
	if err != nil {
		return "", err
	}
	if !available {
		return "", fmt.Errorf("failed to check addon: %s of %s is not available", addon.ClusterProxyAddonName, clusterName)
	}

	namespace, err := p.clients.OCMInstallNamespace(ctx)
	if err != nil {
		return "", err
	}

	host, err := p.userRouteHost(ctx, namespace)
	if err != nil {
		return "", err
	}
	if len(host) == 0 {
		return "", fmt.Errorf("failed to get hub proxy url")
	}
	return fmt.Sprintf("https://%s/%s", host, clusterName), nil
}

func (p *ClusterProxy) userRouteHost(ctx context.Context, namespace string) (string, error) {
	obj, err := p.clients.DynamicClient.Resource(hub.RouteGVR).Namespace(namespace).Get(ctx, UserRouteName, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return "", nil
	case err != nil:
		return "", err
	}

	route := &routev1.Route{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, route); err != nil {
		return "", fmt.Errorf("failed to decode route %s/%s: %w", namespace, UserRouteName, err)
	}
	return route.Spec.Host, nil
}

func (p *ClusterProxy) waitForHealthy(ctx context.Context, url string) error {
	client := p.healthClient
	if client == nil {
		client = NewHealthClient(ctx, p.timeout)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// NewHealthClient returns a client retrying failed health checks with an exponential backoff
// whose total roughly matches the timeout. The proxy route certificate is not verified.
func NewHealthClient(ctx context.Context, timeout time.Duration) *retryablehttp.Client {
	backoffFactor := timeout / maxRetries / (maxRetries + 1)

	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.RetryWaitMin = backoffFactor
	client.RetryWaitMax = timeout
	client.Logger = &klogLeveledLogger{logger: klog.FromContext(ctx)}
	client.HTTPClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //#nosec G402
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return retryStatusCodes[resp.StatusCode], nil
	}
	return client
}

// klogLeveledLogger routes the retry logs of the http client to klog.
type klogLeveledLogger struct {
	logger klog.Logger
}

func (l *klogLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *klogLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.V(2).Info(msg, keysAndValues...)
}

func (l *klogLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.V(4).Info(msg, keysAndValues...)
}

func (l *klogLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.V(1).Info(msg, keysAndValues...)
}
