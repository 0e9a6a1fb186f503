package eks

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"

	"open-cluster-management.io/ocmplus/pkg/common/helpers"
	"open-cluster-management.io/ocmplus/pkg/importer/providers"
)

const (
	clusterIDHeader = "x-k8s-aws-id"
	tokenPrefix     = "k8s-aws-v1."
	// seconds
	presignExpires = "60"
)

// Credentials optionally pins static AWS credentials. The default credential chain is used
// when the access key is empty.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// LoadConfig builds the AWS config used to talk to EKS and STS.
func LoadConfig(ctx context.Context, creds Credentials, apiOptions ...func(*middleware.Stack) error) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if len(creds.Region) > 0 {
		opts = append(opts, config.WithRegion(creds.Region))
	}
	if len(creds.AccessKeyID) > 0 {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}
	if len(apiOptions) > 0 {
		opts = append(opts, config.WithAPIOptions(apiOptions))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// Provider connects to an EKS cluster with a token derived from the caller's AWS identity.
type Provider struct {
	cfg         aws.Config
	clusterName string
}

// NewProvider accepts either a cluster name or a cluster ARN. The region of an ARN overrides
// the region of the config.
func NewProvider(cfg aws.Config, cluster string) (*Provider, error) {
	name := cluster
	if helpers.IsARN(cluster) {
		parsed, err := helpers.ParseClusterARN(cluster)
		if err != nil {
			return nil, err
		}
		name = parsed.Name
		if len(parsed.Region) > 0 {
			cfg = cfg.Copy()
			cfg.Region = parsed.Region
		}
	}
	if len(name) == 0 {
		return nil, fmt.Errorf("eks cluster name is required")
	}
	return &Provider{cfg: cfg, clusterName: name}, nil
}

func (p *Provider) Name() string {
	return "eks"
}

func (p *Provider) ClusterName() string {
	return p.clusterName
}

func (p *Provider) Clients(ctx context.Context) (*providers.Clients, error) {
	restConfig, err := p.RestConfig(ctx)
	if err != nil {
		return nil, err
	}
	return providers.NewClient(restConfig)
}

// RestConfig describes the cluster for its endpoint and CA and authenticates with a bearer token.
func (p *Provider) RestConfig(ctx context.Context) (*rest.Config, error) {
	logger := klog.FromContext(ctx)

	output, err := eks.NewFromConfig(p.cfg).DescribeCluster(ctx, &eks.DescribeClusterInput{
		Name: aws.String(p.clusterName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe eks cluster %s: %w", p.clusterName, err)
	}
	if output.Cluster == nil || len(aws.ToString(output.Cluster.Endpoint)) == 0 {
		return nil, fmt.Errorf("eks cluster %s has no endpoint", p.clusterName)
	}

	token, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}

	restConfig := &rest.Config{
		Host:        aws.ToString(output.Cluster.Endpoint),
		BearerToken: token,
	}
	if output.Cluster.CertificateAuthority != nil && output.Cluster.CertificateAuthority.Data != nil {
		caData, err := base64.StdEncoding.DecodeString(aws.ToString(output.Cluster.CertificateAuthority.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate authority of eks cluster %s: %w", p.clusterName, err)
		}
		restConfig.TLSClientConfig.CAData = caData
	} else {
		logger.Info("EKS cluster has no certificate authority, skipping TLS verification", "cluster", p.clusterName)
		restConfig.TLSClientConfig.Insecure = true
	}
	return restConfig, nil
}

// Token presigns sts:GetCallerIdentity with the cluster id header, which is the token format
// understood by the EKS authenticator.
func (p *Provider) Token(ctx context.Context) (string, error) {
	presignClient := sts.NewPresignClient(sts.NewFromConfig(p.cfg))
	request, err := presignClient.PresignGetCallerIdentity(ctx, &sts.GetCallerIdentityInput{},
		func(presignOptions *sts.PresignOptions) {
			presignOptions.ClientOptions = append(presignOptions.ClientOptions, func(o *sts.Options) {
				o.APIOptions = append(o.APIOptions,
					smithyhttp.SetHeaderValue(clusterIDHeader, p.clusterName),
					smithyhttp.SetHeaderValue("X-Amz-Expires", presignExpires),
				)
			})
		})
	if err != nil {
		return "", fmt.Errorf("failed to presign caller identity request: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(request.URL)), nil
}
