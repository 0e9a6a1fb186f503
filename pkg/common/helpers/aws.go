package helpers

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

// EKSCluster identifies an EKS cluster parsed from its ARN.
type EKSCluster struct {
	AccountID string
	Region    string
	Name      string
}

// ParseClusterARN parses the account id, region and cluster name from an EKS cluster ARN,
// e.g. arn:aws:eks:us-west-2:123456789012:cluster/hub-cluster1.
func ParseClusterARN(clusterArn string) (EKSCluster, error) {
	parsed, err := arn.Parse(clusterArn)
	if err != nil {
		return EKSCluster{}, fmt.Errorf("invalid cluster arn %q: %w", clusterArn, err)
	}
	if parsed.Service != "eks" {
		return EKSCluster{}, fmt.Errorf("invalid cluster arn %q: service is %q, expected eks", clusterArn, parsed.Service)
	}
	resourceType, name, found := strings.Cut(parsed.Resource, "/")
	if !found || resourceType != "cluster" || len(name) == 0 {
		return EKSCluster{}, fmt.Errorf("invalid cluster arn %q: resource %q is not a cluster", clusterArn, parsed.Resource)
	}
	return EKSCluster{
		AccountID: parsed.AccountID,
		Region:    parsed.Region,
		Name:      name,
	}, nil
}

// IsARN reports whether the given identifier looks like an ARN rather than a plain name.
func IsARN(identifier string) bool {
	return arn.IsARN(identifier)
}
