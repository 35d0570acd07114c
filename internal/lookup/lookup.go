// Package lookup resolves environment facts that are only known to the
// target account, such as availability zone names, and caches them next to
// the context file so synthesis stays offline and deterministic.
package lookup

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// EC2API is the subset of the EC2 client used for lookups.
type EC2API interface {
	DescribeAvailabilityZones(ctx context.Context, params *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error)
}

// STSAPI is the subset of the STS client used for lookups.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Clients bundles the AWS clients of one region.
type Clients struct {
	EC2 EC2API
	STS STSAPI
}

// ClientFactory returns clients for a region.
type ClientFactory func(ctx context.Context, region string) (Clients, error)

// DefaultClients loads the shared AWS configuration for region.
func DefaultClients(ctx context.Context, region string) (Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return Clients{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return Clients{
		EC2: ec2.NewFromConfig(cfg),
		STS: sts.NewFromConfig(cfg),
	}, nil
}

// Resolver performs lookups against AWS.
type Resolver struct {
	clients ClientFactory
	log     *zap.SugaredLogger
}

// NewResolver creates a resolver. A nil factory uses DefaultClients.
func NewResolver(factory ClientFactory, log *zap.SugaredLogger) *Resolver {
	if factory == nil {
		factory = DefaultClients
	}
	return &Resolver{clients: factory, log: log}
}

// Target names an account and region to resolve.
type Target struct {
	Account string
	Region  string
}

// Resolve looks up the availability zones of target. With verify set it also
// checks that the current credentials belong to the target account.
func (r *Resolver) Resolve(ctx context.Context, target Target, verify bool) (Entry, error) {
	clients, err := r.clients(ctx, target.Region)
	if err != nil {
		return Entry{}, err
	}

	if verify {
		identity, err := clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return Entry{}, fmt.Errorf("failed to get caller identity: %w", err)
		}
		if got := aws.ToString(identity.Account); got != target.Account {
			return Entry{}, fmt.Errorf("credentials belong to account %s, expected %s", got, target.Account)
		}
	}

	out, err := clients.EC2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("zone-type"),
			Values: []string{"availability-zone"},
		}},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to describe availability zones in %s: %w", target.Region, err)
	}

	var zones []string
	for _, az := range out.AvailabilityZones {
		if az.State != ec2types.AvailabilityZoneStateAvailable {
			continue
		}
		zones = append(zones, aws.ToString(az.ZoneName))
	}
	sort.Strings(zones)

	r.log.Infow("Resolved availability zones", "account", target.Account, "region", target.Region, "zones", zones)
	return Entry{Account: target.Account, Region: target.Region, AvailabilityZones: zones}, nil
}

// ResolveAll resolves every target and returns them as a cache.
func (r *Resolver) ResolveAll(ctx context.Context, targets []Target, verify bool) (*Cache, error) {
	cache := &Cache{}
	for _, t := range targets {
		entry, err := r.Resolve(ctx, t, verify)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", t.Account, t.Region, err)
		}
		cache.Put(entry)
	}
	return cache, nil
}
