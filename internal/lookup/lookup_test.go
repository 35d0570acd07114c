package lookup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEC2 struct {
	zones []ec2types.AvailabilityZone
	err   error
	input *ec2.DescribeAvailabilityZonesInput
}

func (f *fakeEC2) DescribeAvailabilityZones(_ context.Context, in *ec2.DescribeAvailabilityZonesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeAvailabilityZonesOutput{AvailabilityZones: f.zones}, nil
}

type fakeSTS struct {
	account string
}

func (f *fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func zone(name string, state ec2types.AvailabilityZoneState) ec2types.AvailabilityZone {
	return ec2types.AvailabilityZone{ZoneName: aws.String(name), State: state}
}

func newTestResolver(e *fakeEC2, s *fakeSTS) *Resolver {
	return NewResolver(func(context.Context, string) (Clients, error) {
		return Clients{EC2: e, STS: s}, nil
	}, zap.NewNop().Sugar())
}

func TestResolver_Resolve(t *testing.T) {
	e := &fakeEC2{zones: []ec2types.AvailabilityZone{
		zone("eu-central-1c", ec2types.AvailabilityZoneStateAvailable),
		zone("eu-central-1a", ec2types.AvailabilityZoneStateAvailable),
		zone("eu-central-1b", ec2types.AvailabilityZoneStateImpaired),
	}}
	r := newTestResolver(e, &fakeSTS{account: "111111111111"})

	entry, err := r.Resolve(context.Background(), Target{Account: "111111111111", Region: "eu-central-1"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-central-1a", "eu-central-1c"}, entry.AvailabilityZones)
	require.Len(t, e.input.Filters, 1)
	assert.Equal(t, "zone-type", aws.ToString(e.input.Filters[0].Name))
}

func TestResolver_Resolve_WrongAccount(t *testing.T) {
	r := newTestResolver(&fakeEC2{}, &fakeSTS{account: "999999999999"})

	_, err := r.Resolve(context.Background(), Target{Account: "111111111111", Region: "eu-central-1"}, true)
	assert.ErrorContains(t, err, "expected 111111111111")
}

func TestResolver_Resolve_SkipsVerification(t *testing.T) {
	r := newTestResolver(&fakeEC2{}, &fakeSTS{account: "999999999999"})

	_, err := r.Resolve(context.Background(), Target{Account: "111111111111", Region: "eu-central-1"}, false)
	assert.NoError(t, err)
}

func TestResolver_ResolveAll_Error(t *testing.T) {
	r := newTestResolver(&fakeEC2{err: errors.New("throttled")}, &fakeSTS{})

	_, err := r.ResolveAll(context.Background(), []Target{{Account: "111111111111", Region: "eu-central-1"}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "111111111111/eu-central-1")
	assert.Contains(t, err.Error(), "throttled")
}

func TestCache_PutAndLookup(t *testing.T) {
	c := &Cache{}
	c.Put(Entry{Account: "2", Region: "eu-west-1", AvailabilityZones: []string{"a"}})
	c.Put(Entry{Account: "1", Region: "eu-central-1", AvailabilityZones: []string{"b"}})
	c.Put(Entry{Account: "2", Region: "eu-west-1", AvailabilityZones: []string{"c"}})

	require.Len(t, c.Entries, 2)
	assert.Equal(t, "1", c.Entries[0].Account)
	assert.Equal(t, []string{"c"}, c.AvailabilityZones("2", "eu-west-1"))
	assert.Nil(t, c.AvailabilityZones("3", "eu-west-1"))

	var nilCache *Cache
	assert.Nil(t, nilCache.AvailabilityZones("1", "eu-central-1"))
}

func TestCache_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eks-gitops.lookups.yaml")

	c := &Cache{}
	c.Put(Entry{Account: "111111111111", Region: "eu-central-1", AvailabilityZones: []string{"eu-central-1a", "eu-central-1b"}})
	require.NoError(t, c.Save(path))

	loaded, err := LoadCache(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadCache_Missing(t *testing.T) {
	c, err := LoadCache(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
}
