package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/assembly"
	"github.com/lex00/eks-gitops-go/internal/lookup"
)

const demoContext = `
common:
  longContext: demo
  repositoryName: eks-gitops-demo
tools:
  account: "222222222222"
  region: eu-central-1
  environmentTag: tools
development:
  account: "111111111111"
  region: eu-central-1
  shortPrefix: dev
`

type workspace struct {
	dir     string
	context string
	lookups string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:     dir,
		context: filepath.Join(dir, "eks-gitops.yaml"),
		lookups: filepath.Join(dir, "eks-gitops.lookups.yaml"),
	}
	require.NoError(t, os.WriteFile(ws.context, []byte(demoContext), 0o644))
	return ws
}

// run executes the root command and returns its stdout.
func (ws workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--context-file", ws.context, "--lookups", ws.lookups}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSynth(t *testing.T) {
	ws := newWorkspace(t)
	outDir := filepath.Join(ws.dir, "cdk.out")

	out, err := ws.run(t, "synth", "-o", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Synthesized 6 stacks")
	assert.FileExists(t, filepath.Join(outDir, assembly.ManifestFile))
	assert.FileExists(t, filepath.Join(outDir, "dev-demo-EksCoreStack.template.json"))
}

func TestSynth_JSON(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "synth", "-o", filepath.Join(ws.dir, "out"), "--format", "json")
	require.NoError(t, err)

	var result eksgitops.SynthResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "demo", result.Stacks[0])
}

func TestSynth_InvalidContext(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "synth", "-o", filepath.Join(ws.dir, "out"), "--context", "development.account=abc")
	assert.ErrorContains(t, err, "12 digit account id")
}

func TestList_JSON(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "list", "--format", "json", "dev-demo-EksCoreStack")
	require.NoError(t, err)

	var result eksgitops.ListResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Stacks, 1)
	s := result.Stacks[0]
	assert.Equal(t, "aws://111111111111/eu-central-1", s.Environment)
	assert.Equal(t, []string{"dev-demo-BaseNetworkStack"}, s.Dependencies)
	assert.NotEmpty(t, s.Resources)
}

func TestList_UnknownStack(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "list", "nope")
	assert.ErrorContains(t, err, "unknown stack nope")
}

func TestGraph(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "dev-demo-EksCoreStack")

	out, err = ws.run(t, "graph", "-f", "mermaid", "dev-demo-BaseNetworkStack")
	require.NoError(t, err)
	assert.Contains(t, out, "PublicSubnet1")

	_, err = ws.run(t, "graph", "-f", "png")
	assert.ErrorContains(t, err, "unknown format")
}

func TestDiff(t *testing.T) {
	ws := newWorkspace(t)
	before, after := filepath.Join(ws.dir, "before"), filepath.Join(ws.dir, "after")

	_, err := ws.run(t, "synth", "-o", before)
	require.NoError(t, err)
	_, err = ws.run(t, "synth", "-o", after)
	require.NoError(t, err)

	out, err := ws.run(t, "diff", before, after)
	require.NoError(t, err)
	assert.Contains(t, out, "No differences.")

	_, err = ws.run(t, "synth", "-o", after, "--context", "common.repositoryName=other")
	require.NoError(t, err)
	out, err = ws.run(t, "diff", before, after)
	require.NoError(t, err)
	assert.NotContains(t, out, "No differences.")
}

func TestValidate(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "validate", "--skip-lint")
	require.NoError(t, err)
	assert.Contains(t, out, "Validation passed: 6 stacks")
}

func TestValidate_Dir(t *testing.T) {
	ws := newWorkspace(t)
	outDir := filepath.Join(ws.dir, "cdk.out")
	_, err := ws.run(t, "synth", "-o", outDir)
	require.NoError(t, err)

	out, err := ws.run(t, "validate", outDir, "--skip-lint", "--format", "json")
	require.NoError(t, err)

	var result eksgitops.ValidateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 6, result.Stacks)
}

type fakeEC2 struct{}

func (fakeEC2) DescribeAvailabilityZones(context.Context, *ec2.DescribeAvailabilityZonesInput, ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	return &ec2.DescribeAvailabilityZonesOutput{AvailabilityZones: []ec2types.AvailabilityZone{
		{ZoneName: aws.String("eu-central-1b"), State: ec2types.AvailabilityZoneStateAvailable},
		{ZoneName: aws.String("eu-central-1a"), State: ec2types.AvailabilityZoneStateAvailable},
	}}, nil
}

type fakeSTS struct{}

func (fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String("111111111111")}, nil
}

func TestLookup(t *testing.T) {
	orig := lookupClients
	lookupClients = func(context.Context, string) (lookup.Clients, error) {
		return lookup.Clients{EC2: fakeEC2{}, STS: fakeSTS{}}, nil
	}
	t.Cleanup(func() { lookupClients = orig })

	ws := newWorkspace(t)
	out, err := ws.run(t, "lookup", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "111111111111/eu-central-1: [eu-central-1a eu-central-1b]")

	cache, err := lookup.LoadCache(ws.lookups)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-central-1a", "eu-central-1b"}, cache.AvailabilityZones("111111111111", "eu-central-1"))

	// Synth picks up the cached zones.
	outDir := filepath.Join(ws.dir, "cdk.out")
	_, err = ws.run(t, "synth", "-o", outDir)
	require.NoError(t, err)
	tmpl, err := assembly.ReadTemplate(filepath.Join(outDir, "dev-demo-BaseNetworkStack.template.json"))
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1a", tmpl.Resources["PublicSubnet1"].Properties["AvailabilityZone"])
}

func TestVersion(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "eks-gitops ")
}

func TestOptimize(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "optimize", "--category", "security")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Security")
	assert.Contains(t, out, "dev-demo-EksCoreStack/EtcdSecretsKey")
	assert.NotContains(t, out, "=== Reliability")

	_, err = ws.run(t, "optimize", "--category", "speed")
	assert.ErrorContains(t, err, "invalid category")
}
