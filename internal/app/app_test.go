package app

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/eks-gitops-go/internal/config"
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
test:
  account: "333333333333"
  region: eu-central-1
  shortPrefix: tst
production:
  account: "444444444444"
  region: eu-west-1
  shortPrefix: prd
`

func testContext(t *testing.T) *config.Context {
	t.Helper()
	ctx, err := config.Parse([]byte(demoContext))
	require.NoError(t, err)
	require.NoError(t, ctx.Validate())
	return ctx
}

func TestNew_DevelopmentOnly(t *testing.T) {
	a, err := New(Options{Context: testContext(t)})
	require.NoError(t, err)

	require.Len(t, a.Stages, 1)
	assert.Equal(t, "dev-demo", a.Stages[0].Name)
	assert.Len(t, a.Stages[0].Stacks(), 5)

	assert.Equal(t, []string{"Source", "Build", "UpdatePipeline", "dev-demo"}, a.Pipeline.Stages)
	assert.Equal(t, []string{"test", "production"}, a.Pipeline.Skipped)

	for _, s := range a.Stacks() {
		assert.False(t, strings.HasPrefix(s.Name, "tst-"), s.Name)
		assert.False(t, strings.HasPrefix(s.Name, "prd-"), s.Name)
	}
}

func TestNew_PipelineStack(t *testing.T) {
	a, err := New(Options{Context: testContext(t)})
	require.NoError(t, err)

	p := a.PipelineStack
	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, "aws://222222222222/eu-central-1", p.Environment())
	assert.Equal(t, map[string]string{"environment": "tools", "context": "demo"}, p.Template.Tags())
	assert.Same(t, p, a.Stacks()[0])
}

func TestNew_EnabledTargetsWithApproval(t *testing.T) {
	a, err := New(Options{
		Context: testContext(t),
		Targets: []Target{
			{Env: "development", Enabled: true},
			{Env: "production", Enabled: true, ManualApproval: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, a.Stages, 2)
	assert.Equal(t, "prd-demo", a.Stages[1].Name)
	assert.Equal(t, "aws://444444444444/eu-west-1", a.Stages[1].Stacks()[0].Environment())
	assert.Equal(t, []string{"Source", "Build", "UpdatePipeline", "dev-demo", "prd-demo"}, a.Pipeline.Stages)
	assert.Empty(t, a.Pipeline.Skipped)

	assert.Equal(t, []lookup.Target{
		{Account: "111111111111", Region: "eu-central-1"},
		{Account: "444444444444", Region: "eu-west-1"},
	}, a.LookupTargets())
}

func TestNew_EnabledTargetNeedsContext(t *testing.T) {
	ctx := testContext(t)
	ctx.Test = config.Environment{}

	_, err := New(Options{Context: ctx, Targets: []Target{{Env: "test", Enabled: true}}})
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "test", verr.Key)

	_, err = New(Options{Context: ctx, Targets: []Target{{Env: "staging", Enabled: true}}})
	assert.ErrorContains(t, err, `unknown environment "staging"`)

	_, err = New(Options{})
	assert.Error(t, err)
}

func TestSynth(t *testing.T) {
	a, err := New(Options{Context: testContext(t)})
	require.NoError(t, err)

	asm, err := a.Synth()
	require.NoError(t, err)

	names, err := asm.StackNames()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"demo",
		"dev-demo-BaseNetworkStack",
		"dev-demo-EksCoreStack",
		"dev-demo-alb-ingress-controller",
		"dev-demo-aws-container-insights",
		"dev-demo-backend-application-setup",
	}, names)

	art := asm.Manifest.Artifacts["demo"]
	assert.Equal(t, "aws://222222222222/eu-central-1", art.Environment)
	assert.Empty(t, art.Dependencies)
	assert.Equal(t, map[string]string{"environment": "tools", "context": "demo"}, art.Properties.Tags)

	assert.Equal(t, []string{"dev-demo-BaseNetworkStack"}, asm.Manifest.Artifacts["dev-demo-EksCoreStack"].Dependencies)
}

func TestSynth_LookupZones(t *testing.T) {
	cache := &lookup.Cache{}
	cache.Put(lookup.Entry{
		Account:           "111111111111",
		Region:            "eu-central-1",
		AvailabilityZones: []string{"eu-central-1a", "eu-central-1b", "eu-central-1c"},
	})

	a, err := New(Options{Context: testContext(t), Lookups: cache})
	require.NoError(t, err)
	asm, err := a.Synth()
	require.NoError(t, err)

	subnet := asm.Templates["dev-demo-BaseNetworkStack"].Resources["PublicSubnet1"]
	assert.Equal(t, "eu-central-1a", subnet.Properties["AvailabilityZone"])
}

func TestSynthesize_Idempotent(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	_, _, err := Synthesize(Options{Context: testContext(t)}, first)
	require.NoError(t, err)
	_, asm, err := Synthesize(Options{Context: testContext(t)}, second)
	require.NoError(t, err)
	assert.Len(t, asm.Templates, 6)

	a, b := readTree(t, first), readTree(t, second)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "manifest.json")
	assert.Contains(t, a, "dev-demo-EksCoreStack.template.json")
	assert.Contains(t, a, filepath.Join("k8s", "dev-demo-aws-container-insights", "ContainerInsightsFoundation.yaml"))
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[rel] = string(data)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatal(err)
	}
	return files
}
