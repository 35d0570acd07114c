package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
  account: 111111111111
  region: eu-central-1
  shortPrefix: dev
`

func TestParse_AppliesDefaults(t *testing.T) {
	ctx, err := Parse([]byte(demoContext))
	require.NoError(t, err)

	assert.Equal(t, "demo", ctx.Common.LongContext)
	assert.Equal(t, "master", ctx.Common.Branch)
	assert.Equal(t, "GitOpsDemoInfraPipeline", ctx.Common.PipelineName)
	assert.Equal(t, "1.29", ctx.Common.KubernetesVersion)
	assert.Equal(t, InsightsModeCharts, ctx.Common.ContainerInsightsMode)
	assert.Equal(t, "1.24", ctx.Common.GoVersion)
	assert.Equal(t, "hnb659fds", ctx.Common.BootstrapQualifier)
	assert.Equal(t, "111111111111", ctx.Development.Account)
	assert.Equal(t, "dev", ctx.Development.EnvironmentTag, "stage tag falls back to the short prefix")
	assert.True(t, ctx.Test.IsZero())
	assert.NoError(t, ctx.Validate())
}

func TestParse_CdkJSON(t *testing.T) {
	data := []byte(`{
  "app": "npx ts-node bin/cdk-eks-gitops.ts",
  "context": {
    "common": {"longContext": "demo", "repositoryName": "repo", "kubernetesVersion": "1.18"},
    "tools": {"account": "222222222222", "region": "eu-west-1", "environmentTag": "tools"},
    "development": {"account": "111111111111", "region": "eu-central-1", "shortPrefix": "dev", "environmentTag": "development"}
  }
}`)
	ctx, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "1.18", ctx.Common.KubernetesVersion)
	assert.Equal(t, "development", ctx.Development.EnvironmentTag)
	assert.Equal(t, "eu-west-1", ctx.Tools.Region)
	assert.NoError(t, ctx.Validate())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("common: [unterminated"))
	assert.Error(t, err)
}

func TestApply_Overrides(t *testing.T) {
	ctx, err := Parse([]byte(demoContext))
	require.NoError(t, err)

	err = ctx.Apply([]string{
		"development.account=333333333333",
		"common.containerInsightsMode=manifests",
		"test.shortPrefix=tst",
	})
	require.NoError(t, err)

	assert.Equal(t, "333333333333", ctx.Development.Account)
	assert.Equal(t, "eu-central-1", ctx.Development.Region, "unrelated keys are kept")
	assert.Equal(t, InsightsModeManifests, ctx.Common.ContainerInsightsMode)
	assert.Equal(t, "tst", ctx.Test.ShortPrefix)
	assert.Equal(t, "tst", ctx.Test.EnvironmentTag)
}

func TestApply_InvalidOverrides(t *testing.T) {
	tests := []struct {
		name     string
		override []string
	}{
		{"missing equals", []string{"development.account"}},
		{"empty key", []string{"=value"}},
		{"empty segment", []string{"development..account=1"}},
		{"leaf and branch", []string{"common=x", "common.longContext=y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := Parse([]byte(demoContext))
			require.NoError(t, err)
			assert.Error(t, ctx.Apply(tt.override))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Context)
		wantKey string
	}{
		{"missing long context", func(c *Context) { c.Common.LongContext = "" }, "common.longContext"},
		{"bad long context", func(c *Context) { c.Common.LongContext = "1demo" }, "common.longContext"},
		{"missing repository", func(c *Context) { c.Common.RepositoryName = "" }, "common.repositoryName"},
		{"bad kubernetes version", func(c *Context) { c.Common.KubernetesVersion = "latest" }, "common.kubernetesVersion"},
		{"bad go version", func(c *Context) { c.Common.GoVersion = "go1.24" }, "common.goVersion"},
		{"bad insights mode", func(c *Context) { c.Common.ContainerInsightsMode = "helm" }, "common.containerInsightsMode"},
		{"missing tools account", func(c *Context) { c.Tools.Account = "" }, "tools.account"},
		{"missing tools tag", func(c *Context) { c.Tools.EnvironmentTag = "" }, "tools.environmentTag"},
		{"short account", func(c *Context) { c.Development.Account = "1234" }, "development.account"},
		{"bad region", func(c *Context) { c.Development.Region = "Frankfurt" }, "development.region"},
		{"missing prefix", func(c *Context) { c.Development.ShortPrefix = "" }, "development.shortPrefix"},
		{"partial test env", func(c *Context) { c.Test.ShortPrefix = "tst" }, "test.account"},
		{"partial production env", func(c *Context) { c.Production.Account = "444444444444" }, "production.region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := Parse([]byte(demoContext))
			require.NoError(t, err)
			tt.mutate(ctx)

			err = ctx.Validate()
			require.Error(t, err)

			var found bool
			for _, e := range unwrapAll(err) {
				var ve *ValidationError
				if errors.As(e, &ve) && ve.Key == tt.wantKey {
					found = true
				}
			}
			assert.True(t, found, "expected an error for %s, got: %v", tt.wantKey, err)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	ctx := &Context{}
	err := ctx.Validate()
	require.Error(t, err)
	assert.GreaterOrEqual(t, len(unwrapAll(err)), 6)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eks-gitops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demoContext), 0o644))

	ctx, err := Load(path, []string{"common.longContext=other"})
	require.NoError(t, err)
	assert.Equal(t, "other", ctx.Common.LongContext)
	assert.Equal(t, "dev-other", ctx.StageName(ctx.Development))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "reading context file")

	path := filepath.Join(t.TempDir(), "eks-gitops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("common:\n  longContext: demo\n"), 0o644))
	_, err = Load(path, nil)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("EKSGITOPS_OUTPUT_DIR", "out")
	t.Setenv("EKSGITOPS_DEBUG", "true")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "out", s.OutputDir)
	assert.True(t, s.Debug)
	assert.Equal(t, "eks-gitops.yaml", s.ContextFile)
	assert.Equal(t, "eks-gitops.lookups.yaml", s.LookupFile)
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
