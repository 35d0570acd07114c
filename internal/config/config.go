// Package config loads the deployment context: the business context shared
// by every environment and one account/region block per environment.
//
// The context is read from a YAML file (eks-gitops.yaml) or from a cdk.json
// style JSON file whose top-level "context" key holds the same tree. Missing
// optional keys are filled from Defaults and --context key=value overrides
// are merged on top before Validate runs.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Insights modes of the observability add-on.
const (
	InsightsModeCharts    = "charts"
	InsightsModeManifests = "manifests"
)

// Context is the full deployment context.
type Context struct {
	Common      Common      `yaml:"common" json:"common"`
	Tools       Environment `yaml:"tools" json:"tools"`
	Development Environment `yaml:"development" json:"development"`
	Test        Environment `yaml:"test,omitempty" json:"test,omitempty"`
	Production  Environment `yaml:"production,omitempty" json:"production,omitempty"`
}

// Common is the business context shared by all environments.
type Common struct {
	LongContext    string `yaml:"longContext" json:"longContext"`
	RepositoryName string `yaml:"repositoryName" json:"repositoryName"`
	Branch         string `yaml:"branch,omitempty" json:"branch,omitempty"`
	PipelineName   string `yaml:"pipelineName,omitempty" json:"pipelineName,omitempty"`

	// KubernetesVersion is the EKS control plane version.
	KubernetesVersion string `yaml:"kubernetesVersion,omitempty" json:"kubernetesVersion,omitempty"`
	// ContainerInsightsMode selects how the observability add-on is built.
	ContainerInsightsMode string `yaml:"containerInsightsMode,omitempty" json:"containerInsightsMode,omitempty"`
	// KubectlServiceTokenParameter names the SSM parameter holding the
	// service token of the kubectl custom resource provider.
	KubectlServiceTokenParameter string `yaml:"kubectlServiceTokenParameter,omitempty" json:"kubectlServiceTokenParameter,omitempty"`
	// GoVersion is the Go runtime of the pipeline synth project.
	GoVersion string `yaml:"goVersion,omitempty" json:"goVersion,omitempty"`
	// BootstrapQualifier is the qualifier of the bootstrap roles in the target accounts.
	BootstrapQualifier string `yaml:"bootstrapQualifier,omitempty" json:"bootstrapQualifier,omitempty"`
}

// Environment is the account context of one environment.
type Environment struct {
	Account        string `yaml:"account" json:"account"`
	Region         string `yaml:"region" json:"region"`
	ShortPrefix    string `yaml:"shortPrefix,omitempty" json:"shortPrefix,omitempty"`
	EnvironmentTag string `yaml:"environmentTag,omitempty" json:"environmentTag,omitempty"`
}

// IsZero reports whether the environment block is absent.
func (e Environment) IsZero() bool {
	return e == Environment{}
}

// Defaults returns the values used for optional keys.
func Defaults() Context {
	return Context{
		Common: Common{
			Branch:                       "master",
			PipelineName:                 "GitOpsDemoInfraPipeline",
			KubernetesVersion:            "1.29",
			ContainerInsightsMode:        InsightsModeCharts,
			KubectlServiceTokenParameter: "/eks-gitops/kubectl-provider/service-token",
			GoVersion:                    "1.24",
			BootstrapQualifier:           "hnb659fds",
		},
	}
}

// Load reads the context file at path, applies defaults and overrides and
// validates the result.
func Load(path string, overrides []string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}
	ctx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := ctx.Apply(overrides); err != nil {
		return nil, err
	}
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Parse decodes a context document and fills defaults. It does not validate.
func Parse(data []byte) (*Context, error) {
	var wrapped struct {
		Context *Context `yaml:"context"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}

	ctx := wrapped.Context
	if ctx == nil {
		ctx = &Context{}
		if err := yaml.Unmarshal(data, ctx); err != nil {
			return nil, err
		}
	}

	if err := mergo.Merge(ctx, Defaults()); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	ctx.defaultTags()
	return ctx, nil
}

// defaultTags tags stage environments with their short prefix when no
// explicit tag is set.
func (c *Context) defaultTags() {
	for _, env := range []*Environment{&c.Development, &c.Test, &c.Production} {
		if env.EnvironmentTag == "" && env.ShortPrefix != "" {
			env.EnvironmentTag = env.ShortPrefix
		}
	}
}

// StageName returns the name of the stage deployed to env, <shortPrefix>-<longContext>.
func (c *Context) StageName(env Environment) string {
	return env.ShortPrefix + "-" + c.Common.LongContext
}
