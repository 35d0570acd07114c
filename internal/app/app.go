// Package app wires the context into the pipeline stack and the stages it
// deploys, and synthesizes them into a cloud assembly.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lex00/eks-gitops-go/internal/assembly"
	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/lookup"
	"github.com/lex00/eks-gitops-go/internal/pipeline"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/internal/stage"
)

// Target declares one deployment environment of the pipeline.
type Target struct {
	Env            string
	Enabled        bool
	ManualApproval bool
}

// DefaultTargets returns the pipeline targets in deployment order. Only
// development is deployed; test and production are declared but disabled.
func DefaultTargets() []Target {
	return []Target{
		{Env: "development", Enabled: true},
		{Env: "test"},
		{Env: "production", ManualApproval: true},
	}
}

// Options configures New.
type Options struct {
	// Context must be validated.
	Context *config.Context
	// Lookups supplies availability zones. Nil leaves zone selection to
	// deploy time.
	Lookups *lookup.Cache
	// Targets defaults to DefaultTargets.
	Targets []Target
	Log     *zap.SugaredLogger
}

// App is the synthesized application.
type App struct {
	Context       *config.Context
	PipelineStack *stack.Stack
	Pipeline      *pipeline.Pipeline
	// Stages are the enabled stages in deployment order.
	Stages []*stage.Stage

	log *zap.SugaredLogger
}

// New builds the enabled stages and the pipeline stack.
func New(opts Options) (*App, error) {
	if opts.Context == nil {
		return nil, fmt.Errorf("app: context is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	targets := opts.Targets
	if targets == nil {
		targets = DefaultTargets()
	}

	ctx := opts.Context
	a := &App{Context: ctx, log: log}

	var pipelineTargets []pipeline.Target
	for _, t := range targets {
		pt := pipeline.Target{Env: t.Env, Enabled: t.Enabled, ManualApproval: t.ManualApproval}
		if t.Enabled {
			env, err := environment(ctx, t.Env)
			if err != nil {
				return nil, err
			}
			if env.IsZero() {
				return nil, &config.ValidationError{Key: t.Env, Reason: "is required for an enabled target"}
			}
			s, err := stage.New(stage.Options{
				Context: ctx,
				Env:     env,
				Zones:   opts.Lookups.AvailabilityZones(env.Account, env.Region),
				Log:     log.With("stage", ctx.StageName(env)),
			})
			if err != nil {
				return nil, err
			}
			a.Stages = append(a.Stages, s)
			pt.Stage = s
		}
		pipelineTargets = append(pipelineTargets, pt)
	}

	name := ctx.Common.LongContext
	a.PipelineStack = stack.New(name, name, ctx.Tools.Account, ctx.Tools.Region,
		"Delivery pipeline of "+name,
		map[string]string{
			"environment": ctx.Tools.EnvironmentTag,
			"context":     name,
		})

	var err error
	a.Pipeline, err = pipeline.Build(a.PipelineStack, pipeline.Config{
		Common:  ctx.Common,
		Targets: pipelineTargets,
	}, log.With("stack", name))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func environment(ctx *config.Context, name string) (config.Environment, error) {
	switch name {
	case "development":
		return ctx.Development, nil
	case "test":
		return ctx.Test, nil
	case "production":
		return ctx.Production, nil
	}
	return config.Environment{}, fmt.Errorf("unknown environment %q", name)
}

// Stacks returns the pipeline stack followed by the stacks of every stage.
func (a *App) Stacks() []*stack.Stack {
	out := []*stack.Stack{a.PipelineStack}
	for _, s := range a.Stages {
		out = append(out, s.Stacks()...)
	}
	return out
}

// Synth renders every stack and returns the assembly. Stage ordering rules
// are checked while rendering.
func (a *App) Synth() (*assembly.Assembly, error) {
	p, err := a.PipelineStack.Render()
	if err != nil {
		return nil, err
	}
	rendered := []*stack.Rendered{p}
	for _, s := range a.Stages {
		stacks, err := s.Render()
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, stacks...)
	}
	return assembly.New(rendered)
}

// LookupTargets returns the distinct account and region pairs of the
// enabled stages.
func (a *App) LookupTargets() []lookup.Target {
	seen := make(map[lookup.Target]bool)
	var out []lookup.Target
	for _, s := range a.Stages {
		t := lookup.Target{Account: s.Env.Account, Region: s.Env.Region}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Synthesize builds the application and writes its assembly to dir.
func Synthesize(opts Options, dir string) (*App, *assembly.Assembly, error) {
	a, err := New(opts)
	if err != nil {
		return nil, nil, err
	}
	asm, err := a.Synth()
	if err != nil {
		return nil, nil, err
	}
	if err := asm.Write(dir); err != nil {
		return nil, nil, fmt.Errorf("writing assembly: %w", err)
	}
	a.log.Infow("Synthesized cloud assembly", "dir", dir, "stacks", len(asm.Templates), "pipeline", a.Pipeline.Name)
	return a, asm, nil
}
