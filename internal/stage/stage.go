// Package stage composes the stacks deployed to one environment.
//
// The stacks are built by an explicit plan: network, then cluster, then the
// add-ons that run on the cluster. Render checks the ordering rules of every
// stack before the stage is handed to the assembly writer.
package stage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/layer/ingress"
	"github.com/lex00/eks-gitops-go/internal/layer/network"
	"github.com/lex00/eks-gitops-go/internal/layer/observability"
	"github.com/lex00/eks-gitops-go/internal/layer/sampleapp"
	"github.com/lex00/eks-gitops-go/internal/plan"
	"github.com/lex00/eks-gitops-go/internal/stack"
)

// Build steps, one per stack.
const (
	StepNetwork       = "network"
	StepCluster       = "cluster"
	StepIngress       = "ingress"
	StepObservability = "observability"
	StepSampleApp     = "sampleapp"
)

// Options configures a stage.
type Options struct {
	Context *config.Context
	Env     config.Environment
	// Zones are looked-up availability zone names of the target region.
	// Without them the network selects zones at deploy time.
	Zones []string
	Log   *zap.SugaredLogger
}

// Stage is the set of stacks deployed to one environment.
type Stage struct {
	// Name is <shortPrefix>-<longContext>.
	Name string
	Env  config.Environment

	Network  *network.Network
	Cluster  *cluster.Cluster
	Ingress  *ingress.Controller
	Insights *observability.Insights

	plan   *plan.Plan
	stacks map[string]*stack.Stack
	order  []string
}

// New builds every stack of the stage.
func New(opts Options) (*Stage, error) {
	if opts.Context == nil {
		return nil, fmt.Errorf("stage: context is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	common := opts.Context.Common
	s := &Stage{
		Name:   opts.Context.StageName(opts.Env),
		Env:    opts.Env,
		stacks: make(map[string]*stack.Stack),
	}
	tokenParam := common.KubectlServiceTokenParameter

	s.plan = plan.New().
		Add(StepNetwork, func() (err error) {
			st := s.newStack(StepNetwork, network.StackID, opts, "VPC, subnets and NAT egress")
			s.Network, err = network.Build(st, network.DefaultConfig(s.Name, opts.Zones))
			return err
		}).
		Add(StepCluster, func() (err error) {
			st := s.newStack(StepCluster, cluster.StackID, opts, "EKS cluster, managed node group and access")
			s.Cluster, err = cluster.Build(st, s.Network, cluster.Config{
				Prefix:                s.Name,
				Account:               opts.Env.Account,
				KubernetesVersion:     common.KubernetesVersion,
				ServiceTokenParameter: tokenParam,
			})
			return err
		}, StepNetwork).
		Add(StepIngress, func() (err error) {
			st := s.newStack(StepIngress, ingress.StackID, opts, "AWS ALB ingress controller")
			s.Ingress, err = ingress.Build(st, s.Network, s.Cluster, tokenParam)
			return err
		}, StepNetwork, StepCluster).
		Add(StepObservability, func() (err error) {
			st := s.newStack(StepObservability, observability.StackID, opts, "CloudWatch Container Insights")
			s.Insights, err = observability.Build(st, s.Cluster, observability.Config{
				Mode:                  common.ContainerInsightsMode,
				ServiceTokenParameter: tokenParam,
			}, log.With("stack", st.Name))
			return err
		}, StepCluster).
		Add(StepSampleApp, func() error {
			st := s.newStack(StepSampleApp, sampleapp.StackID, opts, "hello-kubernetes backend behind an ALB")
			return sampleapp.Build(st, s.Cluster, tokenParam)
		}, StepCluster)

	if err := s.plan.Run(); err != nil {
		return nil, fmt.Errorf("stage %s: %w", s.Name, err)
	}

	for _, step := range s.order {
		for _, need := range s.plan.Needs(step) {
			s.stacks[step].AddDependency(s.stacks[need])
		}
	}
	log.Debugw("stage built", "stage", s.Name, "stacks", len(s.order))
	return s, nil
}

func (s *Stage) newStack(step, id string, opts Options, description string) *stack.Stack {
	st := stack.New(id, s.Name+"-"+id, opts.Env.Account, opts.Env.Region,
		fmt.Sprintf("%s (%s)", description, s.Name),
		map[string]string{
			"environment": opts.Env.EnvironmentTag,
			"context":     opts.Context.Common.LongContext,
		})
	s.stacks[step] = st
	s.order = append(s.order, step)
	return st
}

// Stacks returns the stacks in build order.
func (s *Stage) Stacks() []*stack.Stack {
	out := make([]*stack.Stack, len(s.order))
	for i, step := range s.order {
		out[i] = s.stacks[step]
	}
	return out
}

// Stack returns the stack built by step, or nil.
func (s *Stage) Stack(step string) *stack.Stack {
	return s.stacks[step]
}

// Waves groups the stacks into deployment waves. Stacks of one wave only
// depend on stacks of earlier waves.
func (s *Stage) Waves() ([][]*stack.Stack, error) {
	levels, err := s.plan.Levels()
	if err != nil {
		return nil, err
	}
	waves := make([][]*stack.Stack, len(levels))
	for i, level := range levels {
		for _, step := range level {
			waves[i] = append(waves[i], s.stacks[step])
		}
	}
	return waves, nil
}

// Render builds every template and verifies the ordering rules.
func (s *Stage) Render() ([]*stack.Rendered, error) {
	rendered := make([]*stack.Rendered, 0, len(s.order))
	for _, st := range s.Stacks() {
		r, err := st.Render()
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
		rendered = append(rendered, r)
	}
	if err := Verify(rendered, s.Rules()); err != nil {
		return nil, fmt.Errorf("stage %s: %w", s.Name, err)
	}
	return rendered, nil
}
