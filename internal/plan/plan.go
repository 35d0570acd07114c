// Package plan runs named build steps in dependency order.
//
// A step names the steps it needs. Run validates the whole plan first, so a
// cycle or an unknown need is reported before any step is executed.
package plan

import (
	"fmt"

	"github.com/lex00/eks-gitops-go/internal/dag"
)

// BuildFunc builds one step.
type BuildFunc func() error

// Plan is an ordered set of build steps.
type Plan struct {
	graph  *dag.Graph
	builds map[string]BuildFunc
	errs   []error
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{
		graph:  dag.New(),
		builds: make(map[string]BuildFunc),
	}
}

// Add registers a step. needs may name steps added later.
func (p *Plan) Add(name string, build BuildFunc, needs ...string) *Plan {
	if !p.graph.AddNode(name) {
		p.errs = append(p.errs, fmt.Errorf("duplicate step %q", name))
		return p
	}
	p.builds[name] = build
	for _, n := range needs {
		p.graph.AddEdge(name, n)
	}
	return p
}

// Needs returns the steps name needs directly.
func (p *Plan) Needs(name string) []string {
	return p.graph.Needs(name)
}

// Order returns the steps in execution order.
func (p *Plan) Order() ([]string, error) {
	if len(p.errs) > 0 {
		return nil, p.errs[0]
	}
	order, err := p.graph.Sort()
	if err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}
	return order, nil
}

// Levels groups the steps into waves that only need earlier waves.
func (p *Plan) Levels() ([][]string, error) {
	if _, err := p.Order(); err != nil {
		return nil, err
	}
	return p.graph.Levels()
}

// Run executes every step in order and stops at the first failure.
func (p *Plan) Run() error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	for _, name := range order {
		if build := p.builds[name]; build != nil {
			if err := build(); err != nil {
				return fmt.Errorf("step %s: %w", name, err)
			}
		}
	}
	return nil
}
