// Package stack groups a template builder with the deployment target and
// the stack level dependencies of one CloudFormation stack.
package stack

import (
	"fmt"
	"sort"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/template"
)

// Stack is one CloudFormation stack of a stage or of the pipeline.
type Stack struct {
	// ID is the construct id, e.g. BaseNetworkStack.
	ID string
	// Name is the deployed stack name, e.g. dev-demo-BaseNetworkStack.
	Name    string
	Account string
	Region  string

	Template *template.Builder

	kubectl *eks.Kubectl
	deps    []string
}

// New creates a stack. Tags are applied to the stack and to its taggable
// resources.
func New(id, name, account, region, description string, tags map[string]string) *Stack {
	b := template.NewBuilder(description)
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Tag(k, tags[k])
	}
	return &Stack{
		ID:       id,
		Name:     name,
		Account:  account,
		Region:   region,
		Template: b,
	}
}

// Environment returns the aws://account/region target of the stack.
func (s *Stack) Environment() string {
	return fmt.Sprintf("aws://%s/%s", s.Account, s.Region)
}

// Kubectl returns the manifest writer for cluster, creating it on first use.
// A stack applies manifests to one cluster only.
func (s *Stack) Kubectl(cluster eks.Cluster, serviceTokenParameter string) *eks.Kubectl {
	if s.kubectl == nil {
		s.kubectl = eks.NewKubectl(s.Template, cluster, serviceTokenParameter)
	}
	return s.kubectl
}

// AddDependency makes s deploy after other.
func (s *Stack) AddDependency(other *Stack) {
	for _, d := range s.deps {
		if d == other.Name {
			return
		}
	}
	s.deps = append(s.deps, other.Name)
}

// Dependencies returns the names of the stacks s deploys after.
func (s *Stack) Dependencies() []string {
	return append([]string(nil), s.deps...)
}

// Rendered is a built stack.
type Rendered struct {
	ID           string
	Name         string
	Account      string
	Region       string
	Tags         map[string]string
	Template     *eksgitops.Template
	Manifests    []eks.Applied
	Dependencies []string
}

// Environment returns the aws://account/region target of the stack.
func (r *Rendered) Environment() string {
	return fmt.Sprintf("aws://%s/%s", r.Account, r.Region)
}

// Render builds the template.
func (s *Stack) Render() (*Rendered, error) {
	tmpl, err := s.Template.Build()
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}
	r := &Rendered{
		ID:           s.ID,
		Name:         s.Name,
		Account:      s.Account,
		Region:       s.Region,
		Tags:         s.Template.Tags(),
		Template:     tmpl,
		Dependencies: s.Dependencies(),
	}
	if s.kubectl != nil {
		r.Manifests = s.kubectl.Applied()
	}
	return r, nil
}
