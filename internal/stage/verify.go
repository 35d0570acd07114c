package stage

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lex00/eks-gitops-go/internal/eks"
	"github.com/lex00/eks-gitops-go/internal/layer/cluster"
	"github.com/lex00/eks-gitops-go/internal/layer/ingress"
	"github.com/lex00/eks-gitops-go/internal/layer/observability"
	"github.com/lex00/eks-gitops-go/internal/stack"
	"github.com/lex00/eks-gitops-go/internal/template"
)

// Rule requires From to be created after To.
//
// A resource rule names the stack holding both resources. A stack rule
// leaves Stack empty and names two stacks.
type Rule struct {
	Stack  string
	From   string
	To     string
	Reason string
}

func (r Rule) String() string {
	if r.Stack == "" {
		return fmt.Sprintf("stack %s must deploy after %s (%s)", r.From, r.To, r.Reason)
	}
	return fmt.Sprintf("%s: %s must be created after %s (%s)", r.Stack, r.From, r.To, r.Reason)
}

// Rules returns the ordering rules of the stage.
func (s *Stage) Rules() []Rule {
	var rules []Rule
	for _, step := range s.order {
		for _, need := range s.plan.Needs(step) {
			rules = append(rules, Rule{From: s.stacks[step].Name, To: s.stacks[need].Name, Reason: "imports its outputs"})
		}
	}

	in := func(step string, pairs ...[3]string) {
		st := s.stacks[step]
		if st == nil {
			return
		}
		for _, p := range pairs {
			rules = append(rules, Rule{Stack: st.Name, From: p[0], To: p[1], Reason: p[2]})
		}
	}

	in(StepCluster,
		[3]string{cluster.ClusterID, cluster.AdminRoleID, "admin identity"},
		[3]string{cluster.ClusterID, cluster.KeyID, "secrets encryption key"},
		[3]string{cluster.NodegroupID, cluster.ClusterID, "capacity joins the cluster"},
		[3]string{cluster.AwsAuthID, cluster.NodegroupID, "aws-auth overwrites the node mapping"},
	)

	if s.Ingress != nil {
		id := s.Ingress.Identity
		in(StepIngress, append(identityRules(id, ingress.NamespaceID, "namespace"),
			[3]string{ingress.RBACID, ingress.NamespaceID, "namespace"},
			[3]string{ingress.DeploymentID, ingress.NamespaceID, "namespace"},
			[3]string{ingress.DeploymentID, id.PolicyID(), "permission grant"},
		)...)
	}

	if ins := s.Insights; ins != nil {
		pairs := append(identityRules(ins.Agent, ins.FoundationID, "foundation"),
			identityRules(ins.Fluentd, ins.FoundationID, "foundation")...)
		if slices.Contains(ins.Manifests, observability.AgentAssignmentID) {
			pairs = append(pairs,
				[3]string{observability.AgentAssignmentID, ins.FoundationID, "foundation"},
				[3]string{observability.AgentAssignmentID, ins.Agent.PolicyID(), "permission grant"},
				[3]string{observability.FluentdAssignmentID, ins.FoundationID, "foundation"},
				[3]string{observability.FluentdAssignmentID, ins.Fluentd.PolicyID(), "permission grant"},
			)
		} else {
			pairs = append(pairs,
				[3]string{observability.AgentPatchID, observability.AgentConfigID, "patched config map"},
				[3]string{observability.FluentdCompositeID, ins.FoundationID, "foundation"},
			)
		}
		in(StepObservability, pairs...)
	}
	return rules
}

// identityRules orders a service identity after parent and its permission
// grant after its role.
func identityRules(id *eks.ServiceIdentity, parent, reason string) [][3]string {
	rules := [][3]string{
		{id.RoleID(), parent, reason},
		{id.ManifestID(), parent, reason},
		{id.ManifestID(), id.AssociationID(), "pod identity association"},
	}
	if id.PolicyID() != "" {
		rules = append(rules, [3]string{id.PolicyID(), id.RoleID(), "role"})
	}
	return rules
}

// Verify checks every rule against the rendered stacks. All violations are
// reported together.
func Verify(rendered []*stack.Rendered, rules []Rule) error {
	byName := make(map[string]*stack.Rendered, len(rendered))
	for _, r := range rendered {
		byName[r.Name] = r
	}

	var errs []error
	graphs := make(map[string]func(from, to string) bool)
	for _, rule := range rules {
		if rule.Stack == "" {
			r, ok := byName[rule.From]
			if !ok || !slices.Contains(r.Dependencies, rule.To) {
				errs = append(errs, fmt.Errorf("ordering violated: %s", rule))
			}
			continue
		}

		dependsOn, ok := graphs[rule.Stack]
		if !ok {
			r, found := byName[rule.Stack]
			if !found {
				errs = append(errs, fmt.Errorf("ordering rule for unknown stack %s", rule.Stack))
				continue
			}
			g, err := template.Graph(r.Template)
			if err != nil {
				errs = append(errs, fmt.Errorf("stack %s: %w", rule.Stack, err))
				continue
			}
			dependsOn = g.DependsOn
			graphs[rule.Stack] = dependsOn
		}
		if !dependsOn(rule.From, rule.To) {
			errs = append(errs, fmt.Errorf("ordering violated: %s", rule))
		}
	}
	return errors.Join(errs...)
}
