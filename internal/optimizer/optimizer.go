// Package optimizer suggests security, cost, performance and reliability
// improvements for synthesized templates. Rules inspect resource properties;
// a suggestion is only raised when the template lacks the setting.
package optimizer

import (
	"sort"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/assembly"
)

// Categories of suggestions, in display order.
var Categories = []string{"security", "cost", "performance", "reliability"}

// ValidCategory reports whether c is "all" or one of Categories.
func ValidCategory(c string) bool {
	if c == "all" {
		return true
	}
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Options configures the optimizer.
type Options struct {
	// Category filters suggestions: "all" or one of Categories. Empty means all.
	Category string
}

// Suggestion is one improvement for a resource.
type Suggestion struct {
	Stack       string `json:"stack,omitempty"`
	Resource    string `json:"resource"`
	Rule        string `json:"rule"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// Summary counts suggestions by category.
type Summary struct {
	Security    int `json:"security"`
	Cost        int `json:"cost"`
	Performance int `json:"performance"`
	Reliability int `json:"reliability"`
	Total       int `json:"total"`
}

// Result contains optimization suggestions.
type Result struct {
	Suggestions []Suggestion `json:"suggestions"`
	Resources   int          `json:"resources"`
	Summary     Summary      `json:"summary"`
}

// Optimize analyzes the resources of one template. Suggestions are ordered by
// resource name, then rule.
func Optimize(stack string, tmpl *eksgitops.Template, opts Options) *Result {
	result := &Result{Suggestions: []Suggestion{}, Resources: len(tmpl.Resources)}

	names := make([]string, 0, len(tmpl.Resources))
	for name := range tmpl.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := tmpl.Resources[name]
		for _, rule := range rulesFor(res.Type) {
			if !wanted(rule, opts) {
				continue
			}
			if s := rule.Check(name, res); s != nil {
				result.Suggestions = append(result.Suggestions, finish(*s, rule, stack))
			}
		}
	}
	for _, rule := range templateRules {
		if !wanted(rule, opts) {
			continue
		}
		if s := rule.CheckTemplate(tmpl); s != nil {
			result.Suggestions = append(result.Suggestions, finish(*s, rule, stack))
		}
	}

	result.Summary = calculateSummary(result.Suggestions)
	return result
}

// OptimizeAssembly analyzes every stack of a in deployment order.
func OptimizeAssembly(a *assembly.Assembly, opts Options) (*Result, error) {
	names, err := a.StackNames()
	if err != nil {
		return nil, err
	}
	result := &Result{Suggestions: []Suggestion{}}
	for _, name := range names {
		tmpl, ok := a.Templates[name]
		if !ok {
			continue
		}
		r := Optimize(name, tmpl, opts)
		result.Resources += r.Resources
		result.Suggestions = append(result.Suggestions, r.Suggestions...)
	}
	result.Summary = calculateSummary(result.Suggestions)
	return result, nil
}

func wanted(rule Rule, opts Options) bool {
	return opts.Category == "" || opts.Category == "all" || opts.Category == rule.Category
}

func finish(s Suggestion, rule Rule, stack string) Suggestion {
	s.Stack = stack
	s.Rule = rule.ID
	s.Category = rule.Category
	if s.Severity == "" {
		s.Severity = rule.Severity
	}
	if s.Title == "" {
		s.Title = rule.Title
	}
	return s
}

// calculateSummary tallies suggestions by category.
func calculateSummary(suggestions []Suggestion) Summary {
	summary := Summary{}
	for _, s := range suggestions {
		switch s.Category {
		case "security":
			summary.Security++
		case "cost":
			summary.Cost++
		case "performance":
			summary.Performance++
		case "reliability":
			summary.Reliability++
		}
		summary.Total++
	}
	return summary
}

// Rule represents an optimization rule. Resource rules set Check, template
// rules set CheckTemplate.
type Rule struct {
	ID            string
	Category      string
	Severity      string
	Title         string
	Check         func(name string, res eksgitops.ResourceDef) *Suggestion
	CheckTemplate func(tmpl *eksgitops.Template) *Suggestion
}

// rulesFor returns the resource rules applicable to a resource type.
func rulesFor(resourceType string) []Rule {
	var rules []Rule
	switch resourceType {
	case "AWS::S3::Bucket":
		rules = append(rules, s3BucketRules...)
	case "AWS::KMS::Key":
		rules = append(rules, kmsKeyRules...)
	case "AWS::IAM::Role", "AWS::IAM::Policy", "AWS::IAM::ManagedPolicy":
		rules = append(rules, iamRules...)
	case "AWS::EKS::Cluster":
		rules = append(rules, eksClusterRules...)
	case "AWS::EKS::Nodegroup":
		rules = append(rules, nodegroupRules...)
	}
	return append(rules, genericRules...)
}
