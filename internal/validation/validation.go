// Package validation checks a synthesized cloud assembly.
//
// Every stack template goes through three checks:
//   - schema: required properties and property types (internal/schema)
//   - ordering: references resolve and the resource graph has no cycle
//   - cfn-lint-go: the CloudFormation linter, used as a library
//
// Stack dependencies recorded in manifest.json must resolve and be acyclic.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lex00/cfn-lint-go/pkg/lint"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/assembly"
	"github.com/lex00/eks-gitops-go/internal/schema"
	"github.com/lex00/eks-gitops-go/internal/template"
)

// Options selects the checks of ValidateAssembly.
type Options struct {
	// SkipLint disables cfn-lint-go.
	SkipLint bool
	// Strict reports properties unknown to the schema as warnings.
	Strict bool
}

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}
	for _, match := range matches {
		formatted := formatMatch(match)
		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Warnings are acceptable.
	result.Passed = len(result.Errors) == 0
	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

// ValidateTemplate runs the schema and ordering checks on one template.
// Messages are prefixed with stackName.
func ValidateTemplate(stackName string, tmpl *eksgitops.Template, opts Options) (errs, warnings []string) {
	res, err := schema.ValidateTemplate(tmpl, schema.Options{Strict: opts.Strict})
	if err != nil {
		errs = append(errs, fmt.Sprintf("%s: schema: %v", stackName, err))
	} else {
		for _, e := range res.Errors {
			errs = append(errs, fmt.Sprintf("%s: %s.%s: %s", stackName, e.Resource, e.Property, e.Message))
		}
		for _, w := range res.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s.%s: %s", stackName, w.Resource, w.Property, w.Message))
		}
	}

	if _, err := template.Order(tmpl); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			errs = append(errs, fmt.Sprintf("%s: ordering: %s", stackName, line))
		}
	}
	return errs, warnings
}

// ValidateAssembly validates every stack of the assembly in dir.
func ValidateAssembly(dir string, opts Options) (*eksgitops.ValidateResult, error) {
	a, err := assembly.Read(dir)
	if err != nil {
		return nil, err
	}

	result := &eksgitops.ValidateResult{}
	names, err := a.StackNames()
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	for _, name := range names {
		tmpl, ok := a.Templates[name]
		if !ok {
			continue
		}
		result.Stacks++
		result.Resources += len(tmpl.Resources)

		errs, warnings := ValidateTemplate(name, tmpl, opts)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warnings...)

		if opts.SkipLint {
			continue
		}
		lr, err := RunCfnLint(filepath.Join(dir, a.Manifest.Artifacts[name].Properties.TemplateFile))
		if err != nil {
			return nil, fmt.Errorf("running cfn-lint on %s: %w", name, err)
		}
		for _, e := range lr.Errors {
			result.Errors = append(result.Errors, name+": "+e)
		}
		for _, w := range lr.Warnings {
			result.Warnings = append(result.Warnings, name+": "+w)
		}
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}
