package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/validation"
)

// newValidateCmd creates the "validate" subcommand for checking a synthesized assembly.
func newValidateCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		skipLint     bool
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "validate [assembly-dir]",
		Short: "Validate the synthesized stacks",
		Long: `Validate checks every stack of a cloud assembly. Without a directory
the context is synthesized into a temporary directory first.

Checks performed:
  - Ordering: stage ordering rules hold and resource references resolve
  - Schema: required properties and property types of every resource
  - cfn-lint: the CloudFormation linter (skip with --skip-lint)

Examples:
    eks-gitops validate
    eks-gitops validate cdk.out --format json
    eks-gitops validate --skip-lint --strict`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(cmd.OutOrStdout(), opts, dir, outputFormat, validation.Options{
				SkipLint: skipLint,
				Strict:   strict,
			})
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&skipLint, "skip-lint", false, "Skip cfn-lint")
	cmd.Flags().BoolVar(&strict, "strict", false, "Warn about properties unknown to the schema")

	return cmd
}

func runValidate(w io.Writer, opts *globalOptions, dir, format string, vopts validation.Options) error {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "eks-gitops-validate-")
		if err != nil {
			return err
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		logger := opts.logger()
		defer func() { _ = logger.Sync() }()
		synthOpts := *opts
		synthOpts.outputDir = tmp
		if _, err := synthesize(&synthOpts, logger); err != nil {
			return outputValidateResult(w, eksgitops.ValidateResult{Errors: []string{err.Error()}}, format)
		}
		dir = tmp
	}

	result, err := validation.ValidateAssembly(dir, vopts)
	if err != nil {
		return err
	}
	return outputValidateResult(w, *result, format)
}

func outputValidateResult(w io.Writer, result eksgitops.ValidateResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if result.Success {
			fmt.Fprintf(w, "Validation passed: %d stacks, %d resources OK\n", result.Stacks, result.Resources)
		} else {
			fmt.Fprintln(w, "Validation FAILED:")
		}
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  ERROR: %s\n", errMsg)
		}
		for _, warnMsg := range result.Warnings {
			fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		return fmt.Errorf("validation failed")
	}
	return nil
}
