package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lex00/eks-gitops-go/internal/optimizer"
)

// newOptimizeCmd creates the "optimize" subcommand for suggesting improvements.
func newOptimizeCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		category     string
		from         string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Suggest improvements to the synthesized stacks",
		Long: `Optimize analyzes the resources of every stack and suggests improvements
for security, cost, performance, and reliability.

Categories:
    security     - Encryption, key rotation, public endpoints, wildcard policies
    cost         - Cost optimization suggestions
    performance  - Performance improvements
    reliability  - Node counts, NAT gateways, logging, retained data

Examples:
    eks-gitops optimize
    eks-gitops optimize --category security
    eks-gitops optimize --from cdk.out -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !optimizer.ValidCategory(category) {
				return fmt.Errorf("invalid category: %s (valid: all, %s)", category, strings.Join(optimizer.Categories, ", "))
			}
			logger := opts.logger()
			defer func() { _ = logger.Sync() }()

			asm, err := opts.loadAssembly(from, logger)
			if err != nil {
				return err
			}
			result, err := optimizer.OptimizeAssembly(asm, optimizer.Options{Category: category})
			if err != nil {
				return fmt.Errorf("optimize failed: %w", err)
			}
			return outputOptimizeResult(cmd.OutOrStdout(), result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVarP(&category, "category", "c", "all", "Category: all, security, cost, performance, or reliability")
	cmd.Flags().StringVar(&from, "from", "", "Read an assembly directory instead of synthesizing")

	return cmd
}

// outputOptimizeResult prints suggestions grouped by category. Suggestions
// are advice, not failures.
func outputOptimizeResult(w io.Writer, result *optimizer.Result, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if len(result.Suggestions) == 0 {
			fmt.Fprintf(w, "Analyzed %d resources. No optimization suggestions.\n", result.Resources)
			return nil
		}

		fmt.Fprintf(w, "Analyzed %d resources. Found %d suggestions:\n\n", result.Resources, result.Summary.Total)

		byCat := map[string][]optimizer.Suggestion{}
		for _, s := range result.Suggestions {
			byCat[s.Category] = append(byCat[s.Category], s)
		}

		for _, cat := range optimizer.Categories {
			suggestions := byCat[cat]
			if len(suggestions) == 0 {
				continue
			}

			fmt.Fprintf(w, "=== %s (%d) ===\n", strings.ToUpper(cat[:1])+cat[1:], len(suggestions))
			for _, s := range suggestions {
				fmt.Fprintf(w, "\n[%s] %s (%s)\n", s.Severity, s.Title, s.Rule)
				fmt.Fprintf(w, "  Resource: %s/%s\n", s.Stack, s.Resource)
				fmt.Fprintf(w, "  %s\n", s.Description)
				fmt.Fprintf(w, "  Suggestion: %s\n", s.Suggestion)
			}
			fmt.Fprintln(w)
		}

		fmt.Fprintf(w, "Summary: %d security, %d cost, %d performance, %d reliability\n",
			result.Summary.Security, result.Summary.Cost,
			result.Summary.Performance, result.Summary.Reliability)

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
