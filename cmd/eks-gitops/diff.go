package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/differ"
)

func newDiffCmd() *cobra.Command {
	var (
		outputFormat string
		ignoreOrder  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Compare two assemblies or two templates",
		Long: `Diff compares two synthesized cloud assemblies stack by stack, or two
single templates, and lists added, removed and modified resources. For
assemblies it also lists changed Kubernetes manifests.

Examples:
    eks-gitops diff cdk.out.old cdk.out
    eks-gitops diff old/dev-demo-EksCoreStack.template.json cdk.out/dev-demo-EksCoreStack.template.json
    eks-gitops diff cdk.out.old cdk.out --ignore-order --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.OutOrStdout(), args[0], args[1], outputFormat, differ.Options{IgnoreOrder: ignoreOrder})
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Ignore list element order")

	return cmd
}

func runDiff(w io.Writer, before, after, format string, opts differ.Options) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format: %s", format)
	}
	if isDir(before) && isDir(after) {
		d, err := differ.CompareDirs(before, after, opts)
		if err != nil {
			return err
		}
		return outputAssemblyDiff(w, d, format)
	}

	result, err := differ.CompareFiles(before, after, opts)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(w, struct {
			Diff    eksgitops.TemplateDiff `json:"diff"`
			Summary eksgitops.DiffSummary  `json:"summary"`
		}{result.Diff, result.Summary})
	}
	if result.Empty() {
		fmt.Fprintln(w, "No differences.")
		return nil
	}
	printTemplateDiff(w, "", result)
	return nil
}

type stackDiffJSON struct {
	Stack     string                 `json:"stack"`
	Diff      eksgitops.TemplateDiff `json:"diff"`
	Summary   eksgitops.DiffSummary  `json:"summary"`
	Manifests []string               `json:"manifests,omitempty"`
}

func outputAssemblyDiff(w io.Writer, d *differ.AssemblyDiff, format string) error {
	if format == "json" {
		out := struct {
			Added   []string        `json:"added_stacks,omitempty"`
			Removed []string        `json:"removed_stacks,omitempty"`
			Stacks  []stackDiffJSON `json:"stacks,omitempty"`
		}{Added: d.AddedStacks, Removed: d.RemovedStacks}
		for _, s := range d.Stacks {
			out.Stacks = append(out.Stacks, stackDiffJSON{
				Stack:     s.Stack,
				Diff:      s.Result.Diff,
				Summary:   s.Result.Summary,
				Manifests: s.Manifests,
			})
		}
		return writeJSON(w, out)
	}

	if d.Empty() {
		fmt.Fprintln(w, "No differences.")
		return nil
	}
	for _, name := range d.AddedStacks {
		fmt.Fprintf(w, "+ stack %s\n", name)
	}
	for _, name := range d.RemovedStacks {
		fmt.Fprintf(w, "- stack %s\n", name)
	}
	for _, s := range d.Stacks {
		fmt.Fprintf(w, "~ stack %s\n", s.Stack)
		printTemplateDiff(w, "    ", s.Result)
		for _, m := range s.Manifests {
			fmt.Fprintf(w, "    manifest %s\n", m)
		}
	}
	return nil
}

func printTemplateDiff(w io.Writer, indent string, r *differ.Result) {
	for _, e := range r.Diff.Added {
		fmt.Fprintf(w, "%s+ %s (%s)\n", indent, e.Resource, e.Type)
	}
	for _, e := range r.Diff.Removed {
		fmt.Fprintf(w, "%s- %s (%s)\n", indent, e.Resource, e.Type)
	}
	for _, e := range r.Diff.Modified {
		fmt.Fprintf(w, "%s~ %s (%s)\n", indent, e.Resource, e.Type)
		for _, c := range e.Changes {
			fmt.Fprintf(w, "%s    %s\n", indent, c)
		}
	}
	if r.Summary.Total > 0 {
		fmt.Fprintf(w, "%s%d added, %d removed, %d modified\n", indent, r.Summary.Added, r.Summary.Removed, r.Summary.Modified)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
