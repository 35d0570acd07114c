package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/assembly"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		from         string
		resources    bool
	)

	cmd := &cobra.Command{
		Use:   "list [stack...]",
		Short: "List stacks and their resources",
		Long: `List shows the stacks of the cloud assembly in deployment order with
their environment and dependencies. Naming stacks, or --resources, adds the
resources of each stack.

Examples:
    eks-gitops list
    eks-gitops list dev-demo-EksCoreStack
    eks-gitops list --from cdk.out --resources --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger()
			defer func() { _ = logger.Sync() }()

			asm, err := opts.loadAssembly(from, logger)
			if err != nil {
				return err
			}
			result, err := listAssembly(asm, args, resources)
			if err != nil {
				return err
			}
			return outputListResult(cmd.OutOrStdout(), result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVar(&from, "from", "", "Read an assembly directory instead of synthesizing")
	cmd.Flags().BoolVarP(&resources, "resources", "r", false, "Include the resources of every stack")

	return cmd
}

func listAssembly(asm *assembly.Assembly, stacks []string, withResources bool) (eksgitops.ListResult, error) {
	names, err := asm.StackNames()
	if err != nil {
		return eksgitops.ListResult{}, err
	}
	wanted := make(map[string]bool, len(stacks))
	for _, s := range stacks {
		if _, ok := asm.Manifest.Artifacts[s]; !ok {
			return eksgitops.ListResult{}, fmt.Errorf("unknown stack %s", s)
		}
		wanted[s] = true
	}

	result := eksgitops.ListResult{Stacks: []eksgitops.ListStack{}}
	for _, name := range names {
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		art := asm.Manifest.Artifacts[name]
		ls := eksgitops.ListStack{
			Name:         name,
			Environment:  art.Environment,
			Dependencies: art.Dependencies,
		}
		if withResources || len(wanted) > 0 {
			for id, res := range asm.Templates[name].Resources {
				ls.Resources = append(ls.Resources, eksgitops.ListResource{Name: id, Type: res.Type})
			}
			sort.Slice(ls.Resources, func(i, j int) bool {
				return ls.Resources[i].Name < ls.Resources[j].Name
			})
		}
		result.Stacks = append(result.Stacks, ls)
	}
	return result, nil
}

func outputListResult(w io.Writer, result eksgitops.ListResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if len(result.Stacks) == 0 {
			fmt.Fprintln(w, "No stacks found.")
			return nil
		}
		fmt.Fprintf(w, "Stacks (%d):\n\n", len(result.Stacks))
		for _, s := range result.Stacks {
			fmt.Fprintf(w, "  %s (%s)\n", s.Name, s.Environment)
			for _, dep := range s.Dependencies {
				fmt.Fprintf(w, "    needs %s\n", dep)
			}
			for _, res := range s.Resources {
				fmt.Fprintf(w, "    %s: %s\n", res.Name, res.Type)
			}
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
