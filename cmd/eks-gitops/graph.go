package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lex00/eks-gitops-go/internal/assembly"
	"github.com/lex00/eks-gitops-go/internal/graph"
)

func newGraphCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat      string
		from              string
		includeParameters bool
		clusterByType     bool
	)

	cmd := &cobra.Command{
		Use:   "graph [stack]",
		Short: "Generate a DOT graph of stack or resource dependencies",
		Long: `Graph prints the stack dependency graph, grouped by deployment
environment. Naming a stack prints the resource graph of that stack instead.

The output can be rendered with Graphviz:
    eks-gitops graph | dot -Tpng -o stacks.png

Or used in GitHub markdown (Mermaid format):
    eks-gitops graph -f mermaid

Examples:
    eks-gitops graph
    eks-gitops graph dev-demo-EksCoreStack -c        # cluster by service
    eks-gitops graph dev-demo-EksCoreStack -p        # include parameters
    eks-gitops graph --from cdk.out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var graphFormat graph.Format
			switch outputFormat {
			case "dot":
				graphFormat = graph.FormatDOT
			case "mermaid":
				graphFormat = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			logger := opts.logger()
			defer func() { _ = logger.Sync() }()
			asm, err := opts.loadAssembly(from, logger)
			if err != nil {
				return err
			}

			gen := &graph.Generator{
				Format:            graphFormat,
				IncludeParameters: includeParameters,
				ClusterByType:     clusterByType,
			}
			return runGraph(cmd.OutOrStdout(), gen, asm, args)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().StringVar(&from, "from", "", "Read an assembly directory instead of synthesizing")
	cmd.Flags().BoolVarP(&includeParameters, "include-parameters", "p", false, "Include parameter nodes in a resource graph")
	cmd.Flags().BoolVarP(&clusterByType, "cluster", "c", false, "Cluster resources by AWS service type")

	return cmd
}

func runGraph(w io.Writer, gen *graph.Generator, asm *assembly.Assembly, args []string) error {
	if len(args) == 1 {
		tmpl, ok := asm.Templates[args[0]]
		if !ok {
			return fmt.Errorf("unknown stack %s", args[0])
		}
		return gen.Template(tmpl, w)
	}

	names, err := asm.StackNames()
	if err != nil {
		return err
	}
	nodes := make([]graph.StackNode, 0, len(names))
	for _, name := range names {
		art := asm.Manifest.Artifacts[name]
		nodes = append(nodes, graph.StackNode{
			Name:         name,
			Environment:  art.Environment,
			Dependencies: art.Dependencies,
		})
	}
	return gen.Stacks(nodes, w)
}
