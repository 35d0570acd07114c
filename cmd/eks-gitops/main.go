// Command eks-gitops synthesizes the EKS GitOps platform: a delivery pipeline
// in the tools account and the network, cluster and add-on stacks it deploys.
//
// Usage:
//
//	eks-gitops synth                 Write the cloud assembly to cdk.out
//	eks-gitops list                  List stacks and their dependencies
//	eks-gitops graph                 Graph the stack DAG
//	eks-gitops diff a b              Compare two assemblies
//	eks-gitops validate              Synthesize and validate
//	eks-gitops optimize              Suggest improvements
//	eks-gitops lookup                Cache availability zones
//	eks-gitops watch                 Re-synthesize on changes
//	eks-gitops version               Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/eks-gitops-go/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	opts := newGlobalOptions(settings)

	rootCmd := &cobra.Command{
		Use:   "eks-gitops",
		Short: "Synthesize the EKS GitOps platform as CloudFormation",
		Long: `eks-gitops builds an EKS platform from a deployment context:

    common:
      longContext: demo
      repositoryName: eks-gitops-demo
    tools:
      account: "222222222222"
      region: eu-central-1
      environmentTag: tools
    development:
      account: "111111111111"
      region: eu-central-1
      shortPrefix: dev

and writes a cloud assembly with one template per stack:

    eks-gitops synth --context-file eks-gitops.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.log.Validate()
		},
	}
	opts.addFlags(rootCmd)

	rootCmd.AddCommand(
		newSynthCmd(opts),
		newListCmd(opts),
		newGraphCmd(opts),
		newDiffCmd(),
		newValidateCmd(opts),
		newOptimizeCmd(opts),
		newLookupCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eks-gitops %s\n", getVersion())
		},
	}
}
