package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/app"
)

func newSynthCmd(opts *globalOptions) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize the cloud assembly",
		Long: `Synth builds the pipeline stack and every enabled stage and writes the
cloud assembly: manifest.json, one <stack>.template.json per stack and the
Kubernetes documents each stack applies under k8s/<stack>/.

Examples:
    eks-gitops synth
    eks-gitops synth -o cdk.out --context development.region=eu-west-1
    eks-gitops synth --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(cmd.OutOrStdout(), opts, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runSynth(w io.Writer, opts *globalOptions, format string) error {
	logger := opts.logger()
	defer func() { _ = logger.Sync() }()

	names, err := synthesize(opts, logger)
	result := eksgitops.SynthResult{
		Success:   err == nil,
		OutputDir: opts.outputDir,
		Stacks:    names,
	}
	if err != nil {
		result.Errors = []string{err.Error()}
	}

	if outErr := outputSynthResult(w, result, format); outErr != nil {
		return outErr
	}
	if err != nil {
		return fmt.Errorf("synth failed: %w", err)
	}
	return nil
}

// synthesize writes the assembly to the output directory and returns the
// stack names in deployment order.
func synthesize(opts *globalOptions, logger *zap.SugaredLogger) ([]string, error) {
	appOpts, err := opts.appOptions(logger)
	if err != nil {
		return nil, err
	}
	_, asm, err := app.Synthesize(appOpts, opts.outputDir)
	if err != nil {
		return nil, err
	}
	return asm.StackNames()
}

func outputSynthResult(w io.Writer, result eksgitops.SynthResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if !result.Success {
			return nil
		}
		fmt.Fprintf(w, "Synthesized %d stacks to %s:\n\n", len(result.Stacks), result.OutputDir)
		for _, name := range result.Stacks {
			fmt.Fprintf(w, "  %s\n", name)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
