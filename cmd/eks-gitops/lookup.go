package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lex00/eks-gitops-go/internal/app"
	"github.com/lex00/eks-gitops-go/internal/lookup"
)

// lookupClients creates the AWS clients of the lookup command.
var lookupClients lookup.ClientFactory = lookup.DefaultClients

func newLookupCmd(opts *globalOptions) *cobra.Command {
	var (
		verify  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve and cache availability zones of the enabled stages",
		Long: `Lookup asks EC2 for the availability zones of every enabled stage's
account and region and stores them in the lookup cache. Synth reads the
cache; without it subnets select zones with Fn::GetAZs at deploy time.

Examples:
    eks-gitops lookup
    eks-gitops lookup --verify          # check credentials match each account`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runLookup(ctx, cmd.OutOrStdout(), opts, verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the credentials belong to each target account")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout of all lookups")

	return cmd
}

func runLookup(ctx context.Context, w io.Writer, opts *globalOptions, verify bool) error {
	logger := opts.logger()
	defer func() { _ = logger.Sync() }()

	cfg, err := opts.loadContext()
	if err != nil {
		return err
	}
	a, err := app.New(app.Options{Context: cfg, Log: logger})
	if err != nil {
		return err
	}

	resolved, err := lookup.NewResolver(lookupClients, logger).ResolveAll(ctx, a.LookupTargets(), verify)
	if err != nil {
		return err
	}

	cache, err := lookup.LoadCache(opts.lookupFile)
	if err != nil {
		return err
	}
	cache.Merge(resolved)
	if err := cache.Save(opts.lookupFile); err != nil {
		return err
	}

	for _, e := range resolved.Entries {
		fmt.Fprintf(w, "%s/%s: %v\n", e.Account, e.Region, e.AvailabilityZones)
	}
	fmt.Fprintf(w, "Wrote %s\n", opts.lookupFile)
	return nil
}
