package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lex00/eks-gitops-go/internal/app"
	"github.com/lex00/eks-gitops-go/internal/assembly"
	"github.com/lex00/eks-gitops-go/internal/config"
	"github.com/lex00/eks-gitops-go/internal/log"
	"github.com/lex00/eks-gitops-go/internal/lookup"
)

// globalOptions are the flags shared by every command. Defaults come from
// EKSGITOPS_* environment variables.
type globalOptions struct {
	contextFile string
	overrides   []string
	lookupFile  string
	outputDir   string
	log         log.Options
}

func newGlobalOptions(s config.Settings) *globalOptions {
	logOpts := log.NewDefaultOptions()
	if s.LogFormat != "" {
		logOpts.Format = log.Format(s.LogFormat)
	}
	logOpts.Debug = s.Debug
	return &globalOptions{
		contextFile: s.ContextFile,
		lookupFile:  s.LookupFile,
		outputDir:   s.OutputDir,
		log:         logOpts,
	}
}

func (o *globalOptions) addFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&o.contextFile, "context-file", o.contextFile, "Deployment context file (YAML, or cdk.json)")
	fs.StringArrayVar(&o.overrides, "context", nil, "Override a context key, e.g. --context development.region=eu-west-1")
	fs.StringVar(&o.lookupFile, "lookups", o.lookupFile, "Lookup cache written by the lookup command")
	fs.StringVarP(&o.outputDir, "output", "o", o.outputDir, "Output directory of the cloud assembly written by synth and watch")
	o.log.AddFlags(fs)
}

func (o *globalOptions) logger() *zap.SugaredLogger {
	return log.NewFromOptions(o.log)
}

// loadContext reads and validates the context file.
func (o *globalOptions) loadContext() (*config.Context, error) {
	return config.Load(o.contextFile, o.overrides)
}

// appOptions loads the context and the lookup cache.
func (o *globalOptions) appOptions(logger *zap.SugaredLogger) (app.Options, error) {
	ctx, err := o.loadContext()
	if err != nil {
		return app.Options{}, err
	}
	cache, err := lookup.LoadCache(o.lookupFile)
	if err != nil {
		return app.Options{}, err
	}
	return app.Options{Context: ctx, Lookups: cache, Log: logger}, nil
}

// loadAssembly reads the assembly in dir, or synthesizes one in memory when
// dir is empty.
func (o *globalOptions) loadAssembly(dir string, logger *zap.SugaredLogger) (*assembly.Assembly, error) {
	if dir != "" {
		return assembly.Read(dir)
	}
	appOpts, err := o.appOptions(logger)
	if err != nil {
		return nil, err
	}
	a, err := app.New(appOpts)
	if err != nil {
		return nil, err
	}
	return a.Synth()
}
