package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// watchedExtensions are the run time inputs of a synth: context files and
// the lookup cache. Kubernetes assets are compiled into the binary and are
// not watched.
var watchedExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// newWatchCmd creates the "watch" subcommand for re-synthesizing on changes.
func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		debounce time.Duration
		paths    []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when the context or lookup cache changes",
		Long: `Watch monitors the directory of the context file and re-synthesizes
the cloud assembly on every change.

The watch command:
- Monitors .yaml, .yml and .json files
- Ignores the output directory
- Debounces rapid changes to avoid excessive synths

Kubernetes manifests, templates and fluentd configuration are embedded in
the binary. Changing them needs a rebuild; watch does not pick them up.

Examples:
    eks-gitops watch
    eks-gitops watch --path ./contexts --debounce 1s -o build/cdk.out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), opts, watchOptions{
				debounce: debounce,
				paths:    paths,
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "Additional directory to watch")

	return cmd
}

type watchOptions struct {
	debounce time.Duration
	paths    []string
}

// runWatch synthesizes once and again after every relevant change until ctx
// is done.
func runWatch(ctx context.Context, w io.Writer, opts *globalOptions, wopts watchOptions) error {
	logger := opts.logger()
	defer func() { _ = logger.Sync() }()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	skip, err := filepath.Abs(opts.outputDir)
	if err != nil {
		return err
	}
	dirs, err := watchDirs(opts.contextFile, wopts.paths)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := addDirRecursive(watcher, dir, skip); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fmt.Fprintf(w, "Watching: %s\n", dir)
	}

	fmt.Fprintln(w, "Running initial synth...")
	runWatchSynth(w, opts, logger)

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Fprintln(w, "\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, skip) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(wopts.debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Fprintf(w, "\n[%s] Change detected, synthesizing...\n", time.Now().Format("15:04:05"))
			runWatchSynth(w, opts, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Watch error", "error", err)

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			fmt.Fprintln(w, "\nStopping watch...")
			return nil
		}
	}
}

// watchDirs returns the absolute, distinct directories to watch.
func watchDirs(contextFile string, extra []string) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	for _, p := range append([]string{filepath.Dir(contextFile)}, extra...) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if !seen[abs] {
			seen[abs] = true
			dirs = append(dirs, abs)
		}
	}
	return dirs, nil
}

func relevant(event fsnotify.Event, skip string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	if !watchedExtensions[filepath.Ext(event.Name)] {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return abs != skip && !strings.HasPrefix(abs, skip+string(filepath.Separator))
}

// addDirRecursive adds a directory and all subdirectories to the watcher,
// except hidden directories and skip.
func addDirRecursive(watcher *fsnotify.Watcher, dir, skip string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (strings.HasPrefix(d.Name(), ".") || path == skip) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func runWatchSynth(w io.Writer, opts *globalOptions, logger *zap.SugaredLogger) {
	names, err := synthesize(opts, logger)
	if err != nil {
		fmt.Fprintf(w, "Synth failed: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Synthesized %d stacks to %s\n", len(names), opts.outputDir)
}
