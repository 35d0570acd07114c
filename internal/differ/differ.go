// Package differ compares synthesized templates and cloud assemblies.
//
// The comparison is structural: two templates are equal when their resources
// carry the same type, properties, dependencies and policies, regardless of
// key order in the files. It is a review aid for synth output, not a
// prediction of what CloudFormation will replace.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/assembly"
)

// Options configures the differ.
type Options struct {
	// IgnoreOrder ignores list element order in comparisons.
	IgnoreOrder bool
}

func (o Options) cmpOptions() []cmp.Option {
	opts := []cmp.Option{cmpopts.EquateEmpty()}
	if o.IgnoreOrder {
		opts = append(opts, cmpopts.SortSlices(func(a, b any) bool {
			return fmt.Sprint(a) < fmt.Sprint(b)
		}))
	}
	return opts
}

// Result contains the difference between two templates.
type Result struct {
	Diff    eksgitops.TemplateDiff
	Summary eksgitops.DiffSummary
}

// Empty reports whether the templates were equal.
func (r *Result) Empty() bool {
	return r.Summary.Total == 0
}

// Compare compares two templates.
func Compare(before, after *eksgitops.Template, opts Options) *Result {
	result := &Result{}

	for name, def := range after.Resources {
		if _, ok := before.Resources[name]; !ok {
			result.Diff.Added = append(result.Diff.Added, eksgitops.DiffEntry{Resource: name, Type: def.Type})
		}
	}
	for name, def := range before.Resources {
		newDef, ok := after.Resources[name]
		if !ok {
			result.Diff.Removed = append(result.Diff.Removed, eksgitops.DiffEntry{Resource: name, Type: def.Type})
			continue
		}
		if changes := compareResources(def, newDef, opts); len(changes) > 0 {
			result.Diff.Modified = append(result.Diff.Modified, eksgitops.DiffEntry{
				Resource: name,
				Type:     newDef.Type,
				Changes:  changes,
			})
		}
	}

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)

	result.Summary = eksgitops.DiffSummary{
		Added:    len(result.Diff.Added),
		Removed:  len(result.Diff.Removed),
		Modified: len(result.Diff.Modified),
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified
	return result
}

// CompareFiles compares two template files.
func CompareFiles(before, after string, opts Options) (*Result, error) {
	t1, err := LoadTemplate(before)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", before, err)
	}
	t2, err := LoadTemplate(after)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", after, err)
	}
	return Compare(t1, t2, opts), nil
}

// LoadTemplate loads a template from a JSON or YAML file.
func LoadTemplate(path string) (*eksgitops.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmpl eksgitops.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		if yerr := yaml.Unmarshal(data, &tmpl); yerr != nil {
			return nil, fmt.Errorf("failed to parse as JSON or YAML: %w", yerr)
		}
	}
	return &tmpl, nil
}

// StackDiff is the difference of one stack present in both assemblies.
type StackDiff struct {
	Stack  string
	Result *Result
	// Manifests lists Kubernetes manifest ids whose documents changed,
	// prefixed with + or - when the manifest was added or removed.
	Manifests []string
}

// AssemblyDiff is the difference between two cloud assemblies.
type AssemblyDiff struct {
	AddedStacks   []string
	RemovedStacks []string
	Stacks        []StackDiff
}

// Empty reports whether the assemblies were equal.
func (d *AssemblyDiff) Empty() bool {
	return len(d.AddedStacks) == 0 && len(d.RemovedStacks) == 0 && len(d.Stacks) == 0
}

// CompareAssemblies compares two assemblies stack by stack.
func CompareAssemblies(before, after *assembly.Assembly, opts Options) *AssemblyDiff {
	d := &AssemblyDiff{}
	for _, name := range sortedKeys(after.Templates) {
		if _, ok := before.Templates[name]; !ok {
			d.AddedStacks = append(d.AddedStacks, name)
		}
	}
	for _, name := range sortedKeys(before.Templates) {
		newTmpl, ok := after.Templates[name]
		if !ok {
			d.RemovedStacks = append(d.RemovedStacks, name)
			continue
		}
		sd := StackDiff{
			Stack:     name,
			Result:    Compare(before.Templates[name], newTmpl, opts),
			Manifests: compareManifests(before.Kubernetes[name], after.Kubernetes[name]),
		}
		if !sd.Result.Empty() || len(sd.Manifests) > 0 {
			d.Stacks = append(d.Stacks, sd)
		}
	}
	return d
}

// CompareDirs compares two assembly directories.
func CompareDirs(before, after string, opts Options) (*AssemblyDiff, error) {
	a, err := assembly.Read(before)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", before, err)
	}
	b, err := assembly.Read(after)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", after, err)
	}
	return CompareAssemblies(a, b, opts), nil
}

func compareManifests(before, after map[string][]byte) []string {
	var out []string
	for id, doc := range after {
		old, ok := before[id]
		switch {
		case !ok:
			out = append(out, "+"+id)
		case string(old) != string(doc):
			out = append(out, id)
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			out = append(out, "-"+id)
		}
	}
	sort.Strings(out)
	return out
}

func compareResources(a, b eksgitops.ResourceDef, opts Options) []string {
	var changes []string
	if a.Type != b.Type {
		changes = append(changes, fmt.Sprintf("Type changed: %s → %s", a.Type, b.Type))
	}
	changes = append(changes, compareProperties("", a.Properties, b.Properties, opts)...)

	cmpOpts := opts.cmpOptions()
	if !cmp.Equal(a.DependsOn, b.DependsOn, cmpOpts...) {
		changes = append(changes, "DependsOn changed")
	}
	if a.DeletionPolicy != b.DeletionPolicy {
		changes = append(changes, fmt.Sprintf("DeletionPolicy changed: %q → %q", a.DeletionPolicy, b.DeletionPolicy))
	}
	if a.UpdateReplacePolicy != b.UpdateReplacePolicy {
		changes = append(changes, fmt.Sprintf("UpdateReplacePolicy changed: %q → %q", a.UpdateReplacePolicy, b.UpdateReplacePolicy))
	}
	return changes
}

// compareProperties walks nested maps so a change is reported at the
// deepest key that differs.
func compareProperties(prefix string, a, b map[string]any, opts Options) []string {
	var changes []string
	cmpOpts := opts.cmpOptions()

	for key, newVal := range b {
		path := joinPath(prefix, key)
		oldVal, ok := a[key]
		if !ok {
			changes = append(changes, path+" added")
			continue
		}
		oldMap, oldIsMap := oldVal.(map[string]any)
		newMap, newIsMap := newVal.(map[string]any)
		if oldIsMap && newIsMap {
			changes = append(changes, compareProperties(path, oldMap, newMap, opts)...)
			continue
		}
		if !cmp.Equal(oldVal, newVal, cmpOpts...) {
			changes = append(changes, path+" modified")
		}
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			changes = append(changes, joinPath(prefix, key)+" removed")
		}
	}

	sort.Strings(changes)
	return changes
}

// Explain returns a human readable rendering of what changed in one
// resource, or "" when both are equal.
func Explain(a, b eksgitops.ResourceDef, opts Options) string {
	return cmp.Diff(a, b, opts.cmpOptions()...)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func sortEntries(entries []eksgitops.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Resource < entries[j].Resource
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
