// Package template builds CloudFormation templates for a single stack.
//
// Resources are added with typed property maps or structs that marshal to
// JSON. Build normalizes the properties, applies stack tags, checks that every
// Ref, Fn::GetAtt and Fn::Sub reference resolves inside the template, and
// rejects dependency cycles.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/dag"
)

// FormatVersion is the only template format version CloudFormation accepts.
const FormatVersion = "2010-09-09"

// Resource is a resource under construction. Layers may mutate it until
// Build is called.
type Resource struct {
	Type                string
	Properties          any
	DependsOn           []string
	DeletionPolicy      string
	UpdateReplacePolicy string
}

// Option customizes a resource when it is added.
type Option func(*Resource)

// DependsOn adds explicit DependsOn entries.
func DependsOn(ids ...string) Option {
	return func(r *Resource) {
		r.DependsOn = append(r.DependsOn, ids...)
	}
}

// Retain keeps the physical resource when it is removed from the stack or replaced.
func Retain() Option {
	return func(r *Resource) {
		r.DeletionPolicy = "Retain"
		r.UpdateReplacePolicy = "Retain"
	}
}

// Builder constructs one CloudFormation template.
type Builder struct {
	description string
	order       []string
	resources   map[string]*Resource
	parameters  map[string]eksgitops.Parameter
	outputs     map[string]eksgitops.Output
	tags        map[string]string
	errs        []error
}

// NewBuilder creates an empty template builder.
func NewBuilder(description string) *Builder {
	return &Builder{
		description: description,
		resources:   make(map[string]*Resource),
		parameters:  make(map[string]eksgitops.Parameter),
		outputs:     make(map[string]eksgitops.Output),
		tags:        make(map[string]string),
	}
}

// AddResource adds a resource with the given logical id. Adding the same id
// twice is reported by Build.
func (b *Builder) AddResource(id, resourceType string, props any, opts ...Option) *Resource {
	if _, exists := b.resources[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate resource id %q", id))
		return b.resources[id]
	}
	res := &Resource{Type: resourceType, Properties: props}
	for _, opt := range opts {
		opt(res)
	}
	b.resources[id] = res
	b.order = append(b.order, id)
	return res
}

// Resource returns the resource with the given id, or nil.
func (b *Builder) Resource(id string) *Resource {
	return b.resources[id]
}

// ResourceIDs returns the logical ids in the order they were added.
func (b *Builder) ResourceIDs() []string {
	return append([]string(nil), b.order...)
}

// ResourcesOfType returns the ids of resources with the given type, in insertion order.
func (b *Builder) ResourcesOfType(resourceType string) []string {
	var ids []string
	for _, id := range b.order {
		if b.resources[id].Type == resourceType {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddParameter adds a template parameter.
func (b *Builder) AddParameter(name string, p eksgitops.Parameter) {
	if _, exists := b.parameters[name]; exists {
		return
	}
	b.parameters[name] = p
}

// AddOutput adds a template output.
func (b *Builder) AddOutput(name string, o eksgitops.Output) {
	if _, exists := b.outputs[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate output %q", name))
		return
	}
	b.outputs[name] = o
}

// Tag sets a stack tag that Build propagates to every taggable resource.
func (b *Builder) Tag(key, value string) {
	b.tags[key] = value
}

// Tags returns a copy of the stack tags.
func (b *Builder) Tags() map[string]string {
	out := make(map[string]string, len(b.tags))
	for k, v := range b.tags {
		out[k] = v
	}
	return out
}

// Build constructs the CloudFormation template.
func (b *Builder) Build() (*eksgitops.Template, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	tmpl := &eksgitops.Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              b.description,
		Resources:                make(map[string]eksgitops.ResourceDef, len(b.resources)),
	}
	if len(b.parameters) > 0 {
		tmpl.Parameters = b.parameters
	}

	for _, id := range b.order {
		res := b.resources[id]
		props, err := normalize(res.Properties)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", id, err)
		}
		applyTags(res.Type, props, b.tags)

		tmpl.Resources[id] = eksgitops.ResourceDef{
			Type:                res.Type,
			Properties:          props,
			DependsOn:           sortedUnique(res.DependsOn),
			DeletionPolicy:      res.DeletionPolicy,
			UpdateReplacePolicy: res.UpdateReplacePolicy,
		}
	}

	if len(b.outputs) > 0 {
		tmpl.Outputs = make(map[string]eksgitops.Output, len(b.outputs))
		for name, out := range b.outputs {
			value, err := normalizeValue(out.Value)
			if err != nil {
				return nil, fmt.Errorf("serializing output %s: %w", name, err)
			}
			out.Value = value
			tmpl.Outputs[name] = out
		}
	}

	if _, err := Graph(tmpl); err != nil {
		return nil, err
	}
	if err := checkOutputRefs(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Graph returns the resource dependency graph of a rendered template. Edges
// come from DependsOn and from Ref, Fn::GetAtt and Fn::Sub references.
// Nodes are added in sorted order so the graph is the same for a template
// read back from disk.
func Graph(t *eksgitops.Template) (*dag.Graph, error) {
	ids := make([]string, 0, len(t.Resources))
	for id := range t.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := dag.New()
	for _, id := range ids {
		g.AddNode(id)
	}

	var errs []error
	for _, id := range ids {
		res := t.Resources[id]
		for _, dep := range res.DependsOn {
			g.AddEdge(id, dep)
		}
		for _, ref := range References(res.Properties) {
			if _, isParam := t.Parameters[ref]; isParam {
				continue
			}
			if _, ok := t.Resources[ref]; !ok {
				errs = append(errs, fmt.Errorf("resource %s references unknown resource %s", id, ref))
				continue
			}
			g.AddEdge(id, ref)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Order returns the resource ids of t in dependency order.
func Order(t *eksgitops.Template) ([]string, error) {
	g, err := Graph(t)
	if err != nil {
		return nil, err
	}
	return g.Sort()
}

func checkOutputRefs(t *eksgitops.Template) error {
	var errs []error
	names := make([]string, 0, len(t.Outputs))
	for name := range t.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, ref := range References(t.Outputs[name].Value) {
			_, isRes := t.Resources[ref]
			_, isParam := t.Parameters[ref]
			if !isRes && !isParam {
				errs = append(errs, fmt.Errorf("output %s references unknown resource %s", name, ref))
			}
		}
	}
	return errors.Join(errs...)
}

var subVar = regexp.MustCompile(`\$\{([^!}][^}]*)\}`)

// References returns the logical ids referenced from a normalized value
// through Ref, Fn::GetAtt and Fn::Sub. Pseudo parameters and Fn::Sub map
// variables are skipped. The result is sorted and free of duplicates.
func References(value any) []string {
	seen := make(map[string]bool)
	collectRefs(value, seen)
	out := make([]string, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func collectRefs(value any, seen map[string]bool) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 1 {
			if ref, ok := v["Ref"].(string); ok {
				addRef(ref, seen)
				return
			}
			if att, ok := v["Fn::GetAtt"]; ok {
				switch a := att.(type) {
				case []any:
					if len(a) > 0 {
						if name, ok := a[0].(string); ok {
							addRef(name, seen)
						}
					}
				case string:
					addRef(strings.SplitN(a, ".", 2)[0], seen)
				}
				return
			}
			if sub, ok := v["Fn::Sub"]; ok {
				collectSubRefs(sub, seen)
				return
			}
		}
		for _, val := range v {
			collectRefs(val, seen)
		}
	case []any:
		for _, elem := range v {
			collectRefs(elem, seen)
		}
	}
}

func collectSubRefs(sub any, seen map[string]bool) {
	var (
		str  string
		vars map[string]any
	)
	switch s := sub.(type) {
	case string:
		str = s
	case []any:
		if len(s) > 0 {
			str, _ = s[0].(string)
		}
		if len(s) > 1 {
			vars, _ = s[1].(map[string]any)
			for _, val := range vars {
				collectRefs(val, seen)
			}
		}
	}
	for _, m := range subVar.FindAllStringSubmatch(str, -1) {
		name := strings.SplitN(m[1], ".", 2)[0]
		if _, isVar := vars[name]; isVar {
			continue
		}
		addRef(name, seen)
	}
}

func addRef(name string, seen map[string]bool) {
	if name == "" || strings.HasPrefix(name, "AWS::") {
		return
	}
	seen[name] = true
}

// tagList lists resource types whose Tags property is a Key/Value list.
var tagList = map[string]bool{
	"AWS::CodeBuild::Project":          true,
	"AWS::CodePipeline::Pipeline":      true,
	"AWS::EC2::EIP":                    true,
	"AWS::EC2::InternetGateway":        true,
	"AWS::EC2::NatGateway":             true,
	"AWS::EC2::RouteTable":             true,
	"AWS::EC2::SecurityGroup":          true,
	"AWS::EC2::Subnet":                 true,
	"AWS::EC2::VPC":                    true,
	"AWS::EKS::AccessEntry":            true,
	"AWS::EKS::Addon":                  true,
	"AWS::EKS::Cluster":                true,
	"AWS::EKS::PodIdentityAssociation": true,
	"AWS::IAM::Role":                   true,
	"AWS::KMS::Key":                    true,
	"AWS::S3::Bucket":                  true,
}

// tagMap lists resource types whose Tags property is a string map.
var tagMap = map[string]bool{
	"AWS::EKS::Nodegroup": true,
}

// Taggable reports whether stack tags propagate to resources of this type.
func Taggable(resourceType string) bool {
	return tagList[resourceType] || tagMap[resourceType]
}

// applyTags adds stack tags the resource does not set itself.
func applyTags(resourceType string, props map[string]any, tags map[string]string) {
	if len(tags) == 0 || !Taggable(resourceType) {
		return
	}
	switch {
	case tagMap[resourceType]:
		existing, _ := props["Tags"].(map[string]any)
		if existing == nil {
			existing = make(map[string]any, len(tags))
		}
		for k, v := range tags {
			if _, ok := existing[k]; !ok {
				existing[k] = v
			}
		}
		props["Tags"] = existing

	case tagList[resourceType]:
		existing, _ := props["Tags"].([]any)
		have := make(map[string]bool, len(existing))
		for _, t := range existing {
			if m, ok := t.(map[string]any); ok {
				if k, ok := m["Key"].(string); ok {
					have[k] = true
				}
			}
		}
		keys := make([]string, 0, len(tags))
		for k := range tags {
			if !have[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			existing = append(existing, map[string]any{"Key": k, "Value": tags[k]})
		}
		sort.SliceStable(existing, func(i, j int) bool {
			return tagKey(existing[i]) < tagKey(existing[j])
		})
		props["Tags"] = existing
	}
}

func tagKey(tag any) string {
	if m, ok := tag.(map[string]any); ok {
		if k, ok := m["Key"].(string); ok {
			return k
		}
	}
	return ""
}

// normalize converts a property value to plain JSON maps and slices.
func normalize(props any) (map[string]any, error) {
	if props == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("properties must serialize to a JSON object: %w", err)
	}
	return out, nil
}

func normalizeValue(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ToJSON serializes the template to indented JSON.
func ToJSON(t *eksgitops.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *eksgitops.Template) ([]byte, error) {
	return yaml.Marshal(t)
}
