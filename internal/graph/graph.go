// Package graph generates DOT and Mermaid dependency graphs for the stacks of
// an assembly and for the resources of one template.
package graph

import (
	"io"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	eksgitops "github.com/lex00/eks-gitops-go"
	"github.com/lex00/eks-gitops-go/internal/template"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs.
type Generator struct {
	// IncludeParameters adds template parameters as dashed nodes.
	IncludeParameters bool

	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByType groups resources by AWS service.
	ClusterByType bool
}

// StackNode is one stack of a stack graph.
type StackNode struct {
	Name         string
	Environment  string
	Dependencies []string
}

// Template writes the resource graph of tmpl to w. Edges point from a
// resource to the resources it needs; Fn::GetAtt edges are blue and explicit
// DependsOn edges are dashed.
func (g *Generator) Template(tmpl *eksgitops.Template, w io.Writer) error {
	graph := newGraph()

	ids := sortedKeys(tmpl.Resources)
	if g.ClusterByType {
		g.addClusteredNodes(graph, tmpl, ids)
	} else {
		for _, id := range ids {
			graph.Node(id).Label(resourceLabel(id, tmpl.Resources[id].Type))
		}
	}

	if g.IncludeParameters {
		for _, name := range sortedKeys(tmpl.Parameters) {
			n := graph.Node(name)
			n.Attr("shape", "ellipse")
			n.Attr("style", "dashed")
			n.Label(name)
		}
	}

	for _, id := range ids {
		res := tmpl.Resources[id]
		getAtts := getAttTargets(res.Properties)
		explicit := make(map[string]bool, len(res.DependsOn))
		for _, dep := range res.DependsOn {
			explicit[dep] = true
		}

		deps := template.References(res.Properties)
		deps = append(deps, res.DependsOn...)
		seen := make(map[string]bool)
		for _, dep := range deps {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			_, isResource := tmpl.Resources[dep]
			_, isParam := tmpl.Parameters[dep]
			if !isResource && !(isParam && g.IncludeParameters) {
				continue
			}
			e := graph.Edge(graph.Node(id), graph.Node(dep))
			if getAtts[dep] {
				e.Attr("color", "blue")
			}
			if explicit[dep] && !getAtts[dep] {
				e.Attr("style", "dashed")
			}
		}
	}
	return g.write(graph, w)
}

// Stacks writes the stack dependency graph to w. Stacks are grouped by
// deployment environment.
func (g *Generator) Stacks(stacks []StackNode, w io.Writer) error {
	graph := newGraph()

	byEnv := make(map[string][]StackNode)
	var envs []string
	for _, s := range stacks {
		if _, ok := byEnv[s.Environment]; !ok {
			envs = append(envs, s.Environment)
		}
		byEnv[s.Environment] = append(byEnv[s.Environment], s)
	}
	sort.Strings(envs)

	for _, env := range envs {
		sub := graph
		if len(envs) > 1 {
			sub = graph.Subgraph("cluster_"+clusterID(env), dot.ClusterOption{})
			sub.Attr("label", env)
			sub.Attr("style", "rounded")
		}
		for _, s := range byEnv[env] {
			sub.Node(s.Name).Label(s.Name)
		}
	}
	for _, s := range stacks {
		for _, dep := range s.Dependencies {
			graph.Edge(graph.Node(s.Name), graph.Node(dep))
		}
	}
	return g.write(graph, w)
}

// TemplateString is a convenience method that returns the resource graph as a string.
func (g *Generator) TemplateString(tmpl *eksgitops.Template) (string, error) {
	var sb strings.Builder
	if err := g.Template(tmpl, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) write(graph *dot.Graph, w io.Writer) error {
	var output string
	if g.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}
	_, err := io.WriteString(w, output)
	return err
}

func newGraph() *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})
	return graph
}

// addClusteredNodes adds resource nodes grouped by AWS service. Services with
// a single resource are not clustered.
func (g *Generator) addClusteredNodes(graph *dot.Graph, tmpl *eksgitops.Template, ids []string) {
	byService := make(map[string][]string)
	for _, id := range ids {
		service := extractService(tmpl.Resources[id].Type)
		byService[service] = append(byService[service], id)
	}

	for _, service := range sortedKeys(byService) {
		members := byService[service]
		parent := graph
		if len(members) > 1 {
			parent = graph.Subgraph("cluster_"+service, dot.ClusterOption{})
			parent.Attr("label", service)
			parent.Attr("style", "rounded")
			parent.Attr("bgcolor", "lightyellow")
		}
		for _, id := range members {
			parent.Node(id).Label(resourceLabel(id, tmpl.Resources[id].Type))
		}
	}
}

// clusterID turns an aws://account/region environment into a subgraph id.
func clusterID(env string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.TrimPrefix(env, "aws://"))
}

func resourceLabel(id, resourceType string) string {
	return id + "\\n[" + resourceType + "]"
}

// extractService returns the service part of a resource type.
// e.g., "AWS::EKS::Cluster" -> "EKS", "Custom::AWSCDK-EKS-KubernetesResource" -> "Custom"
func extractService(resourceType string) string {
	parts := strings.Split(resourceType, "::")
	switch {
	case len(parts) == 3:
		return parts[1]
	case len(parts) == 2:
		return parts[0]
	}
	return "Other"
}

// getAttTargets returns the resources referenced through Fn::GetAtt.
func getAttTargets(value any) map[string]bool {
	out := make(map[string]bool)
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if att, ok := val["Fn::GetAtt"]; ok && len(val) == 1 {
				switch a := att.(type) {
				case []any:
					if len(a) > 0 {
						if name, ok := a[0].(string); ok {
							out[name] = true
						}
					}
				case string:
					out[strings.SplitN(a, ".", 2)[0]] = true
				}
				return
			}
			for _, child := range val {
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		}
	}
	walk(value)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
