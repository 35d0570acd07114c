package manifest

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/lex00/eks-gitops-go/internal/dag"
)

// Chart is a named group of documents applied together. Documents may depend
// on other documents of the same chart; Documents returns them so that
// dependencies come first.
type Chart struct {
	Name  string
	graph *dag.Graph
	docs  map[string]*unstructured.Unstructured
	err   error
}

// NewChart creates an empty chart.
func NewChart(name string) *Chart {
	return &Chart{
		Name:  name,
		graph: dag.New(),
		docs:  make(map[string]*unstructured.Unstructured),
	}
}

// Add adds a document under id, applied after the documents named in after.
func (c *Chart) Add(id string, doc *unstructured.Unstructured, after ...string) *Chart {
	if !c.graph.AddNode(id) {
		c.setErr(fmt.Errorf("chart %s: duplicate document %q", c.Name, id))
		return c
	}
	c.docs[id] = doc
	for _, dep := range after {
		c.graph.AddEdge(id, dep)
	}
	return c
}

// AddObject converts a typed object and adds it.
func (c *Chart) AddObject(id string, obj runtime.Object, after ...string) *Chart {
	doc, err := FromObject(obj)
	if err != nil {
		c.setErr(fmt.Errorf("chart %s: %s: %w", c.Name, id, err))
		return c
	}
	return c.Add(id, doc, after...)
}

func (c *Chart) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Len returns the number of documents.
func (c *Chart) Len() int {
	return len(c.docs)
}

// Documents returns the documents in apply order.
func (c *Chart) Documents() ([]*unstructured.Unstructured, error) {
	if c.err != nil {
		return nil, c.err
	}
	order, err := c.graph.Sort()
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", c.Name, err)
	}
	out := make([]*unstructured.Unstructured, len(order))
	for i, id := range order {
		out[i] = c.docs[id]
	}
	return out, nil
}
