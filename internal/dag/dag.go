// Package dag provides a small directed acyclic graph with a deterministic
// topological order.
//
// Edges point from a node to the nodes it needs. Sort and Levels break ties
// by insertion order, so the same sequence of AddNode/AddEdge calls always
// produces the same ordering.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownNode is returned when an edge names a node that was never added.
var ErrUnknownNode = errors.New("unknown node")

// CycleError reports a dependency cycle. Path starts and ends with the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Path, " → ")
}

// Graph is a dependency graph keyed by node name.
type Graph struct {
	nodes []string
	index map[string]int
	needs map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		needs: make(map[string][]string),
	}
}

// AddNode adds a node. It reports false if the node already exists.
func (g *Graph) AddNode(name string) bool {
	if _, ok := g.index[name]; ok {
		return false
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
	return true
}

// AddEdge records that from needs to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	for _, existing := range g.needs[from] {
		if existing == to {
			return
		}
	}
	g.needs[from] = append(g.needs[from], to)
}

// Has reports whether name is a node of the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Needs returns the direct dependencies of name in the order they were added.
func (g *Graph) Needs(name string) []string {
	return append([]string(nil), g.needs[name]...)
}

// Validate checks that every edge ends in a known node and that the graph
// has no cycle.
func (g *Graph) Validate() error {
	var errs []error
	for _, n := range g.nodes {
		for _, dep := range g.needs[n] {
			if !g.Has(dep) {
				errs = append(errs, fmt.Errorf("%s needs %s: %w", n, dep, ErrUnknownNode))
			}
		}
	}
	for from := range g.needs {
		if !g.Has(from) {
			errs = append(errs, fmt.Errorf("edge from %s: %w", from, ErrUnknownNode))
		}
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return errors.Join(errs...)
	}
	if cycle := g.findCycle(); cycle != nil {
		return &CycleError{Path: cycle}
	}
	return nil
}

// Sort returns the nodes so that every node comes after the nodes it needs.
// Among nodes that are ready at the same time the earlier inserted one wins.
func (g *Graph) Sort() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = len(g.needs[n])
		for _, dep := range g.needs[n] {
			dependents[dep] = append(dependents[dep], n)
		}
	}

	var ready []int
	for i, n := range g.nodes {
		if inDegree[n] == 0 {
			ready = append(ready, i)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		node := g.nodes[ready[0]]
		ready = ready[1:]
		result = append(result, node)

		for _, d := range dependents[node] {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready = append(ready, g.index[d])
				sort.Ints(ready)
			}
		}
	}
	return result, nil
}

// Levels groups nodes by depth: level 0 needs nothing, level n needs at
// least one node of level n-1. Nodes within a level keep insertion order.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.Sort()
	if err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(order))
	maxDepth := -1
	for _, n := range order {
		d := 0
		for _, dep := range g.needs[n] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[n] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, n := range g.nodes {
		levels[depth[n]] = append(levels[depth[n]], n)
	}
	return levels, nil
}

// DependsOn reports whether from reaches to by following edges.
func (g *Graph) DependsOn(from, to string) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.needs[from]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.needs[n]...)
	}
	return false
}

func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		state[n] = visiting
		stack = append(stack, n)
		for _, dep := range g.needs[n] {
			switch state[dep] {
			case visiting:
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case unvisited:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return nil
	}

	for _, n := range g.nodes {
		if state[n] == unvisited {
			if c := visit(n); c != nil {
				return c
			}
		}
	}
	return nil
}
