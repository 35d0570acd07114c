package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageGraph() *Graph {
	g := New()
	for _, n := range []string{"network", "cluster", "ingress", "observability", "sampleapp"} {
		g.AddNode(n)
	}
	g.AddEdge("cluster", "network")
	g.AddEdge("ingress", "cluster")
	g.AddEdge("observability", "cluster")
	g.AddEdge("sampleapp", "cluster")
	return g
}

func TestGraph_Sort(t *testing.T) {
	order, err := stageGraph().Sort()
	require.NoError(t, err)
	assert.Equal(t, []string{"network", "cluster", "ingress", "observability", "sampleapp"}, order)
}

func TestGraph_Sort_InsertionOrderTieBreak(t *testing.T) {
	g := New()
	g.AddNode("zeta")
	g.AddNode("alpha")
	g.AddNode("mid")
	g.AddEdge("alpha", "mid")

	order, err := g.Sort()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "mid", "alpha"}, order)
}

func TestGraph_Sort_Deterministic(t *testing.T) {
	first, err := stageGraph().Sort()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := stageGraph().Sort()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGraph_Levels(t *testing.T) {
	levels, err := stageGraph().Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"network"},
		{"cluster"},
		{"ingress", "observability", "sampleapp"},
	}, levels)
}

func TestGraph_Levels_Empty(t *testing.T) {
	levels, err := New().Levels()
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestGraph_Cycle(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	_, err := g.Sort()
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycleErr.Path)
	assert.Contains(t, err.Error(), "a → b → c → a")
}

func TestGraph_SelfCycle(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddEdge("a", "a")

	var cycleErr *CycleError
	require.ErrorAs(t, g.Validate(), &cycleErr)
	assert.Equal(t, []string{"a", "a"}, cycleErr.Path)
}

func TestGraph_UnknownNode(t *testing.T) {
	g := New()
	g.AddNode("cluster")
	g.AddEdge("cluster", "network")

	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.Contains(t, err.Error(), "cluster needs network")
}

func TestGraph_AddNode_Duplicate(t *testing.T) {
	g := New()
	assert.True(t, g.AddNode("a"))
	assert.False(t, g.AddNode("a"))
	assert.Equal(t, []string{"a"}, g.Nodes())
}

func TestGraph_AddEdge_Duplicate(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	assert.Equal(t, []string{"b"}, g.Needs("a"))
}

func TestGraph_DependsOn(t *testing.T) {
	g := stageGraph()
	assert.True(t, g.DependsOn("ingress", "network"))
	assert.True(t, g.DependsOn("cluster", "network"))
	assert.False(t, g.DependsOn("network", "cluster"))
	assert.False(t, g.DependsOn("ingress", "sampleapp"))
}
