package graph

import (
	"fmt"
	"sort"

	"github.com/stripe/pg-schema-depcy/internal/util"
)

type Vertex interface {
	GetId() string
}

type AdjacencyMatrix map[string]map[string]bool

// Graph is a directed graph. Every edge is indexed in both directions, so the reversed view
// of a graph observes the same edge set as the graph itself.
type Graph[V Vertex] struct {
	verticesById map[string]V
	edges        AdjacencyMatrix
	incoming     AdjacencyMatrix
}

func NewGraph[V Vertex]() *Graph[V] {
	return &Graph[V]{
		verticesById: make(map[string]V),
		edges:        make(AdjacencyMatrix),
		incoming:     make(AdjacencyMatrix),
	}
}

// AddVertex adds a vertex to the graph.
// If the vertex already exists, it will override it and keep the edges
func (g *Graph[V]) AddVertex(v V) {
	g.verticesById[v.GetId()] = v
	if g.edges[v.GetId()] == nil {
		g.edges[v.GetId()] = make(map[string]bool)
	}
	if g.incoming[v.GetId()] == nil {
		g.incoming[v.GetId()] = make(map[string]bool)
	}
}

// AddEdge adds an edge to the graph. If the vertex doesn't exist, it will error
func (g *Graph[V]) AddEdge(sourceId, targetId string) error {
	if !g.HasVertexWithId(sourceId) {
		return fmt.Errorf("source %s does not exist", sourceId)
	}
	if !g.HasVertexWithId(targetId) {
		return fmt.Errorf("target %s does not exist", targetId)
	}
	g.edges[sourceId][targetId] = true
	g.incoming[targetId][sourceId] = true

	return nil
}

// RemoveEdge removes the edge from source to target. It returns false if the edge did not exist
func (g *Graph[V]) RemoveEdge(sourceId, targetId string) bool {
	if !g.HasEdge(sourceId, targetId) {
		return false
	}
	delete(g.edges[sourceId], targetId)
	delete(g.incoming[targetId], sourceId)
	return true
}

// RemoveVertex removes the vertex and every edge that touches it
func (g *Graph[V]) RemoveVertex(id string) {
	if !g.HasVertexWithId(id) {
		return
	}
	for target := range g.edges[id] {
		delete(g.incoming[target], id)
	}
	for source := range g.incoming[id] {
		delete(g.edges[source], id)
	}
	delete(g.edges, id)
	delete(g.incoming, id)
	delete(g.verticesById, id)
}

func (g *Graph[V]) HasEdge(sourceId, targetId string) bool {
	return g.edges[sourceId][targetId]
}

func (g *Graph[V]) GetVertex(id string) V {
	return g.verticesById[id]
}

func (g *Graph[V]) HasVertexWithId(id string) bool {
	_, hasVertex := g.verticesById[id]
	return hasVertex
}

// GetVertexIds returns the ids of all vertices in sorted order
func (g *Graph[V]) GetVertexIds() []string {
	return util.SortedKeys(g.verticesById)
}

// GetAdjacentIds returns the targets of the edges leaving the vertex in sorted order
func (g *Graph[V]) GetAdjacentIds(id string) []string {
	return sortedKeys(g.edges[id])
}

// GetIncomingIds returns the sources of the edges entering the vertex in sorted order
func (g *Graph[V]) GetIncomingIds(id string) []string {
	return sortedKeys(g.incoming[id])
}

func (g *Graph[V]) EdgeCount() int {
	count := 0
	for _, targets := range g.edges {
		count += len(targets)
	}
	return count
}

// Reversed returns a read-only view of the graph with every edge flipped. The view is backed by the
// graph itself: edges added to or removed from the graph are visible through the view.
func (g *Graph[V]) Reversed() ReversedView[V] {
	return ReversedView[V]{g: g}
}

// TopologicallySort returns a deterministic topological sort of the graph: every vertex precedes the
// targets of its edges. Among the available sources, the one with the smallest id is taken first.
func (g *Graph[V]) TopologicallySort() ([]V, error) {
	incomingEdgeCountByVertex := make(map[string]int)
	for id, sources := range g.incoming {
		incomingEdgeCountByVertex[id] = len(sources)
	}

	var output []V
	for len(incomingEdgeCountByVertex) > 0 {
		var sourceId string
		found := false
		for id, count := range incomingEdgeCountByVertex {
			if count == 0 && (!found || id < sourceId) {
				sourceId = id
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("cycle detected: %d vertices could not be sorted", len(incomingEdgeCountByVertex))
		}

		output = append(output, g.GetVertex(sourceId))
		for target := range g.edges[sourceId] {
			incomingEdgeCountByVertex[target]--
		}
		delete(incomingEdgeCountByVertex, sourceId)
	}

	return output, nil
}

// StronglyConnectedComponents returns every strongly connected component with more than one vertex,
// plus single vertices with a self edge. Those are exactly the vertex sets that participate in a cycle.
// Ids within a component are sorted, and components are ordered by their first id.
func (g *Graph[V]) StronglyConnectedComponents() [][]string {
	t := tarjan[V]{
		g:       g,
		index:   make(map[string]int),
		lowLink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, id := range g.GetVertexIds() {
		if _, visited := t.index[id]; !visited {
			t.strongConnect(id)
		}
	}

	var cycles [][]string
	for _, component := range t.components {
		if len(component) > 1 || g.HasEdge(component[0], component[0]) {
			sort.Strings(component)
			cycles = append(cycles, component)
		}
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles
}

type tarjan[V Vertex] struct {
	g          *Graph[V]
	counter    int
	index      map[string]int
	lowLink    map[string]int
	onStack    map[string]bool
	stack      []string
	components [][]string
}

func (t *tarjan[V]) strongConnect(id string) {
	t.index[id] = t.counter
	t.lowLink[id] = t.counter
	t.counter++
	t.stack = append(t.stack, id)
	t.onStack[id] = true

	for _, target := range t.g.GetAdjacentIds(id) {
		if _, visited := t.index[target]; !visited {
			t.strongConnect(target)
			t.lowLink[id] = min(t.lowLink[id], t.lowLink[target])
		} else if t.onStack[target] {
			t.lowLink[id] = min(t.lowLink[id], t.index[target])
		}
	}

	if t.lowLink[id] != t.index[id] {
		return
	}
	var component []string
	for {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[top] = false
		component = append(component, top)
		if top == id {
			break
		}
	}
	t.components = append(t.components, component)
}

// ReversedView exposes a graph with its edges flipped without copying them
type ReversedView[V Vertex] struct {
	g *Graph[V]
}

func (r ReversedView[V]) GetVertex(id string) V {
	return r.g.GetVertex(id)
}

func (r ReversedView[V]) HasVertexWithId(id string) bool {
	return r.g.HasVertexWithId(id)
}

func (r ReversedView[V]) HasEdge(sourceId, targetId string) bool {
	return r.g.HasEdge(targetId, sourceId)
}

func (r ReversedView[V]) GetAdjacentIds(id string) []string {
	return r.g.GetIncomingIds(id)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, isAdjacent := range m {
		if isAdjacent {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
