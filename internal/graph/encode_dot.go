package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// DOTNode describes how a vertex is drawn
type DOTNode struct {
	Label string
	// Attributes are additional node attributes, e.g., {"shape": "box"}
	Attributes map[string]string
}

// dotBuilder wraps an io.Writer and writes a graph in DOT format
type dotBuilder struct {
	io.Writer
}

func newDotBuilder(w io.Writer) (*dotBuilder, error) {
	builder := dotBuilder{w}
	if _, err := fmt.Fprint(builder, "digraph G {\n", `node [fontname="Helvetica,Arial,sans-serif"]`, "\n"); err != nil {
		return nil, err
	}
	return &builder, nil
}

func (b *dotBuilder) finish() error {
	_, err := fmt.Fprintln(b, "}")
	return err
}

// addNode writes the node with the label first and the other attributes in name order
func (b *dotBuilder) addNode(id int, node DOTNode) error {
	attrs := []string{fmt.Sprintf("label=%q", node.Label)}
	names := make([]string, 0, len(node.Attributes))
	for name := range node.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, fmt.Sprintf("%s=%q", name, node.Attributes[name]))
	}
	_, err := fmt.Fprintf(b, "n%d [%s]\n", id, strings.Join(attrs, ", "))
	return err
}

func (b *dotBuilder) addEdge(from, to int) error {
	_, err := fmt.Fprintf(b, "n%d -> n%d\n", from, to)
	return err
}

// EncodeDOT encodes a graph in DOT format to enable visualization of the graph. Vertices and edges
// are written in id order. If node is nil, vertices are labeled with their id.
func EncodeDOT[V Vertex](g *Graph[V], w io.Writer, node func(V) DOTNode) error {
	builder, err := newDotBuilder(w)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	vertexIds := g.GetVertexIds()
	nodeIdsByVertex := make(map[string]int, len(vertexIds))
	for i, id := range vertexIds {
		n := DOTNode{Label: id}
		if node != nil {
			n = node(g.GetVertex(id))
		}
		if err := builder.addNode(i, n); err != nil {
			return fmt.Errorf("addNode(%d, %s): %w", i, id, err)
		}
		nodeIdsByVertex[id] = i
	}

	for _, source := range vertexIds {
		for _, target := range g.GetAdjacentIds(source) {
			if err := builder.addEdge(nodeIdsByVertex[source], nodeIdsByVertex[target]); err != nil {
				return fmt.Errorf("addEdge(%s, %s): %w", source, target, err)
			}
		}
	}

	return builder.finish()
}
