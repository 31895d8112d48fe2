package depcy

import (
	"fmt"
	"io"

	"github.com/stripe/pg-schema-depcy/internal/graph"
	"github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

type vertex struct {
	stmt schema.Statement
}

func (v *vertex) GetId() string {
	return v.stmt.GetReference().Key()
}

type (
	graphOptions struct {
		logger        log.Logger
		reduceColumns bool
	}

	GraphOpt func(*graphOptions)
)

func WithGraphLogger(logger log.Logger) GraphOpt {
	return func(o *graphOptions) {
		o.logger = logger
	}
}

// WithReducedColumns merges every column vertex into the vertex of its table
func WithReducedColumns() GraphOpt {
	return func(o *graphOptions) {
		o.reduceColumns = true
	}
}

// DepcyGraph is the dependency graph of one snapshot. An edge goes from a statement to a statement it requires.
// The graph is built over a private copy of the snapshot, so it never changes the statements of the caller.
type DepcyGraph struct {
	db     *schema.Database
	graph  *graph.Graph[*vertex]
	logger log.Logger
	// derivedFKTargets maps a foreign key to the unique constraint or index it was bound to
	derivedFKTargets map[string]string
}

func NewDepcyGraph(db *schema.Database, opts ...GraphOpt) *DepcyGraph {
	options := graphOptions{logger: log.SimpleLogger()}
	for _, opt := range opts {
		opt(&options)
	}
	g := &DepcyGraph{
		db:               db.Copy(),
		graph:            graph.NewGraph[*vertex](),
		logger:           options.logger,
		derivedFKTargets: make(map[string]string),
	}
	g.addVertices()
	g.addDeclaredEdges()
	g.addForeignKeyEdges()
	g.addInheritanceEdges()
	g.breakFunctionCycles()
	if options.reduceColumns {
		g.reduceColumns()
	}
	return g
}

// Database returns the private copy of the snapshot the graph was built from
func (g *DepcyGraph) Database() *schema.Database {
	return g.db
}

// Statement returns the statement of the vertex or nil
func (g *DepcyGraph) Statement(key string) schema.Statement {
	if !g.graph.HasVertexWithId(key) {
		return nil
	}
	return g.graph.GetVertex(key).stmt
}

func (g *DepcyGraph) HasStatement(key string) bool {
	return g.graph.HasVertexWithId(key)
}

// Dependencies returns the keys of the statements the statement requires, in sorted order
func (g *DepcyGraph) Dependencies(key string) []string {
	return g.graph.GetAdjacentIds(key)
}

// Dependents returns the keys of the statements that require the statement, in sorted order
func (g *DepcyGraph) Dependents(key string) []string {
	return g.graph.Reversed().GetAdjacentIds(key)
}

func (g *DepcyGraph) HasEdge(sourceKey, targetKey string) bool {
	return g.graph.HasEdge(sourceKey, targetKey)
}

// DerivedForeignKeyTarget returns the unique constraint or index a foreign key was bound to
func (g *DepcyGraph) DerivedForeignKeyTarget(fkKey string) (string, bool) {
	target, ok := g.derivedFKTargets[fkKey]
	return target, ok
}

// CreationOrder returns the keys of the statements in an order in which they can be created: every statement
// comes after its dependencies. It fails if the graph still has a cycle.
func (g *DepcyGraph) CreationOrder() ([]string, error) {
	sorted, err := g.graph.TopologicallySort()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(sorted))
	for i, v := range sorted {
		keys[len(sorted)-1-i] = v.GetId()
	}
	return keys, nil
}

var dotShapes = map[schema.ObjectType]string{
	schema.TypeDatabase: "doublecircle",
	schema.TypeSchema:   "folder",
	schema.TypeTable:    "box",
	schema.TypeView:     "box3d",
	schema.TypeFunction: "hexagon",
}

// EncodeDOT writes the graph in DOT format. Vertices are labeled with their key and shaped by their kind.
func (g *DepcyGraph) EncodeDOT(w io.Writer) error {
	return graph.EncodeDOT(g.graph, w, func(v *vertex) graph.DOTNode {
		node := graph.DOTNode{Label: v.GetId()}
		if shape, ok := dotShapes[v.stmt.GetType()]; ok {
			node.Attributes = map[string]string{"shape": shape}
		}
		return node
	})
}

func (g *DepcyGraph) addVertices() {
	for _, s := range g.db.Statements() {
		g.graph.AddVertex(&vertex{stmt: s})
	}
	for _, s := range g.db.Statements() {
		if s.GetType() == schema.TypeDatabase {
			continue
		}
		g.addEdge(s.GetReference().Key(), s.GetParent().Key())
	}
}

func (g *DepcyGraph) addDeclaredEdges() {
	for _, s := range g.db.Statements() {
		key := s.GetReference().Key()
		for _, dep := range s.GetDependencies() {
			depKey := dep.Key()
			if depKey == key {
				continue
			}
			if !g.graph.HasVertexWithId(depKey) {
				g.logger.Debugf("skipping dependency of %s on %s: not in the snapshot", key, depKey)
				continue
			}
			g.addEdge(key, depKey)
		}
	}
}

// addEdge adds an edge between two vertices known to exist
func (g *DepcyGraph) addEdge(sourceKey, targetKey string) {
	if err := g.graph.AddEdge(sourceKey, targetKey); err != nil {
		g.logger.Warnf("adding edge %s -> %s: %s", sourceKey, targetKey, err)
	}
}

// addForeignKeyEdges binds every foreign key to the unique constraint or unique index of the referenced table
// whose columns match the referenced columns in order. A foreign key without referenced columns binds to the
// primary key.
func (g *DepcyGraph) addForeignKeyEdges() {
	for _, s := range g.db.Statements() {
		fk, ok := s.(*schema.Constraint)
		if !ok || !fk.IsForeignKey() || fk.RefTable == nil {
			continue
		}
		fkKey := fk.GetReference().Key()
		var target schema.Statement
		if len(fk.RefColumns) == 0 {
			target = g.findPrimaryKey(*fk.RefTable)
		} else {
			target = g.findUniqueKey(*fk.RefTable, fk.RefColumns)
		}
		if target == nil {
			g.logger.Debugf("no unique key of %s matches the columns %v of %s", fk.RefTable.Key(), fk.RefColumns, fkKey)
			continue
		}
		targetKey := target.GetReference().Key()
		g.addEdge(fkKey, targetKey)
		g.derivedFKTargets[fkKey] = targetKey
	}
}

func (g *DepcyGraph) findPrimaryKey(tableRef schema.Reference) schema.Statement {
	for _, child := range g.db.GetChildren(tableRef) {
		if c, ok := child.(*schema.Constraint); ok && c.ConstraintType == schema.ConstraintTypePrimaryKey {
			return c
		}
	}
	return nil
}

func (g *DepcyGraph) findUniqueKey(tableRef schema.Reference, columns []string) schema.Statement {
	for _, child := range g.db.GetChildren(tableRef) {
		switch c := child.(type) {
		case *schema.Constraint:
			if c.IsUniqueKey() && columnsEqual(c.Columns, columns) {
				return c
			}
		case *schema.Index:
			if c.Unique && c.Where == "" && columnsEqual(c.Columns, columns) {
				return c
			}
		}
	}
	return nil
}

func columnsEqual(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// addInheritanceEdges links the columns of partitions and inheriting tables to the columns of their parents
func (g *DepcyGraph) addInheritanceEdges() {
	for _, s := range g.db.Statements() {
		table, ok := s.(*schema.Table)
		if !ok || len(table.GetParentTables()) == 0 {
			continue
		}
		for _, column := range g.db.GetColumns(table.GetReference()) {
			parentColumn := g.findParentColumn(table, column.GetName(), make(map[string]bool))
			if parentColumn == nil {
				if column.Inherited {
					g.logger.Warnf("inherited column %s has no column in the parent tables", column.GetReference().Key())
				}
				continue
			}
			g.addEdge(column.GetReference().Key(), parentColumn.GetReference().Key())
		}
	}
}

// findParentColumn searches the parents of the table for the column, walking up the inheritance chain
func (g *DepcyGraph) findParentColumn(table *schema.Table, columnName string, visited map[string]bool) schema.Statement {
	visited[table.GetReference().Key()] = true
	for _, parentRef := range table.GetParentTables() {
		if visited[parentRef.Key()] {
			continue
		}
		parent, ok := g.db.GetStatement(parentRef).(*schema.Table)
		if !ok {
			g.logger.Warnf("parent table %s of %s is not in the snapshot", parentRef.Key(), table.GetReference().Key())
			continue
		}
		columnRef := schema.NewReference(schema.TypeColumn, append(append([]string(nil), parentRef.Path...), columnName)...)
		if col := g.db.GetStatement(columnRef); col != nil {
			return col
		}
		if col := g.findParentColumn(parent, columnName, visited); col != nil {
			return col
		}
	}
	return nil
}

// breakFunctionCycles removes the edges from functions to the columns they form a cycle with, e.g., a column
// whose default calls a function that reads the table. The edge to the table goes too once no column of the
// table is referenced anymore.
func (g *DepcyGraph) breakFunctionCycles() {
	for _, component := range g.graph.StronglyConnectedComponents() {
		inComponent := make(map[string]bool, len(component))
		for _, id := range component {
			inComponent[id] = true
		}
		for _, id := range component {
			if g.graph.GetVertex(id).stmt.GetType() != schema.TypeFunction {
				continue
			}
			tables := make(map[string]bool)
			for _, targetId := range g.graph.GetAdjacentIds(id) {
				target := g.graph.GetVertex(targetId).stmt
				if !inComponent[targetId] || target.GetType() != schema.TypeColumn {
					continue
				}
				g.graph.RemoveEdge(id, targetId)
				g.logger.Infof("breaking dependency cycle: removed edge %s -> %s", id, targetId)
				tables[target.GetParent().Key()] = true
			}
			for tableKey := range tables {
				if !g.graph.HasEdge(id, tableKey) || g.referencesColumnOf(id, tableKey) {
					continue
				}
				g.graph.RemoveEdge(id, tableKey)
				g.logger.Infof("breaking dependency cycle: removed edge %s -> %s", id, tableKey)
			}
		}
	}
}

func (g *DepcyGraph) referencesColumnOf(sourceKey, tableKey string) bool {
	for _, targetId := range g.graph.GetAdjacentIds(sourceKey) {
		target := g.graph.GetVertex(targetId).stmt
		if target.GetType() == schema.TypeColumn && target.GetParent().Key() == tableKey {
			return true
		}
	}
	return false
}

func (g *DepcyGraph) reduceColumns() {
	for _, id := range g.graph.GetVertexIds() {
		stmt := g.graph.GetVertex(id).stmt
		if stmt.GetType() != schema.TypeColumn {
			continue
		}
		tableKey := stmt.GetParent().Key()
		for _, targetId := range g.graph.GetAdjacentIds(id) {
			if targetId != tableKey {
				g.addEdge(tableKey, targetId)
			}
		}
		for _, sourceId := range g.graph.GetIncomingIds(id) {
			if sourceId != tableKey {
				g.addEdge(sourceId, tableKey)
			}
		}
		g.graph.RemoveVertex(id)
	}
}

func (g *DepcyGraph) String() string {
	return fmt.Sprintf("DepcyGraph{vertices: %d, edges: %d}", len(g.graph.GetVertexIds()), g.graph.EdgeCount())
}
