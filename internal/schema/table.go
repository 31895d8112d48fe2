package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type Table struct {
	Object
	Unlogged bool
	// PartitionKey is the PARTITION BY clause of a partitioned table, e.g., RANGE (created_at)
	PartitionKey string
	// PartitionOf is the parent of a partition
	PartitionOf *Reference
	// PartitionBound is the FOR VALUES clause of a partition
	PartitionBound string
	Inherits       []Reference
	// Options are storage parameters in the key=value form
	Options []string
	// Engine is the ClickHouse table engine clause
	Engine string
}

func NewTable(schemaName, name string) *Table {
	return &Table{Object: Object{
		Ref:       NewReference(TypeTable, schemaName, name),
		ParentRef: NewReference(TypeSchema, schemaName),
	}}
}

func (t *Table) sqlKind() string {
	return "TABLE"
}

func (t *Table) sqlName(d Dialect) string {
	return d.QualifiedName(t.schemaName(), t.GetName())
}

func (t *Table) IsPartition() bool {
	return t.PartitionOf != nil
}

func (t *Table) IsPartitioned() bool {
	return t.PartitionKey != ""
}

// GetParentTables returns the tables this table inherits its columns from
func (t *Table) GetParentTables() []Reference {
	var parents []Reference
	if t.PartitionOf != nil {
		parents = append(parents, *t.PartitionOf)
	}
	return append(parents, t.Inherits...)
}

func (t *Table) GetDependencies() []Reference {
	return appendDependencies(t.DependsOn, t.GetParentTables()...)
}

func (t *Table) Compare(other Statement) bool {
	return compareStatements(t, other)
}

func (t *Table) Clone() Statement {
	c := *t
	c.Object = t.cloneObject()
	c.PartitionOf = cloneReferencePtr(t.PartitionOf)
	c.Inherits = cloneReferences(t.Inherits)
	c.Options = cloneStrings(t.Options)
	return &c
}

func (t *Table) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	sb := strings.Builder{}
	if t.IsPartition() && d == DialectPostgres {
		bound := t.PartitionBound
		if bound == "" {
			bound = "DEFAULT"
		}
		sb.WriteString(fmt.Sprintf("CREATE TABLE %s PARTITION OF %s\n\t%s",
			t.sqlName(d), d.QualifiedName(t.PartitionOf.Path...), bound))
	} else {
		sb.WriteString("CREATE ")
		if t.Unlogged && d == DialectPostgres {
			sb.WriteString("UNLOGGED ")
		}
		sb.WriteString("TABLE ")
		sb.WriteString(t.sqlName(d))
		var defs []string
		for _, c := range db.GetColumns(t.Ref) {
			if !c.Inherited {
				defs = append(defs, c.definition(d))
			}
		}
		if len(defs) == 0 {
			sb.WriteString(" ()")
		} else {
			sb.WriteString(" (\n\t")
			sb.WriteString(strings.Join(defs, ",\n\t"))
			sb.WriteString("\n)")
		}
		if len(t.Inherits) > 0 {
			var parents []string
			for _, p := range t.Inherits {
				parents = append(parents, d.QualifiedName(p.Path...))
			}
			sb.WriteString(fmt.Sprintf("\nINHERITS (%s)", strings.Join(parents, ", ")))
		}
	}
	if t.IsPartitioned() {
		sb.WriteString("\nPARTITION BY ")
		sb.WriteString(t.PartitionKey)
	}
	if len(t.Options) > 0 && d == DialectPostgres {
		sb.WriteString(fmt.Sprintf("\nWITH (%s)", strings.Join(t.Options, ", ")))
	}
	if t.Engine != "" && d == DialectClickHouse {
		sb.WriteString("\nENGINE = ")
		sb.WriteString(t.Engine)
	}
	script.AddStatement(sb.String())

	appendCreateExtrasSQL(d, t, commentTarget(d, t), &t.Object, script)
	for _, c := range db.GetColumns(t.Ref) {
		if c.Comment != "" {
			appendCommentSQL(d, commentTarget(d, c), c.Comment, script)
		}
	}
}

func (t *Table) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, "TABLE", t.sqlName(db.Dialect), ifExists))
}

func (t *Table) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newT, ok := newState.(*Table)
	if !ok {
		return StateRecreate
	}
	if t.PartitionKey != newT.PartitionKey ||
		!referencePtrsEqual(t.PartitionOf, newT.PartitionOf) ||
		t.PartitionBound != newT.PartitionBound ||
		!referencesEqual(t.Inherits, newT.Inherits) ||
		t.Engine != newT.Engine {
		return StateRecreate
	}

	d := db.Dialect
	state := StateNothing
	if t.Unlogged != newT.Unlogged && d == DialectPostgres {
		persistence := "LOGGED"
		if newT.Unlogged {
			persistence = "UNLOGGED"
		}
		script.AddStatement(fmt.Sprintf("ALTER TABLE %s SET %s", t.sqlName(d), persistence))
		state = StateAlter
	}
	if d == DialectPostgres {
		set, reset := diffOptions(t.Options, newT.Options)
		if len(set) > 0 {
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s SET (%s)", t.sqlName(d), strings.Join(set, ", ")))
			state = StateAlter
		}
		if len(reset) > 0 {
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s RESET (%s)", t.sqlName(d), strings.Join(reset, ", ")))
			state = StateAlter
		}
	}
	return maxState(state, alterOwnerAndComment(d, t, commentTarget(d, t), &t.Object, &newT.Object, script))
}

// diffOptions returns the key=value options to set and the keys to reset
func diffOptions(oldOptions, newOptions []string) (set []string, reset []string) {
	oldByKey := optionsByKey(oldOptions)
	newByKey := optionsByKey(newOptions)
	for _, opt := range newOptions {
		key, _, _ := strings.Cut(opt, "=")
		if oldVal, ok := oldByKey[key]; !ok || oldVal != newByKey[key] {
			set = append(set, opt)
		}
	}
	for key := range oldByKey {
		if _, ok := newByKey[key]; !ok {
			reset = append(reset, key)
		}
	}
	sort.Strings(reset)
	return set, reset
}

func optionsByKey(options []string) map[string]string {
	byKey := make(map[string]string)
	for _, opt := range options {
		key, val, _ := strings.Cut(opt, "=")
		byKey[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return byKey
}

type Column struct {
	Object
	DataType  string
	Collation string
	Default   string
	NotNull   bool
	// Identity is ALWAYS or BY DEFAULT for identity columns
	Identity string
	// Generated is the expression of a stored generated column
	Generated string
	// Inherited columns come from a parent table or the partitioned table
	Inherited bool
}

func NewColumn(schemaName, tableName, name, dataType string) *Column {
	return &Column{
		Object: Object{
			Ref:       NewReference(TypeColumn, schemaName, tableName, name),
			ParentRef: NewReference(TypeTable, schemaName, tableName),
		},
		DataType: dataType,
	}
}

func (c *Column) sqlKind() string {
	return "COLUMN"
}

func (c *Column) sqlName(d Dialect) string {
	return d.QualifiedName(c.Ref.Path...)
}

func (c *Column) tableSQLName(d Dialect) string {
	return d.QualifiedName(c.ParentRef.Path...)
}

func (c *Column) IsGenerated() bool {
	return c.Generated != ""
}

func (c *Column) IsIdentity() bool {
	return c.Identity != ""
}

func (c *Column) GetDependencies() []Reference {
	return appendDependencies(c.DependsOn)
}

func (c *Column) Compare(other Statement) bool {
	return compareStatements(c, other)
}

func (c *Column) CanDrop() bool {
	return !c.Inherited
}

func (c *Column) Clone() Statement {
	cloned := *c
	cloned.Object = c.cloneObject()
	return &cloned
}

func (c *Column) definition(d Dialect) string {
	parts := []string{d.QuoteIdentifier(c.GetName())}
	switch d {
	case DialectMSSQL:
		if c.IsGenerated() {
			return fmt.Sprintf("%s AS (%s) PERSISTED", parts[0], c.Generated)
		}
		parts = append(parts, c.DataType)
		if c.Collation != "" {
			parts = append(parts, "COLLATE "+c.Collation)
		}
		if c.IsIdentity() {
			parts = append(parts, "IDENTITY(1,1)")
		}
		if c.Default != "" {
			parts = append(parts, "DEFAULT "+c.Default)
		}
		if c.NotNull {
			parts = append(parts, "NOT NULL")
		}
	case DialectClickHouse:
		parts = append(parts, c.DataType)
		if c.IsGenerated() {
			parts = append(parts, "MATERIALIZED "+c.Generated)
		} else if c.Default != "" {
			parts = append(parts, "DEFAULT "+c.Default)
		}
	default:
		parts = append(parts, c.DataType)
		if c.Collation != "" {
			parts = append(parts, "COLLATE "+d.QuoteIdentifier(c.Collation))
		}
		if c.IsGenerated() {
			parts = append(parts, fmt.Sprintf("GENERATED ALWAYS AS (%s) STORED", c.Generated))
		}
		if c.IsIdentity() {
			parts = append(parts, fmt.Sprintf("GENERATED %s AS IDENTITY", c.Identity))
		}
		if c.Default != "" {
			parts = append(parts, "DEFAULT "+c.Default)
		}
		if c.NotNull {
			parts = append(parts, "NOT NULL")
		}
	}
	return strings.Join(parts, " ")
}

func (c *Column) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	add := "ADD COLUMN"
	if d == DialectMSSQL {
		add = "ADD"
	}
	script.AddStatement(fmt.Sprintf("ALTER TABLE %s %s %s", c.tableSQLName(d), add, c.definition(d)))
	if c.Comment != "" {
		appendCommentSQL(d, commentTarget(d, c), c.Comment, script)
	}
}

func (c *Column) DropSQL(db *Database, script *Script, ifExists bool) {
	d := db.Dialect
	drop := "DROP COLUMN"
	if ifExists {
		drop += " IF EXISTS"
	}
	script.AddStatement(fmt.Sprintf("ALTER TABLE %s %s %s", c.tableSQLName(d), drop, d.QuoteIdentifier(c.GetName())))
}

// alterTypeClause changes the type and collation of the column to the ones of c
func (c *Column) alterTypeClause(d Dialect) string {
	name := d.QuoteIdentifier(c.GetName())
	switch d {
	case DialectMSSQL:
		clause := fmt.Sprintf("ALTER COLUMN %s %s", name, c.DataType)
		if c.Collation != "" {
			clause += " COLLATE " + c.Collation
		}
		if c.NotNull {
			return clause + " NOT NULL"
		}
		return clause + " NULL"
	case DialectClickHouse:
		return fmt.Sprintf("MODIFY COLUMN %s %s", name, c.DataType)
	default:
		clause := fmt.Sprintf("ALTER COLUMN %s TYPE %s", name, c.DataType)
		if c.Collation != "" {
			clause += " COLLATE " + d.QuoteIdentifier(c.Collation)
		}
		return clause
	}
}

// JoinableAlterClause returns the ALTER TABLE clause of a change that only touches the type or the collation.
// Such clauses of one table can be combined into a single ALTER TABLE statement.
func (c *Column) JoinableAlterClause(d Dialect, newState Statement) (string, bool) {
	newC, ok := newState.(*Column)
	if !ok || d == DialectMSSQL {
		return "", false
	}
	if c.DataType == newC.DataType && c.Collation == newC.Collation {
		return "", false
	}
	neutralized := *newC
	neutralized.DataType = c.DataType
	neutralized.Collation = c.Collation
	if !cmp.Equal(c, &neutralized, cmpopts.EquateEmpty()) {
		return "", false
	}
	return newC.alterTypeClause(d), true
}

func (c *Column) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newC, ok := newState.(*Column)
	if !ok || c.Generated != newC.Generated {
		return StateRecreate
	}
	d := db.Dialect
	table := c.tableSQLName(d)
	name := d.QuoteIdentifier(c.GetName())

	// Changes that cannot be rendered in the dialect force a recreation before anything is appended
	if d != DialectPostgres && c.Identity != newC.Identity {
		return StateRecreate
	}
	if d == DialectMSSQL && c.Default != "" && c.Default != newC.Default {
		// Defaults are named constraints in SQL Server
		return StateRecreate
	}

	var states []ObjectState
	if c.DataType != newC.DataType || c.Collation != newC.Collation {
		script.AddStatement(fmt.Sprintf("ALTER TABLE %s %s", table, newC.alterTypeClause(d)))
		states = append(states, StateAlterWithDep)
	}

	if c.Default != newC.Default {
		switch d {
		case DialectMSSQL:
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s ADD DEFAULT %s FOR %s", table, newC.Default, name))
		case DialectClickHouse:
			if newC.Default == "" {
				script.AddStatement(fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s REMOVE DEFAULT", table, name))
			} else {
				script.AddStatement(fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s DEFAULT %s", table, name, newC.Default))
			}
		default:
			if newC.Default == "" {
				script.AddStatement(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, name))
			} else {
				script.AddStatement(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, name, newC.Default))
			}
		}
		states = append(states, StateAlter)
	}

	if c.NotNull != newC.NotNull {
		switch d {
		case DialectMSSQL:
			if c.DataType == newC.DataType && c.Collation == newC.Collation {
				script.AddStatement(fmt.Sprintf("ALTER TABLE %s %s", table, newC.alterTypeClause(d)))
			}
			states = append(states, StateAlter)
		case DialectPostgres:
			action := "DROP NOT NULL"
			if newC.NotNull {
				action = "SET NOT NULL"
			}
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", table, name, action))
			states = append(states, StateAlter)
		}
	}

	if c.Identity != newC.Identity {
		switch {
		case c.Identity == "":
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ADD GENERATED %s AS IDENTITY", table, name, newC.Identity))
		case newC.Identity == "":
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP IDENTITY", table, name))
		default:
			script.AddStatement(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET GENERATED %s", table, name, newC.Identity))
		}
		states = append(states, StateAlter)
	}

	if c.Comment != newC.Comment && appendCommentSQL(d, commentTarget(d, c), newC.Comment, script) {
		states = append(states, StateAlter)
	}
	return maxState(states...)
}
