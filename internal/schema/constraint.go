package schema

import (
	"fmt"
	"strings"
)

type ConstraintType string

const (
	ConstraintTypePrimaryKey ConstraintType = "PRIMARY KEY"
	ConstraintTypeUnique     ConstraintType = "UNIQUE"
	ConstraintTypeCheck      ConstraintType = "CHECK"
	ConstraintTypeForeignKey ConstraintType = "FOREIGN KEY"
)

func ParseConstraintType(val string) (ConstraintType, error) {
	normalized := ConstraintType(strings.ToUpper(strings.Join(strings.Fields(val), " ")))
	switch normalized {
	case ConstraintTypePrimaryKey, ConstraintTypeUnique, ConstraintTypeCheck, ConstraintTypeForeignKey:
		return normalized, nil
	case "PK":
		return ConstraintTypePrimaryKey, nil
	case "FK":
		return ConstraintTypeForeignKey, nil
	default:
		return "", fmt.Errorf("unknown constraint type %q", val)
	}
}

type Constraint struct {
	Object
	ConstraintType ConstraintType
	Columns        []string
	// Expression is the predicate of a CHECK constraint
	Expression string
	RefTable   *Reference
	RefColumns []string
	OnDelete   string
	OnUpdate   string
	NotValid   bool
	Inherited  bool
}

func NewConstraint(schemaName, tableName, name string, constraintType ConstraintType, columns ...string) *Constraint {
	return &Constraint{
		Object: Object{
			Ref:       NewReference(TypeConstraint, schemaName, tableName, name),
			ParentRef: NewReference(TypeTable, schemaName, tableName),
		},
		ConstraintType: constraintType,
		Columns:        columns,
	}
}

func (c *Constraint) tableSQLName(d Dialect) string {
	return d.QualifiedName(c.ParentRef.Path...)
}

func (c *Constraint) commentTarget(d Dialect) string {
	return fmt.Sprintf("CONSTRAINT %s ON %s", d.QuoteIdentifier(c.GetName()), c.tableSQLName(d))
}

func (c *Constraint) IsUniqueKey() bool {
	return c.ConstraintType == ConstraintTypePrimaryKey || c.ConstraintType == ConstraintTypeUnique
}

func (c *Constraint) IsForeignKey() bool {
	return c.ConstraintType == ConstraintTypeForeignKey
}

func (c *Constraint) GetDependencies() []Reference {
	var refs []Reference
	for _, col := range c.Columns {
		refs = append(refs, NewReference(TypeColumn, c.schemaName(), c.tableName(), col))
	}
	if c.RefTable != nil {
		refs = append(refs, *c.RefTable)
		for _, col := range c.RefColumns {
			refs = append(refs, NewReference(TypeColumn, append(cloneStrings(c.RefTable.Path), col)...))
		}
	}
	return appendDependencies(c.DependsOn, refs...)
}

func (c *Constraint) Compare(other Statement) bool {
	return compareStatements(c, other)
}

func (c *Constraint) CanDrop() bool {
	return !c.Inherited
}

func (c *Constraint) Clone() Statement {
	cloned := *c
	cloned.Object = c.cloneObject()
	cloned.Columns = cloneStrings(c.Columns)
	cloned.RefTable = cloneReferencePtr(c.RefTable)
	cloned.RefColumns = cloneStrings(c.RefColumns)
	return &cloned
}

func (c *Constraint) definition(d Dialect) string {
	sb := strings.Builder{}
	switch c.ConstraintType {
	case ConstraintTypeCheck:
		sb.WriteString(fmt.Sprintf("CHECK (%s)", c.Expression))
	case ConstraintTypeForeignKey:
		sb.WriteString(fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s",
			strings.Join(quoteAll(d, c.Columns), ", "),
			d.QualifiedName(c.RefTable.Path...),
		))
		// Without referenced columns the primary key of the referenced table is used
		if len(c.RefColumns) > 0 {
			sb.WriteString(fmt.Sprintf(" (%s)", strings.Join(quoteAll(d, c.RefColumns), ", ")))
		}
		if c.OnDelete != "" {
			sb.WriteString(" ON DELETE " + c.OnDelete)
		}
		if c.OnUpdate != "" {
			sb.WriteString(" ON UPDATE " + c.OnUpdate)
		}
	default:
		sb.WriteString(fmt.Sprintf("%s (%s)", c.ConstraintType, strings.Join(quoteAll(d, c.Columns), ", ")))
	}
	if c.NotValid && d == DialectPostgres {
		sb.WriteString(" NOT VALID")
	}
	return sb.String()
}

func (c *Constraint) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	script.AddStatement(fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s",
		c.tableSQLName(d), d.QuoteIdentifier(c.GetName()), c.definition(d)))
	if c.Comment != "" {
		appendCommentSQL(d, c.commentTarget(d), c.Comment, script)
	}
}

func (c *Constraint) DropSQL(db *Database, script *Script, ifExists bool) {
	d := db.Dialect
	drop := "DROP CONSTRAINT"
	if ifExists {
		drop += " IF EXISTS"
	}
	script.AddStatement(fmt.Sprintf("ALTER TABLE %s %s %s", c.tableSQLName(d), drop, d.QuoteIdentifier(c.GetName())))
}

func (c *Constraint) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newC, ok := newState.(*Constraint)
	if !ok {
		return StateRecreate
	}
	d := db.Dialect

	// Everything but validation and the comment requires the constraint to be added again
	comparable := *newC
	comparable.NotValid = c.NotValid
	comparable.Comment = c.Comment
	if !compareStatements(c, &comparable) {
		return StateRecreate
	}
	if c.NotValid != newC.NotValid {
		if newC.NotValid || d != DialectPostgres {
			return StateRecreate
		}
	}

	state := StateNothing
	if c.NotValid && !newC.NotValid {
		script.AddStatement(fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s",
			c.tableSQLName(d), d.QuoteIdentifier(c.GetName())))
		state = StateAlter
	}
	if c.Comment != newC.Comment && appendCommentSQL(d, c.commentTarget(d), newC.Comment, script) {
		state = StateAlter
	}
	return state
}

type Index struct {
	Object
	// Columns are column names or expressions
	Columns []string
	Unique  bool
	Method  string
	Where   string
}

// NewIndex builds an index on a table. Indexes of materialized views set ParentRef to the view.
func NewIndex(schemaName, tableName, name string, columns ...string) *Index {
	return &Index{
		Object: Object{
			Ref:       NewReference(TypeIndex, schemaName, tableName, name),
			ParentRef: NewReference(TypeTable, schemaName, tableName),
		},
		Columns: columns,
	}
}

func (i *Index) sqlKind() string {
	return "INDEX"
}

// Index names are unique within the schema
func (i *Index) sqlName(d Dialect) string {
	return d.QualifiedName(i.schemaName(), i.GetName())
}

func (i *Index) GetDependencies() []Reference {
	var refs []Reference
	if i.ParentRef.Type != TypeTable {
		return appendDependencies(i.DependsOn)
	}
	for _, col := range i.Columns {
		if isPlainIdentifier(col) {
			refs = append(refs, NewReference(TypeColumn, i.schemaName(), i.tableName(), col))
		}
	}
	return appendDependencies(i.DependsOn, refs...)
}

func (i *Index) Compare(other Statement) bool {
	return compareStatements(i, other)
}

func (i *Index) Clone() Statement {
	cloned := *i
	cloned.Object = i.cloneObject()
	cloned.Columns = cloneStrings(i.Columns)
	return &cloned
}

func (i *Index) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	sb := strings.Builder{}
	sb.WriteString("CREATE ")
	if i.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")
	sb.WriteString(d.QuoteIdentifier(i.GetName()))
	sb.WriteString(" ON ")
	sb.WriteString(d.QualifiedName(i.ParentRef.Path...))
	if i.Method != "" && d == DialectPostgres {
		sb.WriteString(" USING ")
		sb.WriteString(i.Method)
	}
	var cols []string
	for _, col := range i.Columns {
		if isPlainIdentifier(col) {
			col = d.QuoteIdentifier(col)
		}
		cols = append(cols, col)
	}
	sb.WriteString(fmt.Sprintf(" (%s)", strings.Join(cols, ", ")))
	if i.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(i.Where)
	}
	script.AddStatement(sb.String())
	if i.Comment != "" {
		appendCommentSQL(d, commentTarget(d, i), i.Comment, script)
	}
}

func (i *Index) DropSQL(db *Database, script *Script, ifExists bool) {
	d := db.Dialect
	if d == DialectMSSQL {
		script.AddStatement(dropSQL(d, "INDEX", d.QuoteIdentifier(i.GetName()), ifExists) +
			" ON " + d.QualifiedName(i.ParentRef.Path...))
		return
	}
	script.AddStatement(dropSQL(d, "INDEX", i.sqlName(d), ifExists))
}

func (i *Index) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newI, ok := newState.(*Index)
	if !ok {
		return StateRecreate
	}
	comparable := *newI
	comparable.Comment = i.Comment
	if !compareStatements(i, &comparable) {
		return StateRecreate
	}
	if i.Comment != newI.Comment && appendCommentSQL(db.Dialect, commentTarget(db.Dialect, i), newI.Comment, script) {
		return StateAlter
	}
	return StateNothing
}

// isPlainIdentifier distinguishes column names from index expressions
func isPlainIdentifier(val string) bool {
	return val != "" && !strings.ContainsAny(val, "() ,:'\"")
}
