package schema

import (
	"fmt"
	"strings"
)

type NamedSchema struct {
	Object
}

func NewNamedSchema(name string) *NamedSchema {
	return &NamedSchema{Object: Object{
		Ref:       NewReference(TypeSchema, name),
		ParentRef: Reference{Type: TypeDatabase},
	}}
}

// ClickHouse databases play the role of schemas
func (s *NamedSchema) sqlKind() string {
	return "SCHEMA"
}

func (s *NamedSchema) sqlName(d Dialect) string {
	return d.QuoteIdentifier(s.GetName())
}

func (s *NamedSchema) GetDependencies() []Reference {
	return appendDependencies(s.DependsOn)
}

func (s *NamedSchema) Compare(other Statement) bool {
	return compareStatements(s, other)
}

func (s *NamedSchema) Clone() Statement {
	return &NamedSchema{Object: s.cloneObject()}
}

// isDefault reports whether the schema is the one every database of the dialect comes with. It is never dropped.
func (s *NamedSchema) isDefault(d Dialect) bool {
	return s.GetName() == d.DefaultSchema()
}

func (s *NamedSchema) kindKeyword(d Dialect) string {
	if d == DialectClickHouse {
		return "DATABASE"
	}
	return "SCHEMA"
}

func (s *NamedSchema) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	script.AddStatement(fmt.Sprintf("CREATE %s %s", s.kindKeyword(d), s.sqlName(d)))
	appendCreateExtrasSQL(d, s, commentTarget(d, s), &s.Object, script)
}

func (s *NamedSchema) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, s.kindKeyword(db.Dialect), s.sqlName(db.Dialect), ifExists))
}

func (s *NamedSchema) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newS, ok := newState.(*NamedSchema)
	if !ok {
		return StateRecreate
	}
	return alterOwnerAndComment(db.Dialect, s, commentTarget(db.Dialect, s), &s.Object, &newS.Object, script)
}

// DefaultSchemaAware is implemented by statements whose droppability depends on the dialect
type DefaultSchemaAware interface {
	CanDropIn(d Dialect) bool
}

func (s *NamedSchema) CanDropIn(d Dialect) bool {
	return !s.isDefault(d)
}

// CanDropStatement reports whether s may be dropped in the dialect
func CanDropStatement(d Dialect, s Statement) bool {
	if !s.CanDrop() {
		return false
	}
	if aware, ok := s.(DefaultSchemaAware); ok {
		return aware.CanDropIn(d)
	}
	return true
}

type Extension struct {
	Object
	Schema  string
	Version string
}

func NewExtension(name, schemaName string) *Extension {
	return &Extension{
		Object: Object{
			Ref:       NewReference(TypeExtension, name),
			ParentRef: Reference{Type: TypeDatabase},
		},
		Schema: schemaName,
	}
}

func (e *Extension) sqlKind() string {
	return "EXTENSION"
}

func (e *Extension) sqlName(d Dialect) string {
	return d.QuoteIdentifier(e.GetName())
}

func (e *Extension) GetDependencies() []Reference {
	var schemaRef Reference
	if e.Schema != "" {
		schemaRef = NewReference(TypeSchema, e.Schema)
	}
	return appendDependencies(e.DependsOn, schemaRef)
}

func (e *Extension) Compare(other Statement) bool {
	return compareStatements(e, other)
}

func (e *Extension) Clone() Statement {
	c := *e
	c.Object = e.cloneObject()
	return &c
}

func (e *Extension) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	sb := strings.Builder{}
	sb.WriteString("CREATE EXTENSION ")
	sb.WriteString(e.sqlName(d))
	if e.Schema != "" {
		sb.WriteString(" WITH SCHEMA ")
		sb.WriteString(d.QuoteIdentifier(e.Schema))
	}
	if e.Version != "" {
		sb.WriteString(" VERSION ")
		sb.WriteString(d.QuoteLiteral(e.Version))
	}
	script.AddStatement(sb.String())
	if e.Comment != "" {
		appendCommentSQL(d, commentTarget(d, e), e.Comment, script)
	}
}

func (e *Extension) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, "EXTENSION", e.sqlName(db.Dialect), ifExists))
}

func (e *Extension) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newE, ok := newState.(*Extension)
	if !ok || e.Schema != newE.Schema {
		return StateRecreate
	}
	d := db.Dialect
	state := StateNothing
	if e.Version != newE.Version {
		if newE.Version == "" {
			script.AddStatement(fmt.Sprintf("ALTER EXTENSION %s UPDATE", e.sqlName(d)))
		} else {
			script.AddStatement(fmt.Sprintf("ALTER EXTENSION %s UPDATE TO %s", e.sqlName(d), d.QuoteLiteral(newE.Version)))
		}
		state = StateAlter
	}
	if e.Comment != newE.Comment && appendCommentSQL(d, commentTarget(d, e), newE.Comment, script) {
		state = StateAlter
	}
	return state
}

// Type is an enum type
type Type struct {
	Object
	Labels []string
}

func NewType(schemaName, name string, labels ...string) *Type {
	return &Type{
		Object: Object{
			Ref:       NewReference(TypeType, schemaName, name),
			ParentRef: NewReference(TypeSchema, schemaName),
		},
		Labels: labels,
	}
}

func (t *Type) sqlKind() string {
	return "TYPE"
}

func (t *Type) sqlName(d Dialect) string {
	return d.QualifiedName(t.schemaName(), t.GetName())
}

func (t *Type) GetDependencies() []Reference {
	return appendDependencies(t.DependsOn)
}

func (t *Type) Compare(other Statement) bool {
	return compareStatements(t, other)
}

func (t *Type) Clone() Statement {
	c := *t
	c.Object = t.cloneObject()
	c.Labels = cloneStrings(t.Labels)
	return &c
}

func (t *Type) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	var labels []string
	for _, l := range t.Labels {
		labels = append(labels, d.QuoteLiteral(l))
	}
	script.AddStatement(fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", t.sqlName(d), strings.Join(labels, ", ")))
	appendCreateExtrasSQL(d, t, commentTarget(d, t), &t.Object, script)
}

func (t *Type) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, "TYPE", t.sqlName(db.Dialect), ifExists))
}

func (t *Type) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newT, ok := newState.(*Type)
	if !ok {
		return StateRecreate
	}
	d := db.Dialect
	added, ok := insertedLabels(t.Labels, newT.Labels)
	if !ok {
		return StateRecreate
	}
	state := StateNothing
	for _, l := range added {
		script.AddStatement(fmt.Sprintf("ALTER TYPE %s ADD VALUE %s %s", t.sqlName(d), d.QuoteLiteral(l.label), l.position(d)))
		state = StateAlter
	}
	return maxState(state, alterOwnerAndComment(d, t, commentTarget(d, t), &t.Object, &newT.Object, script))
}

type insertedLabel struct {
	label string
	// before is set unless the label is appended after the last existing label
	before string
	after  string
}

func (l insertedLabel) position(d Dialect) string {
	if l.before != "" {
		return "BEFORE " + d.QuoteLiteral(l.before)
	}
	return "AFTER " + d.QuoteLiteral(l.after)
}

// insertedLabels returns the labels to add when newLabels only inserts labels into oldLabels,
// keeping the relative order of the existing ones
func insertedLabels(oldLabels, newLabels []string) ([]insertedLabel, bool) {
	if len(oldLabels) == 0 || len(newLabels) < len(oldLabels) {
		return nil, stringSlicesEqual(oldLabels, newLabels)
	}
	var (
		added []insertedLabel
		i     int
	)
	for j, l := range newLabels {
		if i < len(oldLabels) && oldLabels[i] == l {
			i++
			continue
		}
		if i < len(oldLabels) {
			added = append(added, insertedLabel{label: l, before: oldLabels[i]})
		} else {
			added = append(added, insertedLabel{label: l, after: newLabels[j-1]})
		}
	}
	if i != len(oldLabels) {
		return nil, false
	}
	return added, true
}

type Sequence struct {
	Object
	DataType  string
	Start     *int64
	Increment *int64
	MinValue  *int64
	MaxValue  *int64
	Cache     *int64
	Cycle     bool
	// OwnedBy is the column the sequence belongs to. The sequence is dropped together with it.
	OwnedBy *Reference
}

func NewSequence(schemaName, name string) *Sequence {
	return &Sequence{Object: Object{
		Ref:       NewReference(TypeSequence, schemaName, name),
		ParentRef: NewReference(TypeSchema, schemaName),
	}}
}

func (s *Sequence) sqlKind() string {
	return "SEQUENCE"
}

func (s *Sequence) sqlName(d Dialect) string {
	return d.QualifiedName(s.schemaName(), s.GetName())
}

// GetOwnerTable returns the table of the owning column
func (s *Sequence) GetOwnerTable() *Reference {
	if s.OwnedBy == nil || len(s.OwnedBy.Path) < 2 {
		return nil
	}
	ref := NewReference(TypeTable, s.OwnedBy.Path[:len(s.OwnedBy.Path)-1]...)
	return &ref
}

// GetDependencies does not include the owning column: the ownership is set once the column exists
func (s *Sequence) GetDependencies() []Reference {
	return appendDependencies(s.DependsOn)
}

func (s *Sequence) Compare(other Statement) bool {
	return compareStatements(s, other)
}

func (s *Sequence) Clone() Statement {
	c := *s
	c.Object = s.cloneObject()
	c.Start = cloneInt64Ptr(s.Start)
	c.Increment = cloneInt64Ptr(s.Increment)
	c.MinValue = cloneInt64Ptr(s.MinValue)
	c.MaxValue = cloneInt64Ptr(s.MaxValue)
	c.Cache = cloneInt64Ptr(s.Cache)
	c.OwnedBy = cloneReferencePtr(s.OwnedBy)
	return &c
}

func (s *Sequence) ownedByClause(d Dialect) string {
	if s.OwnedBy == nil {
		return "OWNED BY NONE"
	}
	return "OWNED BY " + d.QualifiedName(s.OwnedBy.Path...)
}

func int64Clause(keyword string, v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%s %d", keyword, *v)
}

func optionalInt64Equal(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Sequence) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	parts := []string{"CREATE SEQUENCE " + s.sqlName(d)}
	if s.DataType != "" {
		parts = append(parts, "AS "+s.DataType)
	}
	for _, clause := range []string{
		int64Clause("START WITH", s.Start),
		int64Clause("INCREMENT BY", s.Increment),
		int64Clause("MINVALUE", s.MinValue),
		int64Clause("MAXVALUE", s.MaxValue),
		int64Clause("CACHE", s.Cache),
	} {
		if clause != "" {
			parts = append(parts, clause)
		}
	}
	if s.Cycle {
		parts = append(parts, "CYCLE")
	}
	script.AddStatement(strings.Join(parts, " "))
	if s.OwnedBy != nil {
		script.AddStatementWithPhase(fmt.Sprintf("ALTER SEQUENCE %s %s", s.sqlName(d), s.ownedByClause(d)), PhaseEnd)
	}
	appendCreateExtrasSQL(d, s, commentTarget(d, s), &s.Object, script)
}

func (s *Sequence) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, "SEQUENCE", s.sqlName(db.Dialect), ifExists))
}

func (s *Sequence) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newS, ok := newState.(*Sequence)
	if !ok {
		return StateRecreate
	}
	d := db.Dialect
	var clauses []string
	if s.DataType != newS.DataType && newS.DataType != "" {
		clauses = append(clauses, "AS "+newS.DataType)
	}
	if !optionalInt64Equal(s.Start, newS.Start) && newS.Start != nil {
		clauses = append(clauses, int64Clause("START WITH", newS.Start))
	}
	if !optionalInt64Equal(s.Increment, newS.Increment) {
		if newS.Increment == nil {
			clauses = append(clauses, "INCREMENT BY 1")
		} else {
			clauses = append(clauses, int64Clause("INCREMENT BY", newS.Increment))
		}
	}
	if !optionalInt64Equal(s.MinValue, newS.MinValue) {
		if newS.MinValue == nil {
			clauses = append(clauses, "NO MINVALUE")
		} else {
			clauses = append(clauses, int64Clause("MINVALUE", newS.MinValue))
		}
	}
	if !optionalInt64Equal(s.MaxValue, newS.MaxValue) {
		if newS.MaxValue == nil {
			clauses = append(clauses, "NO MAXVALUE")
		} else {
			clauses = append(clauses, int64Clause("MAXVALUE", newS.MaxValue))
		}
	}
	if !optionalInt64Equal(s.Cache, newS.Cache) {
		if newS.Cache == nil {
			clauses = append(clauses, "CACHE 1")
		} else {
			clauses = append(clauses, int64Clause("CACHE", newS.Cache))
		}
	}
	if s.Cycle != newS.Cycle {
		if newS.Cycle {
			clauses = append(clauses, "CYCLE")
		} else {
			clauses = append(clauses, "NO CYCLE")
		}
	}

	state := StateNothing
	if len(clauses) > 0 {
		script.AddStatement(fmt.Sprintf("ALTER SEQUENCE %s %s", s.sqlName(d), strings.Join(clauses, " ")))
		state = StateAlter
	}
	if !referencePtrsEqual(s.OwnedBy, newS.OwnedBy) {
		script.AddStatementWithPhase(fmt.Sprintf("ALTER SEQUENCE %s %s", s.sqlName(d), newS.ownedByClause(d)), PhaseEnd)
		state = StateAlter
	}
	return maxState(state, alterOwnerAndComment(d, s, commentTarget(d, s), &s.Object, &newS.Object, script))
}
