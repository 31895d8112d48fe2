package schema

import (
	"fmt"
)

type View struct {
	Object
	Query        string
	Materialized bool
}

func NewView(schemaName, name, query string) *View {
	return &View{
		Object: Object{
			Ref:       NewReference(TypeView, schemaName, name),
			ParentRef: NewReference(TypeSchema, schemaName),
		},
		Query: query,
	}
}

func (v *View) sqlKind() string {
	if v.Materialized {
		return "MATERIALIZED VIEW"
	}
	return "VIEW"
}

func (v *View) sqlName(d Dialect) string {
	return d.QualifiedName(v.schemaName(), v.GetName())
}

func (v *View) GetDependencies() []Reference {
	return appendDependencies(v.DependsOn)
}

func (v *View) Compare(other Statement) bool {
	return compareStatements(v, other)
}

// CanDropBeforeCreate is true since a view holds no data
func (v *View) CanDropBeforeCreate() bool {
	return true
}

func (v *View) Clone() Statement {
	c := *v
	c.Object = v.cloneObject()
	return &c
}

func (v *View) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	script.AddStatement(fmt.Sprintf("CREATE %s %s AS\n\t%s", v.sqlKind(), v.sqlName(d), v.Query))
	appendCreateExtrasSQL(d, v, commentTarget(d, v), &v.Object, script)
}

func (v *View) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, v.sqlKind(), v.sqlName(db.Dialect), ifExists))
}

func (v *View) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newV, ok := newState.(*View)
	if !ok || v.Query != newV.Query || v.Materialized != newV.Materialized {
		return StateRecreate
	}
	return alterOwnerAndComment(db.Dialect, v, commentTarget(db.Dialect, v), &v.Object, &newV.Object, script)
}

// RefreshSQL rebinds the view to the current definitions of the objects it selects from
func (v *View) RefreshSQL(db *Database, script *Script) error {
	sql, ok := db.Dialect.RefreshViewSQL(v.schemaName(), v.GetName())
	if !ok {
		return fmt.Errorf("refreshing views in dialect %q: %w", db.Dialect, ErrNotImplemented)
	}
	script.AddStatement(sql)
	return nil
}
