package schema

import (
	"fmt"
	"strings"
)

type ArgumentMode string

const (
	ArgumentModeIn       ArgumentMode = "IN"
	ArgumentModeOut      ArgumentMode = "OUT"
	ArgumentModeInOut    ArgumentMode = "INOUT"
	ArgumentModeVariadic ArgumentMode = "VARIADIC"
)

type Argument struct {
	Mode     ArgumentMode
	Name     string
	DataType string
	Default  string
}

// isInput reports whether the argument is part of the signature
func (a Argument) isInput() bool {
	return a.Mode != ArgumentModeOut
}

func (a Argument) definition(d Dialect) string {
	var parts []string
	if a.Mode != "" && a.Mode != ArgumentModeIn {
		parts = append(parts, string(a.Mode))
	}
	if a.Name != "" {
		if d == DialectMSSQL {
			parts = append(parts, "@"+a.Name)
		} else {
			parts = append(parts, d.QuoteIdentifier(a.Name))
		}
	}
	parts = append(parts, a.DataType)
	if a.Default != "" {
		if d == DialectMSSQL {
			parts = append(parts, "= "+a.Default)
		} else {
			parts = append(parts, "DEFAULT "+a.Default)
		}
	}
	return strings.Join(parts, " ")
}

type Volatility string

const (
	VolatilityVolatile  Volatility = "VOLATILE"
	VolatilityStable    Volatility = "STABLE"
	VolatilityImmutable Volatility = "IMMUTABLE"
)

// Function is a function or a procedure. The last path element is the signature, e.g., add(integer, integer),
// so overloads are distinct statements.
type Function struct {
	Object
	Arguments  []Argument
	Returns    string
	Language   string
	Body       string
	Volatility Volatility
	Procedure  bool
}

func NewFunction(schemaName, name string, args ...Argument) *Function {
	return &Function{
		Object: Object{
			Ref:       NewReference(TypeFunction, schemaName, Signature(name, inputTypes(args))),
			ParentRef: NewReference(TypeSchema, schemaName),
		},
		Arguments: args,
	}
}

// Signature renders a function name with its argument types, e.g., f(integer, text)
func Signature(name string, argTypes []string) string {
	return name + "(" + strings.Join(argTypes, ", ") + ")"
}

func inputTypes(args []Argument) []string {
	types := []string{}
	for _, a := range args {
		if a.isInput() {
			types = append(types, a.DataType)
		}
	}
	return types
}

// BareName is the function name without the signature
func (f *Function) BareName() string {
	name, _, _ := strings.Cut(f.GetName(), "(")
	return name
}

func (f *Function) SchemaName() string {
	return f.schemaName()
}

// ArgumentTypes returns the types of the signature
func (f *Function) ArgumentTypes() []string {
	return inputTypes(f.Arguments)
}

// RequiredArgumentTypes returns the signature types of the arguments without a default
func (f *Function) RequiredArgumentTypes() []string {
	types := []string{}
	for _, a := range f.Arguments {
		if a.isInput() && a.Default == "" {
			types = append(types, a.DataType)
		}
	}
	return types
}

func (f *Function) kindKeyword() string {
	if f.Procedure {
		return "PROCEDURE"
	}
	return "FUNCTION"
}

func (f *Function) sqlKind() string {
	return f.kindKeyword()
}

func (f *Function) sqlName(d Dialect) string {
	name := d.QualifiedName(f.schemaName(), f.BareName())
	if d != DialectPostgres {
		return name
	}
	return name + "(" + strings.Join(f.ArgumentTypes(), ", ") + ")"
}

func (f *Function) GetDependencies() []Reference {
	return appendDependencies(f.DependsOn)
}

func (f *Function) Compare(other Statement) bool {
	return compareStatements(f, other)
}

// CanDropBeforeCreate is true since functions hold no data
func (f *Function) CanDropBeforeCreate() bool {
	return true
}

func (f *Function) Clone() Statement {
	c := *f
	c.Object = f.cloneObject()
	if f.Arguments != nil {
		c.Arguments = append([]Argument(nil), f.Arguments...)
	}
	return &c
}

func (f *Function) argumentList(d Dialect) string {
	var defs []string
	for _, a := range f.Arguments {
		defs = append(defs, a.definition(d))
	}
	return strings.Join(defs, ", ")
}

func (f *Function) definitionSQL(d Dialect) string {
	name := d.QualifiedName(f.schemaName(), f.BareName())
	switch d {
	case DialectMSSQL:
		sb := strings.Builder{}
		sb.WriteString(fmt.Sprintf("CREATE OR ALTER %s %s(%s)", f.kindKeyword(), name, f.argumentList(d)))
		if !f.Procedure && f.Returns != "" {
			sb.WriteString("\nRETURNS " + f.Returns)
		}
		sb.WriteString("\nAS\n")
		sb.WriteString(f.Body)
		return sb.String()
	case DialectClickHouse:
		var params []string
		for _, a := range f.Arguments {
			params = append(params, a.Name)
		}
		return fmt.Sprintf("CREATE OR REPLACE FUNCTION %s AS (%s) -> %s", name, strings.Join(params, ", "), f.Body)
	default:
		sb := strings.Builder{}
		sb.WriteString(fmt.Sprintf("CREATE OR REPLACE %s %s(%s)", f.kindKeyword(), name, f.argumentList(d)))
		if !f.Procedure && f.Returns != "" {
			sb.WriteString("\n\tRETURNS " + f.Returns)
		}
		if f.Language != "" {
			sb.WriteString("\n\tLANGUAGE " + f.Language)
		}
		if f.Volatility != "" && !f.Procedure {
			sb.WriteString("\n\t" + string(f.Volatility))
		}
		sb.WriteString("\n\tAS " + dollarQuote(f.Body))
		return sb.String()
	}
}

// dollarQuote picks a tag that does not occur in the body
func dollarQuote(body string) string {
	tag := "$$"
	for i := 0; strings.Contains(body, tag); i++ {
		tag = fmt.Sprintf("$fn%d$", i)
	}
	return tag + body + tag
}

func (f *Function) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	script.AddStatement(f.definitionSQL(d))
	appendCreateExtrasSQL(d, f, commentTarget(d, f), &f.Object, script)
}

func (f *Function) DropSQL(db *Database, script *Script, ifExists bool) {
	script.AddStatement(dropSQL(db.Dialect, f.kindKeyword(), f.sqlName(db.Dialect), ifExists))
}

func (f *Function) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newF, ok := newState.(*Function)
	if !ok || f.Returns != newF.Returns || f.Procedure != newF.Procedure || len(f.Arguments) != len(newF.Arguments) {
		return StateRecreate
	}
	if db.Dialect == DialectClickHouse && f.Body != newF.Body {
		// Lambdas cannot be rebound while other objects use them
		return StateRecreate
	}
	defaultsAdded := false
	for i, a := range f.Arguments {
		newA := newF.Arguments[i]
		if a.Name != newA.Name || a.Mode != newA.Mode || a.DataType != newA.DataType {
			return StateRecreate
		}
		if a.Default != newA.Default {
			if a.Default != "" {
				// A changed or removed default may break existing calls
				return StateRecreate
			}
			defaultsAdded = true
		}
	}

	d := db.Dialect
	state := StateNothing
	if defaultsAdded || f.Body != newF.Body || f.Language != newF.Language || f.Volatility != newF.Volatility {
		script.AddStatement(newF.definitionSQL(d))
		state = StateAlter
	}
	return maxState(state, alterOwnerAndComment(d, f, commentTarget(d, f), &f.Object, &newF.Object, script))
}

// DiffersOnlyInDefaults reports whether other has the same name and the same required arguments as the full
// signature of f. Calls written against f still resolve to other.
func (f *Function) DiffersOnlyInDefaults(other *Function) bool {
	if other == nil || f.schemaName() != other.schemaName() || f.BareName() != other.BareName() {
		return false
	}
	if f.GetReference().Equals(other.GetReference()) {
		return false
	}
	return stringSlicesEqual(f.ArgumentTypes(), other.RequiredArgumentTypes())
}

type Trigger struct {
	Object
	// Timing is BEFORE, AFTER or INSTEAD OF
	Timing string
	// Events are INSERT, UPDATE, DELETE or TRUNCATE
	Events     []string
	ForEachRow bool
	When       string
	Function   Reference
}

func NewTrigger(schemaName, tableName, name string, function Reference) *Trigger {
	return &Trigger{
		Object: Object{
			Ref:       NewReference(TypeTrigger, schemaName, tableName, name),
			ParentRef: NewReference(TypeTable, schemaName, tableName),
		},
		Timing:     "AFTER",
		Events:     []string{"INSERT"},
		ForEachRow: true,
		Function:   function,
	}
}

func (t *Trigger) tableSQLName(d Dialect) string {
	return d.QualifiedName(t.ParentRef.Path...)
}

func (t *Trigger) commentTarget(d Dialect) string {
	return fmt.Sprintf("TRIGGER %s ON %s", d.QuoteIdentifier(t.GetName()), t.tableSQLName(d))
}

func (t *Trigger) GetDependencies() []Reference {
	return appendDependencies(t.DependsOn, t.Function)
}

func (t *Trigger) Compare(other Statement) bool {
	return compareStatements(t, other)
}

func (t *Trigger) Clone() Statement {
	c := *t
	c.Object = t.cloneObject()
	c.Events = cloneStrings(t.Events)
	c.Function = cloneReference(t.Function)
	return &c
}

func (t *Trigger) functionCall(d Dialect) string {
	path := t.Function.Path
	if len(path) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(path[len(path)-1], "(")
	return d.QualifiedName(append(cloneStrings(path[:len(path)-1]), name)...) + "()"
}

func (t *Trigger) CreateSQL(db *Database, script *Script) {
	d := db.Dialect
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("CREATE TRIGGER %s\n\t%s %s ON %s",
		d.QuoteIdentifier(t.GetName()), t.Timing, strings.Join(t.Events, " OR "), t.tableSQLName(d)))
	if t.ForEachRow {
		sb.WriteString("\n\tFOR EACH ROW")
	} else {
		sb.WriteString("\n\tFOR EACH STATEMENT")
	}
	if t.When != "" {
		sb.WriteString(fmt.Sprintf("\n\tWHEN (%s)", t.When))
	}
	sb.WriteString("\n\tEXECUTE FUNCTION ")
	sb.WriteString(t.functionCall(d))
	script.AddStatement(sb.String())
	if t.Comment != "" {
		appendCommentSQL(d, t.commentTarget(d), t.Comment, script)
	}
}

func (t *Trigger) DropSQL(db *Database, script *Script, ifExists bool) {
	d := db.Dialect
	if d == DialectMSSQL {
		script.AddStatement(dropSQL(d, "TRIGGER", d.QualifiedName(t.schemaName(), t.GetName()), ifExists))
		return
	}
	script.AddStatement(dropSQL(d, "TRIGGER", d.QuoteIdentifier(t.GetName()), ifExists) + " ON " + t.tableSQLName(d))
}

func (t *Trigger) AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState {
	newT, ok := newState.(*Trigger)
	if !ok {
		return StateRecreate
	}
	comparable := *newT
	comparable.Comment = t.Comment
	if !compareStatements(t, &comparable) {
		return StateRecreate
	}
	if t.Comment != newT.Comment && appendCommentSQL(db.Dialect, t.commentTarget(db.Dialect), newT.Comment, script) {
		return StateAlter
	}
	return StateNothing
}
