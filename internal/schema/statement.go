package schema

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")
	ErrIllegalState   = fmt.Errorf("illegal state")
)

type ObjectType string

const (
	TypeDatabase   ObjectType = "DATABASE"
	TypeSchema     ObjectType = "SCHEMA"
	TypeExtension  ObjectType = "EXTENSION"
	TypeType       ObjectType = "TYPE"
	TypeSequence   ObjectType = "SEQUENCE"
	TypeTable      ObjectType = "TABLE"
	TypeColumn     ObjectType = "COLUMN"
	TypeConstraint ObjectType = "CONSTRAINT"
	TypeIndex      ObjectType = "INDEX"
	TypeView       ObjectType = "VIEW"
	TypeFunction   ObjectType = "FUNCTION"
	TypeTrigger    ObjectType = "TRIGGER"
)

var objectTypes = []ObjectType{
	TypeDatabase, TypeSchema, TypeExtension, TypeType, TypeSequence, TypeTable, TypeColumn,
	TypeConstraint, TypeIndex, TypeView, TypeFunction, TypeTrigger,
}

func ParseObjectType(val string) (ObjectType, error) {
	upper := ObjectType(strings.ToUpper(strings.TrimSpace(val)))
	for _, t := range objectTypes {
		if t == upper {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown object type %q", val)
}

// ObjectState is the outcome of comparing an object with its twin
type ObjectState int

const (
	// StateNothing means no script is needed
	StateNothing ObjectState = iota
	// StateAlter means the object can be altered in place
	StateAlter
	// StateAlterWithDep means the object can be altered in place, but the objects depending on it must be rebuilt
	StateAlterWithDep
	// StateRecreate means the object must be dropped and created again
	StateRecreate
)

func (s ObjectState) String() string {
	switch s {
	case StateNothing:
		return "NOTHING"
	case StateAlter:
		return "ALTER"
	case StateAlterWithDep:
		return "ALTER_WITH_DEP"
	case StateRecreate:
		return "RECREATE"
	default:
		return fmt.Sprintf("ObjectState(%d)", int(s))
	}
}

func maxState(states ...ObjectState) ObjectState {
	result := StateNothing
	for _, s := range states {
		if s > result {
			result = s
		}
	}
	return result
}

// Reference identifies a statement by its kind and qualified path, e.g., COLUMN [public, t1, id].
// Function paths end with the signature: FUNCTION [public, f(integer, text)].
type Reference struct {
	Type ObjectType
	Path []string
}

func NewReference(t ObjectType, path ...string) Reference {
	return Reference{Type: t, Path: path}
}

// Key is the qualified path+kind key used to look statements up across snapshots
func (r Reference) Key() string {
	if len(r.Path) == 0 {
		return string(r.Type)
	}
	return string(r.Type) + " " + strings.Join(r.Path, ".")
}

func (r Reference) String() string {
	return r.Key()
}

func (r Reference) IsZero() bool {
	return r.Type == "" && len(r.Path) == 0
}

// Name is the last element of the path
func (r Reference) Name() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[len(r.Path)-1]
}

// QualifiedName is the dotted path without the kind
func (r Reference) QualifiedName() string {
	return strings.Join(r.Path, ".")
}

func (r Reference) Equals(other Reference) bool {
	return r.Key() == other.Key()
}

// ParseReference parses the output of Reference.Key, e.g., "COLUMN public.t1.id" or "FUNCTION public.f(integer)"
func ParseReference(val string) (Reference, error) {
	typeStr, pathStr, _ := strings.Cut(strings.TrimSpace(val), " ")
	t, err := ParseObjectType(typeStr)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing reference %q: %w", val, err)
	}
	if t == TypeDatabase {
		return Reference{Type: TypeDatabase}, nil
	}
	path, err := SplitPath(pathStr)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing reference %q: %w", val, err)
	}
	return Reference{Type: t, Path: path}, nil
}

// SplitPath splits a dotted path. Dots inside parentheses belong to a function signature and are kept,
// and the signature arguments are normalized to be separated by ", ".
func SplitPath(val string) ([]string, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil, fmt.Errorf("empty path")
	}
	var (
		path  []string
		depth int
		sb    strings.Builder
	)
	for _, r := range val {
		switch {
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == '.' && depth == 0:
			path = append(path, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteRune(r)
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses in %q", val)
	}
	path = append(path, sb.String())
	for i, p := range path {
		if p == "" {
			return nil, fmt.Errorf("empty path element in %q", val)
		}
		path[i] = normalizeSignature(p)
	}
	return path, nil
}

func normalizeSignature(val string) string {
	name, args, ok := strings.Cut(val, "(")
	if !ok {
		return val
	}
	args = strings.TrimSuffix(args, ")")
	var types []string
	for _, arg := range strings.Split(args, ",") {
		if arg = strings.TrimSpace(arg); arg != "" {
			types = append(types, arg)
		}
	}
	return strings.TrimSpace(name) + "(" + strings.Join(types, ", ") + ")"
}

// Statement is the capability every schema object exposes to the dependency graph, the resolver
// and the script converter. None of them depend on the concrete kinds.
type Statement interface {
	GetReference() Reference
	GetType() ObjectType
	GetName() string
	// GetParent returns the reference of the containing statement. It is zero for the database root.
	GetParent() Reference
	// GetDependencies returns the declared and field-implied references this statement requires to exist
	GetDependencies() []Reference
	// Compare is a shallow structural equality. Children are separate statements and are not compared.
	Compare(other Statement) bool
	CreateSQL(db *Database, script *Script)
	DropSQL(db *Database, script *Script, ifExists bool)
	// AppendAlterSQL appends the SQL that turns the statement into newState and reports how the change can
	// be applied. Nothing is appended when the result is StateRecreate.
	AppendAlterSQL(db *Database, newState Statement, script *Script) ObjectState
	CanDrop() bool
	CanDropBeforeCreate() bool
	Clone() Statement
}

// Object holds the attributes shared by every statement
type Object struct {
	Ref       Reference
	ParentRef Reference
	Owner     string
	Comment   string
	DependsOn []Reference
}

func (o *Object) GetReference() Reference {
	return o.Ref
}

func (o *Object) GetType() ObjectType {
	return o.Ref.Type
}

func (o *Object) GetName() string {
	return o.Ref.Name()
}

func (o *Object) GetParent() Reference {
	return o.ParentRef
}

func (o *Object) CanDrop() bool {
	return true
}

func (o *Object) CanDropBeforeCreate() bool {
	return false
}

func (o *Object) cloneObject() Object {
	c := *o
	c.Ref = cloneReference(o.Ref)
	c.ParentRef = cloneReference(o.ParentRef)
	c.DependsOn = cloneReferences(o.DependsOn)
	return c
}

// schemaName is the first element of the path of schema-scoped statements
func (o *Object) schemaName() string {
	if len(o.Ref.Path) == 0 {
		return ""
	}
	return o.Ref.Path[0]
}

// tableName is the second element of the path of table-scoped statements
func (o *Object) tableName() string {
	if len(o.Ref.Path) < 2 {
		return ""
	}
	return o.Ref.Path[1]
}

func cloneReference(r Reference) Reference {
	return Reference{Type: r.Type, Path: cloneStrings(r.Path)}
}

func cloneReferences(refs []Reference) []Reference {
	if refs == nil {
		return nil
	}
	cloned := make([]Reference, len(refs))
	for i, r := range refs {
		cloned[i] = cloneReference(r)
	}
	return cloned
}

func cloneReferencePtr(r *Reference) *Reference {
	if r == nil {
		return nil
	}
	c := cloneReference(*r)
	return &c
}

func cloneStrings(vals []string) []string {
	if vals == nil {
		return nil
	}
	return append([]string(nil), vals...)
}

func cloneInt64Ptr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// compareStatements is the structural equality shared by all kinds
func compareStatements(a, b Statement) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.GetType() != b.GetType() {
		return false
	}
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

func appendDependencies(deps []Reference, refs ...Reference) []Reference {
	out := make([]Reference, 0, len(deps)+len(refs))
	out = append(out, deps...)
	for _, r := range refs {
		if !r.IsZero() {
			out = append(out, r)
		}
	}
	return out
}
