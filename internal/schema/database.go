package schema

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// Database is one schema snapshot: a rooted tree of statements plus a lookup table from the
// qualified path+kind key to the statement. Statements are kept in insertion order.
type Database struct {
	Dialect Dialect

	statementsByKey map[string]Statement
	order           []string
	childrenByKey   map[string][]string
}

func NewDatabase(dialect Dialect) *Database {
	db := &Database{
		Dialect:         dialect,
		statementsByKey: make(map[string]Statement),
		childrenByKey:   make(map[string][]string),
	}
	root := &Root{Object: Object{Ref: Reference{Type: TypeDatabase}}}
	db.statementsByKey[root.Ref.Key()] = root
	db.order = append(db.order, root.Ref.Key())
	return db
}

// Add adds a statement. Its parent must already be in the database.
func (db *Database) Add(s Statement) error {
	key := s.GetReference().Key()
	if s.GetType() == TypeDatabase {
		return fmt.Errorf("the database root cannot be added: %w", ErrIllegalState)
	}
	if _, ok := db.statementsByKey[key]; ok {
		return fmt.Errorf("duplicate statement %s", key)
	}
	parentKey := s.GetParent().Key()
	if _, ok := db.statementsByKey[parentKey]; !ok {
		return fmt.Errorf("parent %s of %s does not exist", parentKey, key)
	}
	db.statementsByKey[key] = s
	db.order = append(db.order, key)
	db.childrenByKey[parentKey] = append(db.childrenByKey[parentKey], key)
	return nil
}

func (db *Database) Root() Statement {
	return db.statementsByKey[TypeDatabase.key()]
}

// GetStatement returns the statement with the reference or nil if the snapshot does not contain it
func (db *Database) GetStatement(ref Reference) Statement {
	return db.GetStatementByKey(ref.Key())
}

func (db *Database) GetStatementByKey(key string) Statement {
	s, ok := db.statementsByKey[key]
	if !ok {
		return nil
	}
	return s
}

func (db *Database) HasStatement(ref Reference) bool {
	_, ok := db.statementsByKey[ref.Key()]
	return ok
}

// GetTwin returns the statement of this snapshot with the same path and kind as s, or nil
func (db *Database) GetTwin(s Statement) Statement {
	if s == nil {
		return nil
	}
	return db.GetStatement(s.GetReference())
}

// GetParent returns the containing statement or nil for the root
func (db *Database) GetParent(s Statement) Statement {
	if s.GetType() == TypeDatabase {
		return nil
	}
	return db.GetStatement(s.GetParent())
}

// GetChildren returns the statements contained by ref in insertion order
func (db *Database) GetChildren(ref Reference) []Statement {
	var children []Statement
	for _, key := range db.childrenByKey[ref.Key()] {
		children = append(children, db.statementsByKey[key])
	}
	return children
}

// GetColumns returns the columns of a table in their declared order
func (db *Database) GetColumns(tableRef Reference) []*Column {
	var columns []*Column
	for _, child := range db.GetChildren(tableRef) {
		if c, ok := child.(*Column); ok {
			columns = append(columns, c)
		}
	}
	return columns
}

// Statements returns every statement, the root first, in insertion order
func (db *Database) Statements() []Statement {
	statements := make([]Statement, 0, len(db.order))
	for _, key := range db.order {
		statements = append(statements, db.statementsByKey[key])
	}
	return statements
}

func (db *Database) Len() int {
	return len(db.order)
}

// Copy returns a deep copy. Mutating the copy never affects the original.
func (db *Database) Copy() *Database {
	copied := &Database{
		Dialect:         db.Dialect,
		statementsByKey: make(map[string]Statement, len(db.statementsByKey)),
		order:           append([]string(nil), db.order...),
		childrenByKey:   make(map[string][]string, len(db.childrenByKey)),
	}
	for key, s := range db.statementsByKey {
		copied.statementsByKey[key] = s.Clone()
	}
	for key, children := range db.childrenByKey {
		copied.childrenByKey[key] = append([]string(nil), children...)
	}
	return copied
}

// Hash returns a structural hash of the snapshot. Two snapshots with the same statements added in the same
// order hash equally.
func (db *Database) Hash() (string, error) {
	hashVal, err := hashstructure.Hash(struct {
		Dialect    Dialect
		Statements []Statement
	}{
		Dialect:    db.Dialect,
		Statements: db.Statements(),
	}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hashing snapshot: %w", err)
	}
	return fmt.Sprintf("%x", hashVal), nil
}

func (t ObjectType) key() string {
	return Reference{Type: t}.Key()
}

// Root is the database itself. It has no parent and is never created, altered or dropped.
type Root struct {
	Object
}

func (r *Root) GetDependencies() []Reference {
	return nil
}

func (r *Root) Compare(other Statement) bool {
	return compareStatements(r, other)
}

func (r *Root) CreateSQL(*Database, *Script) {}

func (r *Root) DropSQL(*Database, *Script, bool) {}

func (r *Root) AppendAlterSQL(*Database, Statement, *Script) ObjectState {
	return StateNothing
}

func (r *Root) CanDrop() bool {
	return false
}

func (r *Root) Clone() Statement {
	return &Root{Object: r.cloneObject()}
}
