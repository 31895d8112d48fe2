package depcy

import (
	"fmt"

	"github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/internal/set"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

type (
	resolverOptions struct {
		logger log.Logger
	}

	ResolverOpt func(*resolverOptions)
)

func WithResolverLogger(logger log.Logger) ResolverOpt {
	return func(o *resolverOptions) {
		o.logger = logger
	}
}

// Result is the outcome of a resolution
type Result struct {
	// Actions are ordered so that every statement is dropped after its dependents and created after its
	// dependencies
	Actions []*ActionContainer
	// ToRefresh are unchanged views of the old snapshot that are rebound to their dependencies rather
	// than rebuilt. Only dialects that support view refreshes fill it.
	ToRefresh []schema.Statement
}

type droppedEntry struct {
	stmt    schema.Statement
	starter schema.Statement
}

type resolver struct {
	oldGraph *DepcyGraph
	newGraph *DepcyGraph
	dialect  schema.Dialect
	logger   log.Logger

	actions    *set.OrderedSet[string, *ActionContainer]
	actionAdds int
	toRefresh  *set.OrderedSet[string, schema.Statement]

	// dropped holds the old statements that no longer exist once the script ran, in the order they were dropped
	dropped       *set.OrderedSet[string, droppedEntry]
	created       map[string]bool
	dropVisited   map[string]bool
	createVisited map[string]bool
	states        map[string]schema.ObjectState

	oldOwnedSequences  map[string][]schema.Statement
	newOwnedSequences  map[string][]schema.Statement
	newFunctionsByName map[string][]*schema.Function

	err error
}

// Resolve computes the actions that turn the snapshot of oldGraph into the snapshot of newGraph. The diffs are
// usually the output of CompareDatabases over the snapshots of the graphs.
func Resolve(oldGraph, newGraph *DepcyGraph, diffs []Diff, opts ...ResolverOpt) (*Result, error) {
	options := resolverOptions{logger: log.SimpleLogger()}
	for _, opt := range opts {
		opt(&options)
	}
	r := &resolver{
		oldGraph: oldGraph,
		newGraph: newGraph,
		dialect:  newGraph.Database().Dialect,
		logger:   options.logger,

		actions:   set.NewOrderedSet(func(a *ActionContainer) string { return a.Key() }),
		toRefresh: set.NewOrderedSet(func(s schema.Statement) string { return s.GetReference().Key() }),

		dropped:       set.NewOrderedSet(func(e droppedEntry) string { return e.stmt.GetReference().Key() }),
		created:       make(map[string]bool),
		dropVisited:   make(map[string]bool),
		createVisited: make(map[string]bool),
		states:        make(map[string]schema.ObjectState),

		oldOwnedSequences:  ownedSequences(oldGraph.Database()),
		newOwnedSequences:  ownedSequences(newGraph.Database()),
		newFunctionsByName: functionsByName(newGraph.Database()),
	}
	if err := r.resolve(diffs); err != nil {
		return nil, err
	}
	return &Result{
		Actions:   r.actions.Values(),
		ToRefresh: r.toRefresh.Values(),
	}, nil
}

// ownedSequences indexes the sequences by the key of the column and of the table that own them
func ownedSequences(db *schema.Database) map[string][]schema.Statement {
	owned := make(map[string][]schema.Statement)
	for _, s := range db.Statements() {
		seq, ok := s.(*schema.Sequence)
		if !ok || seq.OwnedBy == nil {
			continue
		}
		owned[seq.OwnedBy.Key()] = append(owned[seq.OwnedBy.Key()], seq)
		if table := seq.GetOwnerTable(); table != nil {
			owned[table.Key()] = append(owned[table.Key()], seq)
		}
	}
	return owned
}

func functionsByName(db *schema.Database) map[string][]*schema.Function {
	byName := make(map[string][]*schema.Function)
	for _, s := range db.Statements() {
		if f, ok := s.(*schema.Function); ok {
			name := f.SchemaName() + "." + f.BareName()
			byName[name] = append(byName[name], f)
		}
	}
	return byName
}

func keyOf(s schema.Statement) string {
	return s.GetReference().Key()
}

func (r *resolver) resolve(diffs []Diff) error {
	for _, d := range diffs {
		if d.Type() != DiffTypeRemoved {
			continue
		}
		oldStmt := r.oldGraph.Statement(keyOf(d.Old))
		if oldStmt == nil {
			return fmt.Errorf("removed statement %s is not in the old graph: %w", keyOf(d.Old), schema.ErrIllegalState)
		}
		r.addDropStatements(oldStmt, nil)
	}
	for _, d := range diffs {
		if d.Type() == DiffTypeRemoved {
			continue
		}
		newStmt := r.newGraph.Statement(keyOf(d.New))
		if newStmt == nil {
			return fmt.Errorf("statement %s is not in the new graph: %w", keyOf(d.New), schema.ErrIllegalState)
		}
		r.addCreateStatements(newStmt, nil)
	}
	r.recreateDrops()
	r.removeExtraActions()
	return r.err
}

// addDropStatements drops the statement after everything that depends on it
func (r *resolver) addDropStatements(oldStmt, starter schema.Statement) {
	key := keyOf(oldStmt)
	if r.dropVisited[key] {
		return
	}
	r.dropVisited[key] = true

	cause := oldStmt
	if oldStmt.GetType() == schema.TypeColumn && r.dropVisited[oldStmt.GetParent().Key()] {
		// The dependents of a column are dropped because of its table
		cause = r.oldGraph.Statement(oldStmt.GetParent().Key())
	}
	for _, depKey := range r.oldGraph.Dependents(key) {
		dependent := r.oldGraph.Statement(depKey)
		if r.keepsDependent(oldStmt, dependent) {
			continue
		}
		r.addDropStatements(dependent, cause)
	}
	r.tryToDrop(oldStmt, starter)

	if !schema.CanDropStatement(r.dialect, oldStmt) {
		// The indexes the statement relies on must still go when they are removed or rebuilt
		for _, depKey := range r.oldGraph.Dependencies(key) {
			dep := r.oldGraph.Statement(depKey)
			if dep.GetType() != schema.TypeIndex {
				continue
			}
			newDep := r.newGraph.Statement(depKey)
			if newDep == nil || r.state(dep, newDep) == schema.StateRecreate {
				r.addDropStatements(dep, oldStmt)
			}
		}
	}
}

// keepsDependent reports whether the dependent survives the drop of the statement
func (r *resolver) keepsDependent(dropped, dependent schema.Statement) bool {
	droppedKey := keyOf(dropped)
	dependentKey := keyOf(dependent)

	if target, ok := r.oldGraph.DerivedForeignKeyTarget(dependentKey); ok && target == droppedKey {
		newFK := r.newGraph.Statement(dependentKey)
		if newFK != nil && dependent.Compare(newFK) {
			if newTarget, ok := r.newGraph.DerivedForeignKeyTarget(dependentKey); ok && r.isStableKey(newTarget, droppedKey) {
				r.logger.Infof("foreign key %s is kept: it binds to %s instead of %s", dependentKey, newTarget, droppedKey)
				return true
			}
		}
	}

	if fn, ok := dropped.(*schema.Function); ok && dependent.GetType() == schema.TypeFunction {
		if overload := r.defaultsOnlyOverload(fn); overload != nil {
			r.logger.Infof("function %s is kept: its calls to %s resolve to %s", dependentKey, droppedKey, keyOf(overload))
			return true
		}
	}
	return false
}

// isStableKey reports whether a foreign key can bind to the unique key of the new snapshot while the dropped key
// goes away. The key must not be the dropped one and must not be dropped or rebuilt itself.
func (r *resolver) isStableKey(key, droppedKey string) bool {
	if key == droppedKey || r.dropped.HasKey(key) {
		return false
	}
	if oldKey := r.oldGraph.Statement(key); oldKey != nil {
		return r.state(oldKey, r.newGraph.Statement(key)) != schema.StateRecreate
	}
	return true
}

// defaultsOnlyOverload returns the function of the new snapshot that accepts every call of the removed
// function because it only adds arguments with defaults. The first match in the order of the snapshot wins.
func (r *resolver) defaultsOnlyOverload(oldFn *schema.Function) *schema.Function {
	if r.newGraph.HasStatement(keyOf(oldFn)) {
		return nil
	}
	for _, candidate := range r.newFunctionsByName[oldFn.SchemaName()+"."+oldFn.BareName()] {
		if oldFn.DiffersOnlyInDefaults(candidate) {
			return candidate
		}
	}
	return nil
}

func (r *resolver) tryToDrop(oldStmt, starter schema.Statement) {
	key := keyOf(oldStmt)
	if r.dropped.HasKey(key) {
		return
	}
	if !schema.CanDropStatement(r.dialect, oldStmt) {
		// Recorded so the script shows why the statement stays
		r.addAction(ActionDrop, oldStmt, nil, starter)
		return
	}
	if r.isDroppedImplicitly(oldStmt) {
		r.logger.Debugf("%s is dropped together with its owner", key)
		r.markDropped(oldStmt, starter)
		return
	}

	newStmt := r.newGraph.Statement(key)
	if newStmt != nil && starter != nil {
		state := r.state(oldStmt, newStmt)
		if oldStmt.GetType() == schema.TypeColumn && (state == schema.StateAlter || state == schema.StateAlterWithDep) {
			// The column no longer needs what is dropped once it is altered
			r.addAlter(oldStmt, newStmt, starter)
			return
		}
		if state == schema.StateNothing && r.canRefresh(oldStmt) {
			r.toRefresh.Add(oldStmt)
		}
	}
	r.markDropped(oldStmt, starter)
	r.addAction(ActionDrop, oldStmt, nil, starter)
}

// isDroppedImplicitly reports whether the statement goes away with the statement that owns it
func (r *resolver) isDroppedImplicitly(oldStmt schema.Statement) bool {
	switch s := oldStmt.(type) {
	case *schema.Column:
		return r.dropVisited[s.GetParent().Key()]
	case *schema.Sequence:
		if s.OwnedBy == nil {
			return false
		}
		columnKey := s.OwnedBy.Key()
		if r.dropVisited[columnKey] || r.dropVisited[s.GetOwnerTable().Key()] {
			return true
		}
		if column := r.oldGraph.Statement(columnKey); column != nil && !r.newGraph.HasStatement(columnKey) {
			r.addDropStatements(column, nil)
			return true
		}
	}
	return false
}

func (r *resolver) markDropped(oldStmt, starter schema.Statement) {
	key := keyOf(oldStmt)
	r.dropped.Add(droppedEntry{stmt: oldStmt, starter: starter})
	// The statement has to be visited again to be created
	delete(r.createVisited, key)

	switch oldStmt.GetType() {
	case schema.TypeTable, schema.TypeColumn:
		for _, seq := range r.oldOwnedSequences[key] {
			r.addDropStatements(seq, oldStmt)
		}
	}
}

// canRefresh reports whether the old view can be rebound in place instead of being dropped and created
func (r *resolver) canRefresh(oldStmt schema.Statement) bool {
	view, ok := oldStmt.(*schema.View)
	return ok && !view.Materialized && r.dialect.SupportsViewRefresh()
}

// addCreateStatements creates the statement after everything it depends on
func (r *resolver) addCreateStatements(newStmt, starter schema.Statement) {
	key := keyOf(newStmt)
	if r.createVisited[key] {
		return
	}
	r.createVisited[key] = true

	for _, depKey := range r.newGraph.Dependencies(key) {
		r.addCreateStatements(r.newGraph.Statement(depKey), newStmt)
	}
	r.tryToCreate(newStmt, starter)
}

func (r *resolver) tryToCreate(newStmt, starter schema.Statement) {
	key := keyOf(newStmt)
	if r.created[key] {
		return
	}
	oldStmt := r.oldGraph.Statement(key)
	if oldStmt == nil || r.dropped.HasKey(key) {
		r.createStatement(newStmt, starter)
		return
	}

	switch state := r.state(oldStmt, newStmt); state {
	case schema.StateNothing:
	case schema.StateRecreate:
		r.recreate(oldStmt, newStmt, starter)
	case schema.StateAlterWithDep:
		r.dropDependentsForAlter(oldStmt, make(map[string]bool))
		r.addAlter(oldStmt, newStmt, starter)
	case schema.StateAlter:
		// Columns reached by a cascade were already altered
		if !r.dropVisited[key] && r.hasDroppedDependency(oldStmt) {
			r.logger.Infof("%s is recreated since a statement it depends on is dropped", key)
			r.recreate(oldStmt, newStmt, starter)
			return
		}
		r.addAlter(oldStmt, newStmt, starter)
	default:
		r.err = fmt.Errorf("unexpected state %s of %s: %w", state, key, schema.ErrIllegalState)
	}
}

func (r *resolver) recreate(oldStmt, newStmt, starter schema.Statement) {
	r.addDropStatements(oldStmt, starter)
	if !r.dropped.HasKey(keyOf(oldStmt)) {
		r.logger.Warnf("%s cannot be dropped: it is not recreated", keyOf(oldStmt))
		return
	}
	r.createStatement(newStmt, starter)
}

// dropDependentsForAlter drops the dependents of a statement altered in place. Inherited columns follow their
// parent column, so their own dependents are dropped instead.
func (r *resolver) dropDependentsForAlter(oldStmt schema.Statement, visited map[string]bool) {
	key := keyOf(oldStmt)
	if visited[key] {
		return
	}
	visited[key] = true
	for _, depKey := range r.oldGraph.Dependents(key) {
		dependent := r.oldGraph.Statement(depKey)
		if column, ok := dependent.(*schema.Column); ok && column.Inherited {
			r.dropDependentsForAlter(column, visited)
			continue
		}
		if newDependent := r.newGraph.Statement(depKey); newDependent != nil && r.canRefresh(dependent) &&
			r.state(dependent, newDependent) == schema.StateNothing {
			r.toRefresh.Add(dependent)
			continue
		}
		r.addDropStatements(dependent, oldStmt)
	}
}

// hasDroppedDependency reports whether a statement the old statement depends on is dropped, in which case
// altering it in place is not possible
func (r *resolver) hasDroppedDependency(oldStmt schema.Statement) bool {
	for _, depKey := range r.oldGraph.Dependencies(keyOf(oldStmt)) {
		if !r.dropped.HasKey(depKey) {
			continue
		}
		if fn, ok := r.oldGraph.Statement(depKey).(*schema.Function); ok && r.defaultsOnlyOverload(fn) != nil {
			continue
		}
		return true
	}
	return false
}

func (r *resolver) addAlter(oldStmt, newStmt, starter schema.Statement) {
	key := keyOf(oldStmt)
	if r.dropped.HasKey(key) {
		return
	}
	if column, ok := oldStmt.(*schema.Column); ok {
		if column.Inherited {
			r.logger.Debugf("%s follows the column of its parent table", key)
			return
		}
		if r.dropped.HasKey(column.GetParent().Key()) {
			return
		}
	}
	r.addAction(ActionAlter, oldStmt, newStmt, starter)
}

func (r *resolver) createStatement(newStmt, starter schema.Statement) {
	key := keyOf(newStmt)
	if r.created[key] {
		return
	}
	r.created[key] = true

	switch s := newStmt.(type) {
	case *schema.Table:
		// The columns are part of the table, but what they need must exist before it
		for _, column := range r.newGraph.Database().GetColumns(s.GetReference()) {
			columnKey := keyOf(column)
			r.created[columnKey] = true
			for _, depKey := range r.newGraph.Dependencies(columnKey) {
				if depKey != key {
					r.addCreateStatements(r.newGraph.Statement(depKey), s)
				}
			}
			r.createOwnedSequences(columnKey, s)
		}
	case *schema.Column:
		if s.Inherited {
			r.logger.Debugf("%s is added with the column of its parent table", key)
			return
		}
		if r.created[s.GetParent().Key()] {
			return
		}
		r.createOwnedSequences(key, s)
	}
	r.addAction(ActionCreate, nil, newStmt, starter)
}

func (r *resolver) createOwnedSequences(columnKey string, owner schema.Statement) {
	for _, seq := range r.newOwnedSequences[columnKey] {
		r.addCreateStatements(seq, owner)
	}
}

// recreateDrops creates again the dropped statements that still exist in the new snapshot. Creating them can
// drop more statements, so it runs until no action is added.
func (r *resolver) recreateDrops() {
	for {
		before := r.actionAdds
		for _, entry := range r.dropped.Values() {
			key := keyOf(entry.stmt)
			newStmt := r.newGraph.Statement(key)
			if newStmt == nil || r.created[key] {
				continue
			}
			r.addCreateStatements(newStmt, entry.starter)
		}
		if r.actionAdds == before {
			return
		}
	}
}

// removeExtraActions removes the alters of recreated statements and the actions on columns whose table is
// created or dropped as a whole
func (r *resolver) removeExtraActions() {
	createdKeys := make(map[string]bool)
	wholeTables := make(map[string]bool)
	for _, a := range r.actions.Values() {
		key := keyOf(a.Statement())
		if a.Action == ActionCreate {
			createdKeys[key] = true
		}
		if a.Statement().GetType() == schema.TypeTable && a.Action != ActionAlter {
			wholeTables[key] = true
		}
	}
	for _, a := range r.actions.Values() {
		stmt := a.Statement()
		switch {
		case a.Action == ActionAlter && createdKeys[keyOf(stmt)]:
			r.actions.Remove(a)
		case stmt.GetType() == schema.TypeColumn && wholeTables[stmt.GetParent().Key()]:
			r.actions.Remove(a)
		}
	}
}

func (r *resolver) addAction(action Action, oldStmt, newStmt, starter schema.Statement) {
	a := &ActionContainer{Old: oldStmt, New: newStmt, Action: action, Starter: starter}
	if action == ActionCreate && starter != nil {
		a.Prerequisite = r.isPrerequisite(newStmt, starter)
	}
	if r.actions.Add(a) {
		r.actionAdds++
		r.logger.Debugf("resolved %s", a)
	}
}

// isPrerequisite reports whether the dependent needs the statement in the new snapshot. A table needs what its
// columns depend on and the sequences they own.
func (r *resolver) isPrerequisite(stmt, dependent schema.Statement) bool {
	key := keyOf(stmt)
	dependentKeys := []string{keyOf(dependent)}
	if dependent.GetType() == schema.TypeTable {
		for _, column := range r.newGraph.Database().GetColumns(dependent.GetReference()) {
			dependentKeys = append(dependentKeys, keyOf(column))
		}
	}
	for _, dependentKey := range dependentKeys {
		if r.newGraph.HasEdge(dependentKey, key) {
			return true
		}
	}
	seq, ok := stmt.(*schema.Sequence)
	if !ok || seq.OwnedBy == nil {
		return false
	}
	if seq.OwnedBy.Key() == keyOf(dependent) {
		return true
	}
	table := seq.GetOwnerTable()
	return table != nil && table.Key() == keyOf(dependent)
}

// state compares a statement with its twin. The comparison renders the alter SQL into a throwaway script.
func (r *resolver) state(oldStmt, newStmt schema.Statement) schema.ObjectState {
	key := keyOf(oldStmt)
	if state, ok := r.states[key]; ok {
		return state
	}
	state := oldStmt.AppendAlterSQL(r.oldGraph.Database(), newStmt, schema.NewScript())
	r.states[key] = state
	return state
}
