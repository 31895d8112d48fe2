package diff

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/pg-schema-depcy/internal/depcy"
	"github.com/stripe/pg-schema-depcy/internal/pgidentifier"
	"github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

type (
	// joinableAlter buffers the column clauses of consecutive alters of one table so they are rendered as a
	// single ALTER TABLE statement
	joinableAlter struct {
		tableKey string
		table    string
		comments []string
		clauses  []string
		hazards  []MigrationHazard
	}

	movedTable struct {
		old      *schema.Table
		tempName string
	}

	// converter turns the resolved actions into the statements of a plan. Actions are rendered in order; the
	// converter only decides how each of them is rendered, never in which order.
	converter struct {
		oldDB   *schema.Database
		newDB   *schema.Database
		dialect schema.Dialect
		options *planOptions
		logger  log.Logger

		toRefresh []schema.Statement
		// refreshable holds the keys of toRefresh
		refreshable map[string]bool
		refreshed   map[string]bool

		// droppedTables and createdTables hold the keys of the tables with a rendered DROP or CREATE action
		droppedTables map[string]bool
		createdTables map[string]bool
		movedTables   map[string]movedTable
		moveOrder     []string

		joinable      *joinableAlter
		statements    []Statement
		endStatements []Statement
	}
)

func convertActions(oldDB, newDB *schema.Database, result *depcy.Result, options *planOptions) ([]Statement, error) {
	c := &converter{
		oldDB:   oldDB,
		newDB:   newDB,
		dialect: newDB.Dialect,
		options: options,
		logger:  options.logger,

		toRefresh:   result.ToRefresh,
		refreshable: make(map[string]bool),
		refreshed:   make(map[string]bool),

		droppedTables: make(map[string]bool),
		createdTables: make(map[string]bool),
		movedTables:   make(map[string]movedTable),
	}
	for _, s := range result.ToRefresh {
		c.refreshable[s.GetReference().Key()] = true
	}

	hidden := make([]bool, len(result.Actions))
	for i, a := range result.Actions {
		isHidden, err := c.isHidden(a)
		if err != nil {
			return nil, err
		}
		hidden[i] = isHidden
		if isHidden || a.Statement().GetType() != schema.TypeTable {
			continue
		}
		switch a.Action {
		case depcy.ActionDrop:
			c.droppedTables[a.Old.GetReference().Key()] = true
		case depcy.ActionCreate:
			c.createdTables[a.New.GetReference().Key()] = true
		}
	}

	for i, a := range result.Actions {
		if hidden[i] {
			c.addHiddenComment(a)
			continue
		}
		if err := c.convert(a); err != nil {
			return nil, fmt.Errorf("converting %s: %w", a, err)
		}
	}
	c.flushJoinable()

	if err := c.refreshRemainingViews(); err != nil {
		return nil, err
	}
	c.dropMovedTables()

	return append(c.statements, c.endStatements...), nil
}

func (c *converter) convert(a *depcy.ActionContainer) error {
	switch a.Action {
	case depcy.ActionDrop:
		return c.convertDrop(a)
	case depcy.ActionCreate:
		return c.convertCreate(a)
	case depcy.ActionAlter:
		return c.convertAlter(a)
	default:
		return fmt.Errorf("unknown action %s: %w", a.Action, schema.ErrIllegalState)
	}
}

// isHidden reports whether the action is filtered out of the plan. It fails when the type of the statement is not
// allowed in strict mode.
func (c *converter) isHidden(a *depcy.ActionContainer) (bool, error) {
	stmt := a.Statement()
	if a.Action == depcy.ActionDrop && !schema.CanDropStatement(c.dialect, a.Old) {
		return true, nil
	}

	if c.options.allowedTypes != nil {
		t := stmt.GetType()
		if t == schema.TypeColumn {
			t = schema.TypeTable
		}
		if !c.options.allowedTypes[t] {
			if c.options.stopNotAllowed {
				return false, &NotAllowedObjectError{Reference: stmt.GetReference(), Action: a.Action}
			}
			return true, nil
		}
	}

	if c.options.selection != nil && !c.isSelected(stmt) {
		return true, nil
	}
	return false, nil
}

// isSelected reports whether the statement, or the table of a column, was selected
func (c *converter) isSelected(stmt schema.Statement) bool {
	if c.options.selection[stmt.GetReference().Key()] {
		return true
	}
	return stmt.GetType() == schema.TypeColumn && c.options.selection[stmt.GetParent().Key()]
}

func (c *converter) addHiddenComment(a *depcy.ActionContainer) {
	ref := a.Statement().GetReference()
	c.logger.Debugf("hiding %s", a)
	c.flushJoinable()
	c.addComment(fmt.Sprintf("HIDDEN: Object %s of type %s (action %s)", ref.QualifiedName(), ref.Type, a.Action))
}

// depcyComment explains why an action is part of the plan when another statement caused it
func (c *converter) depcyComment(a *depcy.ActionContainer) (string, bool) {
	if a.Starter == nil {
		return "", false
	}
	stmt := a.Statement()
	ref := stmt.GetReference()
	starterRef := a.Starter.GetReference()
	if stmt.GetType() == schema.TypeColumn && stmt.GetParent().Key() == starterRef.Key() {
		return "", false
	}
	if table, ok := stmt.(*schema.Table); ok && table.IsPartition() && c.options.dataMovementMode {
		return "", false
	}

	if a.Action == depcy.ActionCreate && a.Prerequisite {
		return fmt.Sprintf("DEPCY: This %s %s is a dependency of %s: %s",
			ref.Type, ref.QualifiedName(), starterRef.Type, starterRef.QualifiedName()), true
	}
	return fmt.Sprintf("DEPCY: This %s %s depends on the %s: %s",
		ref.Type, ref.QualifiedName(), starterRef.Type, starterRef.QualifiedName()), true
}

func (c *converter) addDepcyComment(a *depcy.ActionContainer) {
	if comment, ok := c.depcyComment(a); ok {
		c.addComment(comment)
	}
}

func (c *converter) convertDrop(a *depcy.ActionContainer) error {
	old := a.Old
	key := old.GetReference().Key()
	if c.refreshable[key] {
		// The view is rebound by the matching CREATE or at the end of the plan
		return nil
	}
	if c.isDroppedWithTable(old) {
		c.logger.Debugf("%s is dropped with its table", key)
		return nil
	}

	c.flushJoinable()
	c.addDepcyComment(a)

	if table, ok := old.(*schema.Table); ok && c.options.dataMovementMode && c.createdTables[key] {
		return c.moveTable(table)
	}

	script := schema.NewScript()
	old.DropSQL(c.oldDB, script, false)
	c.addScript(script, dropHazards(old), timeoutFor(old, depcy.ActionDrop, c.options.statementTimeout))
	return nil
}

// isDroppedWithTable reports whether the statement is a sub-object of a table that is dropped by the plan.
// In data-movement mode the sub-objects of a moved table are dropped before the rename to free their names.
func (c *converter) isDroppedWithTable(old schema.Statement) bool {
	if old.GetType() == schema.TypeTable {
		return false
	}
	parent := old.GetParent()
	if parent.Type != schema.TypeTable || !c.droppedTables[parent.Key()] {
		return false
	}
	return !(c.options.dataMovementMode && c.createdTables[parent.Key()])
}

// moveTable renames the old table so its rows can be copied into the recreated table
func (c *converter) moveTable(table *schema.Table) error {
	ref := table.GetReference()
	key := ref.Key()
	schemaName := ref.Path[0]
	tempName, err := pgidentifier.TemporaryName(table.GetName(), key, c.dialect.MaxIdentifierLength())
	if err != nil {
		return fmt.Errorf("generating temporary name: %w", err)
	}

	script := schema.NewScript()
	if c.dialect == schema.DialectPostgres {
		// Owned sequences keep their names when the table is renamed and would clash with the recreated ones
		for _, seq := range c.ownedSequences(c.oldDB, ref) {
			seqTempName, err := pgidentifier.TemporaryName(seq.GetName(), seq.GetReference().Key(), c.dialect.MaxIdentifierLength())
			if err != nil {
				return fmt.Errorf("generating temporary name of %s: %w", seq.GetReference().Key(), err)
			}
			script.AddStatement(fmt.Sprintf("ALTER SEQUENCE %s RENAME TO %s",
				c.dialect.QualifiedName(seq.GetReference().Path...), c.dialect.QuoteIdentifier(seqTempName)))
		}
	}
	script.AddStatement(c.dialect.RenameTableSQL(schemaName, table.GetName(), tempName))
	c.addScript(script, []MigrationHazard{migrationHazardTableRenamed}, c.options.statementTimeout)

	c.movedTables[key] = movedTable{old: table, tempName: tempName}
	c.moveOrder = append(c.moveOrder, key)
	return nil
}

func (c *converter) convertCreate(a *depcy.ActionContainer) error {
	newStmt := a.New
	key := newStmt.GetReference().Key()

	c.flushJoinable()
	c.addDepcyComment(a)

	if c.refreshable[key] {
		return c.refreshView(key)
	}

	script := schema.NewScript()
	newStmt.CreateSQL(c.newDB, script)
	c.addScript(script, createHazards(newStmt), timeoutFor(newStmt, depcy.ActionCreate, c.options.statementTimeout))

	if table, ok := newStmt.(*schema.Table); ok {
		if moved, ok := c.movedTables[key]; ok {
			c.copyRows(moved, table)
		}
	}
	return nil
}

func (c *converter) refreshView(key string) error {
	for _, s := range c.toRefresh {
		if s.GetReference().Key() != key {
			continue
		}
		view, ok := s.(*schema.View)
		if !ok {
			return fmt.Errorf("%s cannot be refreshed: %w", key, schema.ErrIllegalState)
		}
		script := schema.NewScript()
		if err := view.RefreshSQL(c.newDB, script); err != nil {
			return fmt.Errorf("refreshing %s: %w", key, err)
		}
		c.addScript(script, nil, c.options.statementTimeout)
		c.refreshed[key] = true
		return nil
	}
	return fmt.Errorf("%s is not refreshable: %w", key, schema.ErrIllegalState)
}

// copyRows copies the rows of a moved table into the recreated one. Only the columns both tables store are copied.
func (c *converter) copyRows(moved movedTable, table *schema.Table) {
	ref := table.GetReference()
	oldColumns := make(map[string]*schema.Column)
	for _, col := range c.oldDB.GetColumns(moved.old.GetReference()) {
		oldColumns[col.GetName()] = col
	}

	var (
		names       []string
		hasIdentity bool
		toRestore   []*schema.Column
	)
	for _, col := range c.newDB.GetColumns(ref) {
		oldCol, ok := oldColumns[col.GetName()]
		if !ok || col.IsGenerated() || oldCol.IsGenerated() {
			continue
		}
		names = append(names, c.dialect.QuoteIdentifier(col.GetName()))
		if col.IsIdentity() {
			hasIdentity = true
			toRestore = append(toRestore, col)
		} else if len(c.sequencesOwnedBy(c.newDB, col.GetReference())) > 0 {
			toRestore = append(toRestore, col)
		}
	}
	if len(names) == 0 {
		return
	}

	target := c.dialect.QualifiedName(ref.Path...)
	source := c.dialect.QualifiedName(ref.Path[0], moved.tempName)
	columnList := strings.Join(names, ", ")

	script := schema.NewScript()
	switch c.dialect {
	case schema.DialectMSSQL:
		insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, columnList, columnList, source)
		if hasIdentity {
			script.AddStatement(fmt.Sprintf("SET IDENTITY_INSERT %s ON", target))
			script.AddStatement(insert)
			script.AddStatement(fmt.Sprintf("SET IDENTITY_INSERT %s OFF", target))
		} else {
			script.AddStatement(insert)
		}
	case schema.DialectClickHouse:
		script.AddStatement(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, columnList, columnList, source))
	default:
		overriding := ""
		if hasIdentity {
			overriding = " OVERRIDING SYSTEM VALUE"
		}
		script.AddStatement(fmt.Sprintf("INSERT INTO %s (%s)%s SELECT %s FROM ONLY %s",
			target, columnList, overriding, columnList, source))
		for _, col := range toRestore {
			c.appendRestoreSequenceSQL(target, col, script)
		}
	}
	c.addScript(script, []MigrationHazard{migrationHazardDataCopied},
		max(c.options.statementTimeout, statementTimeoutDataMovement))
}

// appendRestoreSequenceSQL moves the sequence behind a copied column past the copied values
func (c *converter) appendRestoreSequenceSQL(target string, col *schema.Column, script *schema.Script) {
	name := c.dialect.QuoteIdentifier(col.GetName())
	sequence := fmt.Sprintf("pg_get_serial_sequence(%s, %s)", c.dialect.QuoteLiteral(target), c.dialect.QuoteLiteral(col.GetName()))
	if !col.IsIdentity() {
		// The ownership of the new sequence is only set at the end of the plan
		seq := c.sequencesOwnedBy(c.newDB, col.GetReference())[0]
		sequence = c.dialect.QuoteLiteral(c.dialect.QualifiedName(seq.GetReference().Path...))
	}
	script.AddStatement(fmt.Sprintf("SELECT setval(%s, max(%s)) FROM %s", sequence, name, target))
}

func (c *converter) convertAlter(a *depcy.ActionContainer) error {
	oldStmt, newStmt := a.Old, a.New
	key := newStmt.GetReference().Key()

	if col, ok := oldStmt.(*schema.Column); ok {
		if clause, ok := col.JoinableAlterClause(c.dialect, newStmt); ok {
			c.bufferJoinable(a, col, clause)
			return nil
		}
	}

	c.flushJoinable()
	c.addDepcyComment(a)

	script := schema.NewScript()
	if c.options.dropBeforeCreate && oldStmt.CanDropBeforeCreate() {
		oldStmt.DropSQL(c.oldDB, script, true)
		newStmt.CreateSQL(c.newDB, script)
		c.addScript(script, alterHazards(c.dialect, oldStmt, newStmt), c.options.statementTimeout)
		return nil
	}

	if state := oldStmt.AppendAlterSQL(c.oldDB, newStmt, script); state == schema.StateRecreate {
		return fmt.Errorf("%s cannot be altered in place: %w", key, schema.ErrIllegalState)
	}
	c.addScript(script, alterHazards(c.dialect, oldStmt, newStmt), c.options.statementTimeout)
	return nil
}

func (c *converter) bufferJoinable(a *depcy.ActionContainer, col *schema.Column, clause string) {
	tableRef := col.GetParent()
	if c.joinable != nil && c.joinable.tableKey != tableRef.Key() {
		c.flushJoinable()
	}
	if c.joinable == nil {
		c.joinable = &joinableAlter{
			tableKey: tableRef.Key(),
			table:    c.dialect.QualifiedName(tableRef.Path...),
		}
	}
	if comment, ok := c.depcyComment(a); ok {
		c.joinable.comments = append(c.joinable.comments, comment)
	}
	c.joinable.clauses = append(c.joinable.clauses, clause)
	for _, h := range alterHazards(c.dialect, a.Old, a.New) {
		if !containsHazard(c.joinable.hazards, h) {
			c.joinable.hazards = append(c.joinable.hazards, h)
		}
	}
}

func (c *converter) flushJoinable() {
	if c.joinable == nil {
		return
	}
	j := c.joinable
	c.joinable = nil

	for _, comment := range j.comments {
		c.addComment(comment)
	}
	ddl := fmt.Sprintf("ALTER TABLE %s %s", j.table, j.clauses[0])
	if len(j.clauses) > 1 {
		ddl = fmt.Sprintf("ALTER TABLE %s\n\t%s", j.table, strings.Join(j.clauses, ",\n\t"))
	}
	c.statements = append(c.statements, c.newStatement(ddl, j.hazards, c.options.statementTimeout))
}

// refreshRemainingViews rebinds the views whose dependencies changed in place, in reverse order
func (c *converter) refreshRemainingViews() error {
	for i := len(c.toRefresh) - 1; i >= 0; i-- {
		key := c.toRefresh[i].GetReference().Key()
		if c.refreshed[key] {
			continue
		}
		if err := c.refreshView(key); err != nil {
			return err
		}
	}
	return nil
}

// dropMovedTables drops the renamed tables once their rows were copied. Partitions are dropped before the
// partitioned tables.
func (c *converter) dropMovedTables() {
	var partitions, tables []movedTable
	for i := len(c.moveOrder) - 1; i >= 0; i-- {
		moved := c.movedTables[c.moveOrder[i]]
		if moved.old.IsPartition() {
			partitions = append(partitions, moved)
		} else {
			tables = append(tables, moved)
		}
	}
	for _, moved := range append(partitions, tables...) {
		temp := schema.NewTable(moved.old.GetReference().Path[0], moved.tempName)
		script := schema.NewScript()
		temp.DropSQL(c.oldDB, script, false)
		c.addScript(script, []MigrationHazard{migrationHazardTemporaryTableDropped},
			max(c.options.statementTimeout, statementTimeoutTableDrop))
	}
}

func (c *converter) addComment(text string) {
	c.statements = append(c.statements, Statement{DDL: "-- " + text, IsComment: true})
}

// addScript adds the entries of the script. Statements of the end phase are deferred to the end of the plan.
func (c *converter) addScript(script *schema.Script, hazards []MigrationHazard, timeout time.Duration) {
	for _, entry := range script.Entries() {
		if entry.IsComment {
			c.statements = append(c.statements, Statement{DDL: entry.SQL, IsComment: true})
			continue
		}
		stmt := c.newStatement(entry.SQL, hazards, timeout)
		if entry.Phase == schema.PhaseEnd {
			c.endStatements = append(c.endStatements, stmt)
		} else {
			c.statements = append(c.statements, stmt)
		}
	}
}

func (c *converter) newStatement(ddl string, hazards []MigrationHazard, timeout time.Duration) Statement {
	return Statement{
		DDL:         ddl,
		Timeout:     timeout,
		LockTimeout: c.options.lockTimeout,
		Hazards:     hazards,
	}
}

func (c *converter) ownedSequences(db *schema.Database, tableRef schema.Reference) []*schema.Sequence {
	var seqs []*schema.Sequence
	for _, s := range db.Statements() {
		if seq, ok := s.(*schema.Sequence); ok {
			if owner := seq.GetOwnerTable(); owner != nil && owner.Key() == tableRef.Key() {
				seqs = append(seqs, seq)
			}
		}
	}
	return seqs
}

func (c *converter) sequencesOwnedBy(db *schema.Database, columnRef schema.Reference) []*schema.Sequence {
	var seqs []*schema.Sequence
	for _, s := range db.Statements() {
		if seq, ok := s.(*schema.Sequence); ok && seq.OwnedBy != nil && seq.OwnedBy.Key() == columnRef.Key() {
			seqs = append(seqs, seq)
		}
	}
	return seqs
}

func containsHazard(hazards []MigrationHazard, h MigrationHazard) bool {
	for _, existing := range hazards {
		if existing == h {
			return true
		}
	}
	return false
}
