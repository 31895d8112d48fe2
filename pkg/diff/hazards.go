package diff

import (
	"time"

	"github.com/stripe/pg-schema-depcy/internal/depcy"
	"github.com/stripe/pg-schema-depcy/internal/schema"
)

const (
	statementTimeoutDefault = 3 * time.Second
	lockTimeoutDefault      = statementTimeoutDefault

	// statementTimeoutIndexBuild is the statement timeout for index builds. It may take a while to build
	// the index on a large table.
	statementTimeoutIndexBuild = 20 * time.Minute
	// statementTimeoutTableDrop is the statement timeout for table drops. It may a take a while to delete the data
	statementTimeoutTableDrop = 20 * time.Minute
	// statementTimeoutDataMovement is the statement timeout for copying the rows of a recreated table
	statementTimeoutDataMovement = 20 * time.Minute
)

var (
	migrationHazardTableDropped = MigrationHazard{
		Type:    MigrationHazardTypeDeletesData,
		Message: "Deletes all rows in the table (and the table itself)",
	}
	migrationHazardColumnDropped = MigrationHazard{
		Type:    MigrationHazardTypeDeletesData,
		Message: "Deletes all values in the column",
	}
	migrationHazardSequenceDropped = MigrationHazard{
		Type:    MigrationHazardTypeDeletesData,
		Message: "By deleting a sequence, its value will be permanently lost",
	}
	migrationHazardIndexDroppedQueryPerf = MigrationHazard{
		Type: MigrationHazardTypeIndexDropped,
		Message: "Dropping this index means queries that use this index might perform worse because " +
			"they will no longer will be able to leverage it.",
	}
	migrationHazardIndexBuild = MigrationHazard{
		Type: MigrationHazardTypeIndexBuild,
		Message: "Building the index locks out writes to the table until it completes. It can take a while " +
			"on a large table.",
	}
	migrationHazardForeignKeyAdded = MigrationHazard{
		Type:    MigrationHazardTypeAcquiresShareLock,
		Message: "This will lock writes to the owning table and referenced table while the constraint is being added.",
	}
	migrationHazardColumnTypeChanged = MigrationHazard{
		Type:    MigrationHazardTypeAcquiresAccessExclusiveLock,
		Message: "Changing the type of a column may rewrite the table while holding an access exclusive lock",
	}
	migrationHazardColumnSetNotNull = MigrationHazard{
		Type:    MigrationHazardTypeAcquiresAccessExclusiveLock,
		Message: "Marking a column as not null requires a full table scan, which will lock out writes.",
	}
	migrationHazardTableRenamed = MigrationHazard{
		Type:    MigrationHazardTypeAcquiresAccessExclusiveLock,
		Message: "The table is renamed to keep its rows until they are copied to the recreated table",
	}
	migrationHazardDataCopied = MigrationHazard{
		Type:    MigrationHazardTypeImpactsDatabasePerformance,
		Message: "Copies every row of the table. This can take a while and puts load on the database.",
	}
	migrationHazardTemporaryTableDropped = MigrationHazard{
		Type:    MigrationHazardTypeDeletesData,
		Message: "Deletes the renamed copy of the table once its rows were moved",
	}
	migrationHazardFunctionCannotTrackDependencies = MigrationHazard{
		Type: MigrationHazardTypeHasUntrackableDependencies,
		Message: "Dependencies, i.e. other functions used in the function body, of non-sql functions cannot be tracked. " +
			"As a result, we cannot guarantee that function dependencies are ordered properly relative to this " +
			"statement. For adds, this means you need to ensure that all functions this function depends on are " +
			"created/altered before this statement.",
	}
	migrationHazardExtensionDroppedCannotTrackDependencies = MigrationHazard{
		Type:    MigrationHazardTypeHasUntrackableDependencies,
		Message: "This extension may be in use by tables, indexes, functions, triggers, etc.",
	}
)

func dropHazards(s schema.Statement) []MigrationHazard {
	switch s.GetType() {
	case schema.TypeTable:
		return []MigrationHazard{migrationHazardTableDropped}
	case schema.TypeColumn:
		return []MigrationHazard{migrationHazardColumnDropped}
	case schema.TypeSequence:
		return []MigrationHazard{migrationHazardSequenceDropped}
	case schema.TypeIndex:
		return []MigrationHazard{migrationHazardIndexDroppedQueryPerf}
	case schema.TypeExtension:
		return []MigrationHazard{migrationHazardExtensionDroppedCannotTrackDependencies}
	}
	return nil
}

func createHazards(s schema.Statement) []MigrationHazard {
	switch stmt := s.(type) {
	case *schema.Index:
		return []MigrationHazard{migrationHazardIndexBuild}
	case *schema.Constraint:
		if stmt.IsForeignKey() {
			return []MigrationHazard{migrationHazardForeignKeyAdded}
		}
	case *schema.Function:
		if !isSQLFunction(stmt) {
			return []MigrationHazard{migrationHazardFunctionCannotTrackDependencies}
		}
	}
	return nil
}

func alterHazards(d schema.Dialect, oldStmt, newStmt schema.Statement) []MigrationHazard {
	switch old := oldStmt.(type) {
	case *schema.Column:
		newCol, ok := newStmt.(*schema.Column)
		if !ok {
			return nil
		}
		var hazards []MigrationHazard
		if old.DataType != newCol.DataType || old.Collation != newCol.Collation {
			hazards = append(hazards, migrationHazardColumnTypeChanged)
		}
		if d == schema.DialectPostgres && !old.NotNull && newCol.NotNull {
			hazards = append(hazards, migrationHazardColumnSetNotNull)
		}
		return hazards
	case *schema.Function:
		if newFn, ok := newStmt.(*schema.Function); ok && !isSQLFunction(newFn) {
			return []MigrationHazard{migrationHazardFunctionCannotTrackDependencies}
		}
	}
	return nil
}

func isSQLFunction(f *schema.Function) bool {
	return f.Language == "" || f.Language == "sql"
}

// timeoutFor returns the statement timeout of an action's statements
func timeoutFor(s schema.Statement, action depcy.Action, base time.Duration) time.Duration {
	var long time.Duration
	switch {
	case s.GetType() == schema.TypeTable && action == depcy.ActionDrop:
		long = statementTimeoutTableDrop
	case s.GetType() == schema.TypeIndex && action == depcy.ActionCreate:
		long = statementTimeoutIndexBuild
	}
	return max(base, long)
}
