package depcy

import (
	"github.com/stripe/pg-schema-depcy/internal/schema"
)

type DiffType int

const (
	DiffTypeRemoved DiffType = iota
	DiffTypeAdded
	DiffTypeChanged
)

func (t DiffType) String() string {
	switch t {
	case DiffTypeRemoved:
		return "REMOVED"
	case DiffTypeAdded:
		return "ADDED"
	default:
		return "CHANGED"
	}
}

// Diff is a statement that differs between two snapshots. Old is nil when the statement was added and New is
// nil when it was removed.
type Diff struct {
	Old schema.Statement
	New schema.Statement
}

func (d Diff) Type() DiffType {
	switch {
	case d.New == nil:
		return DiffTypeRemoved
	case d.Old == nil:
		return DiffTypeAdded
	default:
		return DiffTypeChanged
	}
}

// CompareDatabases lists the statements that differ. Removed statements come first in the order of the old
// snapshot, followed by the added and changed statements in the order of the new snapshot.
func CompareDatabases(oldDB, newDB *schema.Database) []Diff {
	var diffs []Diff
	for _, oldStmt := range oldDB.Statements() {
		if oldStmt.GetType() == schema.TypeDatabase {
			continue
		}
		if newDB.GetTwin(oldStmt) == nil {
			diffs = append(diffs, Diff{Old: oldStmt})
		}
	}
	for _, newStmt := range newDB.Statements() {
		if newStmt.GetType() == schema.TypeDatabase {
			continue
		}
		oldStmt := oldDB.GetTwin(newStmt)
		if oldStmt == nil {
			diffs = append(diffs, Diff{New: newStmt})
		} else if !oldStmt.Compare(newStmt) {
			diffs = append(diffs, Diff{Old: oldStmt, New: newStmt})
		}
	}
	return diffs
}
