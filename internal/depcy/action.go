package depcy

import (
	"fmt"

	"github.com/stripe/pg-schema-depcy/internal/schema"
)

type Action int

const (
	ActionCreate Action = iota
	ActionAlter
	ActionDrop
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionAlter:
		return "ALTER"
	case ActionDrop:
		return "DROP"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ActionContainer is one resolved step. Old is nil for a CREATE and New is nil for a DROP.
// Starter is the statement whose change caused the action, or nil when the statement changed itself.
type ActionContainer struct {
	Old     schema.Statement
	New     schema.Statement
	Action  Action
	Starter schema.Statement
	// Prerequisite is set on a CREATE when Starter needs the statement in the new snapshot
	Prerequisite bool
}

// Statement returns the statement the action applies to: the new state for a CREATE or ALTER,
// the old one for a DROP
func (a *ActionContainer) Statement() schema.Statement {
	if a.New != nil {
		return a.New
	}
	return a.Old
}

func (a *ActionContainer) Key() string {
	return actionKey(a.Action, a.Old, a.New)
}

func (a *ActionContainer) String() string {
	s := fmt.Sprintf("%s %s", a.Action, a.Statement().GetReference().Key())
	if a.Starter != nil {
		s += fmt.Sprintf(" (starter %s)", a.Starter.GetReference().Key())
	}
	return s
}

func actionKey(action Action, oldStmt, newStmt schema.Statement) string {
	return fmt.Sprintf("%s|%s|%s", action, statementKey(oldStmt), statementKey(newStmt))
}

func statementKey(s schema.Statement) string {
	if s == nil {
		return ""
	}
	return s.GetReference().Key()
}
