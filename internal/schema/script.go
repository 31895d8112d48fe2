package schema

import "strings"

// Phase orders statements within a plan. PhaseEnd statements are deferred until every action was emitted,
// e.g., sequence ownership that needs the owning table to exist.
type Phase int

const (
	PhaseBegin Phase = iota
	PhaseMid
	PhaseEnd
)

type ScriptEntry struct {
	SQL       string
	IsComment bool
	Phase     Phase
}

// Script is an append-only log of SQL statements with a separate channel for comment lines
type Script struct {
	entries []ScriptEntry
}

func NewScript() *Script {
	return &Script{}
}

func (s *Script) AddStatement(sql string) {
	s.AddStatementWithPhase(sql, PhaseMid)
}

func (s *Script) AddStatementWithPhase(sql string, phase Phase) {
	s.entries = append(s.entries, ScriptEntry{SQL: sql, Phase: phase})
}

// AddComment adds a comment line. The text is prefixed with "-- ".
func (s *Script) AddComment(text string) {
	s.entries = append(s.entries, ScriptEntry{SQL: "-- " + text, IsComment: true, Phase: PhaseMid})
}

// Append moves the entries of other to the end of the script
func (s *Script) Append(other *Script) {
	s.entries = append(s.entries, other.entries...)
}

// StatementCount counts the entries that are not comments
func (s *Script) StatementCount() int {
	count := 0
	for _, e := range s.entries {
		if !e.IsComment {
			count++
		}
	}
	return count
}

func (s *Script) IsEmpty() bool {
	return len(s.entries) == 0
}

// Entries returns the entries ordered by phase. The order within a phase is the order they were added.
func (s *Script) Entries() []ScriptEntry {
	var ordered []ScriptEntry
	for _, phase := range []Phase{PhaseBegin, PhaseMid, PhaseEnd} {
		for _, e := range s.entries {
			if e.Phase == phase {
				ordered = append(ordered, e)
			}
		}
	}
	return ordered
}

// Statements returns the SQL of the non-comment entries ordered by phase
func (s *Script) Statements() []string {
	var stmts []string
	for _, e := range s.Entries() {
		if !e.IsComment {
			stmts = append(stmts, e.SQL)
		}
	}
	return stmts
}

// String renders the script: statements are terminated with a semicolon and separated by blank lines
func (s *Script) String() string {
	var parts []string
	for _, e := range s.Entries() {
		if e.IsComment {
			parts = append(parts, e.SQL)
		} else {
			parts = append(parts, e.SQL+";")
		}
	}
	return strings.Join(parts, "\n\n")
}
