package schema

import (
	"fmt"
	"strings"
)

// sqlNamer is implemented by kinds that can be the target of OWNER TO and COMMENT ON
type sqlNamer interface {
	sqlKind() string
	sqlName(d Dialect) string
}

func commentTarget(d Dialect, n sqlNamer) string {
	return n.sqlKind() + " " + n.sqlName(d)
}

// Owners and comments are only rendered for Postgres
func appendOwnerSQL(d Dialect, n sqlNamer, owner string, script *Script) bool {
	if d != DialectPostgres || owner == "" {
		return false
	}
	script.AddStatement(fmt.Sprintf("ALTER %s %s OWNER TO %s", n.sqlKind(), n.sqlName(d), d.QuoteIdentifier(owner)))
	return true
}

func appendCommentSQL(d Dialect, target, comment string, script *Script) bool {
	if d != DialectPostgres {
		return false
	}
	value := "NULL"
	if comment != "" {
		value = d.QuoteLiteral(comment)
	}
	script.AddStatement(fmt.Sprintf("COMMENT ON %s IS %s", target, value))
	return true
}

// appendCreateExtrasSQL renders the owner and comment of a newly created statement
func appendCreateExtrasSQL(d Dialect, n sqlNamer, target string, o *Object, script *Script) {
	appendOwnerSQL(d, n, o.Owner, script)
	if o.Comment != "" {
		appendCommentSQL(d, target, o.Comment, script)
	}
}

// alterOwnerAndComment renders owner and comment changes. Both are always alterable in place.
func alterOwnerAndComment(d Dialect, n sqlNamer, target string, oldObj, newObj *Object, script *Script) ObjectState {
	state := StateNothing
	if oldObj.Owner != newObj.Owner && appendOwnerSQL(d, n, newObj.Owner, script) {
		state = StateAlter
	}
	if oldObj.Comment != newObj.Comment && appendCommentSQL(d, target, newObj.Comment, script) {
		state = StateAlter
	}
	return state
}

func dropSQL(d Dialect, kind, name string, ifExists bool) string {
	sb := strings.Builder{}
	sb.WriteString("DROP ")
	sb.WriteString(kind)
	if ifExists {
		sb.WriteString(" IF EXISTS")
	}
	sb.WriteString(" ")
	sb.WriteString(name)
	return sb.String()
}

func quoteAll(d Dialect, names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdentifier(n)
	}
	return quoted
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func referencesEqual(a, b []Reference) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}

func referencePtrsEqual(a, b *Reference) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equals(*b)
}
