package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/stripe/pg-schema-depcy/internal/pgidentifier"
)

// Dialect selects identifier quoting and the few statements whose syntax differs between databases
type Dialect string

const (
	DialectPostgres   Dialect = "pg"
	DialectMSSQL      Dialect = "ms"
	DialectClickHouse Dialect = "ch"
)

func ParseDialect(val string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "", "pg", "postgres", "postgresql":
		return DialectPostgres, nil
	case "ms", "mssql", "sqlserver":
		return DialectMSSQL, nil
	case "ch", "clickhouse":
		return DialectClickHouse, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", val)
	}
}

var (
	clickHouseSimpleIdentifierRegex = regexp.MustCompile("^[a-zA-Z_][a-zA-Z0-9_]*$")

	// postgresReservedWords must be quoted even though they are simple identifiers
	postgresReservedWords = map[string]bool{
		"all": true, "analyse": true, "analyze": true, "and": true, "any": true, "array": true, "as": true,
		"asc": true, "both": true, "case": true, "cast": true, "check": true, "collate": true, "column": true,
		"constraint": true, "create": true, "default": true, "desc": true, "distinct": true, "do": true,
		"else": true, "end": true, "except": true, "false": true, "for": true, "foreign": true, "from": true,
		"grant": true, "group": true, "having": true, "in": true, "into": true, "leading": true, "limit": true,
		"not": true, "null": true, "offset": true, "on": true, "only": true, "or": true, "order": true,
		"primary": true, "references": true, "select": true, "table": true, "then": true, "to": true,
		"true": true, "union": true, "unique": true, "user": true, "using": true, "when": true, "where": true,
		"with": true,
	}
)

func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	case DialectClickHouse:
		if clickHouseSimpleIdentifierRegex.MatchString(name) {
			return name
		}
		return "`" + strings.ReplaceAll(strings.ReplaceAll(name, `\`, `\\`), "`", "\\`") + "`"
	default:
		if pgidentifier.IsSimpleIdentifier(name) && !postgresReservedWords[name] {
			return name
		}
		return pq.QuoteIdentifier(name)
	}
}

func (d Dialect) QuoteLiteral(val string) string {
	switch d {
	case DialectMSSQL:
		return "N'" + strings.ReplaceAll(val, "'", "''") + "'"
	case DialectClickHouse:
		return "'" + strings.ReplaceAll(strings.ReplaceAll(val, `\`, `\\`), "'", `\'`) + "'"
	default:
		return strings.TrimSpace(pq.QuoteLiteral(val))
	}
}

// QualifiedName quotes every element of the path and joins them with dots
func (d Dialect) QualifiedName(path ...string) string {
	quoted := make([]string, len(path))
	for i, p := range path {
		quoted[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(quoted, ".")
}

// DefaultSchema is the schema every database of the dialect has. It cannot be dropped.
func (d Dialect) DefaultSchema() string {
	switch d {
	case DialectMSSQL:
		return "dbo"
	case DialectClickHouse:
		return "default"
	default:
		return "public"
	}
}

// MaxIdentifierLength is the longest identifier the dialect keeps. Zero means unlimited.
func (d Dialect) MaxIdentifierLength() int {
	switch d {
	case DialectMSSQL:
		return 128
	case DialectClickHouse:
		return 0
	default:
		return pgidentifier.MaxIdentifierLength
	}
}

// RenameTableSQL renames a table within its schema
func (d Dialect) RenameTableSQL(schemaName, tableName, newName string) string {
	switch d {
	case DialectMSSQL:
		return fmt.Sprintf("EXEC sp_rename %s, %s",
			d.QuoteLiteral(d.QualifiedName(schemaName, tableName)), d.QuoteLiteral(newName))
	case DialectClickHouse:
		return fmt.Sprintf("RENAME TABLE %s TO %s",
			d.QualifiedName(schemaName, tableName), d.QualifiedName(schemaName, newName))
	default:
		return fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			d.QualifiedName(schemaName, tableName), d.QuoteIdentifier(newName))
	}
}

// SupportsViewRefresh reports whether unchanged views can be refreshed instead of being dropped and created
func (d Dialect) SupportsViewRefresh() bool {
	return d == DialectMSSQL
}

// RefreshViewSQL returns the statement that rebinds a view to the current definition of its dependencies
func (d Dialect) RefreshViewSQL(schemaName, viewName string) (string, bool) {
	if !d.SupportsViewRefresh() {
		return "", false
	}
	return fmt.Sprintf("EXEC sys.sp_refreshview %s", d.QuoteLiteral(d.QualifiedName(schemaName, viewName))), true
}
