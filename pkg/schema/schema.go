package schema

import (
	"context"
	"fmt"

	internalschema "github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/pkg/diff"
)

type (
	// Database is a schema snapshot. Build one with LoadFile, LoadYAML or NewDatabase and pass it to
	// diff.DatabaseSchemaSource.
	Database   = internalschema.Database
	Statement  = internalschema.Statement
	Reference  = internalschema.Reference
	ObjectType = internalschema.ObjectType
	Dialect    = internalschema.Dialect
)

const (
	DialectPostgres   = internalschema.DialectPostgres
	DialectMSSQL      = internalschema.DialectMSSQL
	DialectClickHouse = internalschema.DialectClickHouse

	TypeSchema     = internalschema.TypeSchema
	TypeExtension  = internalschema.TypeExtension
	TypeType       = internalschema.TypeType
	TypeSequence   = internalschema.TypeSequence
	TypeTable      = internalschema.TypeTable
	TypeColumn     = internalschema.TypeColumn
	TypeConstraint = internalschema.TypeConstraint
	TypeIndex      = internalschema.TypeIndex
	TypeView       = internalschema.TypeView
	TypeFunction   = internalschema.TypeFunction
	TypeTrigger    = internalschema.TypeTrigger
)

var (
	NewDatabase     = internalschema.NewDatabase
	NewReference    = internalschema.NewReference
	ParseReference  = internalschema.ParseReference
	ParseObjectType = internalschema.ParseObjectType
	ParseDialect    = internalschema.ParseDialect
	LoadFile        = internalschema.LoadFile
	LoadYAML        = internalschema.LoadYAML
)

// GetSchemaHash gets the hash of the schema returned by the source. It can be compared against the hash in a
// migration plan to determine if the plan is still valid for the database it was generated for.
func GetSchemaHash(ctx context.Context, source diff.SchemaSource) (string, error) {
	db, err := source.GetSchema(ctx)
	if err != nil {
		return "", fmt.Errorf("getting schema: %w", err)
	}
	hash, err := db.Hash()
	if err != nil {
		return "", fmt.Errorf("hashing schema: %w", err)
	}

	return hash, nil
}
