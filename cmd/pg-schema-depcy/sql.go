package main

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"

	"github.com/stripe/pg-schema-depcy/pkg/schema"
)

// openDb opens a connection pool with the driver of the dialect and pings it
func openDb(dialect schema.Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case schema.DialectPostgres:
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("could not parse connection string: %w", err)
		}
		return openDbWithPgxConfig(connConfig)
	case schema.DialectMSSQL:
		connPool, err := sql.Open("sqlserver", dsn)
		if err != nil {
			return nil, fmt.Errorf("could not parse connection string: %w", err)
		}
		return pingDb(connPool)
	default:
		return nil, fmt.Errorf("applying plans is not supported for the %q dialect", dialect)
	}
}

// openDbWithPgxConfig opens a database connection using the provided pgx.ConnConfig and pings it
func openDbWithPgxConfig(config *pgx.ConnConfig) (*sql.DB, error) {
	return pingDb(stdlib.OpenDB(*config))
}

func pingDb(connPool *sql.DB) (*sql.DB, error) {
	if err := connPool.Ping(); err != nil {
		connPool.Close()
		return nil, err
	}
	return connPool, nil
}
