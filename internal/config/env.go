package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	// DSNEnvVar holds the connection string of the database apply migrates
	DSNEnvVar = "PG_SCHEMA_DEPCY_DSN"

	DefaultEnvFile = ".env"
)

// LookupDSN returns the connection string from the environment. The process environment takes priority over the
// env file, which is optional. An empty string is returned if neither defines it.
func LookupDSN(envFile string) (string, error) {
	if dsn, ok := os.LookupEnv(DSNEnvVar); ok {
		return dsn, nil
	}
	if envFile == "" {
		return "", nil
	}

	vals, err := godotenv.Read(envFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("reading env file %q: %w", envFile, err)
	}
	return vals[DSNEnvVar], nil
}
