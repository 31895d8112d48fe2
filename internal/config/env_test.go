package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupDSN(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", DSNEnvVar+"=postgres://from-file\nOTHER=1\n")

	t.Run("env file", func(t *testing.T) {
		unsetenv(t, DSNEnvVar)
		dsn, err := LookupDSN(envFile)
		require.NoError(t, err)
		assert.Equal(t, "postgres://from-file", dsn)
	})

	t.Run("environment takes priority", func(t *testing.T) {
		t.Setenv(DSNEnvVar, "postgres://from-env")
		dsn, err := LookupDSN(envFile)
		require.NoError(t, err)
		assert.Equal(t, "postgres://from-env", dsn)
	})

	t.Run("missing env file", func(t *testing.T) {
		unsetenv(t, DSNEnvVar)
		dsn, err := LookupDSN(filepath.Join(dir, "missing.env"))
		require.NoError(t, err)
		assert.Empty(t, dsn)
	})

	t.Run("no env file", func(t *testing.T) {
		unsetenv(t, DSNEnvVar)
		dsn, err := LookupDSN("")
		require.NoError(t, err)
		assert.Empty(t, dsn)
	})

	t.Run("env file is a directory", func(t *testing.T) {
		unsetenv(t, DSNEnvVar)
		_, err := LookupDSN(dir)
		assert.ErrorContains(t, err, "reading env file")
	})
}

// unsetenv removes the variable for the duration of the test
func unsetenv(t *testing.T, key string) {
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
