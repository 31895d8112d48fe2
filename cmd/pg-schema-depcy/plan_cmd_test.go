package main

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/pg-schema-depcy/pkg/diff"
)

const (
	fromSchemaYAML = `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
`
	toSchemaYAML = `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
          - name: name
            type: text
`
)

func (suite *cmdTestSuite) TestPlanCmd() {
	for _, tc := range []struct {
		name        string
		args        []string
		dynamicArgs []dArgGenerator

		outputEquals      string
		outputContains    []string
		expectErrContains []string
	}{
		{
			name: "pretty output",
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			outputContains: []string{
				header("Generated plan"),
				"1. ALTER TABLE public.t1 ADD COLUMN name text;\n\t-- Statement Timeout: 3s",
				"-- Current schema hash: ",
			},
		},
		{
			name: "sql output",
			args: []string{"--output-format", "sql"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			outputEquals: "ALTER TABLE public.t1 ADD COLUMN name text;\n",
		},
		{
			name: "debug output",
			args: []string{"--output-format", "debug"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			outputContains: []string{"diff.Plan{", `DDL:`, `"ALTER TABLE public.t1 ADD COLUMN name text"`},
		},
		{
			name: "schema dirs",
			args: []string{"--output-format", "sql"},
			dynamicArgs: []dArgGenerator{
				tempSchemaDirDArg("from", []string{fromSchemaYAML}),
				tempSchemaDirDArg("to", []string{toSchemaYAML, `
schemas:
  - name: public
    views:
      - name: v1
        query: SELECT name FROM t1
        depends_on: ["COLUMN public.t1.name"]
`}),
			},
			outputContains: []string{
				"ALTER TABLE public.t1 ADD COLUMN name text;",
				"CREATE VIEW public.v1 AS\n\tSELECT name FROM t1;",
			},
		},
		{
			name: "no changes",
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", fromSchemaYAML),
			},
			outputEquals: "Schema matches expected. No plan generated\n",
		},
		{
			name: "settings and modifiers",
			args: []string{
				"--settings", "statement_timeout=10s",
				"-s", "0 5s:SELECT 1",
			},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			outputContains: []string{
				"1. SELECT 1;\n\t-- Statement Timeout: 5s\n\t-- Hazard IS_USER_GENERATED: This statement is user-generated",
				"2. ALTER TABLE public.t1 ADD COLUMN name text;\n\t-- Statement Timeout: 10s",
			},
		},
		{
			name: "hidden types",
			args: []string{"--settings", "allowed_types=VIEW", "--output-format", "sql"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			outputEquals: "-- HIDDEN: Object public.t1.name of type COLUMN (action CREATE)\n",
		},
		{
			name: "not allowed types stop the plan",
			args: []string{"--settings", "allowed_types=VIEW stop_not_allowed=true"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			expectErrContains: []string{"is not allowed"},
		},
		{
			name: "settings file",
			args: []string{"--output-format", "sql"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
				func(t *testing.T) []string {
					return []string{"--config", tempFile(t, "settings.toml", "[plan]\nselection = [\"VIEW public.v1\"]\n")}
				},
			},
			outputEquals: "-- HIDDEN: Object public.t1.name of type COLUMN (action CREATE)\n",
		},
		{
			name: "invalid settings",
			args: []string{"--settings", "unknown_setting=1"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			expectErrContains: []string{`unknown setting "unknown_setting"`},
		},
		{
			name: "invalid output format",
			args: []string{"--output-format", "xml"},
			dynamicArgs: []dArgGenerator{
				tempSchemaFileDArg("from", fromSchemaYAML),
				tempSchemaFileDArg("to", toSchemaYAML),
			},
			expectErrContains: []string{`unknown output format "xml"`},
		},
		{
			name:              "missing schema",
			args:              []string{"--from", "does-not-exist.yaml"},
			dynamicArgs:       []dArgGenerator{tempSchemaFileDArg("to", toSchemaYAML)},
			expectErrContains: []string{"reading --from"},
		},
		{
			name:              "no to schema provided",
			dynamicArgs:       []dArgGenerator{tempSchemaFileDArg("from", fromSchemaYAML)},
			expectErrContains: []string{`required flag(s) "to" not set`},
		},
	} {
		suite.Run(tc.name, func() {
			suite.runCmdWithAssertions(runCmdWithAssertionsParams{
				args:              append([]string{"plan"}, tc.args...),
				dynamicArgs:       tc.dynamicArgs,
				outputEquals:      tc.outputEquals,
				outputContains:    tc.outputContains,
				expectErrContains: tc.expectErrContains,
			})
		})
	}
}

func TestParseStatementTimeoutModifierStr(t *testing.T) {
	for _, tc := range []struct {
		opt string `explicit:"always"`

		expectedRegexStr    string
		expectedTimeout     time.Duration
		expectedErrContains string
	}{
		{
			opt:              "normal duration=5m",
			expectedRegexStr: "normal duration",
			expectedTimeout:  5 * time.Minute,
		},
		{
			opt:              "some regex with a duration ending in a period=5.h",
			expectedRegexStr: "some regex with a duration ending in a period",
			expectedTimeout:  5 * time.Hour,
		},
		{
			opt:              "has a valid opt in the regex something=5.5m in the regex =15s",
			expectedRegexStr: "has a valid opt in the regex something=5.5m in the regex ",
			expectedTimeout:  15 * time.Second,
		},
		{
			opt:                 "=5m",
			expectedErrContains: "could not parse regex and duration from arg",
		},
		{
			opt:                 "someregex;15m",
			expectedErrContains: "could not parse regex and duration from arg",
		},
		{
			opt:                 "some(regex=15m",
			expectedErrContains: "regex could not be compiled",
		},
		{
			opt:                 "someregex=invalid duration5s",
			expectedErrContains: "duration could not be parsed",
		},
	} {
		t.Run(tc.opt, func(t *testing.T) {
			modifier, err := parseStatementTimeoutModifierStr(tc.opt)
			if len(tc.expectedErrContains) > 0 {
				assert.ErrorContains(t, err, tc.expectedErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedRegexStr, modifier.regex.String())
			assert.Equal(t, tc.expectedTimeout, modifier.timeout)
		})
	}
}

func TestParseInsertStatementStr(t *testing.T) {
	for _, tc := range []struct {
		opt                 string `explicit:"always"`
		expectedInsertStmt  insertStatement
		expectedErrContains string
	}{
		{
			opt: "1 0h5.1m:SELECT * FROM :TABLE:0_5m:something",
			expectedInsertStmt: insertStatement{
				index:   1,
				ddl:     "SELECT * FROM :TABLE:0_5m:something",
				timeout: 5*time.Minute + 6*time.Second,
			},
		},
		{
			opt: "0 100ms:ANALYZE public.t1;",
			expectedInsertStmt: insertStatement{
				index:   0,
				ddl:     "ANALYZE public.t1",
				timeout: 100 * time.Millisecond,
			},
		},
		{
			opt:                 " 5s:No index",
			expectedErrContains: "could not parse",
		},
		{
			opt:                 "0 5g:Invalid duration",
			expectedErrContains: "duration could not be parsed",
		},
		{
			opt:                 "0 5s:",
			expectedErrContains: "could not parse",
		},
	} {
		t.Run(tc.opt, func(t *testing.T) {
			insertStatement, err := parseInsertStatementStr(tc.opt)
			if len(tc.expectedErrContains) > 0 {
				assert.ErrorContains(t, err, tc.expectedErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedInsertStmt, insertStatement)
		})
	}
}

func TestApplyPlanModifiers(t *testing.T) {
	plan := diff.Plan{
		Statements: []diff.Statement{
			{DDL: "-- DEPCY: This VIEW public.v1 depends on the COLUMN: public.t1.c", IsComment: true},
			{DDL: "DROP VIEW public.v1", Timeout: 3 * time.Second, LockTimeout: 3 * time.Second},
			{DDL: "ALTER TABLE public.t1 ALTER COLUMN c TYPE bigint", Timeout: 3 * time.Second, LockTimeout: 3 * time.Second},
		},
		CurrentSchemaHash: "some-hash",
	}

	modified, err := applyPlanModifiers(plan, planConfig{
		statementTimeoutModifiers: []statementTimeoutModifier{
			{regex: regexp.MustCompile("ALTER COLUMN"), timeout: time.Minute},
			{regex: regexp.MustCompile("TYPE bigint"), timeout: time.Hour},
		},
		insertStatements: []insertStatement{
			{index: 3, ddl: "ANALYZE public.t1", timeout: time.Second},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, diff.Plan{
		Statements: []diff.Statement{
			{DDL: "-- DEPCY: This VIEW public.v1 depends on the COLUMN: public.t1.c", IsComment: true},
			{DDL: "DROP VIEW public.v1", Timeout: 3 * time.Second, LockTimeout: 3 * time.Second},
			{DDL: "ALTER TABLE public.t1 ALTER COLUMN c TYPE bigint", Timeout: time.Hour, LockTimeout: 3 * time.Second},
			{
				DDL:         "ANALYZE public.t1",
				Timeout:     time.Second,
				LockTimeout: time.Second,
				Hazards: []diff.MigrationHazard{{
					Type:    diff.MigrationHazardTypeIsUserGenerated,
					Message: "This statement is user-generated",
				}},
			},
		},
		CurrentSchemaHash: "some-hash",
	}, modified)

	_, err = applyPlanModifiers(plan, planConfig{
		insertStatements: []insertStatement{{index: 5, ddl: "SELECT 1", timeout: time.Second}},
	})
	assert.ErrorContains(t, err, "inserting statement")
}

func TestPlanToPrettyS(t *testing.T) {
	plan := diff.Plan{
		Statements: []diff.Statement{
			{DDL: "-- DEPCY: This VIEW public.v1 depends on the TABLE: public.t1", IsComment: true},
			{DDL: "DROP VIEW public.v1", Timeout: 3 * time.Second, LockTimeout: 3 * time.Second},
			{
				DDL:         "DROP TABLE public.t1",
				Timeout:     20 * time.Minute,
				LockTimeout: 3 * time.Second,
				Hazards: []diff.MigrationHazard{
					{Type: diff.MigrationHazardTypeDeletesData, Message: "Deletes all rows in the table (and the table itself)"},
					{Type: diff.MigrationHazardTypeIsUserGenerated},
				},
			},
		},
	}
	assert.Equal(t, "1. -- DEPCY: This VIEW public.v1 depends on the TABLE: public.t1\n\n"+
		"2. DROP VIEW public.v1;\n"+
		"\t-- Statement Timeout: 3s\n\n"+
		"3. DROP TABLE public.t1;\n"+
		"\t-- Statement Timeout: 20m0s\n"+
		"\t-- Lock Timeout: 3s\n"+
		"\t-- Hazard DELETES_DATA: Deletes all rows in the table (and the table itself)\n"+
		"\t-- Hazard IS_USER_GENERATED", planToPrettyS(plan))
}

func TestParseOutputFormat(t *testing.T) {
	format, err := parseOutputFormat("SQL")
	require.NoError(t, err)
	assert.Equal(t, outputFormatSQL, format)

	_, err = parseOutputFormat("json")
	assert.ErrorContains(t, err, `unknown output format "json"`)
}
