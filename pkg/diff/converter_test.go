package diff

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/pg-schema-depcy/internal/pgidentifier"
	"github.com/stripe/pg-schema-depcy/internal/schema"
	"github.com/stripe/pg-schema-depcy/pkg/log"
)

func loadTestDatabase(t *testing.T, doc string) *schema.Database {
	t.Helper()
	db, err := schema.LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	return db
}

func generateTestPlan(t *testing.T, oldDoc, newDoc string, opts ...PlanOpt) (Plan, error) {
	t.Helper()
	options := newPlanOptions(append([]PlanOpt{WithLogger(log.SimpleLogger())}, opts...))
	return generatePlan(loadTestDatabase(t, oldDoc), loadTestDatabase(t, newDoc), options)
}

func planDDL(plan Plan) []string {
	var ddl []string
	for _, stmt := range plan.Statements {
		ddl = append(ddl, stmt.DDL)
	}
	return ddl
}

const (
	tableWithViewYAML = `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
    views:
      - name: v1
        query: SELECT id FROM t1
        depends_on: ["TABLE public.t1"]
`
	emptyPublicYAML = `
schemas:
  - name: public
`
	recreatedTableOldYAML = `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: bigint
            identity: ALWAYS
          - name: name
            type: text
`
	recreatedTableNewYAML = `
schemas:
  - name: public
    tables:
      - name: t1
        partition_by: RANGE (id)
        columns:
          - name: id
            type: bigint
            identity: ALWAYS
          - name: name
            type: text
`
)

func TestConvertActions(t *testing.T) {
	for _, tc := range []struct {
		name        string
		oldDoc      string
		newDoc      string
		opts        []PlanOpt
		expectedDDL []string
	}{
		{
			name:   "no changes",
			oldDoc: tableWithViewYAML,
			newDoc: tableWithViewYAML,
		},
		{
			name: "add column",
			oldDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
`,
			newDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
          - name: name
            type: text
`,
			expectedDDL: []string{"ALTER TABLE public.t1 ADD COLUMN name text"},
		},
		{
			name:   "drop table with a dependent view",
			oldDoc: tableWithViewYAML,
			newDoc: emptyPublicYAML,
			expectedDDL: []string{
				"-- DEPCY: This VIEW public.v1 depends on the TABLE: public.t1",
				"DROP VIEW public.v1",
				"DROP TABLE public.t1",
			},
		},
		{
			name: "column type changes of one table are joined",
			oldDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: a
            type: int
          - name: b
            type: int
`,
			newDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: a
            type: bigint
          - name: b
            type: bigint
`,
			expectedDDL: []string{"ALTER TABLE public.t1\n\tALTER COLUMN a TYPE bigint,\n\tALTER COLUMN b TYPE bigint"},
		},
		{
			name: "column type change rebuilds the dependent view",
			oldDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: c
            type: integer
    views:
      - name: v1
        query: SELECT c FROM t1
        depends_on: ["COLUMN public.t1.c"]
`,
			newDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: c
            type: bigint
    views:
      - name: v1
        query: SELECT c FROM t1
        depends_on: ["COLUMN public.t1.c"]
`,
			expectedDDL: []string{
				"-- DEPCY: This VIEW public.v1 depends on the COLUMN: public.t1.c",
				"DROP VIEW public.v1",
				"ALTER TABLE public.t1 ALTER COLUMN c TYPE bigint",
				"-- DEPCY: This VIEW public.v1 depends on the COLUMN: public.t1.c",
				"CREATE VIEW public.v1 AS\n\tSELECT c FROM t1",
			},
		},
		{
			name: "column type change refreshes the dependent view in sql server",
			oldDoc: `
dialect: ms
schemas:
  - name: app
    tables:
      - name: t1
        columns:
          - name: c
            type: int
    views:
      - name: v1
        query: SELECT c FROM app.t1
        depends_on: ["COLUMN app.t1.c"]
`,
			newDoc: `
dialect: ms
schemas:
  - name: app
    tables:
      - name: t1
        columns:
          - name: c
            type: bigint
    views:
      - name: v1
        query: SELECT c FROM app.t1
        depends_on: ["COLUMN app.t1.c"]
`,
			expectedDDL: []string{
				"ALTER TABLE [app].[t1] ALTER COLUMN [c] bigint NULL",
				"EXEC sys.sp_refreshview N'[app].[v1]'",
			},
		},
		{
			name:   "types that are not allowed are hidden",
			oldDoc: tableWithViewYAML,
			newDoc: emptyPublicYAML,
			opts:   []PlanOpt{WithAllowedTypes(schema.TypeTable)},
			expectedDDL: []string{
				"-- HIDDEN: Object public.v1 of type VIEW (action DROP)",
				"DROP TABLE public.t1",
			},
		},
		{
			name: "only selected objects are rendered",
			oldDoc: `
schemas:
  - name: public
    tables:
      - name: t1
      - name: t2
`,
			newDoc: `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: name
            type: text
      - name: t2
        columns:
          - name: name
            type: text
`,
			opts: []PlanOpt{WithSelection(schema.NewReference(schema.TypeTable, "public", "t2"))},
			expectedDDL: []string{
				"-- HIDDEN: Object public.t1.name of type COLUMN (action CREATE)",
				"ALTER TABLE public.t2 ADD COLUMN name text",
			},
		},
		{
			name: "default schema is never dropped",
			oldDoc: `
schemas:
  - name: public
    tables:
      - name: t1
`,
			newDoc: "dialect: pg\n",
			expectedDDL: []string{
				"-- DEPCY: This TABLE public.t1 depends on the SCHEMA: public",
				"DROP TABLE public.t1",
				"-- HIDDEN: Object public of type SCHEMA (action DROP)",
			},
		},
		{
			name: "comment change of a view",
			oldDoc: `
schemas:
  - name: public
    views:
      - name: v1
        query: SELECT 1
`,
			newDoc: `
schemas:
  - name: public
    views:
      - name: v1
        query: SELECT 1
        comment: new
`,
			expectedDDL: []string{"COMMENT ON VIEW public.v1 IS 'new'"},
		},
		{
			name: "drop before create",
			oldDoc: `
schemas:
  - name: public
    views:
      - name: v1
        query: SELECT 1
`,
			newDoc: `
schemas:
  - name: public
    views:
      - name: v1
        query: SELECT 1
        comment: new
`,
			opts: []PlanOpt{WithDropBeforeCreate()},
			expectedDDL: []string{
				"DROP VIEW IF EXISTS public.v1",
				"CREATE VIEW public.v1 AS\n\tSELECT 1",
				"COMMENT ON VIEW public.v1 IS 'new'",
			},
		},
		{
			name:   "recreated table loses its rows by default",
			oldDoc: recreatedTableOldYAML,
			newDoc: recreatedTableNewYAML,
			expectedDDL: []string{
				"DROP TABLE public.t1",
				"CREATE TABLE public.t1 (\n\tid bigint GENERATED ALWAYS AS IDENTITY,\n\tname text\n)\nPARTITION BY RANGE (id)",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := generateTestPlan(t, tc.oldDoc, tc.newDoc, tc.opts...)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedDDL, planDDL(plan), pretty.Sprint(plan))
		})
	}
}

func TestConvertActionsDataMovement(t *testing.T) {
	tempName, err := pgidentifier.TemporaryName("t1", "TABLE public.t1", pgidentifier.MaxIdentifierLength)
	require.NoError(t, err)
	temp := "public." + schema.DialectPostgres.QuoteIdentifier(tempName)

	plan, err := generateTestPlan(t, recreatedTableOldYAML, recreatedTableNewYAML, WithDataMovementMode())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ALTER TABLE public.t1 RENAME TO " + schema.DialectPostgres.QuoteIdentifier(tempName),
		"CREATE TABLE public.t1 (\n\tid bigint GENERATED ALWAYS AS IDENTITY,\n\tname text\n)\nPARTITION BY RANGE (id)",
		"INSERT INTO public.t1 (id, name) OVERRIDING SYSTEM VALUE SELECT id, name FROM ONLY " + temp,
		"SELECT setval(pg_get_serial_sequence('public.t1', 'id'), max(id)) FROM public.t1",
		"DROP TABLE " + temp,
	}, planDDL(plan))

	var hazardTypes []MigrationHazardType
	for _, stmt := range plan.Statements {
		for _, h := range stmt.Hazards {
			hazardTypes = append(hazardTypes, h.Type)
		}
	}
	assert.Contains(t, hazardTypes, MigrationHazardTypeImpactsDatabasePerformance)
	assert.Equal(t, statementTimeoutDataMovement, plan.Statements[2].Timeout)
}

func TestConvertActionsDataMovementClickHouse(t *testing.T) {
	oldDoc := `
dialect: ch
schemas:
  - name: default
    tables:
      - name: t1
        engine: MergeTree ORDER BY id
        columns:
          - name: id
            type: UInt64
          - name: name
            type: String
`
	newDoc := `
dialect: ch
schemas:
  - name: default
    tables:
      - name: t1
        engine: ReplacingMergeTree ORDER BY id
        columns:
          - name: id
            type: UInt64
          - name: name
            type: String
`
	d := schema.DialectClickHouse
	tempName, err := pgidentifier.TemporaryName("t1", "TABLE default.t1", d.MaxIdentifierLength())
	require.NoError(t, err)
	temp := d.QualifiedName("default", tempName)

	plan, err := generateTestPlan(t, oldDoc, newDoc, WithDataMovementMode())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"RENAME TABLE default.t1 TO " + temp,
		"CREATE TABLE default.t1 (\n\tid UInt64,\n\tname String\n)\nENGINE = ReplacingMergeTree ORDER BY id",
		"INSERT INTO default.t1 (id, name) SELECT id, name FROM " + temp,
		"DROP TABLE " + temp,
	}, planDDL(plan))
}

func TestCopyRowsSQLServerIdentity(t *testing.T) {
	doc := `
dialect: ms
schemas:
  - name: dbo
    tables:
      - name: t1
        columns:
          - name: id
            type: int
            identity: ALWAYS
          - name: total
            type: int
`
	oldDB := loadTestDatabase(t, doc)
	newDB := loadTestDatabase(t, doc)
	c := &converter{
		oldDB:   oldDB,
		newDB:   newDB,
		dialect: schema.DialectMSSQL,
		options: newPlanOptions(nil),
	}
	ref := schema.NewReference(schema.TypeTable, "dbo", "t1")
	c.copyRows(
		movedTable{old: oldDB.GetStatement(ref).(*schema.Table), tempName: "t1_tmp"},
		newDB.GetStatement(ref).(*schema.Table),
	)
	assert.Equal(t, []string{
		"SET IDENTITY_INSERT [dbo].[t1] ON",
		"INSERT INTO [dbo].[t1] ([id], [total]) SELECT [id], [total] FROM [dbo].[t1_tmp]",
		"SET IDENTITY_INSERT [dbo].[t1] OFF",
	}, planDDL(Plan{Statements: c.statements}))
}

func TestConvertActionsPrerequisiteComment(t *testing.T) {
	doc := func(partitionBy string) string {
		return `
schemas:
  - name: public
    tables:
      - name: parent
` + partitionBy + `        columns:
          - name: id
            type: int
        constraints:
          - name: pk
            type: PK
            columns: [id]
      - name: child
        columns:
          - name: parent_id
            type: int
        constraints:
          - name: fk
            type: FK
            columns: [parent_id]
            references:
              table: parent
              columns: [id]
`
	}
	plan, err := generateTestPlan(t, doc(""), doc("        partition_by: RANGE (id)\n"))
	require.NoError(t, err)

	ddl := planDDL(plan)
	assert.Contains(t, ddl, "-- DEPCY: This CONSTRAINT public.parent.pk is a dependency of CONSTRAINT: public.child.fk", pretty.Sprint(plan))
	assert.NotContains(t, ddl, "-- DEPCY: This CONSTRAINT public.parent.pk depends on the CONSTRAINT: public.child.fk")
}

func TestConvertActionsNotAllowed(t *testing.T) {
	_, err := generateTestPlan(t, tableWithViewYAML, emptyPublicYAML,
		WithAllowedTypes(schema.TypeTable), WithStopNotAllowed())
	require.ErrorIs(t, err, ErrNotAllowedObject)

	var notAllowedErr *NotAllowedObjectError
	require.True(t, errors.As(err, &notAllowedErr))
	assert.Equal(t, "VIEW public.v1", notAllowedErr.Reference.Key())
	assert.Equal(t, "DROP", notAllowedErr.Action.String())
}

func TestConvertActionsHazardsAndTimeouts(t *testing.T) {
	plan, err := generateTestPlan(t, tableWithViewYAML, emptyPublicYAML, WithStatementTimeout(5*time.Second))
	require.NoError(t, err)
	require.Len(t, plan.Statements, 3)

	comment, dropView, dropTable := plan.Statements[0], plan.Statements[1], plan.Statements[2]
	assert.True(t, comment.IsComment)
	assert.Zero(t, comment.Timeout)

	assert.Equal(t, 5*time.Second, dropView.Timeout)
	assert.Equal(t, 5*time.Second, dropView.LockTimeout)
	assert.Empty(t, dropView.Hazards)

	assert.Equal(t, statementTimeoutTableDrop, dropTable.Timeout)
	assert.Equal(t, []MigrationHazard{migrationHazardTableDropped}, dropTable.Hazards)
	assert.NotEmpty(t, plan.CurrentSchemaHash)
}

func TestConvertActionsIsDeterministic(t *testing.T) {
	first, err := generateTestPlan(t, recreatedTableOldYAML, recreatedTableNewYAML, WithDataMovementMode())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		plan, err := generateTestPlan(t, recreatedTableOldYAML, recreatedTableNewYAML, WithDataMovementMode())
		require.NoError(t, err)
		assert.Equal(t, first.SQL(), plan.SQL())
	}
}

func TestGeneratePlanDialectMismatch(t *testing.T) {
	_, err := generateTestPlan(t, "dialect: pg\n", "dialect: ms\n")
	assert.ErrorContains(t, err, `cannot migrate a "pg" schema to a "ms" schema`)
}
