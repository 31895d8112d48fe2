package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnAppendAlterSQL(t *testing.T) {
	base := func() *Column {
		c := NewColumn("public", "t1", "c", "integer")
		c.NotNull = true
		return c
	}
	for _, tc := range []struct {
		name               string
		dialect            Dialect
		modify             func(c *Column)
		expectedState      ObjectState
		expectedStatements []string
	}{
		{
			name:          "no change",
			dialect:       DialectPostgres,
			modify:        func(c *Column) {},
			expectedState: StateNothing,
		},
		{
			name:               "type change",
			dialect:            DialectPostgres,
			modify:             func(c *Column) { c.DataType = "bigint" },
			expectedState:      StateAlterWithDep,
			expectedStatements: []string{"ALTER TABLE public.t1 ALTER COLUMN c TYPE bigint"},
		},
		{
			name:               "type change on sql server keeps nullability",
			dialect:            DialectMSSQL,
			modify:             func(c *Column) { c.DataType = "bigint" },
			expectedState:      StateAlterWithDep,
			expectedStatements: []string{"ALTER TABLE [public].[t1] ALTER COLUMN [c] bigint NOT NULL"},
		},
		{
			name:               "type change on clickhouse",
			dialect:            DialectClickHouse,
			modify:             func(c *Column) { c.DataType = "Int64" },
			expectedState:      StateAlterWithDep,
			expectedStatements: []string{"ALTER TABLE public.t1 MODIFY COLUMN c Int64"},
		},
		{
			name:               "default added",
			dialect:            DialectPostgres,
			modify:             func(c *Column) { c.Default = "0" },
			expectedState:      StateAlter,
			expectedStatements: []string{"ALTER TABLE public.t1 ALTER COLUMN c SET DEFAULT 0"},
		},
		{
			name:               "not null dropped",
			dialect:            DialectPostgres,
			modify:             func(c *Column) { c.NotNull = false },
			expectedState:      StateAlter,
			expectedStatements: []string{"ALTER TABLE public.t1 ALTER COLUMN c DROP NOT NULL"},
		},
		{
			name:    "type and default change",
			dialect: DialectPostgres,
			modify: func(c *Column) {
				c.DataType = "bigint"
				c.Default = "1"
			},
			expectedState: StateAlterWithDep,
			expectedStatements: []string{
				"ALTER TABLE public.t1 ALTER COLUMN c TYPE bigint",
				"ALTER TABLE public.t1 ALTER COLUMN c SET DEFAULT 1",
			},
		},
		{
			name:               "identity added",
			dialect:            DialectPostgres,
			modify:             func(c *Column) { c.Identity = "ALWAYS" },
			expectedState:      StateAlter,
			expectedStatements: []string{"ALTER TABLE public.t1 ALTER COLUMN c ADD GENERATED ALWAYS AS IDENTITY"},
		},
		{
			name:          "identity added on sql server",
			dialect:       DialectMSSQL,
			modify:        func(c *Column) { c.Identity = "ALWAYS" },
			expectedState: StateRecreate,
		},
		{
			name:          "generated expression",
			dialect:       DialectPostgres,
			modify:        func(c *Column) { c.Generated = "id * 2" },
			expectedState: StateRecreate,
		},
		{
			name:               "comment",
			dialect:            DialectPostgres,
			modify:             func(c *Column) { c.Comment = "it's a column" },
			expectedState:      StateAlter,
			expectedStatements: []string{"COMMENT ON COLUMN public.t1.c IS 'it''s a column'"},
		},
		{
			name:          "comment is not rendered on clickhouse",
			dialect:       DialectClickHouse,
			modify:        func(c *Column) { c.Comment = "ignored" },
			expectedState: StateNothing,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			oldC := base()
			newC := base()
			tc.modify(newC)

			script := NewScript()
			state := oldC.AppendAlterSQL(NewDatabase(tc.dialect), newC, script)
			assert.Equal(t, tc.expectedState, state)
			assert.Equal(t, tc.expectedStatements, script.Statements())
		})
	}
}

func TestColumnJoinableAlterClause(t *testing.T) {
	oldC := NewColumn("public", "t1", "c", "integer")

	newC := NewColumn("public", "t1", "c", "bigint")
	clause, ok := oldC.JoinableAlterClause(DialectPostgres, newC)
	require.True(t, ok)
	assert.Equal(t, "ALTER COLUMN c TYPE bigint", clause)

	newC.Collation = "C"
	clause, ok = NewColumn("public", "t1", "c", "text").JoinableAlterClause(DialectPostgres, newC)
	require.True(t, ok)
	assert.Equal(t, `ALTER COLUMN c TYPE bigint COLLATE "C"`, clause)

	newC = NewColumn("public", "t1", "c", "bigint")
	newC.Default = "0"
	_, ok = oldC.JoinableAlterClause(DialectPostgres, newC)
	assert.False(t, ok, "a default change cannot be joined")

	_, ok = oldC.JoinableAlterClause(DialectPostgres, NewColumn("public", "t1", "c", "integer"))
	assert.False(t, ok, "nothing to join")

	_, ok = oldC.JoinableAlterClause(DialectMSSQL, NewColumn("public", "t1", "c", "bigint"))
	assert.False(t, ok)
}

func TestColumnCreateAndDropSQL(t *testing.T) {
	db := NewDatabase(DialectPostgres)
	c := NewColumn("public", "t1", "name", "text")

	script := NewScript()
	c.CreateSQL(db, script)
	c.DropSQL(db, script, true)
	assert.Equal(t, []string{
		"ALTER TABLE public.t1 ADD COLUMN name text",
		"ALTER TABLE public.t1 DROP COLUMN IF EXISTS name",
	}, script.Statements())

	msScript := NewScript()
	c.CreateSQL(NewDatabase(DialectMSSQL), msScript)
	assert.Equal(t, []string{"ALTER TABLE [public].[t1] ADD [name] text"}, msScript.Statements())
}

func TestTableCreateSQL(t *testing.T) {
	db := NewDatabase(DialectPostgres)
	require.NoError(t, db.Add(NewNamedSchema("public")))

	parent := NewTable("public", "events")
	parent.PartitionKey = "RANGE (created_at)"
	parent.Comment = "all events"
	require.NoError(t, db.Add(parent))
	id := NewColumn("public", "events", "id", "bigint")
	id.Identity = "BY DEFAULT"
	require.NoError(t, db.Add(id))
	createdAt := NewColumn("public", "events", "created_at", "timestamptz")
	createdAt.NotNull = true
	require.NoError(t, db.Add(createdAt))

	partitionOf := parent.Ref
	child := NewTable("public", "events_2024")
	child.PartitionOf = &partitionOf
	child.PartitionBound = "FOR VALUES FROM ('2024-01-01') TO ('2025-01-01')"
	require.NoError(t, db.Add(child))

	empty := NewTable("public", "empty")
	empty.Options = []string{"fillfactor=70"}
	require.NoError(t, db.Add(empty))

	script := NewScript()
	parent.CreateSQL(db, script)
	child.CreateSQL(db, script)
	empty.CreateSQL(db, script)
	assert.Equal(t, []string{
		"CREATE TABLE public.events (\n" +
			"\tid bigint GENERATED BY DEFAULT AS IDENTITY,\n" +
			"\tcreated_at timestamptz NOT NULL\n" +
			")\n" +
			"PARTITION BY RANGE (created_at)",
		"COMMENT ON TABLE public.events IS 'all events'",
		"CREATE TABLE public.events_2024 PARTITION OF public.events\n" +
			"\tFOR VALUES FROM ('2024-01-01') TO ('2025-01-01')",
		"CREATE TABLE public.empty ()\nWITH (fillfactor=70)",
	}, script.Statements())
}

func TestTableAppendAlterSQL(t *testing.T) {
	db := NewDatabase(DialectPostgres)

	oldT := NewTable("public", "t1")
	oldT.Options = []string{"fillfactor=70", "autovacuum_enabled=false"}
	newT := NewTable("public", "t1")
	newT.Options = []string{"fillfactor=80"}
	newT.Unlogged = true
	newT.Owner = "app"

	script := NewScript()
	assert.Equal(t, StateAlter, oldT.AppendAlterSQL(db, newT, script))
	assert.Equal(t, []string{
		"ALTER TABLE public.t1 SET UNLOGGED",
		"ALTER TABLE public.t1 SET (fillfactor=80)",
		"ALTER TABLE public.t1 RESET (autovacuum_enabled)",
		"ALTER TABLE public.t1 OWNER TO app",
	}, script.Statements())

	partitioned := NewTable("public", "t1")
	partitioned.PartitionKey = "LIST (kind)"
	assert.Equal(t, StateRecreate, oldT.AppendAlterSQL(db, partitioned, NewScript()))
}
