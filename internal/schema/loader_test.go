package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSnapshotYAML = `
dialect: pg
extensions:
  - name: pgcrypto
    schema: public
    version: "1.3"
schemas:
  - name: public
    types:
      - name: status
        labels: [active, deleted]
    sequences:
      - name: accounts_id_seq
        owned_by: accounts.id
    tables:
      - name: accounts
        columns:
          - name: id
            type: bigint
            not_null: true
            default: nextval('accounts_id_seq')
          - name: email
            type: text
        constraints:
          - name: accounts_pkey
            type: primary key
            columns: [id]
        indexes:
          - name: accounts_email_idx
            columns: [email]
            unique: true
        triggers:
          - name: accounts_audit
            function: audit()
            events: [UPDATE]
      - name: events
        partition_by: RANGE (id)
        columns:
          - name: id
            type: bigint
          - name: account_id
            type: bigint
        constraints:
          - name: events_account_fk
            type: FK
            columns: [account_id]
            references:
              table: public.accounts
              columns: [id]
      - name: events_1
        partition_of: events
        partition_bound: FOR VALUES FROM (0) TO (100)
    functions:
      - name: audit
        returns: trigger
        language: plpgsql
        body: BEGIN RETURN NEW; END
    views:
      - name: active_accounts
        query: SELECT id FROM accounts
        materialized: true
        depends_on: ["TABLE public.accounts"]
        indexes:
          - name: active_accounts_id_idx
            columns: [id]
`

func TestLoadYAML(t *testing.T) {
	db, err := LoadYAML(strings.NewReader(testSnapshotYAML))
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, db.Dialect)

	var keys []string
	for _, s := range db.Statements() {
		keys = append(keys, s.GetReference().Key())
	}
	assert.Equal(t, []string{
		"DATABASE",
		"SCHEMA public",
		"EXTENSION pgcrypto",
		"TYPE public.status",
		"SEQUENCE public.accounts_id_seq",
		"TABLE public.accounts",
		"COLUMN public.accounts.id",
		"COLUMN public.accounts.email",
		"CONSTRAINT public.accounts.accounts_pkey",
		"INDEX public.accounts.accounts_email_idx",
		"TABLE public.events",
		"COLUMN public.events.id",
		"COLUMN public.events.account_id",
		"CONSTRAINT public.events.events_account_fk",
		"TABLE public.events_1",
		"FUNCTION public.audit()",
		"VIEW public.active_accounts",
		"INDEX public.active_accounts.active_accounts_id_idx",
		"TRIGGER public.accounts.accounts_audit",
		"COLUMN public.events_1.id",
		"COLUMN public.events_1.account_id",
	}, keys)

	seq := db.GetStatement(NewReference(TypeSequence, "public", "accounts_id_seq")).(*Sequence)
	require.NotNil(t, seq.OwnedBy)
	assert.Equal(t, "COLUMN public.accounts.id", seq.OwnedBy.Key())

	fk := db.GetStatement(NewReference(TypeConstraint, "public", "events", "events_account_fk")).(*Constraint)
	assert.Equal(t, ConstraintTypeForeignKey, fk.ConstraintType)
	assert.Equal(t, "TABLE public.accounts", fk.RefTable.Key())

	partition := db.GetStatement(NewReference(TypeTable, "public", "events_1")).(*Table)
	assert.Equal(t, "TABLE public.events", partition.PartitionOf.Key())
	inherited := db.GetStatement(NewReference(TypeColumn, "public", "events_1", "id")).(*Column)
	assert.True(t, inherited.Inherited)
	assert.Equal(t, "bigint", inherited.DataType)

	viewIdx := db.GetStatement(NewReference(TypeIndex, "public", "active_accounts", "active_accounts_id_idx"))
	assert.Equal(t, "VIEW public.active_accounts", viewIdx.GetParent().Key())

	trg := db.GetStatement(NewReference(TypeTrigger, "public", "accounts", "accounts_audit")).(*Trigger)
	assert.Equal(t, "FUNCTION public.audit()", trg.Function.Key())
	assert.Equal(t, []string{"UPDATE"}, trg.Events)
	assert.True(t, trg.ForEachRow)

	view := db.GetStatement(NewReference(TypeView, "public", "active_accounts"))
	assert.Equal(t, []string{"TABLE public.accounts"}, referenceKeys(view.GetDependencies()))
}

func TestLoadYAMLErrors(t *testing.T) {
	for _, tc := range []struct {
		name           string
		doc            string
		expectedErrMsg string
	}{
		{
			name:           "unknown field",
			doc:            "schemas:\n  - name: public\n    tablez: []\n",
			expectedErrMsg: "field tablez not found",
		},
		{
			name:           "unknown dialect",
			doc:            "dialect: oracle\n",
			expectedErrMsg: "unknown dialect",
		},
		{
			name:           "bad dependency reference",
			doc:            "extensions:\n  - name: pgcrypto\n    depends_on: [\"BOGUS x\"]\n",
			expectedErrMsg: "unknown object type",
		},
		{
			name:           "unknown constraint type",
			doc:            "schemas:\n  - name: public\n    tables:\n      - name: t1\n        constraints:\n          - name: c\n            type: EXCLUDE\n",
			expectedErrMsg: "unknown constraint type",
		},
		{
			name:           "foreign key without references",
			doc:            "schemas:\n  - name: public\n    tables:\n      - name: t1\n        constraints:\n          - name: c\n            type: FK\n",
			expectedErrMsg: "foreign key c without references",
		},
		{
			name:           "duplicate table",
			doc:            "schemas:\n  - name: public\n    tables:\n      - name: t1\n      - name: t1\n",
			expectedErrMsg: "duplicate statement TABLE public.t1",
		},
		{
			name:           "inheritance cycle",
			doc:            "schemas:\n  - name: public\n    tables:\n      - name: a\n        inherits: [b]\n      - name: b\n        inherits: [a]\n",
			expectedErrMsg: "inherits from itself",
		},
		{
			name:           "conflicting dialects",
			doc:            "dialect: pg\n---\ndialect: ms\n",
			expectedErrMsg: "dialect \"ms\" conflicts with \"pg\"",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tc.doc))
			assert.ErrorContains(t, err, tc.expectedErrMsg)
		})
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	db, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 1, db.Len())
}

func TestLoadYAMLDocuments(t *testing.T) {
	db, err := LoadYAML(strings.NewReader(`
dialect: pg
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: bigint
---
schemas:
  - name: public
    comment: default schema
    views:
      - name: v1
        query: SELECT id FROM t1
        depends_on: ["TABLE public.t1"]
  - name: app
`))
	require.NoError(t, err)

	assert.Equal(t, DialectPostgres, db.Dialect)
	for _, ref := range []Reference{
		NewReference(TypeTable, "public", "t1"),
		NewReference(TypeColumn, "public", "t1", "id"),
		NewReference(TypeView, "public", "v1"),
		NewReference(TypeSchema, "app"),
	} {
		assert.True(t, db.HasStatement(ref), ref.Key())
	}
	public := db.GetStatement(NewReference(TypeSchema, "public")).(*NamedSchema)
	assert.Equal(t, "default schema", public.Comment)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSnapshotYAML), 0o600))

	db, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, db.HasStatement(NewReference(TypeTable, "public", "accounts")))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "opening snapshot")
}
