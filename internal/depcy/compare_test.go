package depcy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareDatabases(t *testing.T) {
	oldDB := loadTestDatabase(t, `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
          - name: legacy
            type: text
      - name: t2
`)
	newDB := loadTestDatabase(t, `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: bigint
          - name: name
            type: text
    views:
      - name: v1
        query: SELECT id FROM t1
`)

	var got []string
	for _, d := range CompareDatabases(oldDB, newDB) {
		key := statementKey(d.New)
		if d.New == nil {
			key = statementKey(d.Old)
		}
		got = append(got, d.Type().String()+" "+key)
	}
	assert.Equal(t, []string{
		"REMOVED COLUMN public.t1.legacy",
		"REMOVED TABLE public.t2",
		"CHANGED COLUMN public.t1.id",
		"ADDED COLUMN public.t1.name",
		"ADDED VIEW public.v1",
	}, got)

	assert.Empty(t, CompareDatabases(oldDB, oldDB.Copy()))
}
