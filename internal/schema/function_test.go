package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunctionReference(t *testing.T) {
	f := NewFunction("public", "add",
		Argument{Name: "a", DataType: "integer"},
		Argument{Name: "b", DataType: "integer", Default: "0"},
		Argument{Mode: ArgumentModeOut, Name: "total", DataType: "integer"},
	)
	assert.Equal(t, "FUNCTION public.add(integer, integer)", f.GetReference().Key())
	assert.Equal(t, "add", f.BareName())
	assert.Equal(t, []string{"integer", "integer"}, f.ArgumentTypes())
	assert.Equal(t, []string{"integer"}, f.RequiredArgumentTypes())
	assert.Equal(t, "FUNCTION public.now()", NewFunction("public", "now").GetReference().Key())
}

func TestFunctionAppendAlterSQL(t *testing.T) {
	base := func() *Function {
		f := NewFunction("public", "f", Argument{Name: "x", DataType: "integer"})
		f.Returns = "integer"
		f.Language = "sql"
		f.Body = "SELECT x"
		return f
	}
	for _, tc := range []struct {
		name          string
		modify        func(f *Function)
		expectedState ObjectState
	}{
		{name: "no change", modify: func(f *Function) {}, expectedState: StateNothing},
		{name: "body", modify: func(f *Function) { f.Body = "SELECT x + 1" }, expectedState: StateAlter},
		{name: "volatility", modify: func(f *Function) { f.Volatility = VolatilityImmutable }, expectedState: StateAlter},
		{name: "default added", modify: func(f *Function) { f.Arguments[0].Default = "1" }, expectedState: StateAlter},
		{name: "return type", modify: func(f *Function) { f.Returns = "text" }, expectedState: StateRecreate},
		{name: "argument name", modify: func(f *Function) { f.Arguments[0].Name = "y" }, expectedState: StateRecreate},
		{name: "becomes procedure", modify: func(f *Function) { f.Procedure = true }, expectedState: StateRecreate},
	} {
		t.Run(tc.name, func(t *testing.T) {
			newF := base()
			tc.modify(newF)
			script := NewScript()
			assert.Equal(t, tc.expectedState, base().AppendAlterSQL(NewDatabase(DialectPostgres), newF, script))
			if tc.expectedState == StateAlter {
				assert.Equal(t, 1, script.StatementCount())
			} else {
				assert.True(t, script.IsEmpty())
			}
		})
	}

	withDefault := base()
	withDefault.Arguments[0].Default = "1"
	changedDefault := base()
	changedDefault.Arguments[0].Default = "2"
	assert.Equal(t, StateRecreate, withDefault.AppendAlterSQL(NewDatabase(DialectPostgres), changedDefault, NewScript()))
	assert.Equal(t, StateRecreate, withDefault.AppendAlterSQL(NewDatabase(DialectPostgres), base(), NewScript()))
}

func TestFunctionCreateSQL(t *testing.T) {
	f := NewFunction("public", "greet", Argument{Name: "name", DataType: "text", Default: "'world'"})
	f.Returns = "text"
	f.Language = "plpgsql"
	f.Volatility = VolatilityStable
	f.Body = "BEGIN RETURN 'hello ' || name; END"
	f.Owner = "app"

	script := NewScript()
	f.CreateSQL(NewDatabase(DialectPostgres), script)
	f.DropSQL(NewDatabase(DialectPostgres), script, true)
	assert.Equal(t, []string{
		"CREATE OR REPLACE FUNCTION public.greet(name text DEFAULT 'world')\n" +
			"\tRETURNS text\n" +
			"\tLANGUAGE plpgsql\n" +
			"\tSTABLE\n" +
			"\tAS $$BEGIN RETURN 'hello ' || name; END$$",
		"ALTER FUNCTION public.greet(text) OWNER TO app",
		"DROP FUNCTION IF EXISTS public.greet(text)",
	}, script.Statements())
}

func TestDollarQuote(t *testing.T) {
	assert.Equal(t, "$$SELECT 1$$", dollarQuote("SELECT 1"))
	assert.Equal(t, "$fn0$SELECT '$$'$fn0$", dollarQuote("SELECT '$$'"))
}

func TestDiffersOnlyInDefaults(t *testing.T) {
	old := NewFunction("public", "f", Argument{Name: "a", DataType: "integer"})
	withDefault := NewFunction("public", "f",
		Argument{Name: "a", DataType: "integer"},
		Argument{Name: "b", DataType: "text", Default: "''"},
	)
	withoutDefault := NewFunction("public", "f",
		Argument{Name: "a", DataType: "integer"},
		Argument{Name: "b", DataType: "text"},
	)
	otherName := NewFunction("public", "g",
		Argument{Name: "a", DataType: "integer"},
		Argument{Name: "b", DataType: "text", Default: "''"},
	)

	assert.True(t, old.DiffersOnlyInDefaults(withDefault))
	assert.False(t, old.DiffersOnlyInDefaults(withoutDefault))
	assert.False(t, old.DiffersOnlyInDefaults(otherName))
	assert.False(t, old.DiffersOnlyInDefaults(old))
	assert.False(t, old.DiffersOnlyInDefaults(nil))
}

func TestTriggerSQL(t *testing.T) {
	db := NewDatabase(DialectPostgres)
	trg := NewTrigger("public", "t1", "t1_audit", NewReference(TypeFunction, "public", "audit()"))
	trg.Timing = "BEFORE"
	trg.Events = []string{"INSERT", "UPDATE"}

	script := NewScript()
	trg.CreateSQL(db, script)
	trg.DropSQL(db, script, false)
	assert.Equal(t, []string{
		"CREATE TRIGGER t1_audit\n\tBEFORE INSERT OR UPDATE ON public.t1\n\tFOR EACH ROW\n\tEXECUTE FUNCTION public.audit()",
		"DROP TRIGGER t1_audit ON public.t1",
	}, script.Statements())
	assert.Equal(t, []string{"FUNCTION public.audit()"}, referenceKeys(trg.GetDependencies()))

	changed := trg.Clone().(*Trigger)
	changed.When = "NEW.id > 0"
	assert.Equal(t, StateRecreate, trg.AppendAlterSQL(db, changed, NewScript()))
}
