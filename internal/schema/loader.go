package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	documentYAML struct {
		Dialect    string          `yaml:"dialect"`
		Extensions []extensionYAML `yaml:"extensions"`
		Schemas    []schemaYAML    `yaml:"schemas"`
	}

	objectYAML struct {
		Name      string   `yaml:"name"`
		Owner     string   `yaml:"owner"`
		Comment   string   `yaml:"comment"`
		DependsOn []string `yaml:"depends_on"`
	}

	extensionYAML struct {
		objectYAML `yaml:",inline"`
		Schema     string `yaml:"schema"`
		Version    string `yaml:"version"`
	}

	schemaYAML struct {
		objectYAML `yaml:",inline"`
		Types      []typeYAML     `yaml:"types"`
		Sequences  []sequenceYAML `yaml:"sequences"`
		Tables     []tableYAML    `yaml:"tables"`
		Functions  []functionYAML `yaml:"functions"`
		Views      []viewYAML     `yaml:"views"`
	}

	typeYAML struct {
		objectYAML `yaml:",inline"`
		Labels     []string `yaml:"labels"`
	}

	sequenceYAML struct {
		objectYAML `yaml:",inline"`
		Type       string `yaml:"type"`
		Start      *int64 `yaml:"start"`
		Increment  *int64 `yaml:"increment"`
		MinValue   *int64 `yaml:"min_value"`
		MaxValue   *int64 `yaml:"max_value"`
		Cache      *int64 `yaml:"cache"`
		Cycle      bool   `yaml:"cycle"`
		OwnedBy    string `yaml:"owned_by"`
	}

	tableYAML struct {
		objectYAML     `yaml:",inline"`
		Unlogged       bool             `yaml:"unlogged"`
		PartitionBy    string           `yaml:"partition_by"`
		PartitionOf    string           `yaml:"partition_of"`
		PartitionBound string           `yaml:"partition_bound"`
		Inherits       []string         `yaml:"inherits"`
		Options        []string         `yaml:"options"`
		Engine         string           `yaml:"engine"`
		Columns        []columnYAML     `yaml:"columns"`
		Constraints    []constraintYAML `yaml:"constraints"`
		Indexes        []indexYAML      `yaml:"indexes"`
		Triggers       []triggerYAML    `yaml:"triggers"`
	}

	columnYAML struct {
		objectYAML `yaml:",inline"`
		Type       string `yaml:"type"`
		Collation  string `yaml:"collation"`
		Default    string `yaml:"default"`
		NotNull    bool   `yaml:"not_null"`
		Identity   string `yaml:"identity"`
		Generated  string `yaml:"generated"`
	}

	referencesYAML struct {
		Table   string   `yaml:"table"`
		Columns []string `yaml:"columns"`
	}

	constraintYAML struct {
		objectYAML `yaml:",inline"`
		Type       string          `yaml:"type"`
		Columns    []string        `yaml:"columns"`
		Expression string          `yaml:"expression"`
		References *referencesYAML `yaml:"references"`
		OnDelete   string          `yaml:"on_delete"`
		OnUpdate   string          `yaml:"on_update"`
		NotValid   bool            `yaml:"not_valid"`
		Inherited  bool            `yaml:"inherited"`
	}

	indexYAML struct {
		objectYAML `yaml:",inline"`
		Columns    []string `yaml:"columns"`
		Unique     bool     `yaml:"unique"`
		Method     string   `yaml:"method"`
		Where      string   `yaml:"where"`
	}

	triggerYAML struct {
		objectYAML `yaml:",inline"`
		Timing     string   `yaml:"timing"`
		Events     []string `yaml:"events"`
		ForEachRow *bool    `yaml:"for_each_row"`
		When       string   `yaml:"when"`
		Function   string   `yaml:"function"`
	}

	argumentYAML struct {
		Mode    string `yaml:"mode"`
		Name    string `yaml:"name"`
		Type    string `yaml:"type"`
		Default string `yaml:"default"`
	}

	functionYAML struct {
		objectYAML `yaml:",inline"`
		Arguments  []argumentYAML `yaml:"arguments"`
		Returns    string         `yaml:"returns"`
		Language   string         `yaml:"language"`
		Body       string         `yaml:"body"`
		Volatility string         `yaml:"volatility"`
		Procedure  bool           `yaml:"procedure"`
	}

	viewYAML struct {
		objectYAML   `yaml:",inline"`
		Query        string      `yaml:"query"`
		Materialized bool        `yaml:"materialized"`
		Indexes      []indexYAML `yaml:"indexes"`
	}
)

// LoadFile loads a snapshot from a YAML file
func LoadFile(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	db, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return db, nil
}

// LoadYAML builds a snapshot from its YAML description. Unknown fields are rejected. A stream of several
// documents describes one snapshot: schemas of the same name are merged and the dialects must agree.
func LoadYAML(r io.Reader) (*Database, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var merged documentYAML
	for i := 0; ; i++ {
		var doc documentYAML
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding yaml document %d: %w", i, err)
		}
		if err := merged.merge(doc); err != nil {
			return nil, fmt.Errorf("merging yaml document %d: %w", i, err)
		}
	}
	dialect, err := ParseDialect(merged.Dialect)
	if err != nil {
		return nil, err
	}
	l := &loader{db: NewDatabase(dialect)}
	if err := l.load(merged); err != nil {
		return nil, err
	}
	return l.db, nil
}

func (d *documentYAML) merge(other documentYAML) error {
	if other.Dialect != "" {
		if d.Dialect != "" && !sameDialect(d.Dialect, other.Dialect) {
			return fmt.Errorf("dialect %q conflicts with %q", other.Dialect, d.Dialect)
		}
		d.Dialect = other.Dialect
	}
	d.Extensions = append(d.Extensions, other.Extensions...)
	for _, s := range other.Schemas {
		existing := d.schema(s.Name)
		if existing == nil {
			d.Schemas = append(d.Schemas, s)
			continue
		}
		if existing.Owner == "" {
			existing.Owner = s.Owner
		}
		if existing.Comment == "" {
			existing.Comment = s.Comment
		}
		existing.DependsOn = append(existing.DependsOn, s.DependsOn...)
		existing.Types = append(existing.Types, s.Types...)
		existing.Sequences = append(existing.Sequences, s.Sequences...)
		existing.Tables = append(existing.Tables, s.Tables...)
		existing.Functions = append(existing.Functions, s.Functions...)
		existing.Views = append(existing.Views, s.Views...)
	}
	return nil
}

func sameDialect(a, b string) bool {
	da, errA := ParseDialect(a)
	db, errB := ParseDialect(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return da == db
}

func (d *documentYAML) schema(name string) *schemaYAML {
	for i := range d.Schemas {
		if d.Schemas[i].Name == name {
			return &d.Schemas[i]
		}
	}
	return nil
}

type loader struct {
	db *Database
	// tables are kept to add the inherited columns once every table is known
	tables []*Table
}

func (l *loader) load(doc documentYAML) error {
	for _, s := range doc.Schemas {
		schema := NewNamedSchema(s.Name)
		if err := l.fillObject(&schema.Object, s.objectYAML); err != nil {
			return err
		}
		if err := l.db.Add(schema); err != nil {
			return err
		}
	}
	for _, e := range doc.Extensions {
		ext := NewExtension(e.Name, e.Schema)
		ext.Version = e.Version
		if err := l.fillObject(&ext.Object, e.objectYAML); err != nil {
			return err
		}
		if err := l.db.Add(ext); err != nil {
			return err
		}
	}
	for _, s := range doc.Schemas {
		if err := l.loadSchema(s); err != nil {
			return fmt.Errorf("schema %s: %w", s.Name, err)
		}
	}
	return l.addInheritedColumns()
}

func (l *loader) fillObject(o *Object, y objectYAML) error {
	if y.Name == "" {
		return fmt.Errorf("%s without a name", o.Ref.Type)
	}
	o.Owner = y.Owner
	o.Comment = y.Comment
	for _, dep := range y.DependsOn {
		ref, err := ParseReference(dep)
		if err != nil {
			return fmt.Errorf("%s: %w", o.Ref, err)
		}
		o.DependsOn = append(o.DependsOn, ref)
	}
	return nil
}

// parseRelation parses a "schema.name" reference. A bare name belongs to defaultSchema.
func parseRelation(t ObjectType, val, defaultSchema string) (Reference, error) {
	path, err := SplitPath(val)
	if err != nil {
		return Reference{}, err
	}
	if len(path) == 1 {
		path = []string{defaultSchema, path[0]}
	}
	return NewReference(t, path...), nil
}

func (l *loader) loadSchema(s schemaYAML) error {
	for _, t := range s.Types {
		typ := NewType(s.Name, t.Name, t.Labels...)
		if err := l.addObject(typ, &typ.Object, t.objectYAML); err != nil {
			return err
		}
	}
	for _, seq := range s.Sequences {
		sequence := NewSequence(s.Name, seq.Name)
		sequence.DataType = seq.Type
		sequence.Start = seq.Start
		sequence.Increment = seq.Increment
		sequence.MinValue = seq.MinValue
		sequence.MaxValue = seq.MaxValue
		sequence.Cache = seq.Cache
		sequence.Cycle = seq.Cycle
		if seq.OwnedBy != "" {
			path, err := SplitPath(seq.OwnedBy)
			if err != nil {
				return fmt.Errorf("sequence %s: %w", seq.Name, err)
			}
			if len(path) == 2 {
				path = append([]string{s.Name}, path...)
			}
			if len(path) != 3 {
				return fmt.Errorf("sequence %s: owned_by must be schema.table.column", seq.Name)
			}
			ref := NewReference(TypeColumn, path...)
			sequence.OwnedBy = &ref
		}
		if err := l.addObject(sequence, &sequence.Object, seq.objectYAML); err != nil {
			return err
		}
	}
	for _, t := range s.Tables {
		if err := l.loadTable(s.Name, t); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	for _, f := range s.Functions {
		var args []Argument
		for _, a := range f.Arguments {
			args = append(args, Argument{Mode: ArgumentMode(a.Mode), Name: a.Name, DataType: a.Type, Default: a.Default})
		}
		fn := NewFunction(s.Name, f.Name, args...)
		fn.Returns = f.Returns
		fn.Language = f.Language
		fn.Body = f.Body
		fn.Volatility = Volatility(f.Volatility)
		fn.Procedure = f.Procedure
		if err := l.addObject(fn, &fn.Object, f.objectYAML); err != nil {
			return err
		}
	}
	for _, v := range s.Views {
		view := NewView(s.Name, v.Name, v.Query)
		view.Materialized = v.Materialized
		if err := l.addObject(view, &view.Object, v.objectYAML); err != nil {
			return err
		}
		for _, idx := range v.Indexes {
			index := newIndexFromYAML(s.Name, v.Name, idx)
			index.ParentRef = view.Ref
			if err := l.addObject(index, &index.Object, idx.objectYAML); err != nil {
				return err
			}
		}
	}
	// Triggers reference functions, which are loaded after the tables
	for _, t := range s.Tables {
		for _, trg := range t.Triggers {
			fnRef, err := parseRelation(TypeFunction, trg.Function, s.Name)
			if err != nil {
				return fmt.Errorf("trigger %s: %w", trg.Name, err)
			}
			trigger := NewTrigger(s.Name, t.Name, trg.Name, fnRef)
			if trg.Timing != "" {
				trigger.Timing = trg.Timing
			}
			if len(trg.Events) > 0 {
				trigger.Events = trg.Events
			}
			if trg.ForEachRow != nil {
				trigger.ForEachRow = *trg.ForEachRow
			}
			trigger.When = trg.When
			if err := l.addObject(trigger, &trigger.Object, trg.objectYAML); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *loader) addObject(s Statement, o *Object, y objectYAML) error {
	if err := l.fillObject(o, y); err != nil {
		return err
	}
	return l.db.Add(s)
}

func newIndexFromYAML(schemaName, tableName string, y indexYAML) *Index {
	index := NewIndex(schemaName, tableName, y.Name, y.Columns...)
	index.Unique = y.Unique
	index.Method = y.Method
	index.Where = y.Where
	return index
}

func (l *loader) loadTable(schemaName string, t tableYAML) error {
	table := NewTable(schemaName, t.Name)
	table.Unlogged = t.Unlogged
	table.PartitionKey = t.PartitionBy
	table.PartitionBound = t.PartitionBound
	table.Options = t.Options
	table.Engine = t.Engine
	if t.PartitionOf != "" {
		ref, err := parseRelation(TypeTable, t.PartitionOf, schemaName)
		if err != nil {
			return err
		}
		table.PartitionOf = &ref
	}
	for _, parent := range t.Inherits {
		ref, err := parseRelation(TypeTable, parent, schemaName)
		if err != nil {
			return err
		}
		table.Inherits = append(table.Inherits, ref)
	}
	if err := l.addObject(table, &table.Object, t.objectYAML); err != nil {
		return err
	}
	l.tables = append(l.tables, table)

	for _, c := range t.Columns {
		column := NewColumn(schemaName, t.Name, c.Name, c.Type)
		column.Collation = c.Collation
		column.Default = c.Default
		column.NotNull = c.NotNull
		column.Identity = c.Identity
		column.Generated = c.Generated
		if err := l.addObject(column, &column.Object, c.objectYAML); err != nil {
			return err
		}
	}
	for _, c := range t.Constraints {
		constraintType, err := ParseConstraintType(c.Type)
		if err != nil {
			return fmt.Errorf("constraint %s: %w", c.Name, err)
		}
		constraint := NewConstraint(schemaName, t.Name, c.Name, constraintType, c.Columns...)
		constraint.Expression = c.Expression
		constraint.OnDelete = c.OnDelete
		constraint.OnUpdate = c.OnUpdate
		constraint.NotValid = c.NotValid
		constraint.Inherited = c.Inherited
		if c.References != nil {
			ref, err := parseRelation(TypeTable, c.References.Table, schemaName)
			if err != nil {
				return fmt.Errorf("constraint %s: %w", c.Name, err)
			}
			constraint.RefTable = &ref
			constraint.RefColumns = c.References.Columns
		}
		if constraint.IsForeignKey() && constraint.RefTable == nil {
			return fmt.Errorf("foreign key %s without references", c.Name)
		}
		if err := l.addObject(constraint, &constraint.Object, c.objectYAML); err != nil {
			return err
		}
	}
	for _, idx := range t.Indexes {
		index := newIndexFromYAML(schemaName, t.Name, idx)
		if err := l.addObject(index, &index.Object, idx.objectYAML); err != nil {
			return err
		}
	}
	return nil
}

// addInheritedColumns adds the columns a table receives from its parents but does not declare itself.
// Parents are resolved first so multi-level chains pick up every column.
func (l *loader) addInheritedColumns() error {
	done := make(map[string]bool)
	var visit func(t *Table, path map[string]bool) error
	visit = func(t *Table, path map[string]bool) error {
		key := t.Ref.Key()
		if done[key] {
			return nil
		}
		if path[key] {
			return fmt.Errorf("table %s inherits from itself", t.Ref.QualifiedName())
		}
		path[key] = true
		defer delete(path, key)

		for _, parentRef := range t.GetParentTables() {
			parent, ok := l.db.GetStatement(parentRef).(*Table)
			if !ok {
				// The graph builder reports missing parents
				continue
			}
			if err := visit(parent, path); err != nil {
				return err
			}
			for _, pc := range l.db.GetColumns(parent.Ref) {
				childRef := NewReference(TypeColumn, t.schemaName(), t.GetName(), pc.GetName())
				if l.db.HasStatement(childRef) {
					continue
				}
				inherited := NewColumn(t.schemaName(), t.GetName(), pc.GetName(), pc.DataType)
				inherited.Collation = pc.Collation
				inherited.Default = pc.Default
				inherited.NotNull = pc.NotNull
				inherited.Generated = pc.Generated
				inherited.Inherited = true
				if err := l.db.Add(inherited); err != nil {
					return err
				}
			}
		}
		done[key] = true
		return nil
	}
	for _, t := range l.tables {
		if err := visit(t, make(map[string]bool)); err != nil {
			return err
		}
	}
	return nil
}
