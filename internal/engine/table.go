package engine

import (
	"fmt"
	"regexp"

	"github.com/celerix-dev/celerix-ledger/internal/validate"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// entityName keeps table names usable as file names.
var entityName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Column is a compiled entity field.
type Column struct {
	Name      string
	Type      schema.FieldType
	Validator validate.Kind // empty when the field is not checked
}

// Schema is the compiled, immutable form of a schema.Entity.
type Schema struct {
	Entity  string
	Columns []Column
	index   map[string]int
}

// Compile checks an entity definition and resolves its column types and
// validators. Unknown types or validator names are configuration errors.
func Compile(e schema.Entity) (*Schema, error) {
	if !entityName.MatchString(e.Name) {
		return nil, fmt.Errorf("invalid entity name %q", e.Name)
	}

	s := &Schema{Entity: e.Name, index: make(map[string]int, len(e.Fields))}
	for _, f := range e.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("entity %s: field with empty name", e.Name)
		}
		if schema.IsSystemField(f.Name) {
			return nil, fmt.Errorf("entity %s: field %s is reserved", e.Name, f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}

		typ := f.Type
		switch typ {
		case "":
			typ = schema.Text
		case schema.Text, schema.Number, schema.Compound:
		default:
			return nil, fmt.Errorf("entity %s: field %s has unknown type %q", e.Name, f.Name, f.Type)
		}

		s.index[f.Name] = len(s.Columns)
		s.Columns = append(s.Columns, Column{Name: f.Name, Type: typ})
	}

	for field, name := range e.Validators {
		i, ok := s.index[field]
		if !ok {
			return nil, fmt.Errorf("entity %s: validator on undeclared field %s", e.Name, field)
		}
		kind, err := validate.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("entity %s: field %s: %w", e.Name, field, err)
		}
		s.Columns[i].Validator = kind
	}

	return s, nil
}

// Column returns the declared column called name.
func (s *Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// TypeOf returns the type used to decode a column. Standard columns are
// text; columns outside the definition are undeclared.
func (s *Schema) TypeOf(name string) schema.FieldType {
	if c, ok := s.Column(name); ok {
		return c.Type
	}
	if schema.IsSystemField(name) {
		return schema.Text
	}
	return undeclared
}

// Header is the canonical on-disk column order: declared fields followed by
// the standard columns.
func (s *Schema) Header() []string {
	h := make([]string, 0, len(s.Columns)+len(schema.SystemFields))
	for _, c := range s.Columns {
		h = append(h, c.Name)
	}
	return append(h, schema.SystemFields...)
}

// Table is an entity's rows in memory. Columns holds the on-disk order,
// including any undeclared columns introduced by Create.
type Table struct {
	Columns []string
	Rows    []*schema.Record
}

// Index returns the position of the row with the given id, or -1.
func (t *Table) Index(id string) int {
	for i, r := range t.Rows {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// Find returns the row with the given id.
func (t *Table) Find(id string) (*schema.Record, bool) {
	if i := t.Index(id); i >= 0 {
		return t.Rows[i], true
	}
	return nil, false
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *Table) addColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// mergeColumns returns base followed by the entries of extra it lacks.
func mergeColumns(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, c := range group {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
