package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Field describes one named, typed column.
type Field struct {
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"kind" json:"kind"`
}

// FieldError reports a schema problem with a named field.
type FieldError struct {
	Table  string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("model: table %s field %s: %s", e.Table, e.Field, e.Reason)
}

// Schema is an ordered set of fields shared by every record of a table.
type Schema struct {
	fields []Field
	index  map[string]int
}

func newSchema(fields []Field) *Schema {
	s := &Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if _, ok := s.index[f.Name]; ok {
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Record is one row: an ordered mapping from field name to value.
type Record struct {
	schema *Schema
	values []Value
}

// Get returns the value of the named field. ok is false if the field is not
// in the schema.
func (r *Record) Get(name string) (Value, bool) {
	i, ok := r.schema.index[name]
	if !ok {
		return Null(), false
	}
	return r.At(i), true
}

// Field returns the schema field for name.
func (r *Record) Field(name string) (Field, bool) {
	i, ok := r.schema.index[name]
	if !ok {
		return Field{}, false
	}
	return r.schema.fields[i], true
}

// At returns the value at field position i. Fields added to the schema after
// the record was created read as null.
func (r *Record) At(i int) Value {
	if i >= len(r.values) {
		return Null()
	}
	return r.values[i]
}

// Set writes the named field. The value is coerced to the field's kind.
func (r *Record) Set(name string, v Value) error {
	i, ok := r.schema.index[name]
	if !ok {
		return eris.Wrapf(&FieldError{Field: name, Reason: "not in schema"}, "model: set")
	}
	return r.SetAt(i, v)
}

// SetAt writes field position i, coercing to the field's kind.
func (r *Record) SetAt(i int, v Value) error {
	cv, err := Coerce(v, r.schema.fields[i].Kind)
	if err != nil {
		return eris.Wrapf(err, "model: set %s", r.schema.fields[i].Name)
	}
	for len(r.values) <= i {
		r.values = append(r.values, Null())
	}
	r.values[i] = cv
	return nil
}

// Values returns a copy of the record's values in schema order.
func (r *Record) Values() []Value {
	out := make([]Value, len(r.schema.fields))
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Table is a named, fully materialized attribute table.
type Table struct {
	Name   string
	schema *Schema
	rows   []*Record
}

// NewTable creates an empty table with the given fields. Duplicate field
// names keep the first occurrence.
func NewTable(name string, fields ...Field) *Table {
	return &Table{Name: name, schema: newSchema(fields)}
}

// Fields returns the table's fields in order.
func (t *Table) Fields() []Field {
	out := make([]Field, len(t.schema.fields))
	copy(out, t.schema.fields)
	return out
}

// Field returns the named field.
func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.schema.index[name]
	if !ok {
		return Field{}, false
	}
	return t.schema.fields[i], true
}

// Index returns the position of the named field, or -1.
func (t *Table) Index(name string) int {
	i, ok := t.schema.index[name]
	if !ok {
		return -1
	}
	return i
}

// HasField reports whether the named field exists.
func (t *Table) HasField(name string) bool {
	_, ok := t.schema.index[name]
	return ok
}

// RequireFields returns a *FieldError for the first missing name.
func (t *Table) RequireFields(names ...string) error {
	for _, n := range names {
		if !t.HasField(n) {
			return &FieldError{Table: t.Name, Field: n, Reason: "missing"}
		}
	}
	return nil
}

// EnsureField adds the field if it does not exist. It reports whether the
// field was created. An existing field with a different kind is left as is.
func (t *Table) EnsureField(name string, kind Kind) bool {
	if t.HasField(name) {
		return false
	}
	t.schema.index[name] = len(t.schema.fields)
	t.schema.fields = append(t.schema.fields, Field{Name: name, Kind: kind})
	return true
}

// Append adds a row built from values in schema order. Missing trailing
// values are null; values are coerced to their field kinds.
func (t *Table) Append(values ...Value) (*Record, error) {
	if len(values) > len(t.schema.fields) {
		return nil, eris.Errorf("model: table %s: %d values for %d fields", t.Name, len(values), len(t.schema.fields))
	}
	r := &Record{schema: t.schema, values: make([]Value, len(t.schema.fields))}
	for i, v := range values {
		if err := r.SetAt(i, v); err != nil {
			return nil, eris.Wrapf(err, "model: table %s row %d", t.Name, len(t.rows))
		}
	}
	t.rows = append(t.rows, r)
	return r, nil
}

// Rows returns the table's records. Records are shared, not copied.
func (t *Table) Rows() []*Record { return t.rows }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Filter returns a new table with the same schema holding copies of the rows
// for which keep returns true.
func (t *Table) Filter(name string, keep func(*Record) bool) *Table {
	out := NewTable(name, t.Fields()...)
	for _, r := range t.rows {
		if !keep(r) {
			continue
		}
		out.rows = append(out.rows, &Record{schema: out.schema, values: r.Values()})
	}
	return out
}
