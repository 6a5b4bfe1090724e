// Package table holds materialized query results. A Table is an immutable
// Arrow record plus the logical column types of its schema.
package table

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
)

type Column struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
}

type Schema []Column

func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, c := range s {
		names = append(names, c.Name)
	}
	return names
}

func (s Schema) Equal(to Schema) bool {
	if len(s) != len(to) {
		return false
	}
	for i := range s {
		if s[i].Type != to[i].Type {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	cols := make([]string, 0, len(s))
	for _, c := range s {
		cols = append(cols, c.Name+":"+c.Type.String())
	}
	return "{" + strings.Join(cols, ",") + "}"
}

func (s Schema) arrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s))
	for _, c := range s {
		fields = append(fields, arrow.Field{Name: c.Name, Type: c.Type.arrowType(), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

type Table struct {
	schema    Schema
	rec       arrow.Record
	fragments int
}

// New builds a table from row-major values. Each value is coerced to its
// column's type; see Coerce.
func New(schema Schema, rows [][]any) (*Table, error) {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema.arrowSchema())
	defer b.Release()
	b.Reserve(len(rows))
	for i, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d columns", i, len(row), len(schema))
		}
		for j, v := range row {
			v, err := Coerce(schema[j].Type, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, schema[j].Name, err)
			}
			appendValue(b.Field(j), v)
		}
	}
	return &Table{schema: schema, rec: b.NewRecord(), fragments: 1}, nil
}

// MustNew is like New but panics on error.
func MustNew(schema Schema, rows [][]any) *Table {
	t, err := New(schema, rows)
	if err != nil {
		panic(err)
	}
	return t
}

func Empty(schema Schema) *Table {
	return MustNew(schema, nil)
}

func appendValue(b array.Builder, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch b := b.(type) {
	case *array.Int64Builder:
		b.Append(v.(int64))
	case *array.Float64Builder:
		b.Append(v.(float64))
	case *array.StringBuilder:
		b.Append(v.(string))
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	default:
		b.AppendNull()
	}
}

func (t *Table) Schema() Schema {
	return t.schema
}

func (t *Table) Record() arrow.Record {
	return t.rec
}

func (t *Table) NumRows() int {
	return int(t.rec.NumRows())
}

// Fragments is the number of fragments the producing step split its
// output into.
func (t *Table) Fragments() int {
	if t.fragments < 1 {
		return 1
	}
	return t.fragments
}

func (t *Table) WithFragments(n int) *Table {
	out := *t
	out.fragments = n
	return &out
}

func (t *Table) Value(row, col int) any {
	arr := t.rec.Column(col)
	if arr.IsNull(row) {
		return nil
	}
	switch arr := arr.(type) {
	case *array.Int64:
		if t.schema[col].Type == Null {
			return nil
		}
		return arr.Value(row)
	case *array.Float64:
		return arr.Value(row)
	case *array.String:
		return arr.Value(row)
	case *array.Boolean:
		return arr.Value(row)
	}
	return nil
}

func (t *Table) Row(i int) []any {
	row := make([]any, len(t.schema))
	for j := range row {
		row[j] = t.Value(i, j)
	}
	return row
}

func (t *Table) Rows() [][]any {
	rows := make([][]any, t.NumRows())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// Slice drops the first offset rows and keeps at most limit of the rest.
// A zero limit keeps everything.
func (t *Table) Slice(offset, limit uint64) *Table {
	n := uint64(t.NumRows())
	if offset > n {
		offset = n
	}
	end := n
	if limit != 0 && offset+limit < n {
		end = offset + limit
	}
	if offset == 0 && end == n {
		return t
	}
	return &Table{schema: t.schema, rec: t.rec.NewSlice(int64(offset), int64(end)), fragments: 1}
}

// Concat appends the rows of tables, all of which must match schema.
func Concat(schema Schema, tables ...*Table) (*Table, error) {
	var rows [][]any
	for _, t := range tables {
		if !t.schema.Equal(schema) {
			return nil, fmt.Errorf("cannot concatenate %s with %s", t.schema, schema)
		}
		rows = append(rows, t.Rows()...)
	}
	return New(schema, rows)
}

func (t *Table) String() string {
	return fmt.Sprintf("table%s[%d rows]", t.schema, t.NumRows())
}
