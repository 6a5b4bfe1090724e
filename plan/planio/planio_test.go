package planio

import (
	"testing"

	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sortedCompound = `
tables:
  - name: emp
    fragments: 2
    columns:
      - {name: dept, type: string}
      - {name: salary, type: int64}
    rows:
      - [eng, 100]
      - [ops, 50]
root: 3
nodes:
  - id: 1
    op: scan
    table: emp
  - id: 2
    op: compound
    inputs: [1]
    filter: {op: ">", args: [{col: 1}, {lit: 10}]}
    group_by: [{col: 0}]
    exprs: [{col: 0}, {agg: sum, arg: {col: 1}}]
    names: [dept, total]
  - id: 3
    op: sort
    inputs: [2]
    hints: {cpu_mode: true}
    collation: [{field: 1, desc: true}]
    limit: 10
`

func TestRead(t *testing.T) {
	doc, err := Parse([]byte(sortedCompound))
	require.NoError(t, err)
	require.Len(t, doc.Tables, 1)
	assert.Equal(t, 2, doc.Tables[0].Fragments)
	assert.Equal(t, 2, doc.Tables[0].Data.NumRows())

	sort, ok := doc.Root.(*plan.Sort)
	require.True(t, ok)
	assert.EqualValues(t, 10, sort.Limit)
	assert.True(t, sort.Hints().CPUMode)
	assert.Equal(t, []plan.SortField{{Field: 1, Desc: true}}, sort.Collation)

	compound, ok := sort.Input(0).(*plan.Compound)
	require.True(t, ok)
	assert.True(t, compound.IsAggregate())
	assert.Equal(t, "($1 > 10)", compound.Filter.String())
	assert.Equal(t, "SUM($1)", compound.Targets[1].String())

	scan, ok := compound.Input(0).(*plan.Scan)
	require.True(t, ok)
	assert.Equal(t, table.Schema{{Name: "dept", Type: table.String}, {Name: "salary", Type: table.Int64}}, scan.Schema)
}

func TestReadSharesNodes(t *testing.T) {
	doc, err := Parse([]byte(`
root: 4
nodes:
  - {id: 1, op: scan, table: t}
  - {id: 2, op: filter, inputs: [1], condition: {op: not, args: [{col: 0}]}}
  - {id: 3, op: filter, inputs: [1], condition: {op: "=", args: [{col: 0}, {subquery: 5}]}}
  - {id: 4, op: join, inputs: [2, 3], join_type: left}
  - {id: 5, op: values, columns: [{name: x, type: int64}], rows: [[{lit: 1}], [{null: true}]]}
`))
	require.NoError(t, err)
	join := doc.Root.(*plan.Join)
	assert.Equal(t, plan.LeftJoin, join.Type)
	assert.Same(t, join.Input(0).Input(0), join.Input(1).Input(0))
	subs := plan.Subqueries(doc.Root)
	require.Len(t, subs, 1)
	values := subs[0].Root.(*plan.LogicalValues)
	assert.Equal(t, "NULL", values.Rows[1][0].String())
	assert.Equal(t, int64(1), values.Rows[0][0].(*plan.Literal).Value)
}

func TestReadErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		err  string
	}{
		{"undefined", "root: 2\nnodes: [{id: 1, op: scan}]", "node 2 is not defined"},
		{"cycle", "root: 1\nnodes: [{id: 1, op: filter, inputs: [2]}, {id: 2, op: filter, inputs: [1]}]", "cycle"},
		{"duplicate", "root: 1\nnodes: [{id: 1, op: scan}, {id: 1, op: scan}]", "duplicate node id 1"},
		{"unknown op", "root: 1\nnodes: [{id: 1, op: explode}]", `unknown op "explode"`},
		{"unknown field", "root: 1\nnodes: [{id: 1, op: scan, bogus: 1}]", "bogus"},
		{"bad aggregate", "root: 2\nnodes: [{id: 1, op: scan}, {id: 2, op: aggregate, inputs: [1], aggs: [{col: 0}]}]", "is not an aggregate"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.doc))
			assert.ErrorContains(t, err, c.err)
		})
	}
}
