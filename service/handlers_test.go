package service_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/brimdata/raexec/api"
	"github.com/brimdata/raexec/api/client"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deptTotals = `
tables:
  - name: emp
    fragments: 2
    columns:
      - {name: dept, type: string}
      - {name: salary, type: int64}
    rows:
      - [eng, 100]
      - [ops, 50]
      - [eng, 20]
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
    collation: [{field: 1, desc: true}]
    limit: 10
`

const filtered = `
root: 2
nodes:
  - {id: 1, op: scan, table: emp}
  - {id: 2, op: filter, inputs: [1], condition: {op: ">", args: [{col: 1}, {lit: 30}]}}
`

type testClient struct {
	*client.Connection
	core *service.Core
}

func newCore(t *testing.T) *testClient {
	core, err := service.NewCore(service.Config{Exec: exec.DefaultConfig(), Version: "test"})
	require.NoError(t, err)
	srv := httptest.NewServer(core)
	t.Cleanup(srv.Close)
	return &testClient{client.NewConnectionTo(srv.URL), core}
}

func TestStatusAndVersion(t *testing.T) {
	c := newCore(t)
	_, err := c.Ping(context.Background())
	require.NoError(t, err)
	version, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", version)
}

func TestQuery(t *testing.T) {
	c := newCore(t)
	res, err := c.Query(context.Background(), api.QueryRequest{Plan: deptTotals})
	require.NoError(t, err)
	assert.Equal(t, []string{"dept", "total"}, res.Columns.Names())
	assert.Equal(t, [][]any{{"eng", 120.0}, {"ops", 50.0}}, res.Rows)

	tables, err := c.Tables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "emp", tables[0].Name)
	assert.EqualValues(t, 3, tables[0].Rows)
	assert.Equal(t, 2, tables[0].Fragments)

	// Later plans may scan tables loaded by earlier ones.
	res, err = c.Query(context.Background(), api.QueryRequest{Plan: filtered})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"eng", 100.0}, {"ops", 50.0}}, res.Rows)

	assert.Positive(t, counter(t, c.core, "raexec_steps_total"))
}

// counter sums the values of the counter name across its labels.
func counter(t *testing.T, core *service.Core, name string) float64 {
	families, err := core.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() == name {
			for _, m := range f.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func TestQueryFormats(t *testing.T) {
	c := newCore(t)
	t.Run("arrow", func(t *testing.T) {
		res, err := c.QueryFormat(context.Background(), api.QueryRequest{Plan: deptTotals}, api.MediaTypeArrow)
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, api.MediaTypeArrow, res.Header.Get("Content-Type"))
		r, err := ipc.NewReader(res.Body)
		require.NoError(t, err)
		defer r.Release()
		var rows int64
		for r.Next() {
			rows += r.Record().NumRows()
		}
		assert.EqualValues(t, 2, rows)
	})
	t.Run("text", func(t *testing.T) {
		res, err := c.QueryFormat(context.Background(), api.QueryRequest{Plan: deptTotals}, api.MediaTypeText)
		require.NoError(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, "DEPT TOTAL\neng  120\nops  50\n", string(b))
	})
	t.Run("unsupported", func(t *testing.T) {
		_, err := c.QueryFormat(context.Background(), api.QueryRequest{Plan: deptTotals}, "image/png")
		assertStatus(t, err, http.StatusBadRequest)
	})
}

func TestExplain(t *testing.T) {
	c := newCore(t)
	res, err := c.Explain(context.Background(), api.QueryRequest{Plan: deptTotals})
	require.NoError(t, err)
	assert.Contains(t, res.Explain, "Sort(#3")
	assert.Contains(t, res.Explain, "Compound(#2")
	assert.Zero(t, res.OuterFragments)

	_, err = c.Query(context.Background(), api.QueryRequest{Plan: deptTotals})
	require.NoError(t, err)
	res, err = c.Explain(context.Background(), api.QueryRequest{Plan: filtered})
	require.NoError(t, err)
	assert.Equal(t, 2, res.OuterFragments)
}

func TestSteps(t *testing.T) {
	c := newCore(t)
	steps, err := c.Steps(context.Background(), api.QueryRequest{Plan: deptTotals})
	require.NoError(t, err)
	expected := []api.StepResult{{Index: 0, NodeID: 2, Merge: "reduce", Rows: 2}}
	assert.Equal(t, expected, steps)
}

func TestErrors(t *testing.T) {
	c := newCore(t)
	_, err := c.Query(context.Background(), api.QueryRequest{Plan: "root: [oops"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = c.Query(context.Background(), api.QueryRequest{Plan: filtered})
	apiErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Contains(t, apiErr.Message, `unknown table "emp"`)

	_, err = c.Query(context.Background(), api.QueryRequest{Plan: deptTotals, Device: "tpu"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = c.Query(context.Background(), api.QueryRequest{Plan: deptTotals, Executor: "jit"})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestInterrupt(t *testing.T) {
	c := newCore(t)
	require.NoError(t, c.Interrupt(context.Background()))
	// An interrupt only stops queries running when it arrives.
	_, err := c.Query(context.Background(), api.QueryRequest{Plan: deptTotals})
	require.NoError(t, err)
}

func assertStatus(t *testing.T, err error, status int) *api.Error {
	var res *client.ErrorResponse
	require.True(t, errors.As(err, &res), "%v", err)
	assert.Equal(t, status, res.StatusCode)
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	return apiErr
}
