package sequence

import (
	"time"

	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
)

// Result is the materialized output of a step.
type Result struct {
	Table       *table.Table
	Schema      table.Schema
	QueueTime   time.Duration
	ExecTime    time.Duration
	Explanation string
}

func (r *Result) RowCount() int {
	if r == nil || r.Table == nil {
		return 0
	}
	return r.Table.NumRows()
}

// Descriptor pairs a step's operator node with its result, which stays
// nil until the step has executed.
type Descriptor struct {
	body   plan.Node
	result *Result
}

func NewDescriptor(body plan.Node) *Descriptor {
	return &Descriptor{body: body}
}

func (d *Descriptor) Body() plan.Node {
	return d.body
}

func (d *Descriptor) Result() *Result {
	return d.result
}

func (d *Descriptor) SetResult(r *Result) {
	d.result = r
}

func (d *Descriptor) HasResult() bool {
	return d.result != nil
}
