package exec

import (
	"fmt"
	"strings"

	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/plan"
	"github.com/kr/text"
)

// Explain renders the steps of root last to first followed by the steps
// of each of its subqueries.
func (e *Engine) Explain(root plan.Node) (string, error) {
	seq, err := sequence.New(root)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(seq.Explain())
	subqueries := plan.Subqueries(root)
	if len(subqueries) == 0 {
		return b.String(), nil
	}
	b.WriteString("Subqueries:\n")
	for _, sq := range subqueries {
		sub, err := sequence.New(sq.Root)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s\n", sq)
		b.WriteString(text.Indent(sub.Explain(), "\t"))
	}
	return b.String(), nil
}

// OuterFragmentCount returns the number of fragments of the outer table
// of a single-step query, which a coordinator uses to split the query
// across compute leaves. It returns zero for queries that cannot be split
// that way.
func (e *Engine) OuterFragmentCount(root plan.Node, eo ExecOptions) (int, error) {
	if eo.JustExplain || len(plan.Subqueries(root)) > 0 {
		return 0, nil
	}
	seq, err := sequence.New(root)
	if err != nil {
		return 0, err
	}
	if seq.Len() != 1 {
		return 0, nil
	}
	body := seq.Descriptor(0).Body()
	switch body.(type) {
	case *plan.Compound, *plan.Project, *plan.Filter:
	default:
		return 0, nil
	}
	if plan.IsAggregate(body) {
		return 0, nil
	}
	r := e.newRun()
	inputs, err := r.inputDescs(body)
	if err != nil {
		return 0, err
	}
	if len(inputs) == 0 || inputs[0].Source != FromTable {
		return 0, nil
	}
	return inputs[0].Fragments, nil
}
