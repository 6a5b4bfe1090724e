// Package sequence turns a plan graph into the ordered list of steps the
// engine executes. Sort inputs and joins are absorbed into the steps that
// consume them and scans never become steps of their own.
package sequence

import (
	"fmt"
	"strings"

	"github.com/brimdata/raexec/compiler/dag"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/kr/text"
)

type Absorption int

const (
	NotAbsorbed Absorption = iota
	AbsorbedJoin
	AbsorbedSortInput
)

type Sequence struct {
	graph     *dag.Graph
	ordering  []int
	absorbed  map[int]Absorption
	descs     []*Descriptor
	cursor    int
	scanCount int
}

// New builds the sequence for the plan rooted at sink and materializes
// every step.
func New(sink plan.Node) (*Sequence, error) {
	s, err := NewLazy(sink)
	if err != nil {
		return nil, err
	}
	for s.Next() != nil {
	}
	return s, nil
}

// NewLazy builds the sequence for the plan rooted at sink. Steps are
// materialized one at a time by Next.
func NewLazy(sink plan.Node) (*Sequence, error) {
	g, err := dag.Build(sink)
	if err != nil {
		return nil, err
	}
	s := &Sequence{
		graph:    g,
		absorbed: make(map[int]Absorption),
	}
	if err := s.order(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromDescriptor returns a single-step sequence around d.
func FromDescriptor(d *Descriptor) *Sequence {
	return &Sequence{
		absorbed: make(map[int]Absorption),
		descs:    []*Descriptor{d},
	}
}

func (s *Sequence) order() error {
	ordering := s.graph.TopoOrder()
	// Sort inputs come out of the ordering entirely.
	for _, v := range ordering {
		if _, ok := s.graph.Node(v).(*plan.Sort); !ok {
			continue
		}
		in := s.graph.InEdges(v)
		if len(in) != 1 {
			return zqe.ErrInternal("%s has %d input edges", s.graph.Node(v), len(in))
		}
		input := in[0]
		if _, ok := s.graph.Node(input).(*plan.Scan); ok {
			return zqe.ErrPlanStructure("standalone sort of a table scan is not supported")
		}
		if s.graph.OutDegree(input) > 1 {
			return zqe.ErrPlanStructure("sort input %s is used by other operators", s.graph.Node(input))
		}
		s.absorbed[input] = AbsorbedSortInput
	}
	for _, v := range ordering {
		if s.absorbed[v] == AbsorbedSortInput {
			continue
		}
		s.ordering = append(s.ordering, v)
	}
	for _, v := range s.ordering {
		switch node := s.graph.Node(v).(type) {
		case *plan.LeftDeepInnerJoin:
			s.absorbed[v] = AbsorbedJoin
		case *plan.Join:
			out := s.graph.OutEdges(v)
			if len(out) != 1 {
				return zqe.ErrPlanStructure("%s is used more than once", node)
			}
			if _, ok := s.graph.Node(out[0]).(*plan.Join); ok {
				return zqe.ErrPlanStructure("%s feeds another join", node)
			}
			s.absorbed[v] = AbsorbedJoin
		}
	}
	return nil
}

func (s *Sequence) isScan(v int) bool {
	_, ok := s.graph.Node(v).(*plan.Scan)
	return ok
}

// Next materializes the next step or returns nil once every vertex has
// been visited.
func (s *Sequence) Next() *Descriptor {
	for s.cursor < len(s.ordering) {
		v := s.ordering[s.cursor]
		s.cursor++
		if s.absorbed[v] == AbsorbedJoin {
			continue
		}
		if s.isScan(v) {
			s.scanCount++
			continue
		}
		d := NewDescriptor(s.graph.Node(v))
		s.descs = append(s.descs, d)
		return d
	}
	return nil
}

// Prev returns the step materialized before the most recent one.
func (s *Sequence) Prev() *Descriptor {
	if len(s.descs) < 2 {
		return nil
	}
	return s.descs[len(s.descs)-2]
}

// Len is the number of steps materialized so far.
func (s *Sequence) Len() int {
	return len(s.descs)
}

func (s *Sequence) Empty() bool {
	return len(s.descs) == 0
}

func (s *Sequence) Descriptor(i int) *Descriptor {
	if i < 0 || i >= len(s.descs) {
		return nil
	}
	return s.descs[i]
}

func (s *Sequence) Graph() *dag.Graph {
	return s.graph
}

func (s *Sequence) ScanCount() int {
	return s.scanCount
}

// Absorbed reports how n was folded into another step, if at all.
func (s *Sequence) Absorbed(n plan.Node) Absorption {
	if s.graph == nil {
		return NotAbsorbed
	}
	v, ok := s.graph.Lookup(n)
	if !ok {
		return NotAbsorbed
	}
	return s.absorbed[v]
}

// DescriptorByBodyID searches backward from step start for the step
// whose body has the given id.
func (s *Sequence) DescriptorByBodyID(id uint, start int) *Descriptor {
	if start >= len(s.descs) {
		start = len(s.descs) - 1
	}
	for i := start; i >= 0; i-- {
		if s.descs[i].Body().ID() == id {
			return s.descs[i]
		}
	}
	return nil
}

// TotalDescriptors is the number of steps the sequence holds once fully
// materialized.
func (s *Sequence) TotalDescriptors() int {
	if s.graph == nil {
		return len(s.descs)
	}
	var n int
	for _, v := range s.ordering {
		if s.absorbed[v] == AbsorbedJoin || s.isScan(v) {
			continue
		}
		n++
	}
	return n
}

// NextStepID returns the index of the next step to execute. With
// afterBroadcast it skips the steps that can run before the next
// distributed merge. It returns false once every vertex has been visited.
func (s *Sequence) NextStepID(afterBroadcast bool) (int, bool) {
	if s.cursor == len(s.ordering) {
		return 0, false
	}
	if afterBroadcast {
		return len(s.descs) + s.StepsToNextBroadcast(), true
	}
	return len(s.descs), true
}

// ExecutionFinished reports whether no more steps need to be dispatched
// to compute leaves.
func (s *Sequence) ExecutionFinished() bool {
	if s.TotalDescriptors() == 1 {
		return true
	}
	if s.cursor == len(s.ordering) {
		return true
	}
	next, ok := s.NextStepID(true)
	return !ok || next == s.TotalDescriptors()
}

// StepsToNextBroadcast counts the steps from the cursor that can be
// pipelined on compute leaves before results must be merged.
func (s *Sequence) StepsToNextBroadcast() int {
	var steps int
	v := s.cursor
	for v < len(s.ordering) {
		vertex := s.ordering[v]
		v++
		node := s.graph.Node(vertex)
		if s.absorbed[vertex] == AbsorbedJoin {
			if hasScanInput(node) {
				return steps
			}
			if v < len(s.ordering)-1 {
				// The join's consumer runs on the aggregator.
				steps++
				v++
				continue
			}
			return steps + 1
		}
		if sort, ok := node.(*plan.Sort); ok {
			node = sort.Input(0)
		}
		if _, ok := node.(*plan.Scan); ok {
			return steps
		}
		if project, ok := node.(*plan.Project); ok && project.HasWindowFunctions() {
			steps++
			continue
		}
		if hasScanInput(node) {
			return steps
		}
		steps++
	}
	return steps
}

func hasScanInput(n plan.Node) bool {
	for _, in := range n.Inputs() {
		if _, ok := in.(*plan.Scan); ok {
			return true
		}
	}
	return false
}

// Partition classifies every vertex of the graph. Steps are the bodies
// materialized so far.
func (s *Sequence) Partition() (steps, absorbed, scans []plan.Node) {
	for _, d := range s.descs {
		steps = append(steps, d.Body())
	}
	if s.graph == nil {
		return
	}
	for v := 0; v < s.graph.Len(); v++ {
		switch {
		case s.isScan(v):
			scans = append(scans, s.graph.Node(v))
		case s.absorbed[v] != NotAbsorbed:
			absorbed = append(absorbed, s.graph.Node(v))
		}
	}
	return
}

// Explain renders the steps last to first, each one indented a level
// deeper than the step that consumes it.
func (s *Sequence) Explain() string {
	var b strings.Builder
	for i, depth := len(s.descs)-1, 0; i >= 0; i, depth = i-1, depth+1 {
		body := s.descs[i].Body()
		entry := fmt.Sprintf("%d : %s\n", i+1, body)
		switch body := body.(type) {
		case *plan.Sort:
			entry += fmt.Sprintf("  : %s\n", body.Input(0))
		case *plan.Project, *plan.Compound:
			if join, ok := body.Input(0).(*plan.LeftDeepInnerJoin); ok {
				entry += fmt.Sprintf("  : %s\n", join)
			}
		}
		b.WriteString(text.Indent(entry, strings.Repeat("\t", depth)))
	}
	return b.String()
}
