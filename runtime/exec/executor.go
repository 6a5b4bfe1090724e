package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/table"
)

// Executor runs work units on a device.
//
// ExecuteWorkUnit fails with ErrMustRunOnCPU when the unit cannot run on
// the requested device, ErrNativeExecution when native code generation
// fails, a *CardinalityEstimationRequired when a group-by needs a
// cardinality bound it was not given, and a *zqe.ExecError for failures
// that carry an executor code.
type Executor interface {
	ExecuteWorkUnit(context.Context, StepConfig) (*table.Table, error)
	// CountAll returns the number of rows the unit's inputs produce
	// after its filters.
	CountAll(ctx context.Context, wu *WorkUnit, co CompileOptions, eo ExecOptions) (uint64, error)
	// NDVEstimate approximates the number of distinct group keys.
	NDVEstimate(ctx context.Context, wu *WorkUnit, rangeHint int64, co CompileOptions, eo ExecOptions) (uint64, error)
}

type StepConfig struct {
	WorkUnit                 *WorkUnit
	Compile                  CompileOptions
	Exec                     ExecOptions
	GroupsBufferEntryGuess   uint64
	HasCardinalityEstimation bool
}

// TemporaryTables resolves inputs that were produced by earlier steps.
type TemporaryTables interface {
	Lookup(key int64) (*table.Table, bool)
}

// Translation is the executable form of a node's expressions.
type Translation struct {
	Quals     []plan.Expr
	JoinQuals []plan.Expr
	GroupBy   []plan.Expr
	Targets   []plan.Expr
	Args      []plan.Expr
	Schema    table.Schema
}

type Translator interface {
	Translate(n plan.Node, inputs []InputDesc) (*Translation, error)
}

type TableInfo struct {
	Name      string
	Schema    table.Schema
	Rows      uint64
	Fragments int
}

type SchemaProvider interface {
	TableInfo(name string) (TableInfo, error)
}

type Interrupter interface {
	ResetInterrupt()
	CheckInterrupt() error
}

type CardinalityCache interface {
	Get(ctx context.Context, key string) (uint64, bool, error)
	Put(ctx context.Context, key string, card uint64) error
}

var (
	ErrMustRunOnCPU          = errors.New("query must run in cpu mode")
	ErrNativeExecution       = errors.New("native code generation failed")
	ErrSpeculativeTopNFailed = errors.New("speculative top-n failed")
)

// CardinalityEstimationRequired is returned by an executor that needs a
// bound on the number of groups. Range is the span of the group key when
// known.
type CardinalityEstimationRequired struct {
	Range int64
}

func (c *CardinalityEstimationRequired) Error() string {
	return fmt.Sprintf("cardinality estimation required (range %d)", c.Range)
}
