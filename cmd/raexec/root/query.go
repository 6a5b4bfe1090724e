package root

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brimdata/raexec/runtime/exec"
)

// QueryFlags are the per-query options of the commands that execute plans.
type QueryFlags struct {
	Explain   bool
	Validate  bool
	Executor  string
	Fragments string
	Timeout   time.Duration
}

func (q *QueryFlags) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&q.Explain, "explain", false, "compile the first step and return its explanation instead of running the query")
	f.BoolVar(&q.Validate, "validate", false, "validate the query without producing rows")
	f.StringVar(&q.Executor, "executor", "native", "executor type (native, extern)")
	f.StringVar(&q.Fragments, "fragments", "", "comma-separated outer table fragments to scan")
	f.DurationVar(&q.Timeout, "timeout", 0, "abort the query after this long")
}

func (q *QueryFlags) Options(conf exec.Config) (exec.CompileOptions, exec.ExecOptions, error) {
	co := exec.DefaultCompileOptions(conf)
	eo := exec.DefaultExecOptions(conf)
	eo.JustExplain = q.Explain
	eo.JustValidate = q.Validate
	switch q.Executor {
	case "native":
		eo.Executor = exec.Native
	case "extern":
		eo.Executor = exec.Extern
	default:
		return co, eo, fmt.Errorf("unknown executor %q", q.Executor)
	}
	if q.Fragments != "" {
		for _, s := range strings.Split(q.Fragments, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return co, eo, fmt.Errorf("bad fragment %q", s)
			}
			eo.OuterFragments = append(eo.OuterFragments, n)
		}
	}
	return co, eo, nil
}

// Context bounds ctx by the timeout, if any.
func (q *QueryFlags) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.Timeout > 0 {
		return context.WithTimeout(ctx, q.Timeout)
	}
	return context.WithCancel(ctx)
}
