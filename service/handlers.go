package service

import (
	"context"
	"net/http"
	"time"

	"github.com/brimdata/raexec/api"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/plan"
	"github.com/brimdata/raexec/plan/planio"
	"github.com/brimdata/raexec/runtime/exec"
	"go.uber.org/zap"
)

func handleVersion(c *Core, w *ResponseWriter, r *Request) {
	w.Respond(http.StatusOK, api.VersionResponse{Version: c.conf.Version})
}

func handleTables(c *Core, w *ResponseWriter, r *Request) {
	res := api.TablesResponse{Tables: []api.TableInfo{}}
	for _, name := range c.catalog.Names() {
		info, err := c.catalog.TableInfo(name)
		if err != nil {
			w.Error(err)
			return
		}
		res.Tables = append(res.Tables, api.TableInfo{
			Name:      info.Name,
			Columns:   info.Schema,
			Rows:      info.Rows,
			Fragments: info.Fragments,
		})
	}
	w.Respond(http.StatusOK, res)
}

func handleExplain(c *Core, w *ResponseWriter, r *Request) {
	root, _, eo, ok := c.parseQuery(w, r)
	if !ok {
		return
	}
	explain, err := c.engine.Explain(root)
	if err != nil {
		w.Error(err)
		return
	}
	n, err := c.engine.OuterFragmentCount(root, eo)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, api.ExplainResponse{Explain: explain, OuterFragments: n})
}

func handleQuery(c *Core, w *ResponseWriter, r *Request) {
	root, co, eo, ok := c.parseQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := r.timeout()
	defer cancel()
	ctx, done := c.track(ctx)
	defer done()
	start := time.Now()
	res, err := c.engine.Fork().ExecuteQuery(ctx, root, co, eo)
	if err != nil {
		w.Error(err)
		return
	}
	if res == nil || res.Table == nil {
		w.Error(zqe.ErrInternal("query produced no result"))
		return
	}
	r.Logger.Info("Query completed",
		zap.Int("rows", res.RowCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	w.Result(res, time.Since(start))
}

// handleSteps runs the steps of a plan one at a time through the
// single-step interface, reporting how each partial result would be
// merged by a coordinator.
func handleSteps(c *Core, w *ResponseWriter, r *Request) {
	root, co, eo, ok := c.parseQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := r.timeout()
	defer cancel()
	engine := c.engine.Fork()
	seq, err := engine.ConstructSequence(root)
	if err != nil {
		w.Error(err)
		return
	}
	ctx, done := c.track(ctx)
	defer done()
	res := api.StepsResponse{Steps: []api.StepResult{}}
	for i := 0; i < seq.Len(); i++ {
		step, err := engine.ExecuteSingleStep(ctx, seq, i, co, eo)
		if err != nil {
			w.Error(err)
			return
		}
		res.Steps = append(res.Steps, api.StepResult{
			Index:  i,
			NodeID: step.NodeID,
			Merge:  step.Merge.String(),
			Rows:   step.Result.RowCount(),
		})
	}
	w.Respond(http.StatusOK, res)
}

func handleInterrupt(c *Core, w *ResponseWriter, r *Request) {
	n := c.interrupt()
	r.Logger.Info("Interrupt requested", zap.Int("running", n))
	w.WriteHeader(http.StatusNoContent)
}

// parseQuery decodes a query request, adds the tables its plan document
// carries to the catalog and returns the plan with its options.
func (c *Core) parseQuery(w *ResponseWriter, r *Request) (plan.Node, exec.CompileOptions, exec.ExecOptions, bool) {
	var co exec.CompileOptions
	var eo exec.ExecOptions
	var req api.QueryRequest
	if !r.Unmarshal(w, &req) {
		return nil, co, eo, false
	}
	doc, err := planio.Parse([]byte(req.Plan))
	if err != nil {
		w.Error(zqe.ErrInvalid(err))
		return nil, co, eo, false
	}
	co, eo, err = c.options(req)
	if err != nil {
		w.Error(err)
		return nil, co, eo, false
	}
	for _, t := range doc.Tables {
		c.catalog.Add(t.Name, t.Data.WithFragments(t.Fragments))
	}
	r.timeoutMS = req.Timeout
	return doc.Root, co, eo, true
}

func (c *Core) options(req api.QueryRequest) (exec.CompileOptions, exec.ExecOptions, error) {
	co := exec.DefaultCompileOptions(c.conf.Exec)
	eo := exec.DefaultExecOptions(c.conf.Exec)
	if req.Device != "" {
		device, err := exec.ParseDevice(req.Device)
		if err != nil {
			return co, eo, zqe.ErrInvalid(err)
		}
		co.Device = device
	}
	switch req.Executor {
	case "", "native":
		eo.Executor = exec.Native
	case "extern":
		eo.Executor = exec.Extern
	default:
		return co, eo, zqe.ErrInvalid("unknown executor %q", req.Executor)
	}
	eo.JustExplain = req.JustExplain
	eo.JustValidate = req.JustValidate
	eo.OuterFragments = req.OuterFragments
	return co, eo, nil
}

func (r *Request) timeout() (context.Context, context.CancelFunc) {
	if r.timeoutMS > 0 {
		return context.WithTimeout(r.Context(), time.Duration(r.timeoutMS)*time.Millisecond)
	}
	return context.WithCancel(r.Context())
}
