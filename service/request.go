package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brimdata/raexec/api"
	"github.com/brimdata/raexec/compiler/sequence"
	"github.com/brimdata/raexec/errors"
	"github.com/brimdata/raexec/table/tableio"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Request struct {
	*http.Request
	Logger *zap.Logger
	// timeoutMS bounds the execution of the request's query.
	timeoutMS int64
}

func newRequest(w http.ResponseWriter, r *http.Request, c *Core) (*ResponseWriter, *Request, bool) {
	req := &Request{Request: r}
	req.Logger = c.logger.With(zap.String("request_id", req.ID()))
	res := &ResponseWriter{
		ResponseWriter: w,
		Logger:         req.Logger,
		request:        req,
	}
	for _, mime := range strings.Split(r.Header.Get("Accept"), ",") {
		format, err := api.MediaTypeToFormat(mime, c.conf.DefaultResponseFormat)
		if err != nil {
			continue
		}
		res.Format = format
		return res, req, true
	}
	res.Error(zqe.ErrInvalid("could not find supported MIME type in Accept header"))
	return nil, nil, false
}

func (r *Request) ID() string {
	return api.RequestIDFromContext(r.Context())
}

func (r *Request) Unmarshal(w *ResponseWriter, body interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		w.Error(zqe.ErrInvalid(err))
		return false
	}
	return true
}

type ResponseWriter struct {
	http.ResponseWriter
	Format  string
	Logger  *zap.Logger
	request *Request
	written int32
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	if atomic.CompareAndSwapInt32(&w.written, 0, 1) {
		w.Header().Set("Content-Type", api.FormatToMediaType(w.Format))
	}
	return w.ResponseWriter.Write(b)
}

// Respond writes body as JSON whatever the requested format.
func (w *ResponseWriter) Respond(status int, body interface{}) bool {
	if !atomic.CompareAndSwapInt32(&w.written, 0, 1) {
		return false
	}
	w.Header().Set("Content-Type", api.MediaTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w.ResponseWriter).Encode(body); err != nil {
		w.Logger.Warn("Error writing response", zap.Error(err))
		return false
	}
	return true
}

// Result writes the table of res in the requested format.
func (w *ResponseWriter) Result(res *sequence.Result, elapsed time.Duration) bool {
	switch w.Format {
	case "arrow":
		aw := tableio.NewArrowWriter(w)
		err := multierr.Append(aw.Write(res.Table), aw.Close())
		return w.check(err)
	case "text":
		return w.check(tableio.NewTableWriter(w).Write(res.Table))
	}
	return w.Respond(http.StatusOK, api.QueryResponse{
		Columns:     res.Table.Schema(),
		Rows:        res.Table.Rows(),
		Explanation: res.Explanation,
		ExecTime:    elapsed.Milliseconds(),
	})
}

func (w *ResponseWriter) check(err error) bool {
	if err != nil {
		w.Error(err)
		return false
	}
	return true
}

func (w *ResponseWriter) Error(err error) {
	if err == context.Canceled && err == w.request.Context().Err() {
		w.Logger.Info("Request context canceled")
		return
	}
	status, res := errorResponse(err)
	if status >= 500 {
		w.Logger.Warn("Error", zap.Int("status", status), zap.Error(err))
	}
	if atomic.CompareAndSwapInt32(&w.written, 0, 1) {
		respondError(w.ResponseWriter, status, res)
	} else {
		w.Logger.Warn("Error after response started", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, res := errorResponse(err)
	respondError(w, status, res)
}

func respondError(w http.ResponseWriter, status int, res *api.Error) {
	w.Header().Set("Content-Type", api.MediaTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

func errorResponse(e error) (status int, ae *api.Error) {
	status = http.StatusInternalServerError
	ae = &api.Error{Type: "Error"}

	var xe *zqe.ExecError
	if errors.As(e, &xe) {
		ae.Code = int32(xe.Code)
	}

	var ze *zqe.Error
	if !errors.As(e, &ze) {
		ae.Message = e.Error()
		return
	}

	switch ze.Kind {
	case zqe.Invalid, zqe.PlanStructure:
		status = http.StatusBadRequest
	case zqe.DeviceIncompatible, zqe.NativeCodegen:
		status = http.StatusUnprocessableEntity
	case zqe.ResourceExhausted:
		status = http.StatusInsufficientStorage
	case zqe.Interrupted:
		status = http.StatusServiceUnavailable
	case zqe.TimedOut:
		status = http.StatusRequestTimeout
	}

	ae.Kind = ze.Kind.String()
	ae.Message = ze.Message()
	return
}
