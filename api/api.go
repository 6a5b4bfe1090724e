// Package api defines the requests and responses of the raexec service.
package api

import (
	"context"

	"github.com/brimdata/raexec/table"
)

const RequestIDHeader = "X-Request-ID"

func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(RequestIDHeader); v != nil {
		return v.(string)
	}
	return ""
}

type Error struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
	// Code is the executor error code behind the error, if any.
	Code int32 `json:"code,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

type VersionResponse struct {
	Version string `json:"version"`
}

// QueryRequest carries a plan document in YAML along with the options
// it runs under.
type QueryRequest struct {
	Plan           string `json:"plan"`
	Device         string `json:"device,omitempty"`
	Executor       string `json:"executor,omitempty"`
	JustExplain    bool   `json:"just_explain,omitempty"`
	JustValidate   bool   `json:"just_validate,omitempty"`
	OuterFragments []int  `json:"outer_fragments,omitempty"`
	// Timeout bounds the execution in milliseconds.
	Timeout int64 `json:"timeout,omitempty"`
}

type QueryResponse struct {
	Columns     table.Schema `json:"columns"`
	Rows        [][]any      `json:"rows"`
	Explanation string       `json:"explanation,omitempty"`
	// ExecTime is in milliseconds.
	ExecTime int64 `json:"exec_time"`
}

type ExplainResponse struct {
	Explain        string `json:"explain"`
	OuterFragments int    `json:"outer_fragments"`
}

type StepResult struct {
	Index  int    `json:"index"`
	NodeID uint   `json:"node_id"`
	Merge  string `json:"merge"`
	Rows   int    `json:"rows"`
}

type StepsResponse struct {
	Steps []StepResult `json:"steps"`
}

type TableInfo struct {
	Name      string       `json:"name"`
	Columns   table.Schema `json:"columns"`
	Rows      uint64       `json:"rows"`
	Fragments int          `json:"fragments"`
}

type TablesResponse struct {
	Tables []TableInfo `json:"tables"`
}
