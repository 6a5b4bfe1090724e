// Package client is a Go client for the raexec service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/brimdata/raexec/api"
)

const (
	// DefaultPort is the port the service listens on by default.
	DefaultPort      = 9868
	DefaultUserAgent = "raexec-client-golang"
)

type Connection struct {
	client        *http.Client
	defaultHeader http.Header
	hostURL       string
}

// NewConnection creates a connection to http://localhost:DefaultPort.
func NewConnection() *Connection {
	return NewConnectionTo("http://localhost:" + strconv.Itoa(DefaultPort))
}

// NewConnectionTo creates a connection to the service at hostURL.
func NewConnectionTo(hostURL string) *Connection {
	h := http.Header{
		"Accept":     []string{api.MediaTypeJSON},
		"User-Agent": []string{DefaultUserAgent},
	}
	return &Connection{
		client:        &http.Client{},
		defaultHeader: h,
		hostURL:       hostURL,
	}
}

func (c *Connection) ClientHostURL() string {
	return c.hostURL
}

type Response struct {
	*http.Response
	Duration time.Duration
}

// Do sends a request with a JSON encoded body, if any, and returns an
// *ErrorResponse for responses outside the 2xx range.
func (c *Connection) Do(ctx context.Context, method, path string, body interface{}, accept string) (*Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.hostURL+path, r)
	if err != nil {
		return nil, err
	}
	for key, val := range c.defaultHeader {
		req.Header[key] = val
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != nil {
		req.Header.Set("Content-Type", api.MediaTypeJSON)
	}
	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, parseError(res)
	}
	return &Response{Response: res, Duration: time.Since(start)}, nil
}

func (c *Connection) doAndUnmarshal(ctx context.Context, method, path string, body, out interface{}) error {
	res, err := c.Do(ctx, method, path, body, api.MediaTypeJSON)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(out)
}

// parseError parses an error from an http.Response with an error status
// code. Errors are JSON unless the response says otherwise.
func parseError(r *http.Response) error {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	resErr := &ErrorResponse{Response: r}
	if r.Header.Get("Content-Type") == api.MediaTypeJSON {
		var apierr api.Error
		if err := json.Unmarshal(body, &apierr); err != nil {
			return err
		}
		resErr.Err = &apierr
	} else {
		resErr.Err = errors.New(string(body))
	}
	return resErr
}

// Ping checks that the service is up and measures the round trip.
func (c *Connection) Ping(ctx context.Context) (time.Duration, error) {
	res, err := c.Do(ctx, http.MethodGet, "/status", nil, "")
	if err != nil {
		return 0, err
	}
	res.Body.Close()
	return res.Duration, nil
}

func (c *Connection) Version(ctx context.Context) (string, error) {
	var res api.VersionResponse
	err := c.doAndUnmarshal(ctx, http.MethodGet, "/version", nil, &res)
	return res.Version, err
}

func (c *Connection) Tables(ctx context.Context) ([]api.TableInfo, error) {
	var res api.TablesResponse
	err := c.doAndUnmarshal(ctx, http.MethodGet, "/tables", nil, &res)
	return res.Tables, err
}

func (c *Connection) Explain(ctx context.Context, req api.QueryRequest) (api.ExplainResponse, error) {
	var res api.ExplainResponse
	err := c.doAndUnmarshal(ctx, http.MethodPost, "/explain", req, &res)
	return res, err
}

func (c *Connection) Query(ctx context.Context, req api.QueryRequest) (api.QueryResponse, error) {
	var res api.QueryResponse
	err := c.doAndUnmarshal(ctx, http.MethodPost, "/query", req, &res)
	return res, err
}

// QueryFormat runs req and returns the raw response in the format of the
// media type accept. The caller must close the response body.
func (c *Connection) QueryFormat(ctx context.Context, req api.QueryRequest, accept string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/query", req, accept)
}

func (c *Connection) Steps(ctx context.Context, req api.QueryRequest) ([]api.StepResult, error) {
	var res api.StepsResponse
	err := c.doAndUnmarshal(ctx, http.MethodPost, "/steps", req, &res)
	return res.Steps, err
}

// Interrupt asks the service to interrupt the queries it is running.
func (c *Connection) Interrupt(ctx context.Context) error {
	res, err := c.Do(ctx, http.MethodPost, "/interrupt", nil, "")
	if err != nil {
		return err
	}
	return res.Body.Close()
}

type ErrorResponse struct {
	*http.Response
	Err error
}

func (e *ErrorResponse) Unwrap() error {
	return e.Err
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("status code %d: %v", e.StatusCode, e.Err)
}
