package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"manualqa/internal"
	"manualqa/utils"
)

// Request describes one logical call
type Request struct {
	// Operation names the call in spans and error context, e.g. "query.ask"
	Operation string
	Method    string
	Path      string
	// Body is JSON-encoded once and replayed on every attempt
	Body   interface{}
	Header http.Header
	// Timeout overrides the per-attempt timeout when > 0
	Timeout time.Duration
	// Anonymous requests carry no credential and never refresh
	Anonymous bool
	// WrapBody, when set, wraps the encoded body of each attempt
	WrapBody func(r io.Reader, size int64) io.Reader
}

func (r *Request) operation() string {
	if r.Operation != "" {
		return r.Operation
	}
	return strings.ToLower(r.Method) + " " + r.Path
}

// callState is created fresh per logical call. Each retry flag is set before
// its retry is issued and never cleared.
type callState struct {
	operation string
	method    string
	path      string
	body      []byte
	header    http.Header
	requestID string
	attempt   int

	authRetried      bool
	rateLimitRetried bool
	networkRetried   bool
}

func newCallState(req *Request) (*callState, error) {
	if req == nil || req.Path == "" {
		return nil, fmt.Errorf("client: request path is required")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	state := &callState{
		operation: req.operation(),
		method:    strings.ToUpper(method),
		path:      req.Path,
		header:    req.Header.Clone(),
		requestID: uuid.NewString(),
	}

	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, internal.AsClassified(fmt.Errorf("encode %s body: %w", req.operation(), err))
		}
		state.body = encoded
	}
	return state, nil
}

type attemptOutcome struct {
	body       []byte
	failure    *internal.RawFailure
	receivedAt time.Time
}

// execute performs a single transport attempt under its own timeout
func (p *Pipeline) execute(ctx context.Context, req *Request, state *callState, bundle internal.Bundle) attemptOutcome {
	timeout := p.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := p.newHTTPRequest(attemptCtx, req, state, bundle)
	if err != nil {
		return attemptOutcome{failure: &internal.RawFailure{Err: err}, receivedAt: p.now()}
	}

	logger := internal.GetLogger()
	logger.LogHTTPRequest(httpReq)

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return attemptOutcome{failure: &internal.RawFailure{Err: err}, receivedAt: p.now()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	receivedAt := p.now()
	logger.LogHTTPResponse(resp, time.Since(start))
	if err != nil {
		return attemptOutcome{failure: &internal.RawFailure{Err: err}, receivedAt: receivedAt}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return attemptOutcome{
			failure: &internal.RawFailure{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       body,
			},
			receivedAt: receivedAt,
		}
	}
	return attemptOutcome{body: body, receivedAt: receivedAt}
}

// newHTTPRequest builds the attempt and runs the request middleware in
// order: request ID, user agent, JSON headers, credential.
func (p *Pipeline) newHTTPRequest(ctx context.Context, req *Request, state *callState, bundle internal.Bundle) (*http.Request, error) {
	var body io.Reader
	if state.body != nil {
		body = bytes.NewReader(state.body)
		if req.WrapBody != nil {
			body = req.WrapBody(body, int64(len(state.body)))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, state.method, utils.JoinURL(p.baseURL, state.path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if state.body != nil {
		httpReq.ContentLength = int64(len(state.body))
		encoded := state.body
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(encoded)), nil
		}
	}

	for name, values := range state.header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	httpReq.Header.Set("X-Request-ID", state.requestID)
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if state.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if bundle.IdentityToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bundle.IdentityToken)
	}
	return httpReq, nil
}
