// Package executor runs a single chain link: it resolves templates, issues
// the HTTP request, validates the status, applies extraction rules, and
// registers captures in the variable store.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"chainforge/internal/auth"
	"chainforge/internal/definition"
	"chainforge/internal/logging"
	"chainforge/internal/template"
	"chainforge/internal/util"
	"chainforge/internal/vars"

	"github.com/tidwall/gjson"
)

// Reason is the machine-readable failure code recorded on a failed link.
type Reason string

const (
	ReasonTemplateError    Reason = "TemplateError"
	ReasonTransportError   Reason = "TransportError"
	ReasonUnexpectedStatus Reason = "UnexpectedStatus"
	ReasonExtractionError  Reason = "ExtractionError"
	ReasonChainTimeout     Reason = "ChainTimeout"
)

// Outcome is the result of executing one link.
type Outcome struct {
	HTTPStatus int
	Extracted  map[string]any
	Capture    *vars.Capture
	Reason     Reason // empty on success
	Err        error  // nil on success
}

// Succeeded reports whether the link completed without failure.
func (o Outcome) Succeeded() bool { return o.Err == nil }

func failed(reason Reason, err error) Outcome {
	return Outcome{Reason: reason, Err: err}
}

// sleepFunc pauses between retry attempts; injectable for tests.
type sleepFunc func(context.Context, time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Executor executes links against one chain's HTTP client and auth settings.
type Executor struct {
	client  *http.Client
	authCfg *definition.AuthConfig
	sleep   sleepFunc
}

// New creates a link executor.
func New(client *http.Client, authCfg *definition.AuthConfig) *Executor {
	return &Executor{client: client, authCfg: authCfg, sleep: defaultSleep}
}

// ExecuteLink runs one link to a terminal outcome. The context carries the
// chain's global deadline; a per-link timeoutSecs bounds only this link's
// call. Failure reasons follow the link pipeline: template resolution failure
// means no network call is made; an unexpected status still registers the
// capture so downstream results can be inspected; a failing extraction keeps
// the extractions already applied.
func (e *Executor) ExecuteLink(ctx context.Context, link definition.Link, store *vars.Store) Outcome {
	req := &link.Request

	// Resolve URL, headers and body against the store. Env expansion happens
	// before placeholder resolution so definitions can reference both.
	url, err := template.ResolveString(util.ExpandEnvUniversal(req.URL), store)
	if err != nil {
		return failed(ReasonTemplateError, err)
	}
	headers := make(map[string]string, len(req.Headers))
	for name, valueTmpl := range req.Headers {
		value, err := template.ResolveString(util.ExpandEnvUniversal(valueTmpl), store)
		if err != nil {
			return failed(ReasonTemplateError, err)
		}
		headers[name] = value
	}
	var bodyBytes []byte
	var bodyIsJSON bool
	if req.Body != nil {
		resolved, err := template.ResolveValue(req.Body, store)
		if err != nil {
			return failed(ReasonTemplateError, err)
		}
		if s, ok := resolved.(string); ok {
			bodyBytes = []byte(s)
			bodyIsJSON = util.LooksLikeJSON(s)
		} else {
			encoded, err := json.Marshal(resolved)
			if err != nil {
				return failed(ReasonTemplateError, fmt.Errorf("cannot encode request body: %w", err))
			}
			bodyBytes = encoded
			bodyIsJSON = true
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, respBody, err := e.doRequest(ctx, req, method, url, headers, bodyBytes, bodyIsJSON)
	if err != nil {
		// A transport error caused by the chain deadline is the chain's
		// timeout, not the link's own failure.
		if ctx.Err() != nil {
			return failed(ReasonChainTimeout, fmt.Errorf("chain deadline exceeded during request '%s': %w", req.ID, err))
		}
		return failed(ReasonTransportError, err)
	}

	capture := buildCapture(resp, respBody)

	registerCapture := func() {
		if link.StoreAs != "" {
			store.Set(link.StoreAs, capture)
		}
		// The capture is always reachable under the request id as well.
		store.Set(req.ID, capture)
	}

	if len(req.ExpectedStatus) > 0 && !containsStatus(req.ExpectedStatus, resp.StatusCode) {
		registerCapture()
		return Outcome{
			HTTPStatus: resp.StatusCode,
			Capture:    capture,
			Reason:     ReasonUnexpectedStatus,
			Err: fmt.Errorf("request '%s' returned status %d but expected one of %v",
				req.ID, resp.StatusCode, req.ExpectedStatus),
		}
	}

	extracted, extractErr := e.applyExtractions(link, capture, store)
	if extractErr != nil {
		return Outcome{
			HTTPStatus: resp.StatusCode,
			Extracted:  extracted,
			Capture:    capture,
			Reason:     ReasonExtractionError,
			Err:        extractErr,
		}
	}

	registerCapture()
	return Outcome{HTTPStatus: resp.StatusCode, Extracted: extracted, Capture: capture}
}

// doRequest issues the HTTP call, retrying per the link's declared retry
// settings. Without a retry block the request is attempted exactly once.
func (e *Executor) doRequest(ctx context.Context, req *definition.RequestSpec, method, url string, headers map[string]string, body []byte, bodyIsJSON bool) (*http.Response, []byte, error) {
	maxAttempts := 1
	var backoff time.Duration
	var excluded []int
	if req.Retry != nil {
		maxAttempts = req.Retry.MaxAttempts
		backoff = time.Duration(req.Retry.BackoffSecs) * time.Second
		excluded = req.Retry.ExcludeStatus
	}

	linkCtx := ctx
	if req.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		linkCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSecs)*time.Second)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if maxAttempts > 1 {
			logging.Logf(logging.Debug, "Request attempt %d/%d for %s %s", attempt, maxAttempts, method, url)
		}

		httpReq, err := e.buildRequest(linkCtx, method, url, headers, body, bodyIsJSON)
		if err != nil {
			return nil, nil, err
		}

		resp, err := e.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if linkCtx.Err() != nil {
				// No point retrying a dead context.
				return nil, nil, lastErr
			}
			if attempt < maxAttempts {
				logging.Logf(logging.Info, "Attempt %d failed: %v. Retrying in %v...", attempt, err, backoff)
				e.sleep(linkCtx, backoff)
				continue
			}
			break
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, nil, fmt.Errorf("failed to read response body (status %d): %w", resp.StatusCode, readErr)
		}

		if isRetryableStatus(resp.StatusCode, excluded) && attempt < maxAttempts {
			lastErr = fmt.Errorf("received retryable status code %d", resp.StatusCode)
			logging.Logf(logging.Info, "Attempt %d failed: %v. Retrying in %v...", attempt, lastErr, backoff)
			e.sleep(linkCtx, backoff)
			continue
		}
		return resp, respBody, nil
	}
	return nil, nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (e *Executor) buildRequest(ctx context.Context, method, url string, headers map[string]string, body []byte, bodyIsJSON bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		httpReq.ContentLength = int64(len(body))
	}
	if bodyIsJSON {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		httpReq.Header.Set(name, value)
	}
	if err := auth.ApplyHeaders(httpReq, e.authCfg); err != nil {
		return nil, err
	}
	return httpReq, nil
}

func isRetryableStatus(status int, excluded []int) bool {
	if status < 500 || status > 599 {
		return false
	}
	for _, code := range excluded {
		if status == code {
			return false
		}
	}
	return true
}

func containsStatus(set []int, status int) bool {
	for _, code := range set {
		if code == status {
			return true
		}
	}
	return false
}

// buildCapture converts a response into a stored capture. The body is parsed
// when the content type indicates JSON and the payload decodes; otherwise the
// raw text is kept.
func buildCapture(resp *http.Response, body []byte) *vars.Capture {
	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}
	capture := &vars.Capture{Status: resp.StatusCode, Headers: headers}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			capture.Body = parsed
			return capture
		}
	}
	capture.Body = string(body)
	return capture
}

// applyExtractions evaluates the link's extract rules against the capture and
// writes each result into the store. Rules run in sorted name order; a failing
// rule stops the loop but earlier writes stay (no rollback).
func (e *Executor) applyExtractions(link definition.Link, capture *vars.Capture, store *vars.Store) (map[string]any, error) {
	if len(link.Extract) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(link.Extract))
	for name := range link.Extract {
		names = append(names, name)
	}
	sort.Strings(names)

	// One capture document serves every gjson path of this link.
	doc, err := json.Marshal(capture)
	if err != nil {
		return nil, fmt.Errorf("cannot encode response capture: %w", err)
	}

	extracted := make(map[string]any, len(names))
	for _, name := range names {
		expr := strings.TrimSpace(link.Extract[name])
		var value any
		if strings.HasPrefix(expr, "header:") {
			value, err = extractHeaderValue(capture.Headers, expr)
			if err != nil {
				return extracted, fmt.Errorf("extracting header for variable '%s' using expression '%s': %w", name, expr, err)
			}
		} else {
			result := gjson.GetBytes(doc, expr)
			if !result.Exists() {
				return extracted, fmt.Errorf("extracting variable '%s': path '%s' not found in response", name, expr)
			}
			value = result.Value()
		}
		logging.Logf(logging.Debug, "Link '%s': extracted variable '%s' = %s",
			link.Request.ID, name, util.Snippet([]byte(template.Stringify(value))))
		store.Set(name, value)
		extracted[name] = value
	}
	return extracted, nil
}
