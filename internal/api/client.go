package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the backend API (e.g. "http://localhost:8000").
	BaseURL string

	// APIKey is sent as a bearer token when non-empty. Authentication is
	// owned by the backend; the console only forwards the credential.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration

	// RequestsPerSecond caps outbound calls to the backend. Zero disables
	// the limiter.
	RequestsPerSecond float64

	// Burst is the limiter's burst size. Defaults to 10 when a rate is set.
	Burst int
}

// Client is an HTTP client for the backend API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter // nil when outbound rate limiting is disabled
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 10
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  httpClient,
		limiter: limiter,
	}, nil
}

// ---------------------------------------------------------------------------
// Tasks and implementations
// ---------------------------------------------------------------------------

// ListTasks returns all tasks in the project.
func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]Task, error) {
	params := url.Values{}
	params.Set("project_id", strconv.FormatInt(projectID, 10))
	var resp []Task
	if err := c.get(ctx, "/tasks?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTask retrieves a single task.
func (c *Client) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	var resp Task
	if err := c.get(ctx, "/tasks/"+strconv.FormatInt(taskID, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListImplementations returns a task's implementations, newest version first.
func (c *Client) ListImplementations(ctx context.Context, taskID int64) ([]Implementation, error) {
	var resp []Implementation
	if err := c.get(ctx, "/tasks/"+strconv.FormatInt(taskID, 10)+"/implementations", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateImplementation creates a new task version. Versions are immutable;
// editing an existing one means creating a new version pre-filled from it.
func (c *Client) CreateImplementation(ctx context.Context, req CreateImplementationRequest) (*Implementation, error) {
	var resp Implementation
	if err := c.post(ctx, "/implementations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteImplementation deletes a task version. The backend rejects deleting
// the production version; callers guard client-side as well.
func (c *Client) DeleteImplementation(ctx context.Context, implementationID int64) error {
	return c.doDelete(ctx, "/implementations/"+strconv.FormatInt(implementationID, 10), nil)
}

// ---------------------------------------------------------------------------
// Evaluations
// ---------------------------------------------------------------------------

// GetEvaluation retrieves an evaluation snapshot.
func (c *Client) GetEvaluation(ctx context.Context, evaluationID int64) (*Evaluation, error) {
	var resp Evaluation
	if err := c.get(ctx, "/evaluations/"+strconv.FormatInt(evaluationID, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetEvaluationResults retrieves per-test-case results for an evaluation.
func (c *Client) GetEvaluationResults(ctx context.Context, evaluationID int64) ([]EvaluationResultItem, error) {
	var resp []EvaluationResultItem
	if err := c.get(ctx, "/evaluations/"+strconv.FormatInt(evaluationID, 10)+"/results", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateEvaluation creates an evaluation run for a task version.
func (c *Client) CreateEvaluation(ctx context.Context, req CreateEvaluationRequest) (*Evaluation, error) {
	var resp Evaluation
	if err := c.post(ctx, "/evaluations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunEvaluation starts an evaluation for an existing implementation.
func (c *Client) RunEvaluation(ctx context.Context, implementationID int64) (*Evaluation, error) {
	var resp Evaluation
	path := "/implementations/" + strconv.FormatInt(implementationID, 10) + "/run-evaluation"
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetEvaluationConfig retrieves a task's evaluation config.
func (c *Client) GetEvaluationConfig(ctx context.Context, taskID int64) (*EvaluationConfig, error) {
	var resp EvaluationConfig
	if err := c.get(ctx, "/tasks/"+strconv.FormatInt(taskID, 10)+"/evaluation-config", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PutEvaluationConfig upserts a task's evaluation config as a whole.
func (c *Client) PutEvaluationConfig(ctx context.Context, taskID int64, cfg EvaluationConfig) (*EvaluationConfig, error) {
	var resp EvaluationConfig
	if err := c.post(ctx, "/tasks/"+strconv.FormatInt(taskID, 10)+"/evaluation-config", cfg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Optimizations
// ---------------------------------------------------------------------------

// CreateOptimization starts a server-side optimization job.
func (c *Client) CreateOptimization(ctx context.Context, req CreateOptimizationRequest) (*Optimization, error) {
	var resp Optimization
	if err := c.post(ctx, "/optimizations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOptimization retrieves an optimization snapshot. Used by the poller
// while the job's status is pending or running.
func (c *Client) GetOptimization(ctx context.Context, optimizationID int64) (*Optimization, error) {
	var resp Optimization
	if err := c.get(ctx, "/optimizations/"+strconv.FormatInt(optimizationID, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListOptimizations returns a task's optimization jobs.
func (c *Client) ListOptimizations(ctx context.Context, taskID int64) ([]Optimization, error) {
	params := url.Values{}
	params.Set("task_id", strconv.FormatInt(taskID, 10))
	var resp []Optimization
	if err := c.get(ctx, "/optimizations?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteOptimization deletes an optimization job.
func (c *Client) DeleteOptimization(ctx context.Context, optimizationID int64) error {
	return c.doDelete(ctx, "/optimizations/"+strconv.FormatInt(optimizationID, 10), nil)
}

// ---------------------------------------------------------------------------
// Traces and grades
// ---------------------------------------------------------------------------

// TraceOptions are optional filters for ListTraces.
type TraceOptions struct {
	TaskID           int64
	ImplementationID int64
	Limit            int
}

// ListTraces returns traces, newest first, optionally filtered.
func (c *Client) ListTraces(ctx context.Context, opts *TraceOptions) ([]Trace, error) {
	params := url.Values{}
	if opts != nil {
		if opts.TaskID > 0 {
			params.Set("task_id", strconv.FormatInt(opts.TaskID, 10))
		}
		if opts.ImplementationID > 0 {
			params.Set("implementation_id", strconv.FormatInt(opts.ImplementationID, 10))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	path := "/traces"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []Trace
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTrace retrieves a single trace with its input and output items.
func (c *Client) GetTrace(ctx context.Context, traceID int64) (*Trace, error) {
	var resp Trace
	if err := c.get(ctx, "/traces/"+strconv.FormatInt(traceID, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTraceHTTP retrieves the raw HTTP request/response for a trace.
// Expensive; callers fetch it lazily, only when the section is shown.
func (c *Client) GetTraceHTTP(ctx context.Context, traceID int64) (*HTTPTrace, error) {
	var resp HTTPTrace
	if err := c.get(ctx, "/traces/"+strconv.FormatInt(traceID, 10)+"/http", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListGrades retrieves the grades recorded for a trace.
func (c *Client) ListGrades(ctx context.Context, traceID int64) ([]Grade, error) {
	var resp []Grade
	if err := c.get(ctx, "/traces/"+strconv.FormatInt(traceID, 10)+"/grades", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListGraders returns the graders configured for a project.
func (c *Client) ListGraders(ctx context.Context, projectID int64) ([]Grader, error) {
	var resp []Grader
	if err := c.get(ctx, "/graders/projects/"+strconv.FormatInt(projectID, 10), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Test cases and models
// ---------------------------------------------------------------------------

// ListTestCases returns a task's test cases.
func (c *Client) ListTestCases(ctx context.Context, taskID int64) ([]TestCase, error) {
	params := url.Values{}
	params.Set("task_id", strconv.FormatInt(taskID, 10))
	var resp []TestCase
	if err := c.get(ctx, "/test-cases?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateTestCase creates a test case.
func (c *Client) CreateTestCase(ctx context.Context, req CreateTestCaseRequest) (*TestCase, error) {
	var resp TestCase
	if err := c.post(ctx, "/test-cases", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateTestCase patches a test case. Nil fields are left unchanged.
func (c *Client) UpdateTestCase(ctx context.Context, testCaseID int64, req UpdateTestCaseRequest) (*TestCase, error) {
	var resp TestCase
	if err := c.patch(ctx, "/test-cases/"+strconv.FormatInt(testCaseID, 10), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteTestCase deletes a test case. Returns nil on 204 No Content.
func (c *Client) DeleteTestCase(ctx context.Context, testCaseID int64) error {
	return c.doDelete(ctx, "/test-cases/"+strconv.FormatInt(testCaseID, 10), nil)
}

// ListModels returns the models available for new implementations.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var resp []Model
	if err := c.get(ctx, "/models", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the backend's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the backend's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("api: rate limiter: %w", err)
		}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the backend's { "data": ... } envelope when present.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, dest)
	}

	return json.Unmarshal(bodyBytes, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
