package api

import (
	"encoding/json"
	"time"
)

// Task is an AI task as owned by the backend. The console never mutates a
// task directly; it manages the task's implementations, evaluations,
// optimizations, and test cases through their own endpoints.
type Task struct {
	ID                int64   `json:"id"`
	ProjectID         int64   `json:"project_id"`
	Name              string  `json:"name"`
	Description       *string `json:"description,omitempty"`
	ProductionVersion *string `json:"production_version,omitempty"`
}

// Implementation is one immutable version of a task's prompt/model
// configuration. "Editing" an implementation means creating a new version
// pre-filled from an existing one; versions are never mutated in place.
type Implementation struct {
	ID         int64             `json:"id"`
	TaskID     int64             `json:"task_id"`
	Version    string            `json:"version"`
	Model      string            `json:"model"`
	Prompt     string            `json:"prompt"`
	Tools      []json.RawMessage `json:"tools,omitempty"`
	Settings   ModelSettings     `json:"settings"`
	ToolChoice *string           `json:"tool_choice,omitempty"`
	Reasoning  *Reasoning        `json:"reasoning,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ModelSettings holds per-implementation sampling parameters.
type ModelSettings struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
}

// Reasoning configures reasoning-capable models.
type Reasoning struct {
	Effort  *string `json:"effort,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

// CreateImplementationRequest is the wire body for POST /implementations.
type CreateImplementationRequest struct {
	TaskID     int64             `json:"task_id"`
	Version    string            `json:"version"`
	Model      string            `json:"model"`
	Prompt     string            `json:"prompt"`
	Tools      []json.RawMessage `json:"tools,omitempty"`
	Settings   ModelSettings     `json:"settings"`
	ToolChoice *string           `json:"tool_choice,omitempty"`
	Reasoning  *Reasoning        `json:"reasoning,omitempty"`
}

// Trace is one recorded model invocation. Read-only from the console's
// perspective; the backend creates traces server-side.
type Trace struct {
	ID            int64          `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Status        TraceStatus    `json:"status"`
	Provider      string         `json:"provider"`
	Endpoint      string         `json:"endpoint,omitempty"`
	Path          string         `json:"path,omitempty"`
	LatencyMS     float64        `json:"latency_ms"`
	Cost          float64        `json:"cost"`
	Prompt        *string        `json:"prompt,omitempty"`
	InputMessages []Item         `json:"input_messages"`
	OutputItems   []Item         `json:"output_items"`
	ModelSettings map[string]any `json:"model_settings,omitempty"`
	Metrics       map[string]any `json:"metrics,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
}

// TraceStatus is the terminal status of a trace.
type TraceStatus string

const (
	TraceSuccess TraceStatus = "success"
	TraceError   TraceStatus = "error"
)

// Item is a single input or output record inside a trace: a tagged union
// selected by its "type" field. The wire payload may carry any field set,
// so the item is kept as the decoded JSON object and accessed by key.
// Unknown type strings are valid — the renderer shows a generic fallback.
type Item map[string]any

// Type returns the item's discriminator, or "" when absent.
func (it Item) Type() string {
	s, _ := it["type"].(string)
	return s
}

// HTTPTrace carries the raw HTTP request/response bodies of a trace.
// Fetched lazily, only when the raw-HTTP section is expanded.
type HTTPTrace struct {
	TraceID         int64           `json:"trace_id"`
	RequestHeaders  map[string]any  `json:"request_headers,omitempty"`
	RequestBody     json.RawMessage `json:"request_body,omitempty"`
	ResponseHeaders map[string]any  `json:"response_headers,omitempty"`
	ResponseBody    json.RawMessage `json:"response_body,omitempty"`
	StatusCode      int             `json:"status_code"`
}

// Grade is a grader's verdict on one trace or execution result.
type Grade struct {
	ID           int64    `json:"id"`
	GraderID     int64    `json:"grader_id"`
	GraderName   *string  `json:"grader_name,omitempty"`
	ScoreBoolean *bool    `json:"score_boolean,omitempty"`
	ScoreFloat   *float64 `json:"score_float,omitempty"`
	Reasoning    *string  `json:"reasoning,omitempty"`
}

// Grader is a configured grading function.
type Grader struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Evaluation is a snapshot of an evaluation run. Created by the console,
// mutated only server-side thereafter.
type Evaluation struct {
	ID                   int64    `json:"id"`
	FinalEvaluationScore *float64 `json:"final_evaluation_score,omitempty"`
	QualityScore         *float64 `json:"quality_score,omitempty"`
	TestCaseCount        *int     `json:"test_case_count,omitempty"`
}

// EvaluationResultItem is one test case's outcome within an evaluation.
type EvaluationResultItem struct {
	ExecutionResultID   int64   `json:"execution_result_id"`
	TestCaseID          int64   `json:"test_case_id"`
	TestCaseDescription *string `json:"test_case_description,omitempty"`
	TotalTokens         int64   `json:"total_tokens"`
	Cost                float64 `json:"cost"`
	Grades              []Grade `json:"grades"`
}

// CreateEvaluationRequest is the wire body for POST /evaluations.
type CreateEvaluationRequest struct {
	TaskID                int64   `json:"task_id"`
	TaskVersion           string  `json:"task_version"`
	AccuracyThreshold     float64 `json:"accuracy_threshold"`
	TimeoutSeconds        int     `json:"timeout_seconds"`
	TestSelectionStrategy string  `json:"test_selection_strategy"`
}

// EvaluationConfig weights the score components for a task. One config per
// task, upserted as a whole.
type EvaluationConfig struct {
	QualityWeight float64 `json:"quality_weight"`
	CostWeight    float64 `json:"cost_weight"`
	TimeWeight    float64 `json:"time_weight"`
	GraderIDs     []int64 `json:"grader_ids"`
}

// OptimizationStatus is the lifecycle state of an optimization job.
type OptimizationStatus string

const (
	OptimizationPending   OptimizationStatus = "pending"
	OptimizationRunning   OptimizationStatus = "running"
	OptimizationCompleted OptimizationStatus = "completed"
	OptimizationFailed    OptimizationStatus = "failed"
)

// Active reports whether the job is still making progress server-side and
// should keep being polled.
func (s OptimizationStatus) Active() bool {
	return s == OptimizationPending || s == OptimizationRunning
}

// Optimization is a server-side prompt optimization job. The console
// creates it and polls snapshots until the status is terminal.
type Optimization struct {
	ID                          int64              `json:"id"`
	TaskID                      int64              `json:"task_id"`
	Status                      OptimizationStatus `json:"status"`
	MaxIterations               int                `json:"max_iterations"`
	MaxConsecutiveNoImprovement int                `json:"max_consecutive_no_improvements"`
	ChangeableFields            []string           `json:"changeable_fields,omitempty"`
	Iterations                  []Iteration        `json:"iterations,omitempty"`
}

// Iteration is one optimization step with its proposed changes and, once
// evaluated, the evaluation summary for the candidate version.
type Iteration struct {
	Iteration       int                  `json:"iteration"`
	ProposedChanges map[string]any       `json:"proposed_changes"`
	Evaluation      *IterationEvaluation `json:"evaluation,omitempty"`
}

// IterationEvaluation summarizes how a candidate version scored.
type IterationEvaluation struct {
	Version            string       `json:"version"`
	AvgCost            float64      `json:"avg_cost"`
	AvgExecutionTimeMS float64      `json:"avg_execution_time_ms"`
	Graders            []GradersRow `json:"graders,omitempty"`
}

// GradersRow is a grader's aggregate score within an iteration evaluation.
type GradersRow struct {
	GraderID int64    `json:"grader_id"`
	Name     string   `json:"name,omitempty"`
	AvgScore *float64 `json:"avg_score,omitempty"`
}

// CreateOptimizationRequest is the wire body for POST /optimizations.
type CreateOptimizationRequest struct {
	TaskID                      int64    `json:"task_id"`
	MaxIterations               int      `json:"max_iterations"`
	MaxConsecutiveNoImprovement int      `json:"max_consecutive_no_improvements"`
	ChangeableFields            []string `json:"changeable_fields,omitempty"`
}

// TestCase is a stored input/expected-output pair for a task.
type TestCase struct {
	ID             int64           `json:"id"`
	TaskID         int64           `json:"task_id"`
	Description    *string         `json:"description,omitempty"`
	Arguments      json.RawMessage `json:"arguments"`
	ExpectedOutput json.RawMessage `json:"expected_output"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateTestCaseRequest is the wire body for POST /test-cases.
type CreateTestCaseRequest struct {
	TaskID         int64           `json:"task_id"`
	Description    *string         `json:"description,omitempty"`
	Arguments      json.RawMessage `json:"arguments"`
	ExpectedOutput json.RawMessage `json:"expected_output"`
}

// UpdateTestCaseRequest is the wire body for PATCH /test-cases/{id}.
// Nil fields are left unchanged.
type UpdateTestCaseRequest struct {
	Description    *string         `json:"description,omitempty"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
	ExpectedOutput json.RawMessage `json:"expected_output,omitempty"`
}

// Model is an invokable model advertised by the backend.
type Model struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}
