// Package web serves the console's server-rendered dashboard: the task
// list, the five-tab task detail page, trace detail views, and the form
// posts that mutate backend state. Every page renders errors inline; the
// only error that escapes a page is "task not found", which gets a
// dedicated error page.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/r4u-dev/r4u-console/internal/api"
	"github.com/r4u-dev/r4u-console/internal/forms"
	"github.com/r4u-dev/r4u-console/internal/panel"
	"github.com/r4u-dev/r4u-console/internal/taskpage"
	"github.com/r4u-dev/r4u-console/internal/telemetry"
	"github.com/r4u-dev/r4u-console/internal/traceview"
)

// Backend is the full slice of the platform API the console uses.
type Backend interface {
	taskpage.Backend

	ListTasks(ctx context.Context, projectID int64) ([]api.Task, error)
	CreateImplementation(ctx context.Context, req api.CreateImplementationRequest) (*api.Implementation, error)
	DeleteImplementation(ctx context.Context, implementationID int64) error

	GetTrace(ctx context.Context, traceID int64) (*api.Trace, error)
	GetTraceHTTP(ctx context.Context, traceID int64) (*api.HTTPTrace, error)
	ListGrades(ctx context.Context, traceID int64) ([]api.Grade, error)

	GetEvaluation(ctx context.Context, evaluationID int64) (*api.Evaluation, error)
	GetEvaluationResults(ctx context.Context, evaluationID int64) ([]api.EvaluationResultItem, error)
	RunEvaluation(ctx context.Context, implementationID int64) (*api.Evaluation, error)
	PutEvaluationConfig(ctx context.Context, taskID int64, cfg api.EvaluationConfig) (*api.EvaluationConfig, error)

	CreateOptimization(ctx context.Context, req api.CreateOptimizationRequest) (*api.Optimization, error)
	GetOptimization(ctx context.Context, optimizationID int64) (*api.Optimization, error)
	DeleteOptimization(ctx context.Context, optimizationID int64) error

	CreateTestCase(ctx context.Context, req api.CreateTestCaseRequest) (*api.TestCase, error)
	DeleteTestCase(ctx context.Context, testCaseID int64) error
}

var validTabs = map[string]bool{
	"implementations": true,
	"traces":          true,
	"test-cases":      true,
	"evaluation":      true,
	"optimizations":   true,
}

// Handlers holds the dashboard's HTTP handlers and their dependencies.
type Handlers struct {
	backend   Backend
	loader    *taskpage.Loader
	poller    *taskpage.Poller
	panel     *panel.Panel
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	projectID int64
	version   string
	pollEvery time.Duration

	inputs  *traceview.Renderer
	outputs *traceview.Renderer

	mu        sync.Mutex
	activeOpt *api.Optimization // latest snapshot from the poller
}

// HandlersDeps wires a Handlers. Metrics is optional; PollInterval and
// TraceLimit fall back to package defaults when zero.
type HandlersDeps struct {
	Backend      Backend
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics
	ProjectID    int64
	Version      string
	PollInterval time.Duration
	TraceLimit   int
}

// NewHandlers creates the dashboard handlers.
func NewHandlers(deps HandlersDeps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		backend:   deps.Backend,
		logger:    logger,
		metrics:   deps.Metrics,
		projectID: deps.ProjectID,
		version:   deps.Version,
		inputs:    traceview.NewInputRenderer(),
		outputs:   traceview.NewOutputRenderer(),
	}
	h.pollEvery = deps.PollInterval
	if h.pollEvery <= 0 {
		h.pollEvery = taskpage.DefaultPollInterval
	}
	h.loader = taskpage.NewLoader(deps.Backend, deps.ProjectID, logger)
	h.loader.SetTraceLimit(deps.TraceLimit)
	h.poller = taskpage.NewPoller(deps.Backend, logger, deps.PollInterval)
	h.panel = panel.New(deps.Backend, logger)
	return h
}

// Close stops background work. Called during server shutdown.
func (h *Handlers) Close() {
	h.poller.Stop()
}

type pageBase struct {
	Title   string
	Flash   string
	Refresh int
}

type tasksView struct {
	pageBase
	Tasks []api.Task
}

type taskView struct {
	pageBase
	Tab               string
	Page              *taskpage.Page
	Selected          *api.Implementation
	SelectedVersion   string
	SelectedToolsJSON string
	ActiveOpt         *api.Optimization
}

type traceView struct {
	pageBase
	TaskID       int64
	Trace        *api.Trace
	Inputs       []traceview.Rendered
	Outputs      []traceview.Rendered
	Grades       []api.Grade
	GradesErr    error
	MetricsJSON  string
	SettingsJSON string
	HTTPPath     string
}

type httpView struct {
	pageBase
	TaskID              int64
	TraceID             int64
	HTTP                *api.HTTPTrace
	RequestHeadersJSON  string
	RequestBodyJSON     string
	ResponseHeadersJSON string
	ResponseBodyJSON    string
}

type evalView struct {
	pageBase
	Evaluation *api.Evaluation
	Results    []api.EvaluationResultItem
	ResultsErr error
}

type errorView struct {
	pageBase
	Heading string
	Message string
}

// HandleTasks renders the task list.
func (h *Handlers) HandleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.backend.ListTasks(r.Context(), h.projectID)
	if err != nil {
		h.backendFailed(r.Context(), "list_tasks", err)
		h.renderError(w, http.StatusBadGateway, "Backend unavailable", "The task list could not be loaded.")
		return
	}
	h.render(w, http.StatusOK, "page_tasks", tasksView{
		pageBase: pageBase{Title: "Tasks"},
		Tasks:    tasks,
	})
}

// HandleTask renders the task detail page with its five tabs.
func (h *Handlers) HandleTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	q := r.URL.Query()
	tab := q.Get("tab")
	if !validTabs[tab] {
		tab = "implementations"
	}

	page, err := h.loader.Load(r.Context(), taskID, q.Get("created"))
	if err != nil {
		if api.IsNotFound(err) {
			h.renderError(w, http.StatusNotFound, "Task not found", "No task with that id exists in this project.")
			return
		}
		h.backendFailed(r.Context(), "load_task", err)
		h.renderError(w, http.StatusBadGateway, "Backend unavailable", "The task could not be loaded.")
		return
	}

	// An explicit ?version= overrides the resolved selection when it still
	// exists; a deleted or mistyped version falls back silently.
	selectedVersion := page.SelectedVersion
	if v := q.Get("version"); v != "" && taskpage.FindImplementation(page.Implementations, v) != nil {
		selectedVersion = v
	}
	selected := taskpage.FindImplementation(page.Implementations, selectedVersion)

	view := taskView{
		pageBase:        pageBase{Title: page.Task.Name, Flash: q.Get("error")},
		Tab:             tab,
		Page:            page,
		Selected:        selected,
		SelectedVersion: selectedVersion,
		ActiveOpt:       h.optimizationSnapshot(taskID),
	}
	if selected != nil && len(selected.Tools) > 0 {
		// Seed the new-version form's tools editor from the selected
		// version; the field keeps this as last-known-good if the user
		// submits broken JSON.
		if raw, err := json.Marshal(selected.Tools); err == nil {
			view.SelectedToolsJSON = forms.NewJSONField(raw).Text()
		}
	}
	if view.ActiveOpt != nil && view.ActiveOpt.Status.Active() {
		view.Refresh = int(h.pollEvery.Seconds())
	}
	h.render(w, http.StatusOK, "page_task", view)
}

// HandleTraceDetail renders a single trace with its rendered input and
// output items. Grades load eagerly with the page; a grade failure shows
// inline and never blocks the trace itself.
func (h *Handlers) HandleTraceDetail(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	traceID, ok := pathID(w, r, "trace_id")
	if !ok {
		return
	}

	trace, err := h.backend.GetTrace(r.Context(), traceID)
	if err != nil {
		if api.IsNotFound(err) {
			h.renderError(w, http.StatusNotFound, "Trace not found", "No trace with that id exists.")
			return
		}
		h.backendFailed(r.Context(), "get_trace", err)
		h.renderError(w, http.StatusBadGateway, "Backend unavailable", "The trace could not be loaded.")
		return
	}

	// Grades come from the panel, which fetches them eagerly on trace
	// change and caches them for the displayed trace.
	h.panel.SetTrace(r.Context(), traceID)
	_, grades, gradesErr := h.panel.Grades()
	if gradesErr != nil {
		h.logger.Warn("grades failed to load", "trace_id", traceID, "error", gradesErr)
	}

	view := traceView{
		pageBase:  pageBase{Title: "Trace"},
		TaskID:    taskID,
		Trace:     trace,
		Inputs:    h.inputs.RenderAll(trace.InputMessages),
		Outputs:   h.outputs.RenderAll(trace.OutputItems),
		Grades:    grades,
		GradesErr: gradesErr,
		HTTPPath:  "/tasks/" + strconv.FormatInt(taskID, 10) + "/traces/" + strconv.FormatInt(traceID, 10) + "/http",
	}
	if len(trace.Metrics) > 0 {
		view.MetricsJSON = traceview.Dump(trace.Metrics)
	}
	if len(trace.ModelSettings) > 0 {
		view.SettingsJSON = traceview.Dump(trace.ModelSettings)
	}
	h.render(w, http.StatusOK, "page_trace", view)
}

// HandleTraceHTTP renders the raw HTTP exchange for a trace. The payload
// is fetched only when this page is requested.
func (h *Handlers) HandleTraceHTTP(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	traceID, ok := pathID(w, r, "trace_id")
	if !ok {
		return
	}

	// The raw payload is fetched through the panel: lazily, only when
	// this section is opened, cached while the trace stays selected.
	h.panel.SetTrace(r.Context(), traceID)
	h.panel.Expand(r.Context(), panel.SectionHTTP)
	_, payload, err := h.panel.HTTP()
	if err != nil {
		if api.IsNotFound(err) {
			h.renderError(w, http.StatusNotFound, "No HTTP payload", "This trace has no recorded HTTP exchange.")
			return
		}
		h.backendFailed(r.Context(), "get_trace_http", err)
		h.renderError(w, http.StatusBadGateway, "Backend unavailable", "The HTTP payload could not be loaded.")
		return
	}
	if payload == nil {
		// A concurrent trace switch discarded the fetch.
		h.renderError(w, http.StatusConflict, "Trace changed", "The displayed trace changed while loading. Reload the page.")
		return
	}

	view := httpView{
		pageBase: pageBase{Title: "Raw HTTP"},
		TaskID:   taskID,
		TraceID:  traceID,
		HTTP:     payload,
	}
	if len(payload.RequestHeaders) > 0 {
		view.RequestHeadersJSON = traceview.Dump(payload.RequestHeaders)
	}
	if len(payload.RequestBody) > 0 {
		view.RequestBodyJSON = traceview.DumpJSONText(string(payload.RequestBody))
	}
	if len(payload.ResponseHeaders) > 0 {
		view.ResponseHeadersJSON = traceview.Dump(payload.ResponseHeaders)
	}
	if len(payload.ResponseBody) > 0 {
		view.ResponseBodyJSON = traceview.DumpJSONText(string(payload.ResponseBody))
	}
	h.render(w, http.StatusOK, "page_http", view)
}

// HandleEvaluation renders an evaluation run with its per-case results.
func (h *Handlers) HandleEvaluation(w http.ResponseWriter, r *http.Request) {
	evalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	eval, err := h.backend.GetEvaluation(r.Context(), evalID)
	if err != nil {
		if api.IsNotFound(err) {
			h.renderError(w, http.StatusNotFound, "Evaluation not found", "No evaluation with that id exists.")
			return
		}
		h.backendFailed(r.Context(), "get_evaluation", err)
		h.renderError(w, http.StatusBadGateway, "Backend unavailable", "The evaluation could not be loaded.")
		return
	}

	results, resultsErr := h.backend.GetEvaluationResults(r.Context(), evalID)
	if resultsErr != nil {
		h.logger.Warn("evaluation results failed to load", "evaluation_id", evalID, "error", resultsErr)
	}

	h.render(w, http.StatusOK, "page_evaluation", evalView{
		pageBase:   pageBase{Title: "Evaluation"},
		Evaluation: eval,
		Results:    results,
		ResultsErr: resultsErr,
	})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// renderError renders the dedicated error page.
func (h *Handlers) renderError(w http.ResponseWriter, status int, heading, message string) {
	h.render(w, status, "page_error", errorView{
		pageBase: pageBase{Title: heading},
		Heading:  heading,
		Message:  message,
	})
}

func (h *Handlers) backendFailed(ctx context.Context, operation string, err error) {
	h.logger.Error("backend call failed", "operation", operation, "error", err)
	h.metrics.RecordBackendError(ctx, operation)
}

func (h *Handlers) optimizationSnapshot(taskID int64) *api.Optimization {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.activeOpt == nil || h.activeOpt.TaskID != taskID {
		return nil
	}
	return h.activeOpt
}

// pathID parses a positive integer path segment, writing a 404 on
// garbage input.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func formValues(r *http.Request, key string) []string {
	_ = r.ParseForm()
	return r.PostForm[key]
}

func redirectTask(w http.ResponseWriter, r *http.Request, taskID int64, params url.Values) {
	http.Redirect(w, r, "/tasks/"+strconv.FormatInt(taskID, 10)+"?"+params.Encode(), http.StatusSeeOther)
}
