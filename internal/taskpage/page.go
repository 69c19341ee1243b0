package taskpage

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/r4u-dev/r4u-console/internal/api"
)

const defaultTraceLimit = 50

// Backend is the slice of the API client the task page needs.
type Backend interface {
	GetTask(ctx context.Context, taskID int64) (*api.Task, error)
	ListImplementations(ctx context.Context, taskID int64) ([]api.Implementation, error)
	ListTraces(ctx context.Context, opts *api.TraceOptions) ([]api.Trace, error)
	ListTestCases(ctx context.Context, taskID int64) ([]api.TestCase, error)
	ListOptimizations(ctx context.Context, taskID int64) ([]api.Optimization, error)
	GetEvaluationConfig(ctx context.Context, taskID int64) (*api.EvaluationConfig, error)
	ListGraders(ctx context.Context, projectID int64) ([]api.Grader, error)
	ListModels(ctx context.Context) ([]api.Model, error)
}

// Page is everything the task detail view renders. Each tab owns its data
// and its error; one tab failing leaves the others intact.
type Page struct {
	Task            *api.Task
	SelectedVersion string

	Implementations []api.Implementation
	ImplErr         error

	Traces    []api.Trace
	TracesErr error

	TestCases    []api.TestCase
	TestCasesErr error

	Optimizations    []api.Optimization
	OptimizationsErr error

	Config    *api.EvaluationConfig
	Graders   []GraderOption
	ConfigErr error

	Models    []api.Model
	ModelsErr error
}

// Loader loads task pages against a backend.
type Loader struct {
	backend    Backend
	projectID  int64
	logger     *slog.Logger
	traceLimit int
}

// NewLoader creates a loader scoped to one project.
func NewLoader(backend Backend, projectID int64, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		backend:    backend,
		projectID:  projectID,
		logger:     logger,
		traceLimit: defaultTraceLimit,
	}
}

// SetTraceLimit overrides how many traces the traces tab fetches.
func (l *Loader) SetTraceLimit(n int) {
	if n > 0 {
		l.traceLimit = n
	}
}

// Load fetches the whole page. The task itself is the only load that can
// fail the page; every tab loads in parallel and stores its own error.
// justCreated, when non-empty, is the version a form post just created and
// takes priority in version selection.
func (l *Loader) Load(ctx context.Context, taskID int64, justCreated string) (*Page, error) {
	task, err := l.backend.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}

	page := &Page{Task: task}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page.Implementations, page.ImplErr = l.backend.ListImplementations(ctx, taskID)
		return nil
	})
	g.Go(func() error {
		page.Traces, page.TracesErr = l.backend.ListTraces(ctx, &api.TraceOptions{
			TaskID: taskID,
			Limit:  l.traceLimit,
		})
		return nil
	})
	g.Go(func() error {
		page.TestCases, page.TestCasesErr = l.backend.ListTestCases(ctx, taskID)
		return nil
	})
	g.Go(func() error {
		page.Optimizations, page.OptimizationsErr = l.backend.ListOptimizations(ctx, taskID)
		return nil
	})
	g.Go(func() error {
		page.Models, page.ModelsErr = l.backend.ListModels(ctx)
		return nil
	})
	g.Go(func() error {
		cfg, err := l.backend.GetEvaluationConfig(ctx, taskID)
		if err != nil {
			page.ConfigErr = err
			return nil
		}
		graders, err := l.backend.ListGraders(ctx, l.projectID)
		if err != nil {
			page.ConfigErr = err
			return nil
		}
		page.Config = cfg
		page.Graders = OrderGraders(graders, cfg.GraderIDs)
		return nil
	})
	// Tab errors live in their slots; the group never returns one.
	_ = g.Wait()

	page.SelectedVersion = SelectVersion(page.Implementations, task, justCreated)

	for tab, err := range map[string]error{
		"implementations": page.ImplErr,
		"traces":          page.TracesErr,
		"test_cases":      page.TestCasesErr,
		"optimizations":   page.OptimizationsErr,
		"evaluation":      page.ConfigErr,
		"models":          page.ModelsErr,
	} {
		if err != nil {
			l.logger.Warn("tab load failed", "task_id", taskID, "tab", tab, "error", err)
		}
	}

	return page, nil
}
