// Package panel holds the state machine behind the trace detail view: a
// set of independently collapsible sections around one trace, with lazy
// fetching of expensive auxiliary data (raw HTTP payloads) and eager
// fetching of grades on trace change.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/r4u-dev/r4u-console/internal/api"
)

// Section identifies one collapsible section of the panel. Expansion state
// is independent per section and survives trace changes; only data resets.
type Section string

const (
	SectionPrompt   Section = "prompt"
	SectionMessages Section = "messages"
	SectionOutputs  Section = "outputs"
	SectionGrades   Section = "grades"
	SectionMetrics  Section = "metrics"
	SectionHTTP     Section = "http"
)

// FetchState tracks one auxiliary data source.
//
//	not-fetched → loading → loaded
//	                      → errored
//
// The transition to loading happens exactly when a section needing the
// data is expanded, the data isn't loaded, and no fetch is in flight.
type FetchState int

const (
	StateNotFetched FetchState = iota
	StateLoading
	StateLoaded
	StateErrored
)

func (s FetchState) String() string {
	switch s {
	case StateNotFetched:
		return "not-fetched"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("FetchState(%d)", int(s))
	}
}

// Backend is the slice of the API client the panel needs.
type Backend interface {
	GetTraceHTTP(ctx context.Context, traceID int64) (*api.HTTPTrace, error)
	ListGrades(ctx context.Context, traceID int64) ([]api.Grade, error)
}

// Panel is the state machine for one trace detail view. Safe for
// concurrent use; fetches for the same resource are deduplicated and
// completions for a superseded trace are discarded.
type Panel struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	traceID int64
	gen     uint64 // bumped on every trace change; guards stale completions

	httpState FetchState
	httpData  *api.HTTPTrace
	httpErr   error

	gradesState FetchState
	grades      []api.Grade
	gradesErr   error

	expanded map[Section]bool

	sf singleflight.Group
}

// New creates a panel with no trace selected.
func New(backend Backend, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Panel{
		backend:  backend,
		logger:   logger,
		expanded: make(map[Section]bool),
	}
}

// SetTrace switches the panel to a different trace. All auxiliary data
// resets to not-fetched unconditionally — stale data must never be shown
// for a different trace — and grades are fetched eagerly. Expansion state
// is untouched. Selecting the already-displayed trace is a no-op.
func (p *Panel) SetTrace(ctx context.Context, traceID int64) {
	p.mu.Lock()
	if p.traceID == traceID && p.gen > 0 {
		p.mu.Unlock()
		return
	}
	p.traceID = traceID
	p.gen++
	gen := p.gen
	p.httpState = StateNotFetched
	p.httpData = nil
	p.httpErr = nil
	p.gradesState = StateLoading
	p.grades = nil
	p.gradesErr = nil
	p.mu.Unlock()

	grades, err := p.backend.ListGrades(ctx, traceID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		// A newer trace was selected while the fetch was in flight.
		return
	}
	if err != nil {
		p.gradesState = StateErrored
		p.gradesErr = err
		p.logger.Warn("grade fetch failed", "trace_id", traceID, "error", err)
		return
	}
	p.gradesState = StateLoaded
	p.grades = grades
}

// Expand marks a section expanded and, for the raw-HTTP section, triggers
// the lazy fetch if the data is neither loaded nor loading. Expanding an
// already-loaded section fetches nothing.
func (p *Panel) Expand(ctx context.Context, s Section) {
	p.mu.Lock()
	p.expanded[s] = true
	if s != SectionHTTP || p.httpState == StateLoaded || p.httpState == StateLoading {
		p.mu.Unlock()
		return
	}
	p.httpState = StateLoading
	traceID := p.traceID
	gen := p.gen
	p.mu.Unlock()

	key := fmt.Sprintf("http:%d", traceID)
	data, err, _ := p.sf.Do(key, func() (any, error) {
		return p.backend.GetTraceHTTP(ctx, traceID)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	if err != nil {
		p.httpState = StateErrored
		p.httpErr = err
		p.logger.Warn("http trace fetch failed", "trace_id", traceID, "error", err)
		return
	}
	p.httpState = StateLoaded
	p.httpData = data.(*api.HTTPTrace)
}

// Collapse marks a section collapsed. Loaded data stays cached for the
// lifetime of the current trace.
func (p *Panel) Collapse(s Section) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expanded[s] = false
}

// Expanded reports a section's expansion state.
func (p *Panel) Expanded(s Section) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expanded[s]
}

// TraceID returns the currently displayed trace id (0 when none).
func (p *Panel) TraceID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.traceID
}

// HTTP returns the raw-HTTP source's state, data, and error. Data is
// non-nil only in the loaded state; the error only in the errored state.
func (p *Panel) HTTP() (FetchState, *api.HTTPTrace, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.httpState, p.httpData, p.httpErr
}

// Grades returns the grade source's state, data, and error.
func (p *Panel) Grades() (FetchState, []api.Grade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gradesState, p.grades, p.gradesErr
}
