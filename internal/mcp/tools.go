package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/r4u-dev/r4u-console/internal/api"
	"github.com/r4u-dev/r4u-console/internal/traceview"
)

func (s *Server) registerTools() {
	// r4u_list_tasks — every task in the configured project.
	s.mcpServer.AddTool(
		mcplib.NewTool("r4u_list_tasks",
			mcplib.WithDescription("List all AI tasks in the project, including each task's production version."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListTasks,
	)

	// r4u_get_task — one task with its versions.
	s.mcpServer.AddTool(
		mcplib.NewTool("r4u_get_task",
			mcplib.WithDescription("Get one task together with its immutable implementation versions. The production version is the one the task serves live traffic with."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("task_id",
				mcplib.Description("Task identifier"),
				mcplib.Required(),
				mcplib.Min(1),
			),
		),
		s.handleGetTask,
	)

	// r4u_list_traces — recent executions of a task.
	s.mcpServer.AddTool(
		mcplib.NewTool("r4u_list_traces",
			mcplib.WithDescription("List recent execution traces of a task, newest first. Each entry carries status, provider, latency, and cost; use r4u_get_trace for the full transcript."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("task_id",
				mcplib.Description("Task identifier"),
				mcplib.Required(),
				mcplib.Min(1),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum traces to return"),
				mcplib.Min(1),
				mcplib.Max(200),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleListTraces,
	)

	// r4u_get_trace — a rendered execution transcript.
	s.mcpServer.AddTool(
		mcplib.NewTool("r4u_get_trace",
			mcplib.WithDescription("Get one execution trace as a rendered transcript: input messages, output items (tool calls, reasoning, errors), grades, metrics. Erroring items are marked (ERROR)."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("trace_id",
				mcplib.Description("Trace identifier"),
				mcplib.Required(),
				mcplib.Min(1),
			),
		),
		s.handleGetTrace,
	)

	// r4u_list_optimizations — a task's optimization jobs.
	s.mcpServer.AddTool(
		mcplib.NewTool("r4u_list_optimizations",
			mcplib.WithDescription("List a task's optimization jobs with status and iteration progress. Statuses pending and running mean the job is still working server-side."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("task_id",
				mcplib.Description("Task identifier"),
				mcplib.Required(),
				mcplib.Min(1),
			),
		),
		s.handleListOptimizations,
	)

	// r4u_get_evaluation — an evaluation run with per-test-case results.
	s.mcpServer.AddTool(
		mcplib.NewTool("r4u_get_evaluation",
			mcplib.WithDescription("Get an evaluation run: aggregate score, average cost and execution time, and the per-test-case results with pass/fail and grader scores."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("evaluation_id",
				mcplib.Description("Evaluation identifier"),
				mcplib.Required(),
				mcplib.Min(1),
			),
		),
		s.handleGetEvaluation,
	)
}

func (s *Server) handleListTasks(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tasks, err := s.backend.ListTasks(ctx, s.projectID)
	if err != nil {
		return backendError("list tasks", err), nil
	}
	return jsonResult(map[string]any{
		"tasks": tasks,
		"total": len(tasks),
	})
}

func (s *Server) handleGetTask(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskID := int64(request.GetInt("task_id", 0))
	if taskID <= 0 {
		return errorResult("task_id is required"), nil
	}

	task, err := s.backend.GetTask(ctx, taskID)
	if err != nil {
		return backendError("get task", err), nil
	}
	impls, err := s.backend.ListImplementations(ctx, taskID)
	if err != nil {
		return backendError("list implementations", err), nil
	}

	return jsonResult(map[string]any{
		"task":     task,
		"versions": impls,
	})
}

func (s *Server) handleListTraces(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskID := int64(request.GetInt("task_id", 0))
	if taskID <= 0 {
		return errorResult("task_id is required"), nil
	}
	limit := request.GetInt("limit", 20)

	traces, err := s.backend.ListTraces(ctx, &api.TraceOptions{TaskID: taskID, Limit: limit})
	if err != nil {
		return backendError("list traces", err), nil
	}

	// Strip the heavy item payloads from the listing; r4u_get_trace has them.
	summaries := make([]map[string]any, 0, len(traces))
	for _, t := range traces {
		summaries = append(summaries, map[string]any{
			"id":         t.ID,
			"timestamp":  t.Timestamp,
			"status":     t.Status,
			"provider":   t.Provider,
			"latency_ms": t.LatencyMS,
			"cost":       t.Cost,
		})
	}
	return jsonResult(map[string]any{
		"traces": summaries,
		"total":  len(summaries),
	})
}

func (s *Server) handleGetTrace(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	traceID := int64(request.GetInt("trace_id", 0))
	if traceID <= 0 {
		return errorResult("trace_id is required"), nil
	}

	trace, err := s.backend.GetTrace(ctx, traceID)
	if err != nil {
		return backendError("get trace", err), nil
	}
	grades, err := s.backend.ListGrades(ctx, traceID)
	if err != nil {
		// Grades are supplementary; the transcript is still useful.
		s.logger.Warn("mcp: list grades failed", "trace_id", traceID, "error", err)
		grades = nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: s.transcript(trace, grades)},
		},
	}, nil
}

func (s *Server) handleListOptimizations(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskID := int64(request.GetInt("task_id", 0))
	if taskID <= 0 {
		return errorResult("task_id is required"), nil
	}

	opts, err := s.backend.ListOptimizations(ctx, taskID)
	if err != nil {
		return backendError("list optimizations", err), nil
	}
	return jsonResult(map[string]any{
		"optimizations": opts,
		"total":         len(opts),
	})
}

func (s *Server) handleGetEvaluation(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	evalID := int64(request.GetInt("evaluation_id", 0))
	if evalID <= 0 {
		return errorResult("evaluation_id is required"), nil
	}

	eval, err := s.backend.GetEvaluation(ctx, evalID)
	if err != nil {
		return backendError("get evaluation", err), nil
	}
	results, err := s.backend.GetEvaluationResults(ctx, evalID)
	if err != nil {
		return backendError("get evaluation results", err), nil
	}

	return jsonResult(map[string]any{
		"evaluation": eval,
		"results":    results,
	})
}

// transcript renders a trace into the text form agents read: the same
// item templates the web trace page uses, flattened to labeled lines.
func (s *Server) transcript(trace *api.Trace, grades []api.Grade) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Trace %d — %s via %s\n", trace.ID, trace.Status, trace.Provider)
	fmt.Fprintf(&b, "Latency: %.0f ms, cost: $%.4f\n", trace.LatencyMS, trace.Cost)
	if trace.ErrorMessage != nil && *trace.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error: %s\n", *trace.ErrorMessage)
	}

	if trace.Prompt != nil && *trace.Prompt != "" {
		b.WriteString("\n== Prompt ==\n")
		b.WriteString(*trace.Prompt)
		b.WriteString("\n")
	}

	writeItems(&b, "Inputs", s.inputs.RenderAll(trace.InputMessages))
	writeItems(&b, "Outputs", s.outputs.RenderAll(trace.OutputItems))

	if len(grades) > 0 {
		b.WriteString("\n== Grades ==\n")
		for _, g := range grades {
			name := fmt.Sprintf("grader %d", g.GraderID)
			if g.GraderName != nil && *g.GraderName != "" {
				name = *g.GraderName
			}
			switch {
			case g.ScoreFloat != nil:
				fmt.Fprintf(&b, "- %s: %.3f\n", name, *g.ScoreFloat)
			case g.ScoreBoolean != nil:
				fmt.Fprintf(&b, "- %s: %t\n", name, *g.ScoreBoolean)
			default:
				fmt.Fprintf(&b, "- %s: -\n", name)
			}
		}
	}

	if len(trace.Metrics) > 0 {
		b.WriteString("\n== Metrics ==\n")
		b.WriteString(traceview.Dump(trace.Metrics))
		b.WriteString("\n")
	}

	return b.String()
}

func writeItems(b *strings.Builder, heading string, items []traceview.Rendered) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n== %s ==\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "[%s] %s\n", it.Icon, it.Label)
		if it.Unknown {
			b.WriteString(indentLines(it.Raw))
			continue
		}
		for _, f := range it.Fields {
			if f.Label != "" {
				fmt.Fprintf(b, "  %s:\n", f.Label)
			}
			b.WriteString(indentLines(f.Value))
		}
	}
}

func indentLines(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
