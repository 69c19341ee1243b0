// Package mcp implements the Model Context Protocol surface of the
// console.
//
// The MCP server exposes a read-only view of the same backend the web
// pages render — tasks, versions, traces, evaluations, and optimization
// jobs — so MCP-compatible agents can inspect task state without
// scraping HTML. Mutations stay on the web form routes.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/r4u-dev/r4u-console/internal/api"
	"github.com/r4u-dev/r4u-console/internal/traceview"
)

// Backend is the slice of the API client the MCP surface reads from.
type Backend interface {
	ListTasks(ctx context.Context, projectID int64) ([]api.Task, error)
	GetTask(ctx context.Context, taskID int64) (*api.Task, error)
	ListImplementations(ctx context.Context, taskID int64) ([]api.Implementation, error)
	ListTraces(ctx context.Context, opts *api.TraceOptions) ([]api.Trace, error)
	GetTrace(ctx context.Context, traceID int64) (*api.Trace, error)
	ListGrades(ctx context.Context, traceID int64) ([]api.Grade, error)
	ListOptimizations(ctx context.Context, taskID int64) ([]api.Optimization, error)
	GetOptimization(ctx context.Context, optimizationID int64) (*api.Optimization, error)
	GetEvaluation(ctx context.Context, evaluationID int64) (*api.Evaluation, error)
	GetEvaluationResults(ctx context.Context, evaluationID int64) ([]api.EvaluationResultItem, error)
}

// Server wraps the MCP server with the console's backend client.
type Server struct {
	mcpServer *mcpserver.MCPServer
	backend   Backend
	projectID int64
	logger    *slog.Logger

	inputs  *traceview.Renderer
	outputs *traceview.Renderer
}

// New creates and configures an MCP server with all resources and tools.
func New(backend Backend, projectID int64, version string, logger *slog.Logger) *Server {
	s := &Server{
		backend:   backend,
		projectID: projectID,
		logger:    logger,
		inputs:    traceview.NewInputRenderer(),
		outputs:   traceview.NewOutputRenderer(),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"r4u-console",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// backendError folds expected API failures into tool error results the
// calling agent can read. Not-found gets its own message so agents stop
// retrying a dead ID.
func backendError(op string, err error) *mcplib.CallToolResult {
	if api.IsNotFound(err) {
		return errorResult(fmt.Sprintf("%s: not found", op))
	}
	return errorResult(fmt.Sprintf("%s failed: %v", op, err))
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}
