package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// r4u://tasks — every task in the configured project.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"r4u://tasks",
			"Project Tasks",
			mcplib.WithResourceDescription("All AI tasks in the configured project"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTasksResource,
	)

	// r4u://tasks/{id}/versions — a task's implementation versions.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"r4u://tasks/{id}/versions",
			"Task Versions",
			mcplib.WithTemplateDescription("Immutable implementation versions of a specific task"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleTaskVersions,
	)
}

func (s *Server) handleTasksResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	tasks, err := s.backend.ListTasks(ctx, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("mcp: list tasks: %w", err)
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal tasks: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "r4u://tasks",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleTaskVersions(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	taskID, err := taskIDFromURI(uri)
	if err != nil {
		return nil, err
	}

	task, err := s.backend.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("mcp: get task: %w", err)
	}
	impls, err := s.backend.ListImplementations(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("mcp: list implementations: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"task_id":            task.ID,
		"name":               task.Name,
		"production_version": task.ProductionVersion,
		"versions":           impls,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal versions: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// taskIDFromURI extracts the task ID from r4u://tasks/{id}/versions.
func taskIDFromURI(uri string) (int64, error) {
	rest, ok := strings.CutPrefix(uri, "r4u://tasks/")
	if !ok {
		return 0, fmt.Errorf("mcp: invalid task URI: %s", uri)
	}
	rest, _ = strings.CutSuffix(rest, "/versions")
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("mcp: invalid task URI: %s", uri)
	}
	return id, nil
}
