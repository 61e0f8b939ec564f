// Package mcp implements the Model Context Protocol server for Kaizen.
//
// The MCP server exposes read-only views over the run store, the CI-fix
// tracker, and the learning statistics, allowing MCP-compatible AI agents
// to inspect remediation history without going through the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/service/learning"
	"github.com/ashita-ai/kaizen/internal/storage"
)

// Server wraps the MCP server with Kaizen's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	learning  *learning.Engine
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(db *storage.DB, learningSvc *learning.Engine, version string, logger *slog.Logger) *Server {
	s := &Server{
		db:       db,
		learning: learningSvc,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kaizen",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// kaizen_runs: list runs with filters.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaizen_runs",
			mcplib.WithDescription("List remediation runs, newest completions first, with optional filters"),
			mcplib.WithString("status", mcplib.Description("Filter by run status (created, started, completed, failed)")),
			mcplib.WithString("trace_id", mcplib.Description("Filter by trace ID substring")),
			mcplib.WithString("provider", mcplib.Description("Filter by model provider")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleRuns,
	)

	// kaizen_run: fetch a single run with its summary card.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaizen_run",
			mcplib.WithDescription("Fetch a single run by ID, including its summary card when one is attached"),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
		),
		s.handleRun,
	)

	// kaizen_cifix_runs: list CI-fix tracker entries.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaizen_cifix_runs",
			mcplib.WithDescription("List CI-fix tracker entries with derived status and SLO timers"),
			mcplib.WithString("status", mcplib.Description("Filter by derived status (DETECTED, FIXING, DONE, UNKNOWN)")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleCiFixRuns,
	)

	// kaizen_learning_stats: acceptance statistics over a window.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaizen_learning_stats",
			mcplib.WithDescription("Recommendation acceptance statistics over a sliding window"),
			mcplib.WithString("since", mcplib.Description("Window: 24h or 7d (default 24h)")),
		),
		s.handleLearningStats,
	)
}

func (s *Server) handleRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var filters model.RunFilters

	if v := request.GetString("status", ""); v != "" {
		status := model.RunStatus(v)
		if !model.ValidRunStatus(status) {
			return errorResult(fmt.Sprintf("unknown status %q", v)), nil
		}
		filters.Status = &status
	}
	filters.TraceID = request.GetString("trace_id", "")
	filters.Provider = request.GetString("provider", "")
	limit := request.GetInt("limit", 20)

	list, err := s.db.ListRuns(ctx, filters, "", limit)
	if err != nil {
		return errorResult(fmt.Sprintf("list runs failed: %v", err)), nil
	}

	return jsonResult(list)
}

func (s *Server) handleRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return errorResult("run_id is required"), nil
	}

	run, err := s.db.GetRun(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("get run failed: %v", err)), nil
	}

	return jsonResult(run)
}

func (s *Server) handleCiFixRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var status *model.CiFixStatus
	if v := request.GetString("status", ""); v != "" {
		st := model.CiFixStatus(v)
		if !model.ValidCiFixStatus(st) {
			return errorResult(fmt.Sprintf("unknown status %q", v)), nil
		}
		status = &st
	}
	limit := request.GetInt("limit", 20)

	list, err := s.db.ListCiFixRuns(ctx, status, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("list ci-fix runs failed: %v", err)), nil
	}

	return jsonResult(list)
}

func (s *Server) handleLearningStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	window := request.GetString("since", "24h")

	stats, err := s.learning.ComputeStats(ctx, window)
	if err != nil {
		return errorResult(fmt.Sprintf("compute stats failed: %v", err)), nil
	}

	return jsonResult(stats)
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

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
