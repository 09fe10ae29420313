package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/orchestrator"
	"github.com/isdmx/runbox/registry"
)

// Executor is the orchestration capability the server needs; satisfied
// by *orchestrator.Orchestrator and fakeable in tests.
type Executor interface {
	Execute(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	registry  *registry.Registry
	executor  Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, reg *registry.Registry, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		registry: reg,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.max_concurrent_executions", cfg.Sandbox.MaxConcurrentExecutions),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.compile_timeout_sec", cfg.Sandbox.CompileTimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Strings("languages", reg.Languages()),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("runbox-executor", "An isolated code execution server")

	// Register the execute_code tool
	s.registerExecuteCodeTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Execute untrusted code in an isolated, ephemeral sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided source code",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language identifier",
					"enum":        s.registry.Languages(),
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// executeResponse is the wire shape of one execution result
type executeResponse struct {
	Status    string `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  *int   `json:"exit_code"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	s.logger.Info("code execution requested", zap.String("language", language), zap.Int("code_len", len(code)))

	result, err := s.executor.Execute(ctx, orchestrator.Request{Code: code, Language: language})
	if err != nil && result.Status == "" {
		// Request rejected before a status could be assigned (bad input).
		s.logger.Warn("execution rejected", zap.String("language", language), zap.Error(err))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Execution failed: %v", err),
				},
			},
			IsError: true,
		}, nil
	}

	// Request-level failures (UnknownLanguage, AdmissionTimeout,
	// SandboxUnavailable) carry a status and serialize like any other
	// outcome.
	if err != nil {
		s.logger.Warn("execution failed",
			zap.String("language", language),
			zap.String("status", string(result.Status)),
			zap.Error(err))
	}

	body, err := marshalResult(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: body,
			},
		},
	}, nil
}

// marshalResult serializes a result into the outbound wire shape.
// exit_code is null when the process was killed.
func marshalResult(result orchestrator.Result) (string, error) {
	resp := executeResponse{
		Status:    string(result.Status),
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
		ExitCode:  result.ExitCode,
		ElapsedMS: result.ElapsedMS(),
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
