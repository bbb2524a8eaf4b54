package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/itemassert/internal/actions"
	"github.com/rendis/itemassert/internal/validation"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Registry  actions.ActionRegistry
	Validator *validation.JSONSchemaValidator
	// Concurrency and ContinueOnFail are the runner defaults for every tool call.
	Concurrency    int
	ContinueOnFail bool
	Version        string
	Logger         *slog.Logger
}

// Server wraps an MCP server exposing the registered actions as tools.
type Server struct {
	registry       actions.ActionRegistry
	validator      *validation.JSONSchemaValidator
	concurrency    int
	continueOnFail bool
	logger         *slog.Logger
	mcpServer      *server.MCPServer
}

// NewServer creates a Server. The assertion tools are always registered;
// docs.request is registered only when the registry carries it.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	registry := deps.Registry
	if registry == nil {
		registry = actions.NewRegistry()
	}

	s := &Server{
		registry:       registry,
		validator:      deps.Validator,
		concurrency:    deps.Concurrency,
		continueOnFail: deps.ContinueOnFail,
		logger:         logger,
	}

	mcpSrv := server.NewMCPServer(
		"itemassert",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("itemassert checks pipeline items against expectations. Use assert.compare to compare each item's JSON with a reference document, assert.binary to check an item's attachment payload and metadata, docs.request to call the documents API, and itemassert.actions to list what is available."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: compareTool(), Handler: s.actionHandler("assert.compare", true)},
		{Tool: binaryTool(), Handler: s.actionHandler("assert.binary", true)},
		{Tool: actionsTool(), Handler: s.handleActions},
	}
	if s.registry.Has("docs.request") {
		tools = append(tools, server.ServerTool{Tool: docsTool(), Handler: s.actionHandler("docs.request", false)})
	}
	return tools
}
