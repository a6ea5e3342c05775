package mcp

import (
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/askdb/internal/service"
)

const instructions = "askdb answers natural-language questions about connected databases. " +
	"Call askdb_list_services first, then askdb_describe_schema to see the tables. " +
	"askdb_ask generates a single read-only SELECT, runs it and summarizes the rows. " +
	"askdb_validate_sql checks a statement of your own without running it."

// MCPServer wraps the mcp-go server with askdb's tools and resources. It
// lets AI agents discover services and ask read-only questions of them.
type MCPServer struct {
	catalog *service.Catalog
	schemas *service.SchemaService
	asker   *service.AskService
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all askdb tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(catalog *service.Catalog, schemas *service.SchemaService, asker *service.AskService, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	s := &MCPServer{
		catalog: catalog,
		schemas: schemas,
		asker:   asker,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"askdb",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// askdb as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts a standalone Streamable HTTP listener on addr
// (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// Handler returns the Streamable HTTP transport as a handler, for mounting
// on the main API server.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(true),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
