package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/askdb/internal/query"
	"github.com/faucetdb/askdb/internal/service"
	"github.com/faucetdb/askdb/internal/telemetry"
)

const maxToolRows = 10000

// registerTools registers all askdb MCP tools on the given server. Every
// tool is read-only: the only SQL that reaches a database is a validated
// SELECT.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("askdb_list_services",
			mcp.WithDescription(
				"List the database services askdb can answer questions about. Returns "+
					"each service's name, label, driver and SQL dialect. Use this first "+
					"to pick the service for askdb_ask.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListServices,
	)

	srv.AddTool(
		mcp.NewTool("askdb_describe_schema",
			mcp.WithDescription(
				"Describe the tables, views, columns and relationships of a service "+
					"as the question model sees them. Sensitive columns are never listed. "+
					"Pass table to describe a single table or view.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("service",
				mcp.Description("Name of the database service. Optional when only one service is configured."),
			),
			mcp.WithString("table",
				mcp.Description("Name of a single table or view to describe"),
			),
			mcp.WithString("format",
				mcp.Description("\"json\" (default) or \"text\" for the rendered prompt context"),
				mcp.Enum("json", "text"),
			),
		),
		s.handleDescribeSchema,
	)

	// ----- Question answering -----

	srv.AddTool(
		mcp.NewTool("askdb_ask",
			mcp.WithDescription(
				"Answer a natural-language question about a database. askdb generates one "+
					"read-only SELECT statement, validates it, runs it with a row limit and "+
					"summarizes the rows. Returns the SQL, its explanation, the answer and the "+
					"raw rows.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question to answer, e.g. \"How many orders shipped last week?\""),
			),
			mcp.WithString("service",
				mcp.Description("Name of the database service. Optional when only one service is configured."),
			),
			mcp.WithNumber("max_rows",
				mcp.Description("Maximum number of rows the query may return (default from server config)"),
			),
			mcp.WithBoolean("format_results",
				mcp.Description("Summarize the rows in prose. Set false to get only SQL and rows."),
			),
		),
		s.handleAsk,
	)

	srv.AddTool(
		mcp.NewTool("askdb_validate_sql",
			mcp.WithDescription(
				"Check whether a SQL statement would pass askdb's safety rules without "+
					"running it. Only single SELECT statements (optionally with WITH) are "+
					"accepted. Returns the statement with the row limit applied.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL statement to validate"),
			),
			mcp.WithString("service",
				mcp.Description("Service whose dialect to report. Optional when only one service is configured."),
			),
			mcp.WithNumber("max_rows",
				mcp.Description("Row limit to apply (default from server config)"),
			),
		),
		s.handleValidateSQL,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

type serviceInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Driver  string `json:"driver"`
	Dialect string `json:"dialect,omitempty"`
}

func (s *MCPServer) services() []serviceInfo {
	services := s.catalog.List()
	items := make([]serviceInfo, 0, len(services))
	for _, svc := range services {
		info := serviceInfo{Name: svc.Name, Label: svc.Label, Driver: svc.Driver}
		if conn, err := s.catalog.Connector(svc.Name); err == nil {
			info.Dialect = conn.Dialect()
		}
		items = append(items, info)
	}
	return items
}

// handleListServices returns the connected database services.
func (s *MCPServer) handleListServices(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(s.services())
}

// handleDescribeSchema returns the sanitized schema of a service, or of one
// table in it.
func (s *MCPServer) handleDescribeSchema(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	serviceName, err := s.asker.ResolveService(optionalString(request, "service"))
	if err != nil {
		return toolError("%v. Available services: %v", err, s.catalog.Names())
	}

	sch, err := s.schemas.Get(ctx, serviceName)
	if err != nil {
		return toolError("Failed to load schema for %q: %v. Available services: %v",
			serviceName, err, s.catalog.Names())
	}

	if tableName := optionalString(request, "table"); tableName != "" {
		table, ok := sch.Table(tableName)
		if !ok {
			names := make([]string, len(sch.Tables))
			for i, t := range sch.Tables {
				names[i] = t.Name
			}
			return toolError("Table %q not found in service %q.\n\nAvailable tables: %v",
				tableName, serviceName, names)
		}
		return successJSON(table)
	}

	if optionalString(request, "format") == "text" {
		return mcp.NewToolResultText(sch.Render()), nil
	}
	return successJSON(sch)
}

// handleAsk runs the full question pipeline.
func (s *MCPServer) handleAsk(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	question, err := requireString(request, "question")
	if err != nil {
		return toolError("%v", err)
	}

	res, err := s.asker.Ask(ctx, service.AskRequest{
		Service:       optionalString(request, "service"),
		Question:      question,
		MaxRows:       clamp(optionalInt(request, "max_rows", 0), 0, maxToolRows),
		FormatResults: optionalBool(request, "format_results"),
	})
	if err != nil {
		s.logger.Warn("mcp ask failed", "error", err)
		return askError(err)
	}
	return successJSON(res)
}

type validateResult struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	SQL     string `json:"sql,omitempty"`
	Dialect string `json:"dialect,omitempty"`
}

// handleValidateSQL applies the SQL safety rules and the row limit without
// touching the database.
func (s *MCPServer) handleValidateSQL(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	sql, err := requireString(request, "sql")
	if err != nil {
		return toolError("%v", err)
	}

	var out validateResult
	if name, err := s.asker.ResolveService(optionalString(request, "service")); err == nil {
		if conn, err := s.catalog.Connector(name); err == nil {
			out.Dialect = conn.Dialect()
		}
	}

	v := query.ValidateSQL(sql)
	if !v.Valid {
		telemetry.IncrementValidationRejection()
		out.Error = v.Error
		return successJSON(out)
	}

	maxRows := clamp(optionalInt(request, "max_rows", 0), 0, maxToolRows)
	if maxRows == 0 {
		maxRows = s.asker.Defaults().MaxRows
	}
	out.Valid = true
	out.SQL = query.AddLimit(sql, maxRows)
	return successJSON(out)
}
