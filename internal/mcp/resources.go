package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	servicesURI     = "askdb://services"
	schemaURIPrefix = "askdb://schema/"
)

// registerResources adds read-only context documents that clients can load
// without a tool call.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	srv.AddResource(
		mcp.NewResource(
			servicesURI,
			"Connected Database Services",
			mcp.WithResourceDescription(
				"Database services askdb can answer questions about, with driver and SQL dialect.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleServicesResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			schemaURIPrefix+"{service}",
			"Database Schema Context",
			mcp.WithTemplateDescription(
				"The schema context the question model receives for a service: tables, "+
					"views, columns, relationships and custom instructions. Sensitive "+
					"columns are omitted.",
			),
			mcp.WithTemplateMIMEType("text/plain"),
		),
		s.handleSchemaResource,
	)
}

func (s *MCPServer) handleServicesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	b, err := json.MarshalIndent(s.services(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal services: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      servicesURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// handleSchemaResource renders the prompt schema for askdb://schema/{service}.
func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	serviceName := strings.TrimPrefix(uri, schemaURIPrefix)
	if serviceName == "" || serviceName == uri {
		return nil, fmt.Errorf("invalid schema URI %q: expected %s{service}", uri, schemaURIPrefix)
	}

	sch, err := s.schemas.Get(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w (available: %v)", serviceName, err, s.catalog.Names())
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     sch.Render(),
		},
	}, nil
}
