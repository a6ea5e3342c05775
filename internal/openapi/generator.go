package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/askdb/internal/schema"
)

// ServiceSpec holds the inputs needed to document one database service.
type ServiceSpec struct {
	Name    string
	Label   string
	Driver  string
	Dialect string
	Schema  *schema.Schema
}

// Generate builds the OpenAPI 3.1 document for the askdb HTTP API. Each
// service gets its own ask, validate and schema paths; its tables and views
// are published as component schemas describing result rows.
func Generate(baseURL, version string, services []ServiceSpec) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "askdb API",
			Description: "Ask natural-language questions of your databases. Generated SQL is validated as read-only and row-limited before it runs.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Paths = openapi3.NewPaths()
	addSharedSchemas(doc)
	addStaticPaths(doc)

	if len(services) == 0 {
		addServicePaths(doc, "{serviceName}", "", nil)
	}
	for _, svc := range services {
		label := svc.Label
		if label == "" {
			label = svc.Name
		}
		desc := fmt.Sprintf("%s (%s)", label, svc.Dialect)
		addServicePaths(doc, svc.Name, desc, svc.Schema)
	}
	return doc
}

// addSharedSchemas registers the request, response and error bodies.
func addSharedSchemas(doc *openapi3.T) {
	s := doc.Components.Schemas

	s["ErrorResponse"] = objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code":    typed("integer", "int32", "HTTP status code."),
			"message": typed("string", "", "Error message with the failing stage as context."),
			"context": objectSchema(openapi3.Schemas{
				"kind":  typed("string", "", "INVALID_INPUT, GENERATION_FAILED, INVALID_SQL, EXECUTION_FAILED, FORMATTING_FAILED, TIMEOUT or CANCELLED."),
				"stage": typed("string", "", "Pipeline stage that failed."),
				"sql":   typed("string", "", "The rejected or failing statement."),
			}),
		}),
	})

	askReq := objectSchema(openapi3.Schemas{
		"question":      typed("string", "", "Natural-language question."),
		"service":       typed("string", "", "Service to ask; only used by /api/v1/ask."),
		"maxRows":       typed("integer", "int32", "Row limit appended to unbounded queries (default 1000)."),
		"formatResults": typed("boolean", "", "Ask the model for a prose answer (default true)."),
	})
	askReq.Value.Required = []string{"question"}
	s["AskRequest"] = askReq

	usage := objectSchema(openapi3.Schemas{
		"inputTokens":  typed("integer", "int32", ""),
		"outputTokens": typed("integer", "int32", ""),
	})
	s["Usage"] = usage
	usageRef := openapi3.NewSchemaRef("#/components/schemas/Usage", nil)

	s["AskResult"] = objectSchema(openapi3.Schemas{
		"sql":             typed("string", "", "The limited statement that was executed."),
		"explanation":     typed("string", "", "What the query does."),
		"answer":          typed("string", "", "Prose answer, or a deterministic summary when formatting is off."),
		"rawData":         arrayOf(objectSchema(nil)),
		"executionTimeMs": typed("integer", "int64", "Wall time of the whole pipeline."),
		"usage": objectSchema(openapi3.Schemas{
			"sqlGeneration": usageRef,
			"formatting":    usageRef,
			"total":         usageRef,
		}),
	})

	validateReq := objectSchema(openapi3.Schemas{
		"sql":     typed("string", "", "Statement to check."),
		"maxRows": typed("integer", "int32", "Row limit applied to a valid statement."),
	})
	validateReq.Value.Required = []string{"sql"}
	s["ValidateRequest"] = validateReq
	s["ValidateResult"] = objectSchema(openapi3.Schemas{
		"valid":   typed("boolean", "", ""),
		"error":   typed("string", "", "Rejection reason."),
		"sql":     typed("string", "", "Statement with the row limit applied."),
		"dialect": typed("string", "", ""),
	})

	s["Service"] = objectSchema(openapi3.Schemas{
		"name":    typed("string", "", ""),
		"label":   typed("string", "", ""),
		"driver":  typed("string", "", ""),
		"dialect": typed("string", "", ""),
	})

	s["AskRecord"] = objectSchema(openapi3.Schemas{
		"id":            typed("string", "uuid", ""),
		"service":       typed("string", "", ""),
		"question":      typed("string", "", ""),
		"sql":           typed("string", "", ""),
		"answer":        typed("string", "", ""),
		"row_count":     typed("integer", "int32", ""),
		"duration_ms":   typed("integer", "int64", ""),
		"input_tokens":  typed("integer", "int32", ""),
		"output_tokens": typed("integer", "int32", ""),
		"error_code":    typed("string", "", ""),
		"error":         typed("string", "", ""),
		"created_at":    typed("string", "date-time", ""),
	})

	column := objectSchema(openapi3.Schemas{
		"name":        typed("string", "", ""),
		"type":        typed("string", "", ""),
		"description": typed("string", "", ""),
		"nullable":    typed("boolean", "", ""),
		"primary_key": typed("boolean", "", ""),
	})
	table := objectSchema(openapi3.Schemas{
		"name":        typed("string", "", ""),
		"type":        typed("string", "", "table or view"),
		"description": typed("string", "", ""),
		"columns":     arrayOf(column),
	})
	s["Table"] = table
	s["Schema"] = objectSchema(openapi3.Schemas{
		"tables": arrayOf(openapi3.NewSchemaRef("#/components/schemas/Table", nil)),
		"relationships": arrayOf(objectSchema(openapi3.Schemas{
			"from_table":  typed("string", "", ""),
			"from_column": typed("string", "", ""),
			"to_table":    typed("string", "", ""),
			"to_column":   typed("string", "", ""),
		})),
		"custom_instructions": typed("string", "", ""),
	})
}

// addStaticPaths documents the endpoints that do not name a service.
func addStaticPaths(doc *openapi3.T) {
	noAuth := &openapi3.SecurityRequirements{}

	health := &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Liveness probe",
		OperationID: "healthz",
		Security:    noAuth,
		Responses:   newResponses("200", "Process is running", objectSchema(nil)),
	}
	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: health})

	ready := &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Readiness probe",
		Description: "Pings every connected service; 503 when any of them fails.",
		OperationID: "readyz",
		Security:    noAuth,
		Responses:   newResponses("200", "All services reachable", objectSchema(nil)),
	}
	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: ready})

	doc.Paths.Set("/api/v1/ask", &openapi3.PathItem{
		Post: askOperation("ask", "ask", "Ask the default service",
			"Uses the service in the body, the configured default service, or the only connected service."),
	})

	doc.Paths.Set("/api/v1/_services", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "List connected services",
			OperationID: "listServices",
			Responses:   newResponses("200", "Connected services", listOf("#/components/schemas/Service")),
		},
	})

	doc.Paths.Set("/api/v1/_history", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"history"},
			Summary:     "List recorded questions",
			OperationID: "listHistory",
			Parameters: openapi3.Parameters{
				queryParam("service", "Only questions asked of this service.", "string"),
				queryParam("failed", "Only failed questions.", "boolean"),
				queryParam("limit", "Maximum records returned (1-500, default 50).", "integer"),
			},
			Responses: newResponses("200", "History records, newest first", listOf("#/components/schemas/AskRecord")),
		},
	})

	doc.Paths.Set("/api/v1/_history/{id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"history"},
			Summary:     "Get one recorded question",
			OperationID: "getHistory",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema())},
			},
			Responses: newResponses("200", "History record", openapi3.NewSchemaRef("#/components/schemas/AskRecord", nil)),
		},
	})
}

// addServicePaths documents the per-service endpoints. A nil schema skips
// the table paths.
func addServicePaths(doc *openapi3.T, serviceName, description string, sch *schema.Schema) {
	tag := serviceName
	opSuffix := capitalize(serviceName)
	var params openapi3.Parameters
	if strings.HasPrefix(serviceName, "{") {
		tag = "services"
		opSuffix = ""
		params = openapi3.Parameters{
			&openapi3.ParameterRef{Value: openapi3.NewPathParameter("serviceName").WithSchema(openapi3.NewStringSchema())},
		}
	}
	base := "/api/v1/" + serviceName

	ask := askOperation(tag, "ask"+opSuffix, "Ask a question", description)
	ask.Parameters = params
	doc.Paths.Set(base+"/_ask", &openapi3.PathItem{Post: ask})

	validate := &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     "Validate a SQL statement",
		Description: "Checks the statement against the read-only policy without running it.",
		OperationID: "validate" + opSuffix,
		Parameters:  params,
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/ValidateRequest", nil)),
			},
		},
		Responses: newResponses("200", "Validation verdict", openapi3.NewSchemaRef("#/components/schemas/ValidateResult", nil)),
	}
	doc.Paths.Set(base+"/_validate", &openapi3.PathItem{Post: validate})

	schemaParams := append(openapi3.Parameters{}, params...)
	schemaParams = append(schemaParams,
		queryParam("format", "json (default) or text for the rendered prompt context.", "string"),
		queryParam("refresh", "Drop the cached schema before answering.", "boolean"),
	)
	doc.Paths.Set(base+"/_schema", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     "Describe the schema shown to the model",
			Description: "Sensitive columns are not included.",
			OperationID: "schema" + opSuffix,
			Parameters:  schemaParams,
			Responses:   newResponses("200", "Sanitized schema", openapi3.NewSchemaRef("#/components/schemas/Schema", nil)),
		},
	})

	if sch == nil {
		return
	}
	for _, table := range sch.Tables {
		name := sanitizeSchemaName(serviceName, table.Name)
		doc.Components.Schemas[name] = columnsToSchema(table)
		doc.Paths.Set(base+"/_schema/"+table.Name, &openapi3.PathItem{
			Get: &openapi3.Operation{
				Tags:        []string{tag},
				Summary:     fmt.Sprintf("Describe %s %s", tableKind(table), table.Name),
				OperationID: "schema" + opSuffix + "_" + name,
				Responses:   newResponses("200", "Table description", openapi3.NewSchemaRef("#/components/schemas/Table", nil)),
			},
		})
	}
}

func askOperation(tag, operationID, summary, description string) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		Description: description,
		OperationID: operationID,
		RequestBody: &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/AskRequest", nil)),
			},
		},
		Responses: newResponses("200", "Answer with the executed SQL and rows", openapi3.NewSchemaRef("#/components/schemas/AskResult", nil)),
	}
}

// columnsToSchema describes one result row of a table or view.
func columnsToSchema(table schema.Table) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, col := range table.Columns {
		m := MapDBType(col.Type)
		s := columnTypeSchema(m)
		s.Nullable = col.Nullable
		s.Description = col.Description
		props[col.Name] = &openapi3.SchemaRef{Value: s}
	}
	ref := objectSchema(props)
	ref.Value.Description = table.Description
	return ref
}

// columnTypeSchema creates an OpenAPI Schema from a TypeMapping.
func columnTypeSchema(m TypeMapping) *openapi3.Schema {
	s := &openapi3.Schema{
		Type:   &openapi3.Types{m.Type},
		Format: m.Format,
	}
	if m.Type == "array" {
		s.Items = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
	return s
}

func tableKind(t schema.Table) string {
	if t.Type == "view" {
		return "view"
	}
	return "table"
}

func typed(typ, format, description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{typ},
		Format:      format,
		Description: description,
	}}
}

func objectSchema(props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: items,
	}}
}

// listOf wraps ref in the standard {"resource": [...], "meta": {...}} envelope.
func listOf(ref string) *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"resource": arrayOf(openapi3.NewSchemaRef(ref, nil)),
		"meta":     metaSchema(),
	})
}

func queryParam(name, description, typ string) *openapi3.ParameterRef {
	p := openapi3.NewQueryParameter(name)
	p.Description = description
	p.Schema = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}}}
	return &openapi3.ParameterRef{Value: p}
}

// newResponses builds a Responses object with a success response and the
// standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, e := range []struct{ code, desc string }{
		{"400", "Invalid input or rejected SQL"},
		{"401", "Unauthorized"},
		{"404", "Service not found"},
		{"500", "Generation, execution or formatting failed"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"count":   typed("integer", "int64", "Number of records returned."),
		"limit":   typed("integer", "int32", "Maximum records requested."),
		"took_ms": typed("number", "double", "Time spent building the response."),
	})
}

// sanitizeSchemaName creates a valid OpenAPI component schema name from service + table names.
func sanitizeSchemaName(serviceName, tableName string) string {
	s := capitalize(serviceName) + "_" + capitalize(tableName)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
