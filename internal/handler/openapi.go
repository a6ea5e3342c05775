package handler

import (
	"context"
	"net/http"

	"github.com/faucetdb/askdb/internal/openapi"
	"github.com/faucetdb/askdb/internal/service"
)

// OpenAPIHandler serves the OpenAPI 3.1 document for the running server,
// built from the connected services and their cached schemas.
type OpenAPIHandler struct {
	catalog *service.Catalog
	schemas SchemaProvider
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(catalog *service.Catalog, schemas SchemaProvider, version string) *OpenAPIHandler {
	return &OpenAPIHandler{
		catalog: catalog,
		schemas: schemas,
		version: version,
	}
}

// ServeSpec returns the document covering every connected service.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	specs := ServiceSpecs(r.Context(), h.catalog, h.schemas)
	writeJSON(w, http.StatusOK, openapi.Generate(baseURL(r), h.version, specs))
}

// ServiceSpecs collects the generator inputs for every connected service.
// Services whose schema cannot be loaded are documented without their
// table paths.
func ServiceSpecs(ctx context.Context, catalog *service.Catalog, schemas SchemaProvider) []openapi.ServiceSpec {
	var specs []openapi.ServiceSpec
	for _, svc := range catalog.List() {
		conn, err := catalog.Connector(svc.Name)
		if err != nil {
			continue // not connected
		}
		spec := openapi.ServiceSpec{
			Name:    svc.Name,
			Label:   svc.Label,
			Driver:  svc.Driver,
			Dialect: conn.Dialect(),
		}
		if sch, err := schemas.Get(ctx, svc.Name); err == nil {
			spec.Schema = sch
		}
		specs = append(specs, spec)
	}
	return specs
}

// baseURL reconstructs the externally visible origin of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
