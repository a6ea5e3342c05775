package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/askdb/internal/schema"
)

// SchemaProvider returns the model-facing schema of a service.
type SchemaProvider interface {
	Get(ctx context.Context, name string) (*schema.Schema, error)
	Invalidate(name string)
}

// SchemaHandler exposes the schema context a service's questions are
// answered against.
type SchemaHandler struct {
	schemas SchemaProvider
}

// NewSchemaHandler creates a new SchemaHandler.
func NewSchemaHandler(schemas SchemaProvider) *SchemaHandler {
	return &SchemaHandler{schemas: schemas}
}

// GetSchema returns the sanitized schema as JSON, or as the rendered prompt
// text with ?format=text. ?refresh=true drops the cached copy first.
// GET /api/v1/{serviceName}/_schema
func (h *SchemaHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	serviceName := chi.URLParam(r, "serviceName")
	if queryBool(r, "refresh") {
		h.schemas.Invalidate(serviceName)
	}

	sch, err := h.schemas.Get(r.Context(), serviceName)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sch.Render()))
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// GetTable returns one table or view of the schema.
// GET /api/v1/{serviceName}/_schema/{tableName}
func (h *SchemaHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	serviceName := chi.URLParam(r, "serviceName")
	tableName := chi.URLParam(r, "tableName")

	sch, err := h.schemas.Get(r.Context(), serviceName)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	table, ok := sch.Table(tableName)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found: "+tableName)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
