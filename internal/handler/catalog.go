package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/query"
	"github.com/faucetdb/askdb/internal/service"
	"github.com/faucetdb/askdb/internal/telemetry"
)

// CatalogHandler serves the read-only views of connected services: the
// service list, SQL validation and the ask history.
type CatalogHandler struct {
	catalog     *service.Catalog
	store       *config.Store // nil when history is disabled
	maxRows     int
	maxBodySize int64
}

// NewCatalogHandler creates a CatalogHandler. maxRows is the limit applied
// to validated SQL.
func NewCatalogHandler(catalog *service.Catalog, store *config.Store, maxRows int, maxBodySize int64) *CatalogHandler {
	return &CatalogHandler{
		catalog:     catalog,
		store:       store,
		maxRows:     maxRows,
		maxBodySize: maxBodySize,
	}
}

// serviceInfo is the public description of a connected service.
type serviceInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Driver  string `json:"driver"`
	Dialect string `json:"dialect"`
}

// ListServices returns the connected services.
// GET /api/v1/_services
func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	services := h.catalog.List()
	resources := make([]serviceInfo, 0, len(services))
	for _, svc := range services {
		info := serviceInfo{Name: svc.Name, Label: svc.Label, Driver: svc.Driver}
		if conn, err := h.catalog.Connector(svc.Name); err == nil {
			info.Dialect = conn.Dialect()
		}
		resources = append(resources, info)
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count:  len(resources),
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

type validateRequest struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"maxRows,omitempty"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	SQL     string `json:"sql,omitempty"`
	Dialect string `json:"dialect"`
}

// Validate checks a statement against the read-only policy without running
// it. Valid statements are returned with the row limit applied.
// POST /api/v1/{serviceName}/_validate
func (h *CatalogHandler) Validate(w http.ResponseWriter, r *http.Request) {
	serviceName := chi.URLParam(r, "serviceName")
	conn, err := h.catalog.Connector(serviceName)
	if err != nil {
		writeError(w, http.StatusNotFound, "Service not found: "+serviceName)
		return
	}

	var req validateRequest
	if err := readJSON(w, r, h.maxBodySize, &req); err != nil {
		status, msg := bodyError(err)
		writeError(w, status, msg)
		return
	}

	resp := validateResponse{Dialect: conn.Dialect()}
	v := query.ValidateSQL(req.SQL)
	if !v.Valid {
		telemetry.IncrementValidationRejection()
		resp.Error = v.Error
		writeJSON(w, http.StatusOK, resp)
		return
	}
	maxRows := h.maxRows
	if req.MaxRows > 0 {
		maxRows = req.MaxRows
	}
	resp.Valid = true
	resp.SQL = query.AddLimit(req.SQL, maxRows)
	writeJSON(w, http.StatusOK, resp)
}

// ListHistory returns recorded asks, newest first. Supports ?service=,
// ?failed=true and ?limit= (1-500, default 50).
// GET /api/v1/_history
func (h *CatalogHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Ask history is disabled")
		return
	}
	limit := clampInt(queryInt(r, "limit", 50), 1, 500)
	recs, err := h.store.ListAsks(r.Context(), config.HistoryFilter{
		Service:    r.URL.Query().Get("service"),
		FailedOnly: queryBool(r, "failed"),
		Limit:      limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list history: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: recs,
		Meta: &model.ResponseMeta{
			Count: len(recs),
			Limit: limit,
		},
	})
}

// GetHistory returns one recorded ask.
// GET /api/v1/_history/{id}
func (h *CatalogHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Ask history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := h.store.GetAsk(r.Context(), id)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusNotFound {
			writeError(w, status, "History record not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get history: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
