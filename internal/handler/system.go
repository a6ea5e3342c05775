package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/query"
	"github.com/faucetdb/askdb/internal/service"
)

// SystemHandler manages askdb's own configuration: database services and
// API keys stored in the config store.
type SystemHandler struct {
	store   *config.Store
	catalog *service.Catalog
	schemas *service.SchemaService
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store *config.Store, catalog *service.Catalog, schemas *service.SchemaService) *SystemHandler {
	return &SystemHandler{
		store:   store,
		catalog: catalog,
		schemas: schemas,
	}
}

// ---------------------------------------------------------------------------
// Service management
// ---------------------------------------------------------------------------

// ListServices returns all stored database services.
// GET /api/v1/system/service
func (h *SystemHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list services: "+err.Error())
		return
	}

	resources := make([]map[string]any, 0, len(services))
	for i := range services {
		resources = append(resources, h.serviceToMap(&services[i]))
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count: len(resources),
		},
	})
}

// CreateService stores a new database service and connects it.
// POST /api/v1/system/service
func (h *SystemHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var svc model.ServiceConfig
	if err := readJSON(w, r, 0, &svc); err != nil {
		status, msg := bodyError(err)
		writeError(w, status, msg)
		return
	}

	if err := query.ValidateIdentifier(svc.Name); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid service name: "+err.Error())
		return
	}
	if svc.Driver == "" {
		writeError(w, http.StatusBadRequest, "Driver is required")
		return
	}
	if !h.catalog.Registry().HasDriver(svc.Driver) {
		writeError(w, http.StatusBadRequest, "Invalid driver: "+svc.Driver)
		return
	}
	if svc.DSN == "" && svc.Driver != "duckdb" {
		writeError(w, http.StatusBadRequest, "DSN is required")
		return
	}

	// Check for name collision.
	if existing, err := h.store.GetServiceByName(r.Context(), svc.Name); err == nil && existing != nil {
		writeError(w, http.StatusConflict, "Service already exists: "+svc.Name)
		return
	}

	svc.IsActive = true
	if svc.Pool == (model.PoolConfig{}) {
		svc.Pool = model.DefaultPoolConfig()
	}
	svc.DSN = connector.SanitizeDSN(svc.Driver, svc.DSN)

	if err := h.store.CreateService(r.Context(), &svc); err != nil {
		if errors.Is(err, config.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "Service already exists: "+svc.Name)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create service: "+err.Error())
		return
	}

	if err := h.catalog.Add(svc); err != nil {
		// Service is persisted but connection failed; report it but don't fail the create.
		writeJSON(w, http.StatusCreated, map[string]any{
			"service":            h.serviceToMap(&svc),
			"connection_warning": "Service saved but connection failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, h.serviceToMap(&svc))
}

// GetService returns a single stored service by name.
// GET /api/v1/system/service/{serviceName}
func (h *SystemHandler) GetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "serviceName")

	svc, err := h.store.GetServiceByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Service not found: "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get service: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.serviceToMap(svc))
}

// serviceUpdate carries the fields UpdateService may change. Nil fields
// are left as they are.
type serviceUpdate struct {
	Label              *string  `json:"label"`
	DSN                *string  `json:"dsn"`
	PrivateKeyPath     *string  `json:"private_key_path"`
	Schema             *string  `json:"schema"`
	SensitiveColumns   []string `json:"sensitive_columns"`
	CustomInstructions *string  `json:"custom_instructions"`
	IsActive           *bool    `json:"is_active"`
}

// UpdateService modifies a stored service, reconnects it and drops its
// cached schema.
// PUT /api/v1/system/service/{serviceName}
func (h *SystemHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "serviceName")

	existing, err := h.store.GetServiceByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Service not found: "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get service: "+err.Error())
		return
	}

	var updates serviceUpdate
	if err := readJSON(w, r, 0, &updates); err != nil {
		status, msg := bodyError(err)
		writeError(w, status, msg)
		return
	}

	if updates.Label != nil {
		existing.Label = *updates.Label
	}
	if updates.DSN != nil && *updates.DSN != "" {
		existing.DSN = connector.SanitizeDSN(existing.Driver, *updates.DSN)
	}
	if updates.PrivateKeyPath != nil {
		existing.PrivateKeyPath = *updates.PrivateKeyPath
	}
	if updates.Schema != nil {
		existing.Schema = *updates.Schema
	}
	if updates.SensitiveColumns != nil {
		existing.SensitiveColumns = updates.SensitiveColumns
	}
	if updates.CustomInstructions != nil {
		existing.CustomInstructions = *updates.CustomInstructions
	}
	if updates.IsActive != nil {
		existing.IsActive = *updates.IsActive
	}

	if err := h.store.UpdateService(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update service: "+err.Error())
		return
	}
	h.schemas.Invalidate(existing.Name)

	if existing.IsActive {
		if err := h.catalog.Add(*existing); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"service":            h.serviceToMap(existing),
				"connection_warning": "Service updated but reconnection failed: " + err.Error(),
			})
			return
		}
	} else {
		// Service deactivated: disconnect it.
		_ = h.catalog.Remove(existing.Name)
	}

	writeJSON(w, http.StatusOK, h.serviceToMap(existing))
}

// DeleteService removes a stored service and disconnects it.
// DELETE /api/v1/system/service/{serviceName}
func (h *SystemHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "serviceName")

	if err := h.store.DeleteServiceByName(r.Context(), name); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Service not found: "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete service: "+err.Error())
		return
	}

	_ = h.catalog.Remove(name)
	h.schemas.Invalidate(name)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Service '" + name + "' deleted",
	})
}

// TestConnection pings a service, connecting it first if it is stored but
// not connected.
// GET /api/v1/system/service/{serviceName}/test
func (h *SystemHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "serviceName")

	conn, err := h.catalog.Connector(name)
	if err != nil {
		svc, storeErr := h.store.GetServiceByName(r.Context(), name)
		if storeErr != nil {
			writeError(w, http.StatusNotFound, "Service not found: "+name)
			return
		}
		if connErr := h.catalog.Add(*svc); connErr != nil {
			writeError(w, http.StatusServiceUnavailable, "Connection failed: "+connErr.Error())
			return
		}
		conn, _ = h.catalog.Connector(name)
	}

	if err := conn.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Ping failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Connection successful",
	})
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// ListAPIKeys returns all stored API keys (without exposing the actual key).
// GET /api/v1/system/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta: &model.ResponseMeta{
			Count: len(keys),
		},
	})
}

// createAPIKeyRequest is the expected payload for CreateAPIKey.
type createAPIKeyRequest struct {
	Label     string     `json:"label"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// createAPIKeyResponse includes the plaintext key (shown once only).
type createAPIKeyResponse struct {
	ID        int64      `json:"id"`
	Key       string     `json:"api_key"` // Plaintext, shown ONCE.
	KeyPrefix string     `json:"key_prefix"`
	Label     string     `json:"label"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateAPIKey generates a new API key, stores its hash and returns the
// plaintext key exactly once.
// POST /api/v1/system/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(w, r, 0, &req); err != nil {
		status, msg := bodyError(err)
		writeError(w, status, msg)
		return
	}

	plaintext, prefix, err := service.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate key: "+err.Error())
		return
	}

	apiKey := &model.APIKey{
		KeyHash:   config.HashAPIKey(plaintext),
		KeyPrefix: prefix,
		Label:     req.Label,
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		ID:        apiKey.ID,
		Key:       plaintext,
		KeyPrefix: prefix,
		Label:     apiKey.Label,
		ExpiresAt: apiKey.ExpiresAt,
		CreatedAt: apiKey.CreatedAt,
	})
}

// RevokeAPIKey deactivates an API key by its prefix.
// DELETE /api/v1/system/api-key/{keyPrefix}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "keyPrefix")

	if err := h.store.RevokeAPIKeyByPrefix(r.Context(), prefix); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+prefix)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "API key revoked",
	})
}

// serviceToMap hides the DSN and reports whether the service is connected.
func (h *SystemHandler) serviceToMap(svc *model.ServiceConfig) map[string]any {
	_, connected := h.catalog.Get(svc.Name)
	m := map[string]any{
		"id":         svc.ID,
		"name":       svc.Name,
		"label":      svc.Label,
		"driver":     svc.Driver,
		"schema":     svc.Schema,
		"is_active":  svc.IsActive,
		"connected":  connected,
		"created_at": svc.CreatedAt,
		"updated_at": svc.UpdatedAt,
	}
	if len(svc.SensitiveColumns) > 0 {
		m["sensitive_columns"] = svc.SensitiveColumns
	}
	if svc.CustomInstructions != "" {
		m["custom_instructions"] = svc.CustomInstructions
	}
	if svc.PrivateKeyPath != "" {
		m["private_key_path"] = svc.PrivateKeyPath
	}
	return m
}
