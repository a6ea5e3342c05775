package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/askdb/internal/askdb"
	"github.com/faucetdb/askdb/internal/server/middleware"
	"github.com/faucetdb/askdb/internal/service"
)

// Asker answers a question against a named service.
type Asker interface {
	Ask(ctx context.Context, req service.AskRequest) (*askdb.Result, error)
}

// AskRequest is the JSON body accepted by the ask endpoints.
type AskRequest struct {
	Question      string `json:"question"`
	Service       string `json:"service,omitempty"`
	MaxRows       int    `json:"maxRows,omitempty"`
	FormatResults *bool  `json:"formatResults,omitempty"`
}

// AskHandler serves POST requests that carry a natural-language question
// and responds with the askdb.Result as JSON.
type AskHandler struct {
	asker       Asker
	maxBodySize int64
	logger      *slog.Logger
}

// NewAskHandler creates an AskHandler. A maxBodySize of zero uses
// DefaultMaxBodySize.
func NewAskHandler(asker Asker, maxBodySize int64, logger *slog.Logger) *AskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AskHandler{asker: asker, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP handles POST /api/v1/ask and POST /api/v1/{serviceName}/_ask.
// The service in the path wins over the one in the body.
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body AskRequest
	if err := readJSON(w, r, h.maxBodySize, &body); err != nil {
		status, msg := bodyError(err)
		writeError(w, status, msg)
		return
	}
	if name := chi.URLParam(r, "serviceName"); name != "" {
		body.Service = name
	}

	res, err := h.asker.Ask(r.Context(), service.AskRequest{
		Service:       body.Service,
		Question:      body.Question,
		MaxRows:       body.MaxRows,
		FormatResults: body.FormatResults,
		RequestID:     middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("ask failed", "service", body.Service, "error", err)
		}
		writeError(w, status, err.Error(), errorContext(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
