package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/faucetdb/askdb/internal/askdb"
	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/service"
)

// DefaultMaxBodySize bounds request bodies when the server does not set a limit.
const DefaultMaxBodySize = 64 << 10

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]any) {
	var ctxMap map[string]any
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v, reading at most
// maxBytes. The body is closed after decoding regardless of success or failure.
func readJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// bodyError turns a readJSON failure into a status and message.
func bodyError(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "request body too large (max " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes)"
	}
	return http.StatusBadRequest, "invalid JSON body: " + err.Error()
}

// errorStatus maps service and pipeline errors to an HTTP status. Unknown
// services are 404 and a missing model is 503; everything else follows
// askdb.StatusCode.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, connector.ErrServiceNotFound), errors.Is(err, config.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrModelNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return askdb.StatusCode(err)
	}
}

// errorContext describes a pipeline error for the error envelope.
func errorContext(err error) map[string]any {
	var ae *askdb.Error
	if !errors.As(err, &ae) {
		return nil
	}
	ctx := map[string]any{
		"kind":  ae.Kind.String(),
		"stage": string(ae.Stage),
	}
	if ae.SQL != "" {
		ctx["sql"] = ae.SQL
	}
	return ctx
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
