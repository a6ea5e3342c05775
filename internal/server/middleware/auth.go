package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/faucetdb/askdb/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"

	// DefaultAPIKeyHeader carries API keys when the config names none.
	DefaultAPIKeyHeader = "X-API-Key"
)

// Principal represents the authenticated identity making the request.
type Principal struct {
	Type    string // "api_key" or "token"
	KeyID   int64  // zero for keys from the config file
	Label   string
	Subject string
}

// Authenticator validates API keys and bearer tokens.
type Authenticator interface {
	ValidateAPIKey(ctx context.Context, raw string) (*service.APIKeyPrincipal, error)
	ValidateJWT(ctx context.Context, token string) (*service.JWTPrincipal, error)
}

// Authenticate returns an HTTP middleware that validates the request's
// authentication credentials. It supports two methods:
//
//  1. API key via the configured header (X-API-Key by default)
//  2. JWT Bearer token via the Authorization header
//
// On success, a Principal is attached to the request context. On failure,
// a 401 JSON error response is returned.
func Authenticate(auth Authenticator, apiKeyHeader string) func(http.Handler) http.Handler {
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
				p, err := auth.ValidateAPIKey(r.Context(), apiKey)
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, authMessage(err, "Invalid API key"))
					return
				}
				principal = &Principal{Type: "api_key", KeyID: p.KeyID, Label: p.Label}
			}

			if principal == nil {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					token := strings.TrimPrefix(authHeader, "Bearer ")
					p, err := auth.ValidateJWT(r.Context(), token)
					if err != nil {
						writeAuthError(w, http.StatusUnauthorized, authMessage(err, "Invalid token"))
						return
					}
					principal = &Principal{Type: "token", Subject: p.Subject}
				}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide "+apiKeyHeader+" header or Bearer token.")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func authMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "Credentials expired"
	case errors.Is(err, service.ErrKeyRevoked):
		return "API key revoked"
	default:
		return fallback
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Built by hand to avoid an import cycle with the handler package.
	w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":` + strconv.Quote(message) + `}}`))
}
