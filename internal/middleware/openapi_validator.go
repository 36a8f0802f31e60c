package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// Spec is the OpenAPI document, usually api.OpenAPISpec
	Spec []byte
	// SkipPaths are path prefixes that bypass validation
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates everything under the versioned API.
func DefaultOpenAPIValidatorConfig(spec []byte) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:   true,
		Spec:      spec,
		SkipPaths: []string{"/health", "/metrics", "/ws/"},
	}
}

// NewOpenAPIRouter loads and validates spec and returns a router over its
// paths. Servers are ignored so matching is on the path alone.
func NewOpenAPIRouter(spec []byte) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}
	return router, nil
}

// OpenAPIValidator rejects requests that do not match the OpenAPI document.
// An unusable document is a startup error, not a silent pass-through.
func OpenAPIValidator(config *OpenAPIValidatorConfig) (func(next http.Handler) http.Handler, error) {
	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	}

	router, err := NewOpenAPIRouter(config.Spec)
	if err != nil {
		return nil, err
	}

	slog.Info("OpenAPI validation enabled")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				writeJSONError(w, http.StatusNotFound, "not_found",
					fmt.Sprintf("No such operation: %s %s", r.Method, r.URL.Path))
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				slog.Warn("request validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeJSONError(w, http.StatusBadRequest, "validation_error",
					fmt.Sprintf("Request validation failed: %s", err.Error()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// shouldSkipPath checks if a path should skip validation
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
