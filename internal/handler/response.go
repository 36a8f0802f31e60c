package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/observability"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError logs err with the request's context and converts its kind to
// an HTTP status. Storage and internal failures do not leak their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	status := statusForKind(kind)

	logger := observability.FromContext(r.Context())
	level := slog.LevelWarn
	message := err.Error()
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
		message = http.StatusText(status)
	}
	logger.Log(r.Context(), level, "request failed",
		slog.String("kind", kind),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

func statusForKind(kind string) int {
	switch kind {
	case "unauthenticated":
		return http.StatusUnauthorized
	case "unauthorized":
		return http.StatusForbidden
	case "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrValidation, name)
	}
	return id, nil
}
