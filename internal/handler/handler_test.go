package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"localbiz-chat/internal/domain"
	"localbiz-chat/internal/testutil"
)

// serve routes a single request through a chi router so URL params resolve.
func serve(t *testing.T, method, pattern, target string, h http.HandlerFunc, identity *domain.Identity) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, target, nil)
	if identity != nil {
		req = testutil.AsIdentity(req, *identity)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
