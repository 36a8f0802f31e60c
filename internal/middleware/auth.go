package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"localbiz-chat/internal/auth"
	"localbiz-chat/internal/observability"
)

// accessTokenParam carries the token for websocket upgrades, where browsers
// cannot set an Authorization header.
const accessTokenParam = "access_token"

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Auth rejects requests without a valid token and stores the verified claims
// in the request context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Not authenticated")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				observability.FromContext(r.Context()).Debug("token rejected")
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Invalid or expired token")
				return
			}

			ctx := auth.WithClaims(r.Context(), claims)
			if identity, err := auth.IdentityFromContext(ctx); err == nil {
				ctx = observability.WithUserID(ctx, identity.ID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(accessTokenParam)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"kind":  kind,
	})
}
