package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireKey only lets through requests presenting one of keys, either as
// a bearer token or in X-API-Key. With no keys configured it is a no-op.
func RequireKey(keys []string) func(http.Handler) http.Handler {
	if len(keys) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		accepted = append(accepted, []byte(k))
	}

	allowed := func(r *http.Request) bool {
		given := r.Header.Get("X-API-Key")
		if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
			given = token
		}
		given = strings.TrimSpace(given)
		if given == "" {
			return false
		}
		for _, k := range accepted {
			if subtle.ConstantTimeCompare(k, []byte(given)) == 1 {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed(r) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
}
