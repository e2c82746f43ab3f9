package middleware

import (
	"net/http"
	"strings"
)

// demoAllowed reports whether r may run against a read-only demo deployment.
func demoAllowed(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	case http.MethodPost:
		return r.URL.Path == "/api/plaid/webhook" || strings.HasSuffix(r.URL.Path, "/sync")
	}
	return false
}

// DemoModeMiddleware rejects writes in demo mode. Sync triggers and the Plaid webhook stay open.
func DemoModeMiddleware(isDemo bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !isDemo {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !demoAllowed(r) {
				WriteError(w, http.StatusForbidden, "demo_mode", "Demo mode: only reads and syncs are allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
