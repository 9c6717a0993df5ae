package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// corsMaxAge is the preflight cache lifetime in seconds.
const corsMaxAge = 86400

// corsAllowedMethods and corsAllowedHeaders cover the API surface.
var (
	corsAllowedMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowedHeaders = strings.Join([]string{
		"Accept", "Authorization", "Content-Type", RequestIDHeader,
	}, ", ")
)

// CORS returns a CORS middleware. The dashboard is typically served from
// the same origin; a permissive policy keeps development setups working.
func CORS() func(http.Handler) http.Handler {
	return CORSWithOrigins([]string{"*"})
}

// CORSWithOrigins returns a CORS middleware restricted to the given origins.
// "*" allows any origin.
func CORSWithOrigins(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, origins) {
				if len(origins) == 1 && origins[0] == "*" {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed reports whether the origin matches the allowlist.
func originAllowed(origin string, origins []string) bool {
	for _, o := range origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
