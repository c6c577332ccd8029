package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:3000"}

// CORS builds the cors options for the given origins. A "*" origin turns
// credentials off, since browsers refuse the combination.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		// The frontend reads these to show limits and back off on 429.
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: !slices.Contains(allowedOrigins, "*"),
		MaxAge:           300,
	}
}
