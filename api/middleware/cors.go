package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const localOrigin = "http://localhost:3000"

// CORS returns middleware allowing the web app origin plus local dev.
func CORS(publicURL string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(publicURL),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func allowedOrigins(publicURL string) []string {
	origins := []string{localOrigin}
	origin := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if origin != "" && origin != localOrigin {
		origins = append(origins, origin)
	}
	return origins
}
