package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS adds Access-Control headers for allowed origins and answers preflight
// requests. Credentials are only allowed for an explicit origin list.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	origins := allowedOrigins
	if allowAll {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Cache", "X-Request-ID"},
		AllowCredentials: !allowAll,
		MaxAge:           300,
	})
}
