package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows browser clients on origins to call the API and read the
// headers a range-aware video player needs.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Range", RequestIDHeader},
		ExposedHeaders: []string{"Accept-Ranges", "Content-Length", "Content-Range", RequestIDHeader},
		MaxAge:         300,
	})
}
