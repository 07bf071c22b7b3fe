package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Cors allows the configured origins to call the admin API with cookies and
// the CSRF/request-id headers.
func Cors(allowedOrigins []string, csrfHeader, requestIDHeader string) mux.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Accept", csrfHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "X-Trace-Id"},
		MaxAge:         600,
	})
	return c.Handler
}
