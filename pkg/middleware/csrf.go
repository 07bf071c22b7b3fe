package middleware

import (
	"net/http"
	"net/url"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgadmin/pkg/composables"
	"github.com/iota-uz/orgadmin/pkg/httpapi"
)

type CSRFOptions struct {
	// AuthKey signs the token cookie; 32 bytes.
	AuthKey     []byte
	CookieName  string
	HeaderName  string
	Secure      bool
	APIPrefixes []string
	// AllowedOrigins are full origins ("https://admin.example.com"); only hosts are kept.
	AllowedOrigins []string
}

// CSRF protects every non-GET/HEAD/OPTIONS/TRACE request. Safe requests get a
// token in the request context (composables.UseCSRFToken) and a signed cookie.
func CSRF(opts CSRFOptions, logger *logrus.Logger) mux.MiddlewareFunc {
	protect := csrf.Protect(
		opts.AuthKey,
		csrf.CookieName(opts.CookieName),
		csrf.RequestHeader(opts.HeaderName),
		csrf.Path("/"),
		csrf.Secure(opts.Secure),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.TrustedOrigins(originHosts(opts.AllowedOrigins)),
		csrf.ErrorHandler(csrfFailureHandler(opts.APIPrefixes, logger)),
	)
	return func(next http.Handler) http.Handler {
		withToken := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithCSRFToken(r.Context(), csrf.Token(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		protected := protect(withToken)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil && !opts.Secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func csrfFailureHandler(apiPrefixes []string, logger *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := "invalid CSRF token"
		if err := csrf.FailureReason(r); err != nil {
			reason = err.Error()
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"reason": reason,
			}).Warn("csrf check failed")
		}
		if !hasAnyPrefix(r.URL.Path, apiPrefixes) {
			http.Error(w, "Forbidden - "+reason, http.StatusForbidden)
			return
		}
		meta := map[string]string{}
		if id, ok := composables.UseRequestID(r.Context()); ok {
			meta["request_id"] = id
		}
		_ = httpapi.WriteFailure(w, http.StatusForbidden, "CSRF_INVALID", reason, meta)
	})
}

func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
