package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgadmin/pkg/composables"
	"github.com/iota-uz/orgadmin/pkg/logging"
)

var testAuthKey = []byte("0123456789abcdef0123456789abcdef")

func newRouter(mw ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mw...)
	r.HandleFunc("/admin/organizations", func(w http.ResponseWriter, r *http.Request) {
		token, _ := composables.UseCSRFToken(r.Context())
		_, _ = io.WriteString(w, token)
	}).Methods(http.MethodGet)
	r.HandleFunc("/admin/api/organizations/reorder", func(w http.ResponseWriter, r *http.Request) {
		id, _ := composables.UseRequestID(r.Context())
		composables.UseLogger(r.Context()).Info("reorder")
		_, _ = io.WriteString(w, id)
	}).Methods(http.MethodPost)
	r.HandleFunc("/admin/api/organizations/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}).Methods(http.MethodGet)
	return r
}

func TestWithLogger_PropagatesRequestID(t *testing.T) {
	h := newRouter(WithLogger(logging.Discard(), DefaultLoggerOptions()))

	req := httptest.NewRequest(http.MethodPost, "/admin/api/organizations/reorder", strings.NewReader(`{"org_ids":[1]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-123", rec.Body.String())
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestWithLogger_GeneratesRequestID(t *testing.T) {
	h := newRouter(WithLogger(logging.Discard(), DefaultLoggerOptions()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api/organizations/reorder", nil))

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, rec.Header().Get("X-Request-ID"), rec.Body.String())
}

func TestWithLogger_RecoversPanicAsJSON(t *testing.T) {
	logger := logging.Discard()
	logger.SetLevel(logrus.ErrorLevel)
	h := newRouter(WithLogger(logger, DefaultLoggerOptions()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/organizations/panic", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "INTERNAL_SERVER_ERROR", body["code"])
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestWithLogger_LargeBodyIsStreamedAndTruncated(t *testing.T) {
	logger := logging.Discard()
	logger.SetLevel(logrus.DebugLevel)
	hook := logtest.NewLocal(logger)
	opts := DefaultLoggerOptions()

	payload := `{"org_ids":[` + strings.Repeat("1,", 4096) + `1]}`
	body := &countingReader{r: strings.NewReader(payload)}

	var readBeforeHandler int
	r := mux.NewRouter()
	r.Use(WithLogger(logger, opts))
	r.HandleFunc("/admin/api/organizations/reorder", func(w http.ResponseWriter, r *http.Request) {
		readBeforeHandler = body.n
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(got)
	}).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/admin/api/organizations/reorder", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, payload, rec.Body.String())
	require.LessOrEqual(t, readBeforeHandler, opts.MaxBodyLength+1)

	var logged string
	for _, entry := range hook.AllEntries() {
		if v, ok := entry.Data["request-body"].(string); ok {
			logged = v
		}
	}
	require.Equal(t, payload[:opts.MaxBodyLength]+"...", logged)
}

func newCSRFRouter() *mux.Router {
	return newRouter(
		WithLogger(logging.Discard(), DefaultLoggerOptions()),
		CSRF(CSRFOptions{
			AuthKey:     testAuthKey,
			CookieName:  "csrf_token",
			HeaderName:  "X-CSRFToken",
			APIPrefixes: []string{"/admin/api/"},
		}, logging.Discard()),
	)
}

func TestCSRF_RejectsMutationWithoutToken(t *testing.T) {
	h := newCSRFRouter()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api/organizations/reorder", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "CSRF_INVALID", body["code"])
}

func TestCSRF_AcceptsTokenIssuedOnPage(t *testing.T) {
	h := newCSRFRouter()

	page := httptest.NewRecorder()
	h.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/admin/organizations", nil))
	require.Equal(t, http.StatusOK, page.Code)
	token := page.Body.String()
	require.NotEmpty(t, token)

	cookies := page.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.Equal(t, "csrf_token", cookies[0].Name)

	req := httptest.NewRequest(http.MethodPost, "/admin/api/organizations/reorder", nil)
	req.Header.Set("X-CSRFToken", token)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRF_RejectsForeignToken(t *testing.T) {
	h := newCSRFRouter()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/admin/organizations", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/admin/organizations", nil))

	req := httptest.NewRequest(http.MethodPost, "/admin/api/organizations/reorder", nil)
	req.Header.Set("X-CSRFToken", second.Body.String())
	for _, c := range first.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCors_PreflightAllowsCSRFHeader(t *testing.T) {
	h := newRouter(Cors([]string{"http://localhost:3000"}, "X-CSRFToken", "X-Request-ID"))
	h.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodOptions, "/admin/api/organizations/reorder", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-CSRFToken")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-csrftoken")
}

func TestRateLimit_RejectsAboveBudget(t *testing.T) {
	mw, err := RateLimit(RateLimitConfig{RequestsPerSecond: 2})
	require.NoError(t, err)
	h := newRouter(mw)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/organizations", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_DisabledIsPassThrough(t *testing.T) {
	mw, err := RateLimit(RateLimitConfig{})
	require.NoError(t, err)
	h := newRouter(mw)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/organizations", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
