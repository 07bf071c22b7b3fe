// Package apiclient is the JSON client the org tree UI uses to talk to the
// admin API. Mutating verbs carry the CSRF token published by the admin page.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgadmin/pkg/constants"
)

var (
	ErrNoCSRFToken       = errors.New("csrf token is not set")
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("http %d: %s", e.Status, msg)
}

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	CSRFHeader      string
	RequestIDHeader string
	Authorization   string
	// HTTPClient overrides the default client; its Jar is replaced when nil.
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

type Client struct {
	baseURL         *url.URL
	httpClient      *http.Client
	csrfHeader      string
	requestIDHeader string
	authorization   string
	logger          *logrus.Logger

	mu        sync.RWMutex
	csrfToken string
}

func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "cookie jar")
		}
		hc.Jar = jar
	}
	csrfHeader := opts.CSRFHeader
	if csrfHeader == "" {
		csrfHeader = "X-CSRFToken"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:         u,
		httpClient:      hc,
		csrfHeader:      csrfHeader,
		requestIDHeader: opts.RequestIDHeader,
		authorization:   strings.TrimSpace(opts.Authorization),
		logger:          logger,
	}, nil
}

func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	c.csrfToken = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) CSRFToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrfToken
}

// CSRFFromHTML reads <meta name="csrf-token" content="...">.
func CSRFFromHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", errors.Wrap(err, "parse html")
	}
	token, ok := doc.Find(`meta[name="` + constants.CSRFMetaName + `"]`).First().Attr("content")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrNoCSRFToken
	}
	return strings.TrimSpace(token), nil
}

// BootstrapCSRF loads an HTML page (keeping its cookies) and stores the token
// from its csrf-token meta tag.
func (c *Client) BootstrapCSRF(ctx context.Context, pagePath string) error {
	req, err := c.newRequest(ctx, http.MethodGet, pagePath, nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch page")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Status: resp.StatusCode, RequestID: resp.Header.Get(c.requestIDHeader)}
	}
	token, err := CSRFFromHTML(resp.Body)
	if err != nil {
		return err
	}
	c.SetCSRFToken(token)
	return nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, in, out)
}

func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, in any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, "json marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requestIDHeader != "" {
		req.Header.Set(c.requestIDHeader, uuid.NewString())
	}
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	return req, nil
}

// Do sends one JSON request and decodes a 2xx body into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req, err := c.newRequest(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if mutating(method) {
		token := c.CSRFToken()
		if token == "" {
			return ErrNoCSRFToken
		}
		req.Header.Set(c.csrfHeader, token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "http read")
	}
	requestID := resp.Header.Get(c.requestIDHeader)
	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status-code": resp.StatusCode,
		"duration":    time.Since(start),
		"request-id":  requestID,
	}).Debug("org api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeHTTPError(resp.StatusCode, requestID, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "decode body: %v", err)
	}
	return nil
}

func decodeHTTPError(status int, requestID string, body []byte) error {
	var env struct {
		Message string            `json:"message"`
		Error   string            `json:"error"`
		Code    string            `json:"code"`
		Meta    map[string]string `json:"meta"`
	}
	httpErr := &HTTPError{Status: status, RequestID: requestID}
	if err := json.Unmarshal(body, &env); err != nil {
		httpErr.Message = strings.TrimSpace(string(body))
		return httpErr
	}
	httpErr.Code = env.Code
	httpErr.Message = env.Message
	if httpErr.Message == "" {
		httpErr.Message = env.Error
	}
	if httpErr.RequestID == "" {
		httpErr.RequestID = env.Meta["request_id"]
	}
	return httpErr
}
