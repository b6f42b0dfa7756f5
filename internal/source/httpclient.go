package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoData is returned by HTTPClient when the remote answers 404.
var ErrNoData = errors.New("no data")

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRateLimit   = 5 // requests per second
)

// HTTPClient is a small JSON-over-HTTP client shared by the source adapters.
// It maps HTTP failures onto the source error kinds and never retries: a
// throttled source is skipped for the run.
type HTTPClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	header     http.Header
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *HTTPClient) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		c.header.Set(key, value)
	}
}

// NewHTTPClient creates a client for the named source rooted at baseURL.
func NewHTTPClient(name, baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateLimit),
		header:     http.Header{"Accept": []string{"application/json"}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the root URL requests are made against.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request and returns the response body.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values, header http.Header) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, path, header)
}

// GetJSON performs a GET request and unmarshals the JSON response into dest.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, header http.Header, dest any) error {
	body, err := c.Get(ctx, path, query, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return Wrap(c.name, path, ErrTransport, fmt.Errorf("parsing JSON: %w", err))
	}
	return nil
}

// PostFormJSON posts a url-encoded form and unmarshals the JSON response into dest.
func (c *HTTPClient) PostFormJSON(ctx context.Context, path string, form url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return Wrap(c.name, path, ErrTransport, fmt.Errorf("parsing JSON: %w", err))
	}
	return nil
}

func (c *HTTPClient) do(req *http.Request, op string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, Wrap(c.name, op, ErrTransport, fmt.Errorf("rate limit wait: %w", err))
	}

	for k, v := range c.header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Wrap(c.name, op, ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(c.name, op, ErrTransport, fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Wrap(c.name, op, ErrAuth, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, Wrap(c.name, op, ErrRateLimited, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", c.name, op, ErrNoData)
	default:
		return nil, Wrap(c.name, op, ErrTransport, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	}
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
