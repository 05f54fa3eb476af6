// Package client talks to the quack HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/log"
)

const (
	DefaultBaseURL = "http://localhost:3000"
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Message)
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *log.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.ForService("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search runs a search through GET /search.
func (c *Client) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	var results []core.SearchResult
	q := url.Values{"q": {query}}
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SearchPost runs a search through POST /search.
func (c *Client) SearchPost(ctx context.Context, query string) ([]core.SearchResult, error) {
	var results []core.SearchResult
	if err := c.do(ctx, http.MethodPost, "/search", nil, map[string]string{"q": query}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// History returns the search history, most recent first.
func (c *Client) History(ctx context.Context) ([]core.HistoryEntry, error) {
	var entries []core.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/search/history", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// RemoveHistoryEntry deletes the entry at index in most-recent-first order.
func (c *Client) RemoveHistoryEntry(ctx context.Context, index int) error {
	return c.do(ctx, http.MethodDelete, "/search/history/"+strconv.Itoa(index), nil, nil, nil)
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/search/history", nil, nil, nil)
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnf("%s %s failed: %v", method, path, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.logger.Warnf("%s", serr)
		return serr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && (body.Message != "" || body.Error != "") {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
