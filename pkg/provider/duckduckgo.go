package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/log"
)

const (
	// DefaultDuckDuckGoURL is the Instant Answer API endpoint.
	DefaultDuckDuckGoURL = "https://api.duckduckgo.com/"
	// DefaultTimeout bounds a single upstream call.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 1 << 20
	titleSeparator  = " - "
)

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Results       []ddgTopic `json:"Results"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// DuckDuckGoConfig configures the DuckDuckGo adapter. Zero values fall back
// to the defaults.
type DuckDuckGoConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// DuckDuckGo queries the DuckDuckGo Instant Answer API.
type DuckDuckGo struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewDuckDuckGo creates the adapter. Requests are paced by a token bucket
// when RequestsPerSecond is positive.
func NewDuckDuckGo(cfg DuckDuckGoConfig) *DuckDuckGo {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultDuckDuckGoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &DuckDuckGo{
		baseURL: baseURL,
		client:  client,
		limiter: limiter,
		logger:  log.ForService("provider"),
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search runs query against the Instant Answer API.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, wrap(d.Name(), query, fmt.Errorf("rate limiter: %w", err))
	}

	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, wrap(d.Name(), query, fmt.Errorf("parsing base url: %w", err))
	}
	params := u.Query()
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, wrap(d.Name(), query, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, wrap(d.Name(), query, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, wrap(d.Name(), query, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, wrap(d.Name(), query, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload ddgResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, wrap(d.Name(), query, fmt.Errorf("decoding response: %w", err))
	}

	results := mapTopics(payload)
	d.logger.Debugf("query %q returned %d results in %s", query, len(results), time.Since(start))
	return results, nil
}

// mapTopics flattens Results and RelatedTopics (expanding topic groups in
// place) and keeps only items that carry both a URL and text.
func mapTopics(payload ddgResponse) []core.SearchResult {
	all := make([]ddgTopic, 0, len(payload.Results)+len(payload.RelatedTopics))
	all = append(all, payload.Results...)
	for _, topic := range payload.RelatedTopics {
		if topic.Topics != nil {
			all = append(all, topic.Topics...)
			continue
		}
		all = append(all, topic)
	}

	results := make([]core.SearchResult, 0, len(all))
	for _, item := range all {
		if item.FirstURL == "" || item.Text == "" {
			continue
		}
		results = append(results, core.SearchResult{
			Title: extractTitle(item.Text),
			URL:   item.FirstURL,
		})
	}
	return results
}

func extractTitle(text string) string {
	if i := strings.Index(text, titleSeparator); i > 0 {
		return text[:i]
	}
	return text
}
