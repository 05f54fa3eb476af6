package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/history"
	"github.com/rubiojr/quack/pkg/provider"
	"github.com/rubiojr/quack/pkg/realtime"
	"github.com/rubiojr/quack/pkg/search"
)

type mockProvider struct {
	results []core.SearchResult
	err     error
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	if p.err != nil {
		return nil, &provider.Error{Provider: "mock", Query: query, Err: p.err}
	}
	return p.results, nil
}

var testResults = []core.SearchResult{
	{Title: "React", URL: "https://react.dev"},
	{Title: "Preact", URL: "https://preactjs.com"},
}

type testEnv struct {
	handler http.Handler
	service *search.Service
	store   *history.FileStore
	hub     *realtime.Hub
}

func setupTestAPIServer(t *testing.T, p provider.Provider) *testEnv {
	t.Helper()
	hub := realtime.NewHub(16)
	store, err := history.Open(filepath.Join(t.TempDir(), "history.json"), history.WithObserver(hub.Observe))
	if err != nil {
		t.Fatalf("Failed to open history store: %v", err)
	}
	service := search.NewService(p, store)
	t.Cleanup(service.Wait)

	server := NewServer(service, hub)
	return &testEnv{handler: server.Handler(), service: service, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeResults(t *testing.T, w *httptest.ResponseRecorder) []core.SearchResult {
	t.Helper()
	var results []core.SearchResult
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("Failed to decode results %q: %v", w.Body.String(), err)
	}
	return results
}

func TestSearchEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		target         string
		body           string
		expectedStatus int
		expectedCount  int
	}{
		{"GET valid query", "GET", "/search?q=react", "", http.StatusOK, 2},
		{"GET missing query", "GET", "/search", "", http.StatusBadRequest, 0},
		{"GET empty query", "GET", "/search?q=", "", http.StatusBadRequest, 0},
		{"GET whitespace query", "GET", "/search?q=%20%20", "", http.StatusBadRequest, 0},
		{"GET oversized query", "GET", "/search?q=" + strings.Repeat("a", 201), "", http.StatusBadRequest, 0},
		{"POST valid body", "POST", "/search", `{"q":"react"}`, http.StatusCreated, 2},
		{"POST missing field", "POST", "/search", `{}`, http.StatusBadRequest, 0},
		{"POST empty body", "POST", "/search", "", http.StatusBadRequest, 0},
		{"POST unknown field", "POST", "/search", `{"q":"react","invalid":"field"}`, http.StatusBadRequest, 0},
		{"POST wrong type", "POST", "/search", `{"q":42}`, http.StatusBadRequest, 0},
		{"POST trailing data", "POST", "/search", `{"q":"a"}{"q":"b"}`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestAPIServer(t, &mockProvider{results: testResults})
			w := env.do(t, tt.method, tt.target, tt.body)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			if tt.expectedStatus >= 400 {
				var resp ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("Failed to decode error response: %v", err)
				}
				if resp.Error == "" || resp.Message == "" {
					t.Errorf("Expected error and message, got %+v", resp)
				}
				return
			}

			results := decodeResults(t, w)
			if len(results) != tt.expectedCount {
				t.Fatalf("Expected %d results, got %d", tt.expectedCount, len(results))
			}
			if results[0] != testResults[0] {
				t.Errorf("Expected first result %+v, got %+v", testResults[0], results[0])
			}
		})
	}
}

func TestSearchRecordsHistory(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{results: testResults})

	w := env.do(t, "GET", "/search?q=%20react%20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	env.service.Wait()

	entries, err := env.store.FindAll()
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(entries) != 1 || entries[0].Query != "react" {
		t.Fatalf("Expected trimmed query in history, got %+v", entries)
	}
}

func TestSearchProviderFailure(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{err: errors.New("timeout")})

	w := env.do(t, "GET", "/search?q=fail", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if resp.Message != `Search provider failed for query "fail"` {
		t.Errorf("Unexpected message %q", resp.Message)
	}

	env.service.Wait()
	entries, _ := env.store.FindAll()
	if len(entries) != 0 {
		t.Fatalf("Expected no history after provider failure, got %+v", entries)
	}
}

func TestSearchEmptyResultsIsArray(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{})

	w := env.do(t, "GET", "/search?q=nothing", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("Expected [], got %q", w.Body.String())
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{results: testResults})

	w := env.do(t, "GET", "/search/history", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("Expected empty history, got %d %q", w.Code, w.Body.String())
	}

	for _, q := range []string{"first", "second", "third"} {
		if err := env.store.Save(q); err != nil {
			t.Fatalf("Save: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	w = env.do(t, "GET", "/search/history", "")
	var entries []core.HistoryEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(entries) != 3 || entries[0].Query != "third" || entries[2].Query != "first" {
		t.Fatalf("Expected most recent first, got %+v", entries)
	}

	w = env.do(t, "DELETE", "/search/history/0", "")
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Fatalf("Expected 200 with empty body, got %d %q", w.Code, w.Body.String())
	}
	entries, _ = env.store.FindAll()
	if len(entries) != 2 || entries[0].Query != "second" {
		t.Fatalf("Expected newest entry removed, got %+v", entries)
	}

	w = env.do(t, "DELETE", "/search/history/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for non-numeric index, got %d", w.Code)
	}

	w = env.do(t, "DELETE", "/search/history/99", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for out of range index, got %d", w.Code)
	}

	w = env.do(t, "DELETE", "/search/history", "")
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Fatalf("Expected 200 with empty body, got %d %q", w.Code, w.Body.String())
	}
	entries, _ = env.store.FindAll()
	if len(entries) != 0 {
		t.Fatalf("Expected history cleared, got %+v", entries)
	}
}

func TestHistoryWriteFailure(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{})
	if err := env.store.Save("q"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.RemoveAll(filepath.Dir(env.store.Path())); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	if w := env.do(t, "DELETE", "/search/history", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 on clear failure, got %d", w.Code)
	}
}

func TestMiddleware(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{results: testResults})

	t.Run("request id assigned", func(t *testing.T) {
		w := env.do(t, "GET", "/health", "")
		if w.Header().Get(RequestIDHeader) == "" {
			t.Fatal("Expected X-Request-ID header")
		}
	})

	t.Run("request id propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Fatalf("Expected propagated id, got %q", got)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		w := env.do(t, "OPTIONS", "/search", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatal("Expected CORS header")
		}
	})

	t.Run("gzip", func(t *testing.T) {
		long := make([]core.SearchResult, 50)
		for i := range long {
			long[i] = core.SearchResult{Title: "Result title that repeats", URL: "https://example.com/a/long/path"}
		}
		env := setupTestAPIServer(t, &mockProvider{results: long})

		req := httptest.NewRequest("GET", "/search?q=gz", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)

		if w.Header().Get("Content-Encoding") != "gzip" {
			t.Fatalf("Expected gzip encoding, got headers %v", w.Header())
		}
		zr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		var results []core.SearchResult
		if err := json.NewDecoder(zr).Decode(&results); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(results) != 50 {
			t.Fatalf("Expected 50 results, got %d", len(results))
		}
	})
}

func TestHealth(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{})
	w := env.do(t, "GET", "/health", "")

	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "ok" || health.Provider != "mock" || health.Version == "" {
		t.Fatalf("Unexpected health response %+v", health)
	}
	if health.ProviderState != "" || health.Watchers != 0 {
		t.Fatalf("Expected no breaker state and no watchers, got %+v", health)
	}
}

func TestHealthReportsBreakerAndWatchers(t *testing.T) {
	p := provider.NewBreaker(&mockProvider{err: errors.New("down")}, provider.BreakerConfig{MaxFailures: 1})
	env := setupTestAPIServer(t, p)

	if w := env.do(t, "GET", "/search?q=x", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", w.Code)
	}

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/search/history/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	var first realtime.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	w := env.do(t, "GET", "/health", "")
	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.ProviderState != "open" {
		t.Errorf("Expected open breaker, got %q", health.ProviderState)
	}
	if health.Watchers != 1 {
		t.Errorf("Expected 1 watcher, got %d", health.Watchers)
	}
}

func TestHistoryWebSocket(t *testing.T) {
	env := setupTestAPIServer(t, &mockProvider{results: testResults})
	if err := env.store.Save("before"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/search/history/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first realtime.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("Reading init message: %v", err)
	}
	if first.Type != realtime.TypeInit || len(first.History) != 1 || first.History[0].Query != "before" {
		t.Fatalf("Unexpected init message %+v", first)
	}

	w := env.do(t, "GET", "/search?q=after", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var msg realtime.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Reading event: %v", err)
	}
	if msg.Type != realtime.TypeHistory || msg.Event == nil {
		t.Fatalf("Expected history event, got %+v", msg)
	}
	if msg.Event.Op != string(history.OpSaved) || msg.Event.Query != "after" {
		t.Fatalf("Unexpected event %+v", msg.Event)
	}
}
