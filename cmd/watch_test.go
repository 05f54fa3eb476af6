package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rubiojr/quack/pkg/api"
	"github.com/rubiojr/quack/pkg/client"
	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/history"
	"github.com/rubiojr/quack/pkg/realtime"
	"github.com/rubiojr/quack/pkg/search"
	"github.com/rubiojr/quack/pkg/store"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type staticProvider struct {
	results []core.SearchResult
}

func (p staticProvider) Name() string { return "static" }

func (p staticProvider) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return p.results, nil
}

type testServer struct {
	url     string
	history *history.FileStore

	mu       sync.Mutex
	requests []string
}

func (s *testServer) requestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func newTestServer(t *testing.T, p staticProvider) *testServer {
	t.Helper()
	hub := realtime.NewHub(16)
	hs, err := history.Open(filepath.Join(t.TempDir(), "history.json"), history.WithObserver(hub.Observe))
	if err != nil {
		t.Fatalf("Failed to open history store: %v", err)
	}
	svc := search.NewService(p, hs)
	handler := api.NewServer(svc, hub).Handler()

	ts := &testServer{history: hs}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.Method+" "+r.URL.Path)
		ts.mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(svc.Wait)
	ts.url = srv.URL
	return ts
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// scriptedWatcher fails the first failures connections, then delivers msgs
// and cancels the watch.
type scriptedWatcher struct {
	failures int
	msgs     []realtime.Message
	cancel   context.CancelFunc
	calls    int
}

func (w *scriptedWatcher) WatchHistory(ctx context.Context, fn func(realtime.Message)) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("connection refused")
	}
	for _, m := range w.msgs {
		fn(m)
	}
	w.cancel()
	return ctx.Err()
}

var scriptedMessages = []realtime.Message{
	{Type: realtime.TypeInit, History: []core.HistoryEntry{core.NewHistoryEntry("old", time.Now())}},
	{Type: realtime.TypeHistory, Event: &realtime.HistoryEvent{Op: "saved", Query: "golang"}},
}

func TestTailHistoryStreamsServerChanges(t *testing.T) {
	srv := newTestServer(t, staticProvider{})
	cl, err := client.New(srv.url)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	var stdout, stderr syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- tailHistory(ctx, cl, watchOptions{
			initialBackoff: 10 * time.Millisecond,
			stdout:         &stdout,
			stderr:         &stderr,
		})
	}()

	waitUntil(t, func() bool { return strings.Contains(stderr.String(), "connected") })
	if err := srv.history.Save("golang"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	waitUntil(t, func() bool { return strings.Contains(stdout.String(), `"op":"saved"`) })

	out := stdout.String()
	if !strings.Contains(out, `"query":"golang"`) {
		t.Errorf("Expected saved query in output, got %s", out)
	}
	if strings.Contains(out, `"type":"init"`) {
		t.Errorf("Init message should be filtered without --all, got %s", out)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestTailHistoryReconnectsWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &scriptedWatcher{failures: 2, msgs: scriptedMessages, cancel: cancel}

	var stdout, stderr syncBuffer
	err := tailHistory(ctx, w, watchOptions{
		initialBackoff: time.Millisecond,
		maxBackoff:     time.Second,
		stdout:         &stdout,
		stderr:         &stderr,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	log := stderr.String()
	if n := strings.Count(log, "dial failed"); n != 2 {
		t.Errorf("Expected 2 dial failures, got %d:\n%s", n, log)
	}
	if !strings.Contains(log, "retrying in 1ms") || !strings.Contains(log, "retrying in 2ms") {
		t.Errorf("Expected doubling backoff:\n%s", log)
	}
	if !strings.Contains(log, "connected (backoff reset)") {
		t.Errorf("Expected connected line:\n%s", log)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"type":"history"`) {
		t.Fatalf("Expected one history event line, got %q", lines)
	}
}

func TestTailHistoryAllAndPretty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &scriptedWatcher{msgs: scriptedMessages, cancel: cancel}

	var stdout, stderr syncBuffer
	_ = tailHistory(ctx, w, watchOptions{includeAll: true, pretty: true, stdout: &stdout, stderr: &stderr})

	out := stdout.String()
	if !strings.Contains(out, `"type": "init"`) || !strings.Contains(out, `"type": "history"`) {
		t.Fatalf("Expected both messages pretty printed, got:\n%s", out)
	}
}

func TestTailHistoryNoRetry(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cl, err := client.New(url)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	var stdout, stderr syncBuffer
	err = tailHistory(context.Background(), cl, watchOptions{noRetry: true, stdout: &stdout, stderr: &stderr})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("Expected connection error, got %v", err)
	}
	if stdout.String() != "" {
		t.Errorf("Expected no output, got %q", stdout.String())
	}
}

func TestTUIReloadsHistoryOnChange(t *testing.T) {
	backend := &stubBackend{}
	st := store.New(backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newTUIModel(ctx, st)
	defer m.close()

	backend.history = []core.HistoryEntry{core.NewHistoryEntry("golang", time.Now())}
	m.watcher = &scriptedWatcher{msgs: scriptedMessages, cancel: cancel}

	runCmd(t, m, m.watchHistory())
	m.Update(stateChangedMsg{})

	if len(m.state.History) != 1 || m.state.History[0].Query != "golang" {
		t.Fatalf("Expected history reloaded after change event, got %+v", m.state.History)
	}
}

func TestSearchCommandValidatesQuery(t *testing.T) {
	for _, args := range [][]string{
		{"search", "   "},
		{"search", strings.Repeat("a", core.MaxQueryLength+1)},
	} {
		err := SearchCommand().Run(context.Background(), args)
		if !errors.Is(err, search.ErrInvalidQuery) {
			t.Errorf("Expected ErrInvalidQuery for %q, got %v", args[1], err)
		}
	}
}

func TestSearchPostBackend(t *testing.T) {
	srv := newTestServer(t, staticProvider{results: numbered(3)})
	cl, err := client.New(srv.url)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	st := store.New(postBackend{cl})
	if err := runSearch(context.Background(), st, "golang", 1); err != nil {
		t.Fatalf("runSearch: %v", err)
	}
	st.Wait()

	if len(st.Snapshot().Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(st.Snapshot().Results))
	}
	found := false
	for _, r := range srv.requestLog() {
		if r == "POST /search" {
			found = true
		}
		if r == "GET /search" {
			t.Errorf("Expected no GET search, got %v", srv.requestLog())
		}
	}
	if !found {
		t.Fatalf("Expected POST /search, got %v", srv.requestLog())
	}
}
