package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>  Threat   Monitor  </title>
	<style>body { color: red; }</style>
</head>
<body>
	<script>var beacon = "tracking";</script>
	<h1>Autonomous Systems</h1>
	<p>Skynet   became
	self-aware.</p>
	<noscript>Enable JavaScript</noscript>
</body>
</html>`

// --- static fetch ---

func TestWeb_FetchesTitleAndVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	records, err := NewWeb([]string{srv.URL}).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Records() returned %d records, want 1", len(records))
	}

	rec := records[0]
	if rec["url"] != srv.URL {
		t.Errorf("url = %v, want %q", rec["url"], srv.URL)
	}
	if rec["id"] != srv.URL {
		t.Errorf("id = %v, want %q", rec["id"], srv.URL)
	}
	if rec["title"] != "Threat Monitor" {
		t.Errorf("title = %q, want %q", rec["title"], "Threat Monitor")
	}
	if rec["status_code"] != 200 {
		t.Errorf("status_code = %v, want 200", rec["status_code"])
	}

	text, _ := rec["text"].(string)
	if !strings.Contains(text, "Autonomous Systems") {
		t.Errorf("text = %q, want the heading included", text)
	}
	if !strings.Contains(text, "Skynet became self-aware.") {
		t.Errorf("text = %q, want whitespace collapsed body text", text)
	}
	for _, hidden := range []string{"tracking", "Enable JavaScript", "color: red"} {
		if strings.Contains(text, hidden) {
			t.Errorf("text = %q, should not contain %q", text, hidden)
		}
	}
}

func TestWeb_SendsConfiguredHeaders(t *testing.T) {
	var gotUA, gotLang atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		gotLang.Store(r.Header.Get("Accept-Language"))
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	src := NewWeb([]string{srv.URL},
		WithUserAgent("sculptor-test/0.1"),
		WithHeaders(map[string]string{"Accept-Language": "en"}),
	)
	if _, err := src.Records(context.Background()); err != nil {
		t.Fatalf("Records() error = %v", err)
	}

	if gotUA.Load() != "sculptor-test/0.1" {
		t.Errorf("User-Agent = %v, want the configured agent", gotUA.Load())
	}
	if gotLang.Load() != "en" {
		t.Errorf("Accept-Language = %v, want %q", gotLang.Load(), "en")
	}
}

// --- dedup and failure handling ---

func TestWeb_DeduplicatesEquivalentURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	urls := []string{
		srv.URL + "/page",
		srv.URL + "/page/",
		srv.URL + "/page#section",
	}
	records, err := NewWeb(urls).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Records() returned %d records, want 1 after dedup", len(records))
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestWeb_SkipsFailedPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	records, err := NewWeb([]string{srv.URL + "/missing", srv.URL + "/ok"}).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v, want partial failures to be non-fatal", err)
	}
	if len(records) != 1 {
		t.Fatalf("Records() returned %d records, want 1", len(records))
	}
	if records[0]["url"] != srv.URL+"/ok" {
		t.Errorf("url = %v, want the surviving page", records[0]["url"])
	}
}

func TestWeb_AllFailuresIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewWeb([]string{srv.URL + "/a", srv.URL + "/b"}).Records(context.Background())
	if err == nil {
		t.Fatal("Records() succeeded with every fetch failing, want error")
	}
	if !strings.Contains(err.Error(), "all web fetches failed") {
		t.Errorf("error = %v, want all-failed message", err)
	}
}

func TestWeb_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWeb([]string{"http://127.0.0.1:1/never"}).Records(ctx)
	if err == nil {
		t.Fatal("Records() succeeded with a cancelled context, want error")
	}
	if err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// --- parsing helpers ---

func TestParsePage(t *testing.T) {
	title, text, err := parsePage(samplePage)
	if err != nil {
		t.Fatalf("parsePage() error = %v", err)
	}
	if title != "Threat Monitor" {
		t.Errorf("title = %q, want %q", title, "Threat Monitor")
	}
	if !strings.Contains(text, "Skynet became self-aware.") {
		t.Errorf("text = %q, want collapsed body text", text)
	}
	if strings.Contains(text, "beacon") {
		t.Errorf("text = %q, script content should be removed", text)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/page", "https://example.com/page"},
		{"https://example.com/page/", "https://example.com/page"},
		{"https://example.com/page#frag", "https://example.com/page"},
		{"https://example.com/page?a=1#frag", "https://example.com/page?a=1"},
		{"://not a url", "://not a url"},
	}
	for _, tt := range tests {
		if got := normalizeURL(tt.in); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- factory ---

func TestWebFactory_RequiresURLs(t *testing.T) {
	_, err := New("web", map[string]any{})
	if err == nil {
		t.Fatal("New(web) without urls succeeded, want error")
	}
	if !strings.Contains(err.Error(), "requires a urls option") {
		t.Errorf("error = %v, want missing urls message", err)
	}
}

func TestWebFactory_AcceptsSingleURL(t *testing.T) {
	src, err := New("web", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("New(web) error = %v", err)
	}
	w, ok := src.(*Web)
	if !ok {
		t.Fatalf("New(web) returned %T, want *Web", src)
	}
	if len(w.urls) != 1 || w.urls[0] != "https://example.com" {
		t.Errorf("urls = %v, want the single URL", w.urls)
	}
}

func TestWebFactory_DecodesOptions(t *testing.T) {
	src, err := New("web", map[string]any{
		"urls":     []any{"https://a.test", "https://b.test"},
		"render":   true,
		"wait_for": "#content",
		"timeout":  "45s",
	})
	if err != nil {
		t.Fatalf("New(web) error = %v", err)
	}
	w := src.(*Web)
	if len(w.urls) != 2 {
		t.Errorf("urls = %v, want two URLs", w.urls)
	}
	if !w.render {
		t.Error("render = false, want true")
	}
	if w.waitFor != "#content" {
		t.Errorf("waitFor = %q, want %q", w.waitFor, "#content")
	}
	if w.timeout.Seconds() != 45 {
		t.Errorf("timeout = %v, want 45s", w.timeout)
	}
}

func TestWebFactory_BadTimeout(t *testing.T) {
	_, err := New("web", map[string]any{"urls": []any{"https://a.test"}, "timeout": "soon"})
	if err == nil {
		t.Fatal("New(web) with bad timeout succeeded, want error")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error = %v, want duration mentioned", err)
	}
}
