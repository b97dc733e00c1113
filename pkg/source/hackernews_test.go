package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingServer captures the query values of every request it serves so
// tests can assert on the parameters the source sent.
type recordingServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []url.Values
}

func newRecordingServer(handler func(q url.Values, w http.ResponseWriter)) *recordingServer {
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rs.mu.Lock()
		rs.queries = append(rs.queries, q)
		rs.mu.Unlock()
		handler(q, w)
	}))
	return rs
}

func (rs *recordingServer) query(t *testing.T, i int) url.Values {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if i >= len(rs.queries) {
		t.Fatalf("server saw %d requests, need index %d", len(rs.queries), i)
	}
	return rs.queries[i]
}

func (rs *recordingServer) requestCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.queries)
}

func hnSource(srv *recordingServer, query string, opts ...HNOption) *HackerNews {
	opts = append([]HNOption{WithHNBaseURL(srv.URL), WithHNClient(srv.Client())}, opts...)
	return NewHackerNews(query, opts...)
}

// --- stories ---

func TestHackerNews_PaginatesAndShapesStories(t *testing.T) {
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		switch q.Get("page") {
		case "0":
			fmt.Fprint(w, `{"hits":[
				{"objectID":"100","title":"Skynet goes live","url":"https://example.com/skynet","story_text":"Cyberdyne ships it","points":256,"created_at_i":1700000000,"author":"sarah"},
				{"objectID":"101","title":"Ask HN: Is HAL safe?","points":12,"created_at_i":1700000100,"author":"dave"}
			],"nbPages":2,"page":0}`)
		case "1":
			fmt.Fprint(w, `{"hits":[
				{"objectID":"102","title":"GERTY field report","url":"https://example.com/gerty","created_at_i":1700000200,"author":"sam"}
			],"nbPages":2,"page":1}`)
		default:
			fmt.Fprint(w, `{"hits":[],"nbPages":2,"page":2}`)
		}
	})
	defer srv.Close()

	records, err := hnSource(srv, "ai", WithHNLimit(3)).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Records() returned %d records, want 3", len(records))
	}

	first := records[0]
	if first["id"] != "100_story" {
		t.Errorf("id = %v, want %q", first["id"], "100_story")
	}
	if first["text"] != "Cyberdyne ships it" {
		t.Errorf("text = %v, want the story text", first["text"])
	}
	if first["url"] != "https://example.com/skynet" {
		t.Errorf("url = %v, want the story URL", first["url"])
	}
	if first["score"] != 256 {
		t.Errorf("score = %v (%T), want 256", first["score"], first["score"])
	}
	if first["created_utc"] != int64(1700000000) {
		t.Errorf("created_utc = %v (%T), want 1700000000", first["created_utc"], first["created_utc"])
	}
	if first["is_comment"] != false {
		t.Errorf("is_comment = %v, want false", first["is_comment"])
	}
	if first["comment_id"] != nil {
		t.Errorf("comment_id = %v, want nil", first["comment_id"])
	}
	if first["context_text"] != "" {
		t.Errorf("context_text = %q, want empty", first["context_text"])
	}

	// A hit with no URL and no body text falls back to the item page and
	// the title.
	second := records[1]
	if second["text"] != "Ask HN: Is HAL safe?" {
		t.Errorf("text = %v, want the title fallback", second["text"])
	}
	if second["url"] != "https://news.ycombinator.com/item?id=101" {
		t.Errorf("url = %v, want the item page fallback", second["url"])
	}

	// A hit with no points yields a nil score.
	if records[2]["score"] != nil {
		t.Errorf("score = %v, want nil for missing points", records[2]["score"])
	}

	q := srv.query(t, 0)
	if q.Get("query") != "ai" {
		t.Errorf("query param = %q, want %q", q.Get("query"), "ai")
	}
	if q.Get("tags") != "story" {
		t.Errorf("tags param = %q, want %q", q.Get("tags"), "story")
	}
	if q.Get("hitsPerPage") != "3" {
		t.Errorf("hitsPerPage param = %q, want %q", q.Get("hitsPerPage"), "3")
	}
	if srv.query(t, 1).Get("page") != "1" {
		t.Errorf("second request page = %q, want %q", srv.query(t, 1).Get("page"), "1")
	}
}

func TestHackerNews_NoLimitUsesFullPages(t *testing.T) {
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		fmt.Fprint(w, `{"hits":[],"nbPages":0,"page":0}`)
	})
	defer srv.Close()

	records, err := hnSource(srv, "ai", WithHNLimit(0)).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Records() returned %d records, want 0", len(records))
	}

	q := srv.query(t, 0)
	if q.Get("hitsPerPage") != "1000" {
		t.Errorf("hitsPerPage param = %q, want %q", q.Get("hitsPerPage"), "1000")
	}
	if q.Has("numericFilters") {
		t.Errorf("numericFilters param = %q, want unset", q.Get("numericFilters"))
	}
}

func TestHackerNews_SinceBecomesNumericFilter(t *testing.T) {
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		fmt.Fprint(w, `{"hits":[],"nbPages":0,"page":0}`)
	})
	defer srv.Close()

	since := time.Unix(1699999999, 0)
	_, err := hnSource(srv, "ai", WithHNSince(since)).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}

	got := srv.query(t, 0).Get("numericFilters")
	if got != "created_at_i>1699999999" {
		t.Errorf("numericFilters = %q, want %q", got, "created_at_i>1699999999")
	}
}

func TestHackerNews_TagsJoined(t *testing.T) {
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		fmt.Fprint(w, `{"hits":[],"nbPages":0,"page":0}`)
	})
	defer srv.Close()

	_, err := hnSource(srv, "ai", WithHNTags("story", "show_hn")).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}

	got := srv.query(t, 0).Get("tags")
	if got != "story,show_hn" {
		t.Errorf("tags = %q, want %q", got, "story,show_hn")
	}
}

// --- retries ---

func TestHackerNews_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "upstream hiccup")
			return
		}
		fmt.Fprint(w, `{"hits":[{"objectID":"7","title":"Recovered","created_at_i":1}],"nbPages":1,"page":0}`)
	})
	defer srv.Close()

	records, err := hnSource(srv, "ai", WithHNLimit(1), WithHNMaxRetries(2)).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Records() returned %d records, want 1", len(records))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestHackerNews_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "no such index")
	})
	defer srv.Close()

	_, err := hnSource(srv, "ai", WithHNMaxRetries(3)).Records(context.Background())
	if err == nil {
		t.Fatal("Records() succeeded on 404, want error")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("error = %v, want status 404 mentioned", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (no retries on client errors)", got)
	}
}

// --- comments ---

func TestHackerNews_IncludeCommentsFetchesThreads(t *testing.T) {
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		tags := q.Get("tags")
		switch {
		case tags == "story":
			fmt.Fprint(w, `{"hits":[{"objectID":"42","title":"AI regulation lands","created_at_i":1700000000,"points":90}],"nbPages":1,"page":0}`)
		case tags == "comment,story_42" && q.Get("page") == "0":
			fmt.Fprint(w, `{"hits":[{"objectID":"9001","comment_text":"we are doomed","created_at_i":1700000500,"points":3,"author":"kyle"}],"nbPages":1,"page":0}`)
		default:
			fmt.Fprint(w, `{"hits":[],"nbPages":1,"page":0}`)
		}
	})
	defer srv.Close()

	records, err := hnSource(srv, "ai", WithHNLimit(0), WithHNComments(true)).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Records() returned %d records, want story + comment", len(records))
	}

	comment := records[1]
	if comment["id"] != "42_comment_9001" {
		t.Errorf("id = %v, want %q", comment["id"], "42_comment_9001")
	}
	if comment["text"] != "we are doomed" {
		t.Errorf("text = %v, want the comment text", comment["text"])
	}
	if comment["title"] != "[Comment] AI regulation lands" {
		t.Errorf("title = %v, want the prefixed story title", comment["title"])
	}
	wantContext := "Story Title: AI regulation lands\nURL: https://news.ycombinator.com/item?id=42"
	if comment["context_text"] != wantContext {
		t.Errorf("context_text = %q, want %q", comment["context_text"], wantContext)
	}
	if comment["url"] != "https://news.ycombinator.com/item?id=9001" {
		t.Errorf("url = %v, want the comment item page", comment["url"])
	}
	if comment["is_comment"] != true {
		t.Errorf("is_comment = %v, want true", comment["is_comment"])
	}
	if comment["comment_id"] != "9001" {
		t.Errorf("comment_id = %v, want %q", comment["comment_id"], "9001")
	}

	// The thread request asks for comments of that story at 100 per page.
	threadQuery := srv.query(t, 1)
	if threadQuery.Get("tags") != "comment,story_42" {
		t.Errorf("thread tags = %q, want %q", threadQuery.Get("tags"), "comment,story_42")
	}
	if threadQuery.Get("hitsPerPage") != "100" {
		t.Errorf("thread hitsPerPage = %q, want %q", threadQuery.Get("hitsPerPage"), "100")
	}
}

func TestHackerNews_CommentFailureSkipsThread(t *testing.T) {
	srv := newRecordingServer(func(q url.Values, w http.ResponseWriter) {
		if strings.HasPrefix(q.Get("tags"), "comment,") {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "bad tag combination")
			return
		}
		fmt.Fprint(w, `{"hits":[{"objectID":"42","title":"Still here","created_at_i":1}],"nbPages":1,"page":0}`)
	})
	defer srv.Close()

	records, err := hnSource(srv, "ai", WithHNLimit(0), WithHNComments(true), WithHNMaxRetries(0)).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v, want thread failure to be non-fatal", err)
	}
	if len(records) != 1 {
		t.Fatalf("Records() returned %d records, want just the story", len(records))
	}
	if records[0]["id"] != "42_story" {
		t.Errorf("id = %v, want %q", records[0]["id"], "42_story")
	}
}

// --- factory ---

func TestHackerNewsFactory_DecodesOptions(t *testing.T) {
	src, err := New("hackernews", map[string]any{
		"query":            "artificial intelligence",
		"tags":             "story,show_hn",
		"limit":            float64(5),
		"include_comments": true,
		"base_url":         "http://hn.test/api/v1",
	})
	if err != nil {
		t.Fatalf("New(hackernews) error = %v", err)
	}

	hn, ok := src.(*HackerNews)
	if !ok {
		t.Fatalf("New(hackernews) returned %T, want *HackerNews", src)
	}
	if hn.query != "artificial intelligence" {
		t.Errorf("query = %q, want the configured query", hn.query)
	}
	if len(hn.tags) != 2 || hn.tags[0] != "story" || hn.tags[1] != "show_hn" {
		t.Errorf("tags = %v, want [story show_hn]", hn.tags)
	}
	if hn.limit != 5 {
		t.Errorf("limit = %d, want 5", hn.limit)
	}
	if !hn.includeComments {
		t.Error("includeComments = false, want true")
	}
	if hn.baseURL != "http://hn.test/api/v1" {
		t.Errorf("baseURL = %q, want the configured endpoint", hn.baseURL)
	}
}

func TestHackerNewsFactory_BadSince(t *testing.T) {
	_, err := New("hackernews", map[string]any{"query": "ai", "since": "yesterday"})
	if err == nil {
		t.Fatal("New(hackernews) with bad since succeeded, want error")
	}
	if !strings.Contains(err.Error(), "RFC3339") {
		t.Errorf("error = %v, want RFC3339 mentioned", err)
	}
}

func TestHackerNewsFactory_SinceParsed(t *testing.T) {
	src, err := New("hackernews", map[string]any{"query": "ai", "since": "2024-01-02T15:04:05Z"})
	if err != nil {
		t.Fatalf("New(hackernews) error = %v", err)
	}
	hn := src.(*HackerNews)
	if hn.since.IsZero() {
		t.Error("since was not applied")
	}
}
