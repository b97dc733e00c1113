package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jmylchreest/sculptor/internal/logger"
)

// DefaultHNBaseURL is the Algolia Hacker News search API.
const DefaultHNBaseURL = "https://hn.algolia.com/api/v1"

const hnPageSize = 1000

// HackerNews searches Hacker News through the Algolia API and yields one
// record per story (and optionally per comment). Record keys: id, text,
// title, context_text, url, score, created_utc, is_comment, comment_id.
type HackerNews struct {
	baseURL         string
	client          *http.Client
	query           string
	tags            []string
	limit           int
	since           time.Time
	includeComments bool
	maxRetries      int
}

// HNOption configures a HackerNews source.
type HNOption func(*HackerNews)

// WithHNTags filters results by Algolia tags (e.g. "story", "show_hn",
// "ask_hn"). Default: story.
func WithHNTags(tags ...string) HNOption {
	return func(h *HackerNews) { h.tags = tags }
}

// WithHNLimit caps the total number of records. Zero means no cap.
func WithHNLimit(n int) HNOption {
	return func(h *HackerNews) { h.limit = n }
}

// WithHNSince restricts results to items created after t.
func WithHNSince(t time.Time) HNOption {
	return func(h *HackerNews) { h.since = t }
}

// WithHNComments also fetches each story's comment thread.
func WithHNComments(include bool) HNOption {
	return func(h *HackerNews) { h.includeComments = include }
}

// WithHNBaseURL overrides the API endpoint.
func WithHNBaseURL(baseURL string) HNOption {
	return func(h *HackerNews) { h.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHNClient overrides the HTTP client.
func WithHNClient(client *http.Client) HNOption {
	return func(h *HackerNews) { h.client = client }
}

// WithHNMaxRetries sets retries for transient API failures (429/5xx).
func WithHNMaxRetries(n int) HNOption {
	return func(h *HackerNews) { h.maxRetries = n }
}

// NewHackerNews creates a Hacker News source for a search query. An empty
// query returns front-page-ranked results for the configured tags.
func NewHackerNews(query string, opts ...HNOption) *HackerNews {
	h := &HackerNews{
		baseURL:    DefaultHNBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		query:      query,
		tags:       []string{"story"},
		limit:      100,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name identifies the source type.
func (h *HackerNews) Name() string { return "hackernews" }

var _ Source = (*HackerNews)(nil)

// Records pages through search results until the limit or the last page.
func (h *HackerNews) Records(ctx context.Context) ([]map[string]any, error) {
	var records []map[string]any

	for page := 0; ; page++ {
		res, err := h.search(ctx, h.searchParams(page))
		if err != nil {
			return nil, fmt.Errorf("hackernews search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			break
		}

		logger.Debug("hackernews page fetched",
			"page", page,
			"hits", len(res.Hits),
			"query", h.query)

		for _, hit := range res.Hits {
			records = append(records, h.storyRecord(hit))
			if h.includeComments {
				comments, err := h.comments(ctx, hit)
				if err != nil {
					logger.Warn("hackernews comment fetch failed",
						"story", hit.ObjectID,
						"error", err)
				} else {
					records = append(records, comments...)
				}
			}
			if h.limit > 0 && len(records) >= h.limit {
				return records[:h.limit], nil
			}
		}

		if res.NbPages > 0 && page+1 >= res.NbPages {
			break
		}
	}

	return records, nil
}

func (h *HackerNews) searchParams(page int) url.Values {
	params := url.Values{}
	if h.query != "" {
		params.Set("query", h.query)
	}
	if len(h.tags) > 0 {
		params.Set("tags", strings.Join(h.tags, ","))
	}
	pageSize := hnPageSize
	if h.limit > 0 && h.limit < pageSize {
		pageSize = h.limit
	}
	params.Set("hitsPerPage", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))
	if !h.since.IsZero() {
		params.Set("numericFilters", fmt.Sprintf("created_at_i>%d", h.since.Unix()))
	}
	return params
}

// comments fetches the comment thread of one story.
func (h *HackerNews) comments(ctx context.Context, story hnHit) ([]map[string]any, error) {
	var records []map[string]any
	for page := 0; ; page++ {
		params := url.Values{}
		params.Set("tags", fmt.Sprintf("comment,story_%s", story.ObjectID))
		params.Set("hitsPerPage", "100")
		params.Set("page", strconv.Itoa(page))

		res, err := h.search(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(res.Hits) == 0 {
			break
		}
		for _, hit := range res.Hits {
			records = append(records, h.commentRecord(story, hit))
		}
		if len(res.Hits) < 100 {
			break
		}
	}
	return records, nil
}

type hnResult struct {
	Hits    []hnHit `json:"hits"`
	NbPages int     `json:"nbPages"`
	Page    int     `json:"page"`
}

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	Points      *int   `json:"points"`
	NumComments *int   `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
}

// search runs one API request with retry on transient failures. The retry
// policy lives here at the transport edge, mirroring the completion
// providers.
func (h *HackerNews) search(ctx context.Context, params url.Values) (*hnResult, error) {
	endpoint := h.baseURL + "/search?" + params.Encode()

	var result hnResult
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")

			resp, err := h.client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				err := fmt.Errorf("hackernews api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
				if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
					return err
				}
				return retry.Unrecoverable(err)
			}

			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(h.maxRetries)+1),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (h *HackerNews) storyRecord(hit hnHit) map[string]any {
	text := hit.StoryText
	if text == "" {
		text = hit.CommentText
	}
	if text == "" {
		text = hit.Title
	}

	link := hit.URL
	if link == "" {
		link = itemPage(hit.ObjectID)
	}

	return map[string]any{
		"id":           hit.ObjectID + "_story",
		"text":         text,
		"title":        hit.Title,
		"context_text": "",
		"url":          link,
		"author":       hit.Author,
		"score":        intOrNil(hit.Points),
		"created_utc":  hit.CreatedAtI,
		"is_comment":   false,
		"comment_id":   nil,
	}
}

func (h *HackerNews) commentRecord(story, hit hnHit) map[string]any {
	storyURL := story.URL
	if storyURL == "" {
		storyURL = itemPage(story.ObjectID)
	}

	return map[string]any{
		"id":           fmt.Sprintf("%s_comment_%s", story.ObjectID, hit.ObjectID),
		"text":         hit.CommentText,
		"title":        "[Comment] " + story.Title,
		"context_text": fmt.Sprintf("Story Title: %s\nURL: %s", story.Title, storyURL),
		"url":          itemPage(hit.ObjectID),
		"author":       hit.Author,
		"score":        intOrNil(hit.Points),
		"created_utc":  hit.CreatedAtI,
		"is_comment":   true,
		"comment_id":   hit.ObjectID,
	}
}

func itemPage(id string) string {
	return "https://news.ycombinator.com/item?id=" + id
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func init() {
	Register("hackernews", newHackerNewsFromOptions)
}

func newHackerNewsFromOptions(options map[string]any) (Source, error) {
	query, _ := stringOption(options, "query")

	var opts []HNOption
	if tags, ok := stringsOption(options, "tags"); ok {
		opts = append(opts, WithHNTags(tags...))
	}
	if limit, ok := intOption(options, "limit"); ok {
		opts = append(opts, WithHNLimit(limit))
	}
	if include, ok := boolOption(options, "include_comments"); ok {
		opts = append(opts, WithHNComments(include))
	}
	if baseURL, ok := stringOption(options, "base_url"); ok && baseURL != "" {
		opts = append(opts, WithHNBaseURL(baseURL))
	}
	if since, ok := stringOption(options, "since"); ok && since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, fmt.Errorf("hackernews since option must be RFC3339, got %q", since)
		}
		opts = append(opts, WithHNSince(t))
	}
	return NewHackerNews(query, opts...), nil
}
