package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/sculptor/internal/logger"
)

const defaultWebUserAgent = "sculptor/1.0 (+https://github.com/jmylchreest/sculptor)"

// Web fetches pages and yields one record per URL with keys id, url,
// title, text, and status_code. Static pages go through a plain HTTP
// fetch; set WithRender for JavaScript-heavy pages, which drives a
// headless browser instead.
type Web struct {
	urls      []string
	render    bool
	userAgent string
	timeout   time.Duration
	waitFor   string
	headers   map[string]string
}

// WebOption configures a Web source.
type WebOption func(*Web)

// WithRender fetches pages with a headless browser so client-side
// JavaScript runs before the content is read.
func WithRender(render bool) WebOption {
	return func(w *Web) { w.render = render }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) WebOption {
	return func(w *Web) { w.userAgent = ua }
}

// WithWebTimeout sets the per-page fetch timeout.
func WithWebTimeout(d time.Duration) WebOption {
	return func(w *Web) { w.timeout = d }
}

// WithWaitSelector makes rendered fetches wait for a CSS selector to
// become visible before reading the page. Default: body.
func WithWaitSelector(selector string) WebOption {
	return func(w *Web) { w.waitFor = selector }
}

// WithHeaders adds extra request headers to static fetches.
func WithHeaders(headers map[string]string) WebOption {
	return func(w *Web) { w.headers = headers }
}

// NewWeb creates a source over a fixed list of page URLs.
func NewWeb(urls []string, opts ...WebOption) *Web {
	w := &Web{
		urls:      urls,
		userAgent: defaultWebUserAgent,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name identifies the source type.
func (w *Web) Name() string { return "web" }

var _ Source = (*Web)(nil)

// Records fetches every URL once. Duplicate URLs (after normalization)
// are skipped, failed pages are logged and skipped, and an error is
// returned only when every URL fails.
func (w *Web) Records(ctx context.Context) ([]map[string]any, error) {
	seen := make(map[string]bool)

	var (
		records []map[string]any
		lastErr error
	)
	for _, raw := range w.urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := normalizeURL(raw)
		if seen[key] {
			continue
		}
		seen[key] = true

		record, err := w.fetch(ctx, raw)
		if err != nil {
			lastErr = err
			logger.Warn("web fetch failed", "url", raw, "error", err)
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all web fetches failed: %w", lastErr)
	}
	return records, nil
}

func (w *Web) fetch(ctx context.Context, pageURL string) (map[string]any, error) {
	var (
		html   string
		status int
		err    error
	)
	if w.render {
		html, status, err = w.fetchRendered(ctx, pageURL)
	} else {
		html, status, err = w.fetchStatic(pageURL)
	}
	if err != nil {
		return nil, err
	}

	title, text, err := parsePage(html)
	if err != nil {
		return nil, err
	}

	logger.Debug("web page fetched",
		"url", pageURL,
		"status", status,
		"title", title,
		"text_length", len(text))

	return map[string]any{
		"id":          pageURL,
		"url":         pageURL,
		"title":       title,
		"text":        text,
		"status_code": status,
	}, nil
}

// fetchStatic retrieves a page over plain HTTP. A fresh collector per
// request keeps visited-URL state from leaking between fetches.
func (w *Web) fetchStatic(pageURL string) (string, int, error) {
	c := colly.NewCollector(colly.UserAgent(w.userAgent))
	c.SetRequestTimeout(w.timeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range w.headers {
			r.Headers.Set(k, v)
		}
	})

	var (
		html     string
		status   int
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		html = string(r.Body)
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", 0, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return "", status, fmt.Errorf("failed to fetch %s (status %d): %w", pageURL, status, fetchErr)
	}
	return html, status, nil
}

// fetchRendered drives a headless browser so scripts run before the
// DOM is read. The browser lives only for this one page.
func (w *Web) fetchRendered(ctx context.Context, pageURL string) (string, int, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(w.userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, w.timeout)
	defer cancelRun()

	waitFor := w.waitFor
	if waitFor == "" {
		waitFor = "body"
	}

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(waitFor, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", 0, fmt.Errorf("failed to render %s: %w", pageURL, err)
	}

	// The CDP session does not surface the navigation status code, so a
	// successful render is reported as 200.
	return html, 200, nil
}

// parsePage extracts the title and visible body text from a page.
func parsePage(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse page: %w", err)
	}

	title = cleanText(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, iframe, svg").Remove()

	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return title, strings.Join(parts, " "), nil
}

// cleanText collapses all runs of whitespace to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeURL canonicalizes a URL for deduplication by dropping the
// fragment and any trailing slash.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func init() {
	Register("web", newWebFromOptions)
}

func newWebFromOptions(options map[string]any) (Source, error) {
	urls, ok := stringsOption(options, "urls")
	if !ok || len(urls) == 0 {
		if single, okOne := stringOption(options, "url"); okOne && single != "" {
			urls = []string{single}
		} else {
			return nil, fmt.Errorf("web source requires a urls option")
		}
	}

	var opts []WebOption
	if render, ok := boolOption(options, "render"); ok {
		opts = append(opts, WithRender(render))
	}
	if ua, ok := stringOption(options, "user_agent"); ok && ua != "" {
		opts = append(opts, WithUserAgent(ua))
	}
	if waitFor, ok := stringOption(options, "wait_for"); ok && waitFor != "" {
		opts = append(opts, WithWaitSelector(waitFor))
	}
	if timeout, ok := stringOption(options, "timeout"); ok && timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("web timeout option must be a duration, got %q", timeout)
		}
		opts = append(opts, WithWebTimeout(d))
	}
	return NewWeb(urls, opts...), nil
}
