// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package wiki implements the encyclopedic lookup capability on top of the
// MediaWiki Action API: title search, plain-text summaries and full
// articles, canonical URLs, and Markdown-converted extracts.
// Implements: prd005-lookup (R1-R5);
//
//	docs/ARCHITECTURE § Lookup Client.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pdiddy/doc-engine/internal/httputil"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// apiBase is the MediaWiki Action API endpoint, parameterized by the
// language subdomain. Declared as a var so tests can substitute an
// httptest server.
var apiBase = "https://%s.wikipedia.org/w/api.php"

// DefaultLanguage is the encyclopedia edition used when the configuration
// does not name one.
const DefaultLanguage = "fr"

const (
	defaultUserAgent   = "doc-engine/0.1 (+https://github.com/pdiddy/doc-engine)"
	defaultTimeout     = 30 * time.Second
	defaultCacheSize   = 128
	defaultSummaryLen  = 3
	defaultSearchLimit = 5

	// maxSummarySentences is the Action API ceiling for exsentences.
	maxSummarySentences = 10
	maxSearchLimit      = 50
)

// Client queries one language edition of Wikipedia. The language is fixed
// at construction (R1.2); there is no process-wide language setting.
// Responses are cached by (operation, normalized title/query) so repeated
// lookups within a run do not repeat network traffic.
type Client struct {
	http      *http.Client
	lang      string
	userAgent string
	sentences int
	cache     *boundedCache

	conv      *converter.Converter
	sanitizer *bluemonday.Policy
}

// New builds a Client for cfg.Language, filling unset fields with defaults.
func New(cfg types.LookupConfig) *Client {
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sentences := cfg.SummarySentences
	if sentences <= 0 {
		sentences = defaultSummaryLen
	}
	if sentences > maxSummarySentences {
		sentences = maxSummarySentences
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		lang:      lang,
		userAgent: userAgent,
		sentences: sentences,
		cache:     newBoundedCache(cfg.CacheSize),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Language reports the Wikipedia edition this client queries.
func (c *Client) Language() string { return c.lang }

// Search returns up to limit page titles matching query, in the API's
// relevance order. An empty result is not an error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	op := fmt.Sprintf("search/%d", limit)
	if v, ok := c.cache.get(op, query); ok {
		return v.([]string), nil
	}

	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {fmt.Sprintf("%d", limit)},
	}

	var sr searchResponse
	if err := c.call(ctx, params, &sr); err != nil {
		return nil, err
	}
	if sr.Error != nil {
		return nil, fmt.Errorf("wiki API error: %s (%s)", sr.Error.Info, sr.Error.Code)
	}

	titles := make([]string, 0, len(sr.Query.Search))
	for _, hit := range sr.Query.Search {
		titles = append(titles, hit.Title)
	}
	c.cache.put(op, query, titles)
	return titles, nil
}

// Summary returns the first sentences of the article's lead paragraph as
// plain text. A title that cannot be resolved, even through the search
// fallback, yields "" without an error.
func (c *Client) Summary(ctx context.Context, title string, sentences int) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty title")
	}
	if sentences <= 0 {
		sentences = c.sentences
	}
	if sentences > maxSummarySentences {
		sentences = maxSummarySentences
	}

	op := fmt.Sprintf("summary/%d", sentences)
	if v, ok := c.cache.get(op, title); ok {
		return v.(string), nil
	}

	page, err := c.fetchPage(ctx, title, url.Values{
		"prop":        {"extracts|pageprops"},
		"ppprop":      {"disambiguation"},
		"explaintext": {"1"},
		"exintro":     {"1"},
		"exsentences": {fmt.Sprintf("%d", sentences)},
	})
	if err != nil {
		return "", err
	}

	text := ""
	if page.usable() {
		text = strings.TrimSpace(page.Extract)
	}
	c.cache.put(op, title, text)
	return text, nil
}

// FullText returns the whole article as plain text, or "" when the title
// cannot be resolved.
func (c *Client) FullText(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty title")
	}

	if v, ok := c.cache.get("fulltext", title); ok {
		return v.(string), nil
	}

	page, err := c.fetchPage(ctx, title, url.Values{
		"prop":        {"extracts|pageprops"},
		"ppprop":      {"disambiguation"},
		"explaintext": {"1"},
	})
	if err != nil {
		return "", err
	}

	text := ""
	if page.usable() {
		text = strings.TrimSpace(page.Extract)
	}
	c.cache.put("fulltext", title, text)
	return text, nil
}

// CanonicalURL returns the article's canonical URL, or "" when the title
// cannot be resolved.
func (c *Client) CanonicalURL(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty title")
	}

	if v, ok := c.cache.get("url", title); ok {
		return v.(string), nil
	}

	page, err := c.fetchPage(ctx, title, url.Values{
		"prop":   {"info|pageprops"},
		"ppprop": {"disambiguation"},
		"inprop": {"url"},
	})
	if err != nil {
		return "", err
	}

	u := ""
	if page.usable() {
		u = page.CanonicalURL
		if u == "" {
			u = page.FullURL
		}
	}
	c.cache.put("url", title, u)
	return u, nil
}

// fetchPage retrieves one page with the given query parameters, applying
// the fallback rule (R3.1): when the title is missing, invalid, or
// resolves to a disambiguation page, the first search result for the same
// string is tried once before giving up.
func (c *Client) fetchPage(ctx context.Context, title string, extra url.Values) (wikiPage, error) {
	page, err := c.queryPage(ctx, title, extra)
	if err != nil {
		return wikiPage{}, err
	}
	if page.usable() {
		return page, nil
	}

	titles, err := c.Search(ctx, title, 1)
	if err != nil || len(titles) == 0 || strings.EqualFold(titles[0], title) {
		// No better candidate; the caller surfaces an empty result.
		return page, nil
	}
	return c.queryPage(ctx, titles[0], extra)
}

// queryPage fetches a single page record by exact title.
func (c *Client) queryPage(ctx context.Context, title string, extra url.Values) (wikiPage, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"redirects":     {"1"},
		"titles":        {title},
	}
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	var qr queryResponse
	if err := c.call(ctx, params, &qr); err != nil {
		return wikiPage{}, err
	}
	if qr.Error != nil {
		return wikiPage{}, fmt.Errorf("wiki API error: %s (%s)", qr.Error.Info, qr.Error.Code)
	}
	if len(qr.Query.Pages) == 0 {
		return wikiPage{Missing: true}, nil
	}
	return qr.Query.Pages[0], nil
}

// call performs one API round-trip, retrying on throttled responses.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	reqURL := fmt.Sprintf(apiBase, c.lang) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return fmt.Errorf("wiki API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wiki API returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing wiki API response: %w", err)
	}
	return nil
}

// MediaWiki Action API JSON structures (formatversion=2).
type searchResponse struct {
	Error *apiError   `json:"error"`
	Query searchQuery `json:"query"`
}

type searchQuery struct {
	Search []searchHit `json:"search"`
}

type searchHit struct {
	PageID int    `json:"pageid"`
	Title  string `json:"title"`
}

type queryResponse struct {
	Error *apiError `json:"error"`
	Query pageQuery `json:"query"`
}

type pageQuery struct {
	Pages []wikiPage `json:"pages"`
}

type wikiPage struct {
	PageID       int               `json:"pageid"`
	Title        string            `json:"title"`
	Missing      bool              `json:"missing"`
	Invalid      bool              `json:"invalid"`
	Extract      string            `json:"extract"`
	FullURL      string            `json:"fullurl"`
	CanonicalURL string            `json:"canonicalurl"`
	PageProps    map[string]string `json:"pageprops"`
}

// usable reports whether the page resolved to real content: it exists and
// is not a disambiguation page.
func (p wikiPage) usable() bool {
	if p.Missing || p.Invalid {
		return false
	}
	_, ambiguous := p.PageProps["disambiguation"]
	return !ambiguous
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}
